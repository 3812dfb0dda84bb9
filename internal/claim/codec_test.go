package claim

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestGenerateProducesWellFormedCredentials(t *testing.T) {
	codec := NewCodec("https://admin.munlink.ph/")

	seenTokens := make(map[string]struct{})
	seenCodes := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		creds, err := codec.Generate()
		require.NoError(t, err)

		assert.True(t, ValidTokenFormat(creds.Token), creds.Token)
		assert.True(t, ValidCodeFormat(creds.Code), creds.Code)
		assert.Len(t, creds.Code, CodeLength+1)
		assert.Equal(t, byte('-'), creds.Code[4])
		assert.NotContains(t, creds.Token, creds.Code)

		seenTokens[creds.Token] = struct{}{}
		seenCodes[creds.Code] = struct{}{}
	}
	assert.Len(t, seenTokens, 200)
	assert.Len(t, seenCodes, 200)
}

func TestGenerateUsesOnlyUnambiguousCharacters(t *testing.T) {
	codec := NewCodec("https://admin.munlink.ph")
	for i := 0; i < 100; i++ {
		creds, err := codec.Generate()
		require.NoError(t, err)
		assert.False(t, strings.ContainsAny(creds.Code, "0O1Il"), creds.Code)
	}
}

func TestGenerateFixedEntropyMapsAlphabet(t *testing.T) {
	raw := make([]byte, TokenBytes+CodeLength)
	for i := 0; i < CodeLength; i++ {
		raw[TokenBytes+i] = byte(i*32 + i)
	}
	creds, err := NewCodec("https://x").WithRandom(bytes.NewReader(raw)).Generate()
	require.NoError(t, err)
	assert.Equal(t, "ABCD-EFGH", creds.Code)
	assert.Equal(t, strings.Repeat("A", 43), creds.Token)
}

func TestGenerateRandomFailure(t *testing.T) {
	_, err := NewCodec("https://x").WithRandom(failingReader{}).Generate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRandomSource))

	short := bytes.NewReader(make([]byte, TokenBytes+3))
	_, err = NewCodec("https://x").WithRandom(short).Generate()
	assert.True(t, errors.Is(err, ErrRandomSource))
}

func TestNormalizeAndFormatCode(t *testing.T) {
	assert.Equal(t, "ABCD2345", NormalizeCode(" abcd 2345 "))
	assert.Equal(t, "ABCD2345", NormalizeCode("ab-cd-23-45"))
	assert.Equal(t, "ABCD-2345", FormatCode("abcd2345"))
	assert.Equal(t, "ABC", FormatCode("abc"))
	assert.True(t, ValidCodeFormat("abcd 2345"))
	assert.False(t, ValidCodeFormat("ABCD-0345"))
	assert.False(t, ValidCodeFormat("ABCD-234"))
}

func TestMask(t *testing.T) {
	cases := map[string]string{
		"ABCD-2345":  "AB••••45",
		"abcd2345":   "AB••••45",
		"ABCDE":      "AB•DE",
		"ABCD":       "••••",
		"AB":         "••",
		"":           "",
		"ABCDEFGHJK": "AB••••••JK",
	}
	for in, want := range cases {
		assert.Equal(t, want, Mask(in), in)
	}
}

func TestMaskDoesNotRevealMiddle(t *testing.T) {
	a := Mask("ABCD-2345")
	b := Mask("ABXY-ZW45")
	assert.Equal(t, a, b)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	codec := NewCodec("https://admin.munlink.ph/")
	for i := 0; i < 50; i++ {
		creds, err := codec.Generate()
		require.NoError(t, err)

		payload := codec.Encode(creds.Token)
		assert.True(t, strings.HasPrefix(payload, "https://admin.munlink.ph/verify-ticket?token="))

		got, err := codec.Decode(payload)
		require.NoError(t, err)
		assert.Equal(t, creds.Token, got)

		raw, err := Decode(creds.Token)
		require.NoError(t, err)
		assert.Equal(t, creds.Token, raw)
	}
}

func TestDecodeRejectsMalformedPayloads(t *testing.T) {
	creds, err := NewCodec("https://x").Generate()
	require.NoError(t, err)

	bad := []string{
		"",
		"   ",
		"not-a-token",
		"https://admin.munlink.ph/other?token=" + creds.Token,
		"https://admin.munlink.ph/verify-ticket",
		"https://admin.munlink.ph/verify-ticket?token=short",
		creds.Token + "A",
		strings.Repeat("*", 43),
	}
	for _, payload := range bad {
		_, err := Decode(payload)
		assert.ErrorIs(t, err, ErrInvalidPayload, payload)
	}
}

func TestDecodeAcceptsRelativeDeepLink(t *testing.T) {
	creds, err := NewCodec("https://x").Generate()
	require.NoError(t, err)

	got, err := Decode("/verify-ticket?token=" + creds.Token)
	require.NoError(t, err)
	assert.Equal(t, creds.Token, got)
}
