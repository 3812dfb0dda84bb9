// Package claim generates and encodes the two credentials of a pickup ticket:
// an opaque token carried in the QR payload and a short code residents can
// read aloud at the counter.
package claim

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// CodeAlphabet omits 0, O, 1, I and l so codes survive being read aloud.
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	// CodeLength is the number of alphabet characters in a code.
	CodeLength = 8
	// TokenBytes is the entropy of a token before encoding.
	TokenBytes = 32

	tokenEncodedLen = 43
	verifyPath      = "/verify-ticket"
	maskRune        = "•"
	maskVisible     = 2
)

var (
	// ErrRandomSource is returned when the system random source fails.
	ErrRandomSource = errors.New("claim: random source failure")
	// ErrInvalidPayload is returned when a scanned payload carries no usable token.
	ErrInvalidPayload = errors.New("claim: invalid ticket payload")
)

// Credentials are the secrets of a freshly issued ticket.
type Credentials struct {
	Token string
	Code  string
}

// Codec produces credentials and converts tokens to and from QR payloads.
type Codec struct {
	random    io.Reader
	verifyURL string
}

// NewCodec returns a Codec whose payloads deep-link into the admin verifier
// hosted at adminBaseURL.
func NewCodec(adminBaseURL string) *Codec {
	return &Codec{
		random:    rand.Reader,
		verifyURL: strings.TrimRight(adminBaseURL, "/") + verifyPath,
	}
}

// WithRandom swaps the entropy source. Tests use it to simulate failures.
func (c *Codec) WithRandom(r io.Reader) *Codec {
	clone := *c
	clone.random = r
	return &clone
}

// Generate draws a new token and code. The two values are independent.
func (c *Codec) Generate() (Credentials, error) {
	tokenRaw := make([]byte, TokenBytes)
	if _, err := io.ReadFull(c.random, tokenRaw); err != nil {
		return Credentials{}, fmt.Errorf("%w: token: %v", ErrRandomSource, err)
	}

	codeRaw := make([]byte, CodeLength)
	if _, err := io.ReadFull(c.random, codeRaw); err != nil {
		return Credentials{}, fmt.Errorf("%w: code: %v", ErrRandomSource, err)
	}

	// len(CodeAlphabet) divides 256, so masking the low five bits is unbiased.
	code := make([]byte, CodeLength)
	for i, b := range codeRaw {
		code[i] = CodeAlphabet[int(b)&(len(CodeAlphabet)-1)]
	}

	return Credentials{
		Token: base64.RawURLEncoding.EncodeToString(tokenRaw),
		Code:  FormatCode(string(code)),
	}, nil
}

// NormalizeCode upper-cases a typed code and strips spaces and dashes.
func NormalizeCode(code string) string {
	var b strings.Builder
	b.Grow(len(code))
	for _, r := range strings.ToUpper(strings.TrimSpace(code)) {
		switch r {
		case ' ', '-', '\t':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FormatCode renders a code as XXXX-XXXX.
func FormatCode(code string) string {
	n := NormalizeCode(code)
	if len(n) != CodeLength {
		return n
	}
	return n[:CodeLength/2] + "-" + n[CodeLength/2:]
}

// ValidCodeFormat reports whether code normalizes to CodeLength alphabet characters.
func ValidCodeFormat(code string) bool {
	n := NormalizeCode(code)
	if len(n) != CodeLength {
		return false
	}
	for i := 0; i < len(n); i++ {
		if strings.IndexByte(CodeAlphabet, n[i]) < 0 {
			return false
		}
	}
	return true
}

// Mask keeps the first and last two characters of the normalized code.
// Codes of four characters or fewer are masked entirely.
func Mask(code string) string {
	n := []rune(NormalizeCode(code))
	if len(n) <= 2*maskVisible {
		return strings.Repeat(maskRune, len(n))
	}
	hidden := strings.Repeat(maskRune, len(n)-2*maskVisible)
	return string(n[:maskVisible]) + hidden + string(n[len(n)-maskVisible:])
}

// Encode returns the QR payload for token.
func (c *Codec) Encode(token string) string {
	return c.verifyURL + "?" + url.Values{"token": {token}}.Encode()
}

// VerifyURL is the admin verifier page payloads point at.
func (c *Codec) VerifyURL() string {
	return c.verifyURL
}

// Decode extracts the token from a scanned payload. Both the deep link and a
// bare token are accepted.
func Decode(payload string) (string, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return "", ErrInvalidPayload
	}

	token := payload
	if strings.Contains(payload, "://") || strings.HasPrefix(payload, "/") {
		u, err := url.Parse(payload)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if !strings.HasSuffix(strings.TrimRight(u.Path, "/"), verifyPath) {
			return "", fmt.Errorf("%w: unexpected path %q", ErrInvalidPayload, u.Path)
		}
		token = u.Query().Get("token")
	}

	if !ValidTokenFormat(token) {
		return "", ErrInvalidPayload
	}
	return token, nil
}

// Decode is a convenience for Decode(payload) on a configured codec.
func (c *Codec) Decode(payload string) (string, error) {
	return Decode(payload)
}

// ValidTokenFormat reports whether token is a base64url encoding of TokenBytes bytes.
func ValidTokenFormat(token string) bool {
	if len(token) != tokenEncodedLen {
		return false
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	return err == nil && len(raw) == TokenBytes
}
