package signing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerGenerateAndParse(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("3f1c0e9a-1d2b-4c5d-8e9f-0a1b2c3d4e5f", "claim-qr")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.False(t, expiresAt.IsZero())

	subject, parsedExpiry, err := signer.Parse(token, "claim-qr")
	require.NoError(t, err)
	require.Equal(t, "3f1c0e9a-1d2b-4c5d-8e9f-0a1b2c3d4e5f", subject)
	require.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestSignedURLSignerRejectsOtherPurpose(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("ticket-1", "claim-qr")
	require.NoError(t, err)

	_, _, err = signer.Parse(token, "claim-pdf")
	require.ErrorIs(t, err, ErrInvalidToken)

	_, _, err = NewSignedURLSigner("other", time.Hour).Parse(token, "claim-qr")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestSignedURLSignerExpired(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	signer := NewSignedURLSigner("secret", time.Minute).WithClock(func() time.Time { return now })
	token, _, err := signer.Generate("ticket-1", "claim-qr")
	require.NoError(t, err)

	later := signer.WithClock(func() time.Time { return now.Add(2 * time.Minute) })
	_, _, err = later.Parse(token, "claim-qr")
	require.ErrorIs(t, err, ErrExpiredToken)
}

func TestSignedURLSignerMalformed(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	for _, token := range []string{"", "a.b", "a.notanumber.sig", ".1.sig", "a.1.b.c"} {
		_, _, err := signer.Parse(token, "claim-qr")
		require.ErrorIs(t, err, ErrInvalidToken, token)
	}

	_, _, err := signer.Generate("has.dot", "claim-qr")
	require.Error(t, err)
	_, _, err = NewSignedURLSigner("", time.Hour).Generate("ticket-1", "claim-qr")
	require.Error(t, err)
}
