package claim

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	keySize = 32

	// SealVersion is the first byte of every sealed blob and part of its AAD.
	SealVersion byte = 0x01

	sealOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead
	minSecretLen = 16
)

// HKDF info strings. Changing one invalidates everything derived from it.
var (
	hkdfInfoTokenIndex = []byte("munlink.claim.token-index.v1")
	hkdfInfoSeal       = []byte("munlink.claim.seal.v1")
)

// ErrSealedData is returned when a sealed blob fails to open.
var ErrSealedData = errors.New("claim: sealed data rejected")

// Keyring holds the keys protecting ticket secrets at rest: a BLAKE3 key for
// the token lookup digest, an XChaCha20-Poly1305 key for the recoverable
// copies, and the bcrypt cost for codes.
type Keyring struct {
	indexKey [keySize]byte
	aead     cipher.AEAD
	random   io.Reader
	codeCost int
}

// NewKeyring derives the ticket keys from the configured secrets.
func NewKeyring(hashSecret, sealSecret string) (*Keyring, error) {
	if len(hashSecret) < minSecretLen || len(sealSecret) < minSecretLen {
		return nil, fmt.Errorf("claim: secrets must be at least %d bytes", minSecretLen)
	}

	k := &Keyring{random: rand.Reader, codeCost: bcrypt.DefaultCost}

	indexKey, err := deriveKey([]byte(hashSecret), hkdfInfoTokenIndex)
	if err != nil {
		return nil, err
	}
	copy(k.indexKey[:], indexKey)

	sealKey, err := deriveKey([]byte(sealSecret), hkdfInfoSeal)
	if err != nil {
		return nil, err
	}
	k.aead, err = chacha20poly1305.NewX(sealKey)
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	return k, nil
}

// WithCodeCost sets the bcrypt cost used by HashCode.
func (k *Keyring) WithCodeCost(cost int) *Keyring {
	clone := *k
	clone.codeCost = cost
	return &clone
}

// WithRandom swaps the nonce source.
func (k *Keyring) WithRandom(r io.Reader) *Keyring {
	clone := *k
	clone.random = r
	return &clone
}

// TokenDigest returns the keyed lookup digest of token.
func (k *Keyring) TokenDigest(token string) []byte {
	h, err := blake3.NewKeyed(k.indexKey[:])
	if err != nil {
		panic("claim: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = h.Write([]byte(token))
	return h.Sum(nil)
}

// DigestEqual compares two digests in constant time.
func DigestEqual(a, b []byte) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare(a, b) == 1
}

// Seal encrypts plaintext bound to ticketID:
//
//	[version: 1 byte] [nonce: 24 bytes] [ciphertext+tag]
func (k *Keyring) Seal(plaintext []byte, ticketID string) ([]byte, error) {
	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(k.random, nonce[:]); err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrRandomSource, err)
	}

	out := make([]byte, 1+len(nonce), sealOverhead+len(plaintext))
	out[0] = SealVersion
	copy(out[1:], nonce[:])
	return k.aead.Seal(out, nonce[:], plaintext, sealAAD(SealVersion, ticketID)), nil
}

// Open reverses Seal. A blob sealed for another ticket does not open.
func (k *Keyring) Open(sealed []byte, ticketID string) ([]byte, error) {
	if len(sealed) < sealOverhead {
		return nil, fmt.Errorf("%w: %d bytes", ErrSealedData, len(sealed))
	}
	if sealed[0] != SealVersion {
		return nil, fmt.Errorf("%w: version %d", ErrSealedData, sealed[0])
	}
	nonce := sealed[1 : 1+chacha20poly1305.NonceSizeX]
	plaintext, err := k.aead.Open(nil, nonce, sealed[1+chacha20poly1305.NonceSizeX:], sealAAD(sealed[0], ticketID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealedData, err)
	}
	return plaintext, nil
}

// HashCode hashes the normalized code with bcrypt.
func (k *Keyring) HashCode(code string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(NormalizeCode(code)), k.codeCost)
	if err != nil {
		return nil, fmt.Errorf("hash claim code: %w", err)
	}
	return hash, nil
}

// CompareCode reports whether code matches hash after normalization.
func CompareCode(hash []byte, code string) bool {
	if len(hash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(NormalizeCode(code))) == nil
}

var (
	absentHashOnce sync.Once
	absentHash     []byte
)

// CompareAbsentCode spends one bcrypt comparison against a throwaway hash and
// reports false. Code lookups that find no ticket call it so they cost the
// same as a mismatch.
func CompareAbsentCode(code string) bool {
	absentHashOnce.Do(func() {
		absentHash, _ = bcrypt.GenerateFromPassword([]byte("no-claim-ticket"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(absentHash, []byte(NormalizeCode(code)))
	return false
}

func deriveKey(secret, info []byte) ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, info), key); err != nil {
		return nil, fmt.Errorf("deriving claim key: %w", err)
	}
	return key, nil
}

func sealAAD(version byte, ticketID string) []byte {
	aad := make([]byte, 1+len(ticketID))
	aad[0] = version
	copy(aad[1:], ticketID)
	return aad
}
