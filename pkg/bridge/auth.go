package bridge

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// keySize is the derived authentication key size.
	keySize = 32

	// saltSize and nonceSize are the challenge parameter sizes.
	saltSize  = 16
	nonceSize = 32
)

// keyInfo domain-separates the bridge key derivation.
var keyInfo = []byte("celltrace-bridge-auth v1")

// deriveKey derives the authentication key from the shared passphrase
// and the per-connection salt using HKDF-SHA256.
func deriveKey(passphrase string, salt []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, []byte(passphrase), salt, keyInfo)
	key := make([]byte, keySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	return key, nil
}

// newChallenge generates a fresh salt and nonce.
func newChallenge() (*Challenge, error) {
	c := &Challenge{
		Salt:  make([]byte, saltSize),
		Nonce: make([]byte, nonceSize),
	}
	if _, err := rand.Read(c.Salt); err != nil {
		return nil, fmt.Errorf("challenge generation failed: %w", err)
	}
	if _, err := rand.Read(c.Nonce); err != nil {
		return nil, fmt.Errorf("challenge generation failed: %w", err)
	}
	return c, nil
}

// prove computes the proof for a challenge: HMAC-SHA256 over the nonce
// with the derived key.
func prove(passphrase string, c *Challenge) ([]byte, error) {
	key, err := deriveKey(passphrase, c.Salt)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(c.Nonce)
	return mac.Sum(nil), nil
}

// verifyProof checks a client proof in constant time.
func verifyProof(passphrase string, c *Challenge, proof []byte) (bool, error) {
	want, err := prove(passphrase, c)
	if err != nil {
		return false, err
	}
	return hmac.Equal(want, proof), nil
}
