// Package cryptoenv implements the authenticated-encryption envelope shared
// by the session counter, the artifact packager, and the artifact reader:
// AES-256-GCM with a random 12-byte nonce prepended to the ciphertext, and
// the two key-derivation schemes (password-based and machine-derived) that
// feed it.
package cryptoenv

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// InstructorSalt is the constant salt for the instructor password KDF.
	// Producer and consumer must agree on it byte-for-byte; it is part of
	// the on-disk format, not a secret.
	InstructorSalt = "exam-recorder-suite-salt-v1"

	// MachineSalt is mixed into the machine-derived key used only for the
	// local session-counter file.
	MachineSalt = "exam-recorder-state-key-v1"

	pbkdf2Iterations = 100000
	keyLen            = 32
	nonceSize         = 12
	gcmTagSize        = 16

	// MinEnvelopeSize is the smallest possible valid envelope: an empty
	// plaintext still costs a nonce and a GCM tag.
	MinEnvelopeSize = nonceSize + gcmTagSize
)

// DeriveInstructorKey runs PBKDF2-HMAC-SHA256 over password with the fixed
// instructor salt and iteration count. Any caller that needs to read or
// write an artifact must derive the key this exact way.
func DeriveInstructorKey(password string) []byte {
	return pbkdf2.Key([]byte(password), []byte(InstructorSalt), pbkdf2Iterations, keyLen, sha256.New)
}

// DeriveMachineKey is SHA-256 over hostname||username||MachineSalt. It is
// deterministic per machine/user pair and never leaves the local host.
func DeriveMachineKey(hostname, username string) []byte {
	h := sha256.New()
	h.Write([]byte(hostname))
	h.Write([]byte(username))
	h.Write([]byte(MachineSalt))
	return h.Sum(nil)
}

// NewAEAD wraps a 32-byte key in an AES-256-GCM cipher.AEAD.
func NewAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoenv: new cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext under aead and returns nonce||ciphertext||tag.
func Seal(aead cipher.AEAD, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("cryptoenv: generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open validates envelope length, splits off the nonce, and decrypts.
// Any GCM authentication failure is returned as an error — it never
// silently succeeds with garbage plaintext.
func Open(aead cipher.AEAD, envelope []byte) ([]byte, error) {
	if len(envelope) < MinEnvelopeSize {
		return nil, fmt.Errorf("cryptoenv: envelope too short (%d bytes, need at least %d)", len(envelope), MinEnvelopeSize)
	}
	nonce, ciphertext := envelope[:nonceSize], envelope[nonceSize:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("cryptoenv: decrypt: %w", err)
	}
	return plaintext, nil
}

// SealWithPassword derives an instructor key from password and seals data.
func SealWithPassword(password string, data []byte) ([]byte, error) {
	aead, err := NewAEAD(DeriveInstructorKey(password))
	if err != nil {
		return nil, err
	}
	return Seal(aead, data)
}

// OpenWithPassword derives an instructor key from password and opens envelope.
func OpenWithPassword(password string, envelope []byte) ([]byte, error) {
	aead, err := NewAEAD(DeriveInstructorKey(password))
	if err != nil {
		return nil, err
	}
	return Open(aead, envelope)
}
