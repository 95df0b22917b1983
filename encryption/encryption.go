// Package encryption holds the strategies used to turn serialized values into
// the printable cipher text stored in an envelope, and back.
//
// Two strategies exist. Cipher derives a key from a password (or from a
// random per-installation secret) and seals data with XChaCha20-Poly1305.
// Plaintext only applies base64 and is used when encryption is disabled or
// unavailable. Both emit standard base64, which never contains the envelope
// delimiters.
package encryption

import (
	"errors"
	"fmt"
)

var (
	// ErrDecryptionFailed indicates that a cipher text could not be decoded or
	// authenticated.
	ErrDecryptionFailed = errors.New("encryption: decryption failed")

	// ErrNotInitialized is returned when a Cipher is used before Init succeeded.
	ErrNotInitialized = errors.New("encryption: not initialized")

	// ErrInvalidKeyMaterial indicates that stored key material is unreadable.
	ErrInvalidKeyMaterial = errors.New("encryption: invalid key material")
)

// Encryption is implemented by every strategy.
type Encryption interface {
	// Init prepares the strategy. An error means the strategy cannot be used
	// on this installation.
	Init() error

	// Encrypt returns the printable cipher text of data.
	Encrypt(data []byte) (string, error)

	// Decrypt reverses Encrypt. It returns an error wrapping
	// ErrDecryptionFailed when cipherText is not valid for this strategy.
	Decrypt(cipherText string) ([]byte, error)

	// Reset forgets all key material, in memory and on disk.
	Reset() error
}

// ProbeError is returned by Cipher.Init when the platform cannot run the
// cipher.
type ProbeError struct {
	Step  string
	Cause error
}

func (e *ProbeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("encryption probe failed at %s: %v", e.Step, e.Cause)
	}
	return fmt.Sprintf("encryption probe failed at %s", e.Step)
}

func (e *ProbeError) Unwrap() error {
	return e.Cause
}
