package encryption

import (
	"encoding/base64"
	"fmt"
)

// Plaintext stores data base64 encoded. It provides no confidentiality.
type Plaintext struct{}

// NewPlaintext returns the plaintext strategy.
func NewPlaintext() Plaintext {
	return Plaintext{}
}

func (Plaintext) Init() error { return nil }

func (Plaintext) Encrypt(data []byte) (string, error) {
	return base64.StdEncoding.EncodeToString(data), nil
}

func (Plaintext) Decrypt(cipherText string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(cipherText)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return data, nil
}

func (Plaintext) Reset() error { return nil }
