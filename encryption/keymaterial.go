package encryption

import (
	"crypto/sha512"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

// KDF names the key derivation function recorded in key material.
type KDF string

const (
	Argon2id KDF = "argon2id"
	PBKDF2   KDF = "pbkdf2"
)

const (
	materialVersion = 1
	keyLength       = 32
	saltLength      = 32
)

// Argon2Params are the argon2id cost parameters. Memory is in KiB.
type Argon2Params struct {
	Time    uint32 `json:"time"`
	Memory  uint32 `json:"memory"`
	Threads uint8  `json:"threads"`
}

// DefaultArgon2Params follows the RFC 9106 recommendation for memory
// constrained environments.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{Time: 3, Memory: 64 * 1024, Threads: 4}
}

// PBKDF2Params are the PBKDF2-SHA512 cost parameters.
type PBKDF2Params struct {
	Iterations int `json:"iterations"`
}

// DefaultPBKDF2Params matches the OWASP minimum for PBKDF2-HMAC-SHA512.
func DefaultPBKDF2Params() PBKDF2Params {
	return PBKDF2Params{Iterations: 210000}
}

// keyMaterial is the persisted record needed to re-derive the key. The key
// itself is never stored.
type keyMaterial struct {
	Version      int           `json:"version"`
	KDF          KDF           `json:"kdf"`
	Salt         []byte        `json:"salt"`
	Installation string        `json:"installation"`
	Argon2       *Argon2Params `json:"argon2,omitempty"`
	PBKDF2       *PBKDF2Params `json:"pbkdf2,omitempty"`
}

func newKeyMaterial(cfg CipherConfig, random io.Reader) (keyMaterial, error) {
	m := keyMaterial{
		Version: materialVersion,
		KDF:     cfg.KDF,
		Salt:    make([]byte, saltLength),
	}
	if _, err := io.ReadFull(random, m.Salt); err != nil {
		return keyMaterial{}, fmt.Errorf("failed to obtain %d bytes of random data: %w", saltLength, err)
	}
	id, err := uuid.NewRandomFromReader(random)
	if err != nil {
		return keyMaterial{}, fmt.Errorf("failed to generate installation id: %w", err)
	}
	m.Installation = id.String()

	switch cfg.KDF {
	case Argon2id:
		p := DefaultArgon2Params()
		if cfg.Argon2 != nil {
			p = *cfg.Argon2
		}
		m.Argon2 = &p
	case PBKDF2:
		p := DefaultPBKDF2Params()
		if cfg.PBKDF2 != nil {
			p = *cfg.PBKDF2
		}
		m.PBKDF2 = &p
	default:
		return keyMaterial{}, fmt.Errorf("unsupported key derivation function %q", cfg.KDF)
	}
	return m, nil
}

func decodeKeyMaterial(raw string) (keyMaterial, error) {
	var m keyMaterial
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return keyMaterial{}, fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
	}
	if err := m.validate(); err != nil {
		return keyMaterial{}, err
	}
	return m, nil
}

func (m keyMaterial) encode() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (m keyMaterial) validate() error {
	if m.Version != materialVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidKeyMaterial, m.Version)
	}
	if len(m.Salt) == 0 {
		return fmt.Errorf("%w: missing salt", ErrInvalidKeyMaterial)
	}
	if _, err := uuid.Parse(m.Installation); err != nil {
		return fmt.Errorf("%w: installation id: %v", ErrInvalidKeyMaterial, err)
	}
	switch m.KDF {
	case Argon2id:
		if m.Argon2 == nil || m.Argon2.Time == 0 || m.Argon2.Memory == 0 || m.Argon2.Threads == 0 {
			return fmt.Errorf("%w: incomplete argon2id parameters", ErrInvalidKeyMaterial)
		}
	case PBKDF2:
		if m.PBKDF2 == nil || m.PBKDF2.Iterations <= 0 {
			return fmt.Errorf("%w: incomplete pbkdf2 parameters", ErrInvalidKeyMaterial)
		}
	default:
		return fmt.Errorf("%w: unknown kdf %q", ErrInvalidKeyMaterial, m.KDF)
	}
	return nil
}

// derive returns the 32-byte key for passphrase. Without a password the
// installation id is the passphrase, which ties the key to this store.
func (m keyMaterial) derive(password string) []byte {
	passphrase := []byte(password)
	if password == "" {
		passphrase = []byte(m.Installation)
	}
	switch m.KDF {
	case PBKDF2:
		return pbkdf2.Key(passphrase, m.Salt, m.PBKDF2.Iterations, keyLength, sha512.New)
	default:
		return argon2.IDKey(passphrase, m.Salt, m.Argon2.Time, m.Argon2.Memory, m.Argon2.Threads, keyLength)
	}
}
