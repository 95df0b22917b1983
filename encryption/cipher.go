package encryption

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/stevemurr/hawk/store"
)

// MaterialKey is the key under which the key material record is stored.
const MaterialKey = "material"

var associatedData = []byte("hawk/v1")

var probePayload = []byte("hawk capability probe")

// CipherConfig selects how new key material is created. Existing material
// always wins over the configuration.
type CipherConfig struct {
	Password string
	KDF      KDF
	Argon2   *Argon2Params
	PBKDF2   *PBKDF2Params

	// Rand defaults to crypto/rand.Reader.
	Rand io.Reader
}

// Cipher is the authenticated encryption strategy.
type Cipher struct {
	bucket store.Bucket
	cfg    CipherConfig
	logger hclog.Logger

	mu   sync.RWMutex
	key  []byte
	aead cipher.AEAD
}

// NewCipher returns a Cipher keeping its material in bucket. Init must be
// called before use.
func NewCipher(bucket store.Bucket, cfg CipherConfig, logger hclog.Logger) *Cipher {
	if cfg.KDF == "" {
		cfg.KDF = Argon2id
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Cipher{bucket: bucket, cfg: cfg, logger: logger}
}

// Init loads or creates the key material, derives the key and checks that a
// seal/open round trip works. Panics from the crypto libraries are returned
// as errors.
func (c *Cipher) Init() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ProbeError{Step: "init", Cause: fmt.Errorf("%v", r)}
		}
	}()

	m, err := c.loadMaterial()
	if err != nil {
		return err
	}

	key := m.derive(c.cfg.Password)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return &ProbeError{Step: "cipher", Cause: err}
	}
	if err := probe(aead, c.cfg.Rand); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	zero(c.key)
	c.key = key
	c.aead = aead
	c.logger.Debug("cipher ready", "kdf", m.KDF, "installation", m.Installation)
	return nil
}

func (c *Cipher) loadMaterial() (keyMaterial, error) {
	raw, ok, err := c.bucket.Get(MaterialKey)
	if err != nil {
		return keyMaterial{}, fmt.Errorf("failed to read key material: %w", err)
	}
	if ok {
		m, err := decodeKeyMaterial(raw)
		if err == nil {
			return m, nil
		}
		// Values sealed under the old material are unreadable either way.
		c.logger.Warn("replacing unreadable key material", "error", err)
	}

	m, err := newKeyMaterial(c.cfg, c.cfg.Rand)
	if err != nil {
		return keyMaterial{}, &ProbeError{Step: "key material", Cause: err}
	}
	encoded, err := m.encode()
	if err != nil {
		return keyMaterial{}, err
	}
	if err := c.bucket.Put(MaterialKey, encoded); err != nil {
		return keyMaterial{}, fmt.Errorf("failed to persist key material: %w", err)
	}
	c.logger.Debug("created key material", "kdf", m.KDF)
	return m, nil
}

func probe(aead cipher.AEAD, random io.Reader) error {
	sealed, err := seal(aead, random, probePayload)
	if err != nil {
		return &ProbeError{Step: "seal", Cause: err}
	}
	opened, err := open(aead, sealed)
	if err != nil {
		return &ProbeError{Step: "open", Cause: err}
	}
	if !bytes.Equal(opened, probePayload) {
		return &ProbeError{Step: "compare"}
	}
	return nil
}

func (c *Cipher) Encrypt(data []byte) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.aead == nil {
		return "", ErrNotInitialized
	}
	sealed, err := seal(c.aead, c.cfg.Rand, data)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *Cipher) Decrypt(cipherText string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.aead == nil {
		return nil, ErrNotInitialized
	}
	sealed, err := base64.StdEncoding.DecodeString(cipherText)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	data, err := open(c.aead, sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return data, nil
}

// Reset zeroes the in-memory key and deletes the stored material. The Cipher
// must be initialized again before use.
func (c *Cipher) Reset() error {
	c.mu.Lock()
	zero(c.key)
	c.key = nil
	c.aead = nil
	c.mu.Unlock()

	if err := c.bucket.Clear(); err != nil {
		return fmt.Errorf("failed to clear key material: %w", err)
	}
	c.logger.Info("key material destroyed")
	return nil
}

func seal(aead cipher.AEAD, random io.Reader, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(random, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, associatedData), nil
}

func open(aead cipher.AEAD, sealed []byte) ([]byte, error) {
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, errors.New("cipher text too short")
	}
	nonce, body := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, body, associatedData)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
