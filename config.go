package hawk

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"

	"github.com/stevemurr/hawk/encryption"
	"github.com/stevemurr/hawk/serializer"
	"github.com/stevemurr/hawk/store"
)

// StoreConfig selects the storage backend opened by Open.
type StoreConfig struct {
	Backend string `json:"backend,omitempty"`
	DataDir string `json:"data_dir,omitempty"`
}

// Merge applies non-zero values from source into c.
func (c *StoreConfig) Merge(source *StoreConfig) {
	if source.Backend != "" {
		c.Backend = source.Backend
	}
	if source.DataDir != "" {
		c.DataDir = source.DataDir
	}
}

// Open creates the configured store.
func (c StoreConfig) Open() (store.Store, error) {
	return store.New(c.Backend, c.DataDir)
}

// Config holds initialization parameters for a Hawk.
type Config struct {
	// Password feeds key derivation. When empty a random per-installation
	// secret kept in the crypto namespace is used instead.
	Password string `json:"password,omitempty"`

	// LogLevel is one of none, error, warn, info, debug or trace.
	LogLevel string `json:"log_level,omitempty"`

	// DisableEncryption selects the plaintext strategy without probing and
	// without recording the installation as incapable.
	DisableEncryption bool `json:"disable_encryption,omitempty"`

	Serializer string `json:"serializer,omitempty"`
	KDF        string `json:"kdf,omitempty"`

	// Argon2 and PBKDF2 override the cost parameters used when key material
	// is first created.
	Argon2 *encryption.Argon2Params `json:"argon2,omitempty"`
	PBKDF2 *encryption.PBKDF2Params `json:"pbkdf2,omitempty"`

	Store StoreConfig `json:"store"`

	// Logger replaces the logger built from LogLevel.
	Logger hclog.Logger `json:"-"`
}

// DefaultConfig returns a Config with defaults for every field.
func DefaultConfig() Config {
	return Config{
		LogLevel:   "warn",
		Serializer: "json",
		KDF:        string(encryption.Argon2id),
		Store: StoreConfig{
			Backend: "json",
			DataDir: "./data",
		},
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	c.Store.Merge(&source.Store)

	if source.Password != "" {
		c.Password = source.Password
	}
	if source.LogLevel != "" {
		c.LogLevel = source.LogLevel
	}
	if source.DisableEncryption {
		c.DisableEncryption = true
	}
	if source.Serializer != "" {
		c.Serializer = source.Serializer
	}
	if source.KDF != "" {
		c.KDF = source.KDF
	}
	if source.Argon2 != nil {
		c.Argon2 = source.Argon2
	}
	if source.PBKDF2 != nil {
		c.PBKDF2 = source.PBKDF2
	}
	if source.Logger != nil {
		c.Logger = source.Logger
	}
}

// LoadConfig reads a JSON config file, merges it with defaults, and returns
// the resulting Config.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}

func (c *Config) validate() error {
	if _, err := serializer.New(c.Serializer); err != nil {
		return err
	}
	switch encryption.KDF(c.KDF) {
	case "", encryption.Argon2id, encryption.PBKDF2:
	default:
		return fmt.Errorf("unknown kdf %q (supported: argon2id, pbkdf2)", c.KDF)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}
