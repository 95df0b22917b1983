// Package hawk stores typed values under string keys, encrypted at rest when
// the installation supports it.
//
// A write serializes the value, encrypts the bytes with the active strategy
// and packs the cipher text together with a type tag into a single string,
// which is written to the user namespace of a store.Store. A read reverses
// the pipeline and rebuilds the value from the type tag, so no schema has to
// be registered up front.
//
// Reads are forgiving: a value that cannot be unpacked, decrypted or decoded
// is reported as absent and logged. Writes are strict and never leave a
// partial result behind.
package hawk

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/stevemurr/hawk/encryption"
	"github.com/stevemurr/hawk/envelope"
	"github.com/stevemurr/hawk/serializer"
	"github.com/stevemurr/hawk/store"
	"github.com/stevemurr/hawk/typedesc"
)

// Namespaces used in the underlying store.
const (
	DataNamespace   = "hawk"
	CryptoNamespace = "hawk.crypto"
	MetaNamespace   = "hawk.meta"
)

// Hawk is the typed key/value facade. It is safe for concurrent use once New
// has returned.
type Hawk struct {
	store      store.Store
	ownsStore  bool
	data       store.Bucket
	crypto     store.Bucket
	meta       store.Bucket
	serializer serializer.Serializer
	cfg        Config
	logger     hclog.Logger
	newCipher  func() encryption.Encryption

	mu       sync.RWMutex
	strategy encryption.Encryption
	state    State
}

// New returns a Hawk over s and runs strategy selection.
func New(s store.Store, cfg Config) (*Hawk, error) {
	h, err := build(s, cfg)
	if err != nil {
		return nil, err
	}
	if err := h.Init(); err != nil {
		return nil, err
	}
	return h, nil
}

// Open creates the store described by cfg.Store and returns a Hawk owning
// it. Close releases the store.
func Open(cfg Config) (*Hawk, error) {
	s, err := cfg.Store.Open()
	if err != nil {
		return nil, err
	}
	h, err := New(s, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	h.ownsStore = true
	return h, nil
}

func build(s store.Store, cfg Config) (*Hawk, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	ser, err := serializer.New(cfg.Serializer)
	if err != nil {
		return nil, err
	}

	h := &Hawk{
		store:      s,
		data:       store.Scope(s, DataNamespace),
		crypto:     store.Scope(s, CryptoNamespace),
		meta:       store.Scope(s, MetaNamespace),
		serializer: ser,
		cfg:        cfg,
		logger:     logger,
	}
	h.newCipher = func() encryption.Encryption {
		return encryption.NewCipher(h.crypto, encryption.CipherConfig{
			Password: cfg.Password,
			KDF:      encryption.KDF(cfg.KDF),
			Argon2:   cfg.Argon2,
			PBKDF2:   cfg.PBKDF2,
		}, logger.Named("cipher"))
	}
	return h, nil
}

// Close closes the store when it was opened by Open.
func (h *Hawk) Close() error {
	if !h.ownsStore {
		return nil
	}
	return h.store.Close()
}

// LogLevel returns the level of the logger in use.
func (h *Hawk) LogLevel() hclog.Level {
	return h.logger.GetLevel()
}

func (h *Hawk) active() (encryption.Encryption, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.strategy == nil {
		return nil, ErrNotInitialized
	}
	return h.strategy, nil
}

// Put stores value under key. An absent value (nil, or a nil pointer, map or
// slice) removes the key instead.
func (h *Hawk) Put(key string, value any) error {
	if key == "" {
		return ErrInvalidKey
	}
	if isAbsent(value) {
		return h.Remove(key)
	}
	strategy, err := h.active()
	if err != nil {
		return err
	}
	packed, err := h.encode(strategy, key, value)
	if err != nil {
		return err
	}
	if err := h.data.Put(key, packed); err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return nil
}

func (h *Hawk) encode(strategy encryption.Encryption, key string, value any) (string, error) {
	data, err := h.serializer.Serialize(value)
	if err != nil {
		return "", &EncodingError{Key: key, Cause: err}
	}
	cipherText, err := strategy.Encrypt(data)
	if err != nil {
		return "", &EncodingError{Key: key, Cause: err}
	}
	packed, err := envelope.New(cipherText, typedesc.Describe(value)).Pack()
	if err != nil {
		return "", &EncodingError{Key: key, Cause: err}
	}
	return packed, nil
}

// Get returns the value stored under key, rebuilt from its type tag. Integers
// come back as int64 or uint64, floats as float64, lists as []any, maps and
// objects as map[string]any. Use GetAs for a concrete type.
func (h *Hawk) Get(key string) (any, bool, error) {
	var out any
	ok, err := h.read(key, typedesc.Of(typedesc.Any), &out)
	if err != nil || !ok {
		return nil, false, err
	}
	return out, true, nil
}

// GetAs returns the value stored under key decoded as T. A stored value whose
// type tag is incompatible with T is reported as absent.
func GetAs[T any](h *Hawk, key string) (T, bool, error) {
	var out T
	ok, err := h.read(key, typedesc.For[T](), &out)
	if err != nil || !ok {
		var zero T
		return zero, false, err
	}
	return out, true, nil
}

// GetOr is GetAs with a fallback for absent values.
func GetOr[T any](h *Hawk, key string, def T) (T, error) {
	v, ok, err := GetAs[T](h, key)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

// read decodes the value under key into target. Only an empty key, a missing
// strategy or a storage failure produce an error.
func (h *Hawk) read(key string, want typedesc.Descriptor, target any) (bool, error) {
	if key == "" {
		return false, ErrInvalidKey
	}
	strategy, err := h.active()
	if err != nil {
		return false, err
	}

	raw, ok, err := h.data.Get(key)
	if err != nil {
		return false, fmt.Errorf("failed to read %q: %w", key, err)
	}
	if !ok {
		return false, nil
	}

	env, err := envelope.Unpack(raw)
	if err != nil {
		h.logger.Debug("discarding malformed envelope", "key", key, "error", err)
		return false, nil
	}
	info := env.Info()
	if !typedesc.Compatible(info, want) {
		h.logger.Debug("stored type does not match request", "key", key, "stored", info, "want", want)
		return false, nil
	}

	data, err := strategy.Decrypt(env.CipherText)
	if err != nil {
		h.logger.Debug("failed to decrypt value", "key", key, "error", err)
		return false, nil
	}
	if err := h.serializer.Deserialize(data, info, target); err != nil {
		h.logger.Debug("failed to decode value", "key", key, "type", info, "error", err)
		return false, nil
	}
	return true, nil
}

// Remove deletes key. Removing a missing key is not an error.
func (h *Hawk) Remove(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if _, err := h.data.Delete(key); err != nil {
		return fmt.Errorf("failed to remove %q: %w", key, err)
	}
	return nil
}

// RemoveAll deletes every key. All removals are attempted; the returned error
// lists each failure.
func (h *Hawk) RemoveAll(keys ...string) error {
	var result *multierror.Error
	for _, key := range keys {
		if err := h.Remove(key); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Contains reports whether key is stored, without decrypting or decoding it.
func (h *Hawk) Contains(key string) (bool, error) {
	if key == "" {
		return false, ErrInvalidKey
	}
	return h.data.Contains(key)
}

// Count returns the number of keys in the user namespace.
func (h *Hawk) Count() (int, error) {
	return h.data.Count()
}

// Clear removes every user value. Key material and the capability flag are
// kept.
func (h *Hawk) Clear() error {
	return h.data.Clear()
}

// Keys returns the stored keys in sorted order.
func (h *Hawk) Keys() ([]string, error) {
	return h.data.Keys()
}

// ResetCrypto destroys the key material of the active strategy and creates
// fresh material. Values written before the reset can no longer be read and
// are reported as absent; they stay in the store until overwritten or
// removed. Nothing happens when encryption is not in use.
func (h *Hawk) ResetCrypto() error {
	strategy, err := h.active()
	if err != nil {
		return err
	}
	if err := strategy.Reset(); err != nil {
		return err
	}
	if err := strategy.Init(); err != nil {
		return fmt.Errorf("failed to recreate key material: %w", err)
	}
	return nil
}

func isAbsent(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
