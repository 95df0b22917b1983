package hawk

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/stevemurr/hawk/encryption"
	"github.com/stevemurr/hawk/store"
)

var cheapArgon2 = &encryption.Argon2Params{Time: 1, Memory: 1024, Threads: 1}

func testConfig() Config {
	return Config{LogLevel: "none", Argon2: cheapArgon2}
}

func newTestHawk(t *testing.T, s store.Store, cfg Config) *Hawk {
	t.Helper()
	h, err := New(s, cfg)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

// brokenCipher fails its probe, as on an installation without a usable cipher.
type brokenCipher struct{ probes *int }

func (c brokenCipher) Init() error {
	if c.probes != nil {
		*c.probes++
	}
	return &encryption.ProbeError{Step: "seal"}
}
func (brokenCipher) Encrypt([]byte) (string, error) { return "", encryption.ErrNotInitialized }
func (brokenCipher) Decrypt(string) ([]byte, error) { return nil, encryption.ErrNotInitialized }
func (brokenCipher) Reset() error                   { return nil }

// failingStore fails batch writes and, optionally, deletes of one key.
type failingStore struct {
	store.Store
	failBatch  bool
	failDelete string
}

func (f *failingStore) PutBatch(collection string, entries []store.Entry) error {
	if f.failBatch {
		return errors.New("injected batch failure")
	}
	return f.Store.PutBatch(collection, entries)
}

func (f *failingStore) Delete(collection, key string) (bool, error) {
	if key == f.failDelete {
		return false, errors.New("injected delete failure")
	}
	return f.Store.Delete(collection, key)
}

type address struct {
	City string
	Zip  string
}

type person struct {
	Name    string
	Age     int
	Emails  []string
	Address address
}

func TestExampleScenario(t *testing.T) {
	h := newTestHawk(t, store.NewMemoryStore(), testConfig())
	if !h.Encrypted() {
		t.Fatalf("expected cipher to be active, state=%s", h.State())
	}

	if err := h.Put("age", 30); err != nil {
		t.Fatal(err)
	}
	age, ok, err := GetAs[int](h, "age")
	if err != nil || !ok || age != 30 {
		t.Fatalf("expected 30, got %v %v %v", age, ok, err)
	}
	if v, _, _ := h.Get("age"); v != int64(30) {
		t.Fatalf("expected dynamic int64(30), got %#v", v)
	}

	if err := h.Put("name", "Ada"); err != nil {
		t.Fatal(err)
	}
	if name, _ := GetOr(h, "name", "default"); name != "Ada" {
		t.Fatalf("expected Ada, got %q", name)
	}
	if missing, _ := GetOr(h, "missing", "default"); missing != "default" {
		t.Fatalf("expected default, got %q", missing)
	}

	if err := h.Remove("age"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := h.Contains("age"); ok {
		t.Fatal("expected age to be removed")
	}
}

func runRoundTrips(t *testing.T, h *Hawk) {
	t.Helper()

	t.Run("bool", func(t *testing.T) { roundTrip(t, h, true) })
	t.Run("int", func(t *testing.T) { roundTrip(t, h, -42) })
	t.Run("int64", func(t *testing.T) { roundTrip(t, h, int64(1)<<60) })
	t.Run("uint8", func(t *testing.T) { roundTrip(t, h, uint8(200)) })
	t.Run("float", func(t *testing.T) { roundTrip(t, h, 3.25) })
	t.Run("string", func(t *testing.T) { roundTrip(t, h, "héllo # @ world") })
	t.Run("bytes", func(t *testing.T) { roundTrip(t, h, []byte{0, 1, 2, 255}) })
	t.Run("list of primitives", func(t *testing.T) { roundTrip(t, h, []int{3, 1, 2}) })
	t.Run("list of objects", func(t *testing.T) {
		roundTrip(t, h, []person{
			{Name: "Ada", Age: 36, Emails: []string{"ada@example.com"}, Address: address{City: "London"}},
			{Name: "Alan", Age: 41},
		})
	})
	t.Run("map", func(t *testing.T) { roundTrip(t, h, map[string]float64{"pi": 3.14, "e": 2.72}) })
	t.Run("map of lists", func(t *testing.T) { roundTrip(t, h, map[string][]string{"a": {"x", "y"}, "b": {"z"}}) })
	t.Run("set", func(t *testing.T) { roundTrip(t, h, map[string]struct{}{"x": {}, "y": {}}) })
	t.Run("object", func(t *testing.T) {
		roundTrip(t, h, person{Name: "Ada", Age: 36, Address: address{City: "London", Zip: "NW1"}})
	})
	t.Run("pointer", func(t *testing.T) { roundTrip(t, h, &person{Name: "Grace"}) })
}

func roundTrip[T any](t *testing.T, h *Hawk, v T) {
	t.Helper()
	if err := h.Put("value", v); err != nil {
		t.Fatal(err)
	}
	got, ok, err := GetAs[T](h, "value")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected value to be present")
	}
	if diff := cmp.Diff(v, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"cipher json", testConfig()},
		{"cipher msgpack", Config{LogLevel: "none", Argon2: cheapArgon2, Serializer: "msgpack"}},
		{"cipher pbkdf2", Config{LogLevel: "none", KDF: "pbkdf2", PBKDF2: &encryption.PBKDF2Params{Iterations: 1000}}},
		{"plaintext", Config{LogLevel: "none", DisableEncryption: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runRoundTrips(t, newTestHawk(t, store.NewMemoryStore(), tt.cfg))
		})
	}
}

func TestDynamicGet(t *testing.T) {
	for _, name := range []string{"json", "msgpack"} {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Serializer = name
			h := newTestHawk(t, store.NewMemoryStore(), cfg)

			tests := []struct {
				in   any
				want any
			}{
				{true, true},
				{int32(7), int64(7)},
				{uint(7), uint64(7)},
				{float32(1.5), 1.5},
				{[]string{"a", "b"}, []any{"a", "b"}},
				{[]any{1, "two"}, []any{int64(1), "two"}},
				{map[string]int{"a": 1}, map[string]any{"a": int64(1)}},
				{address{City: "Paris"}, map[string]any{"City": "Paris", "Zip": ""}},
			}
			for _, tt := range tests {
				if err := h.Put("k", tt.in); err != nil {
					t.Fatal(err)
				}
				got, ok, err := h.Get("k")
				if err != nil || !ok {
					t.Fatalf("%#v: expected value, got ok=%v err=%v", tt.in, ok, err)
				}
				if diff := cmp.Diff(tt.want, got); diff != "" {
					t.Fatalf("%#v: mismatch (-want +got):\n%s", tt.in, diff)
				}
			}
		})
	}
}

func TestGetAsAnyContainers(t *testing.T) {
	const big = int64(1<<60 + 1)
	for _, name := range []string{"json", "msgpack"} {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Serializer = name
			h := newTestHawk(t, store.NewMemoryStore(), cfg)

			if err := h.Put("list", []int64{big, 2}); err != nil {
				t.Fatal(err)
			}
			list, ok, err := GetAs[[]any](h, "list")
			if err != nil || !ok {
				t.Fatalf("expected list, got ok=%v err=%v", ok, err)
			}
			if diff := cmp.Diff([]any{big, int64(2)}, list); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
			dyn, _, _ := h.Get("list")
			if diff := cmp.Diff(dyn, any(list)); diff != "" {
				t.Fatalf("Get and GetAs disagree (-get +getas):\n%s", diff)
			}

			if err := h.Put("map", map[string]int64{"n": big}); err != nil {
				t.Fatal(err)
			}
			m, ok, err := GetAs[map[string]any](h, "map")
			if err != nil || !ok {
				t.Fatalf("expected map, got ok=%v err=%v", ok, err)
			}
			if diff := cmp.Diff(map[string]any{"n": big}, m); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGetAsIncompatible(t *testing.T) {
	h := newTestHawk(t, store.NewMemoryStore(), testConfig())
	if err := h.Put("name", "Ada"); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := GetAs[int](h, "name"); ok || err != nil {
		t.Fatalf("expected absent for incompatible type, got ok=%v err=%v", ok, err)
	}

	if err := h.Put("n", 3); err != nil {
		t.Fatal(err)
	}
	if f, ok, _ := GetAs[float64](h, "n"); !ok || f != 3 {
		t.Fatalf("expected int to widen to float64, got %v %v", f, ok)
	}
}

func TestInvalidKey(t *testing.T) {
	h := newTestHawk(t, store.NewMemoryStore(), testConfig())

	if err := h.Put("", 1); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("Put: expected ErrInvalidKey, got %v", err)
	}
	if _, _, err := h.Get(""); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("Get: expected ErrInvalidKey, got %v", err)
	}
	if _, err := GetOr(h, "", 1); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("GetOr: expected ErrInvalidKey, got %v", err)
	}
	if err := h.Remove(""); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("Remove: expected ErrInvalidKey, got %v", err)
	}
	if _, err := h.Contains(""); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("Contains: expected ErrInvalidKey, got %v", err)
	}
}

func TestDeleteByNil(t *testing.T) {
	h := newTestHawk(t, store.NewMemoryStore(), testConfig())

	var nilPerson *person
	var nilSlice []int
	var nilMap map[string]int
	for _, absent := range []any{nil, nilPerson, nilSlice, nilMap} {
		if err := h.Put("k", "v"); err != nil {
			t.Fatal(err)
		}
		if err := h.Put("k", absent); err != nil {
			t.Fatal(err)
		}
		if ok, _ := h.Contains("k"); ok {
			t.Fatalf("expected %#v to delete the key", absent)
		}
	}

	// Empty but non-nil values are stored.
	if err := h.Put("k", []int{}); err != nil {
		t.Fatal(err)
	}
	if got, ok, _ := GetAs[[]int](h, "k"); !ok || len(got) != 0 {
		t.Fatalf("expected empty list, got %v %v", got, ok)
	}
}

func TestIsAbsent(t *testing.T) {
	var nilPerson *person
	var nilErr error
	tests := []struct {
		in   any
		want bool
	}{
		{nil, true},
		{nilPerson, true},
		{nilErr, true},
		{map[string]int(nil), true},
		{[]string(nil), true},
		{[]string{}, false},
		{map[string]int{}, false},
		{0, false},
		{"", false},
		{&person{}, false},
	}
	for _, tt := range tests {
		if got := isAbsent(tt.in); got != tt.want {
			t.Fatalf("isAbsent(%#v): expected %v, got %v", tt.in, tt.want, got)
		}
	}
}

func TestEncodingFailureWritesNothing(t *testing.T) {
	h := newTestHawk(t, store.NewMemoryStore(), testConfig())

	err := h.Put("fn", func() {})
	var encErr *EncodingError
	if !errors.As(err, &encErr) || encErr.Key != "fn" {
		t.Fatalf("expected EncodingError for fn, got %v", err)
	}
	if n, _ := h.Count(); n != 0 {
		t.Fatalf("expected nothing written, got %d entries", n)
	}
}

func TestCorruptValuesReadAsAbsent(t *testing.T) {
	s := store.NewMemoryStore()
	h := newTestHawk(t, s, testConfig())
	if err := h.Put("good", 1); err != nil {
		t.Fatal(err)
	}
	good, _, _ := s.Get(DataNamespace, "good")

	corrupt := map[string]string{
		"malformed":    "no envelope here",
		"bad version":  strings.Replace(good, "#1V@", "#9V@", 1),
		"bad cipher":   good[:strings.Index(good, "@")+1] + "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
		"wrong type":   strings.Replace(good, "i##", "s##", 1),
		"empty cipher": good[:strings.Index(good, "@")+1],
	}
	for name, raw := range corrupt {
		t.Run(name, func(t *testing.T) {
			if err := s.Put(DataNamespace, "bad", raw); err != nil {
				t.Fatal(err)
			}
			v, ok, err := h.Get("bad")
			if err != nil || ok {
				t.Fatalf("expected absent, got %v %v %v", v, ok, err)
			}
		})
	}
}

func TestStickyFallback(t *testing.T) {
	s := store.NewMemoryStore()

	h, err := build(s, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	var probes int
	h.newCipher = func() encryption.Encryption { return brokenCipher{probes: &probes} }
	if err := h.Init(); err != nil {
		t.Fatal(err)
	}
	if h.State() != PlaintextSticky || probes != 1 {
		t.Fatalf("expected sticky plaintext after one probe, got %s after %d", h.State(), probes)
	}
	if flag, _, _ := s.Get(MetaNamespace, noCryptoKey); flag != "true" {
		t.Fatalf("expected capability flag, got %q", flag)
	}

	// Plaintext still stores and reads values.
	if err := h.Put("k", "v"); err != nil {
		t.Fatal(err)
	}
	if v, _ := GetOr(h, "k", ""); v != "v" {
		t.Fatalf("expected v, got %q", v)
	}

	// Reopen with a working cipher: the probe is skipped.
	reopened, err := build(s, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	working := reopened.newCipher
	reopened.newCipher = func() encryption.Encryption {
		probes++
		return working()
	}
	if err := reopened.Init(); err != nil {
		t.Fatal(err)
	}
	if reopened.State() != PlaintextSticky || probes != 1 {
		t.Fatalf("expected sticky plaintext without probing, got %s after %d probes", reopened.State(), probes)
	}
	if v, _ := GetOr(reopened, "k", ""); v != "v" {
		t.Fatalf("expected v, got %q", v)
	}

	// Only an explicit reset allows another probe.
	if err := reopened.ResetCapability(); err != nil {
		t.Fatal(err)
	}
	if reopened.State() != Unprobed {
		t.Fatalf("expected unprobed, got %s", reopened.State())
	}
	if err := reopened.Init(); err != nil {
		t.Fatal(err)
	}
	if reopened.State() != CipherEnabled || probes != 2 {
		t.Fatalf("expected cipher after reprobe, got %s after %d probes", reopened.State(), probes)
	}
}

func TestCorruptCollectionFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := store.NewJsonFileStoreFs(fs, "/data")
	if err != nil {
		t.Fatal(err)
	}
	h := newTestHawk(t, s, testConfig())
	if err := h.Put("a", "1"); err != nil {
		t.Fatal(err)
	}

	t.Run("data", func(t *testing.T) {
		truncated := []byte(`{"a": "`)
		if err := afero.WriteFile(fs, "/data/hawk.json", truncated, 0o644); err != nil {
			t.Fatal(err)
		}
		if _, _, err := h.Get("a"); err == nil {
			t.Fatal("expected read error for a corrupt collection")
		}
		if err := h.Put("b", "2"); err == nil {
			t.Fatal("expected write error for a corrupt collection")
		}
		got, _ := afero.ReadFile(fs, "/data/hawk.json")
		if diff := cmp.Diff(string(truncated), string(got)); diff != "" {
			t.Fatalf("corrupt file was rewritten (-want +got):\n%s", diff)
		}
	})

	t.Run("key material", func(t *testing.T) {
		if err := afero.WriteFile(fs, "/data/hawk.crypto.json", []byte("{"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := New(s, testConfig()); err == nil {
			t.Fatal("expected Init to fail on unreadable key material")
		}
		if ok, _ := afero.Exists(fs, "/data/hawk.meta.json"); ok {
			t.Fatal("a storage failure must not mark the installation incapable")
		}
		if got, _ := afero.ReadFile(fs, "/data/hawk.crypto.json"); string(got) != "{" {
			t.Fatalf("key material was replaced: %q", got)
		}
	})
}

func TestDisableEncryption(t *testing.T) {
	s := store.NewMemoryStore()
	cfg := testConfig()
	cfg.DisableEncryption = true

	h, err := build(s, cfg)
	if err != nil {
		t.Fatal(err)
	}
	h.newCipher = func() encryption.Encryption {
		t.Fatal("cipher must not be probed when encryption is disabled")
		return nil
	}
	if err := h.Init(); err != nil {
		t.Fatal(err)
	}
	if h.State() != EncryptionDisabled || h.Encrypted() {
		t.Fatalf("expected disabled, got %s", h.State())
	}
	if ok, _ := s.Contains(MetaNamespace, noCryptoKey); ok {
		t.Fatal("disabling encryption must not mark the installation incapable")
	}
	if n, _ := s.Count(CryptoNamespace); n != 0 {
		t.Fatalf("expected no key material, got %d entries", n)
	}
}

func TestCipherPersistsAcrossReopen(t *testing.T) {
	s := store.NewMemoryStore()
	cfg := testConfig()
	cfg.Password = "hunter2"

	if err := newTestHawk(t, s, cfg).Put("k", 99); err != nil {
		t.Fatal(err)
	}
	if v, _ := GetOr(newTestHawk(t, s, cfg), "k", 0); v != 99 {
		t.Fatalf("expected 99 after reopen, got %d", v)
	}

	// A different password opens fine but cannot read old values.
	cfg.Password = "wrong"
	wrong := newTestHawk(t, s, cfg)
	if !wrong.Encrypted() {
		t.Fatalf("expected cipher state, got %s", wrong.State())
	}
	if _, ok, err := wrong.Get("k"); ok || err != nil {
		t.Fatalf("expected absent under wrong password, got ok=%v err=%v", ok, err)
	}
}

func TestNamespaceIsolation(t *testing.T) {
	s := store.NewMemoryStore()
	h := newTestHawk(t, s, testConfig())
	for _, k := range []string{"a", "b"} {
		if err := h.Put(k, k); err != nil {
			t.Fatal(err)
		}
	}
	material, _, _ := s.Get(CryptoNamespace, encryption.MaterialKey)
	if material == "" {
		t.Fatal("expected key material")
	}

	if err := h.Clear(); err != nil {
		t.Fatal(err)
	}
	if n, _ := h.Count(); n != 0 {
		t.Fatalf("expected empty user namespace, got %d", n)
	}
	if after, _, _ := s.Get(CryptoNamespace, encryption.MaterialKey); after != material {
		t.Fatal("Clear must not touch key material")
	}
	if !h.Encrypted() {
		t.Fatal("Clear must not change the capability state")
	}

	if err := h.Put("c", "c"); err != nil {
		t.Fatal(err)
	}
	before, _, _ := s.Get(DataNamespace, "c")
	if err := h.ResetCrypto(); err != nil {
		t.Fatal(err)
	}
	if after, _, _ := s.Get(DataNamespace, "c"); after != before {
		t.Fatal("ResetCrypto must not alter user data")
	}
	if after, _, _ := s.Get(CryptoNamespace, encryption.MaterialKey); after == material {
		t.Fatal("expected fresh key material after ResetCrypto")
	}
	if _, ok, _ := h.Get("c"); ok {
		t.Fatal("expected value sealed under old material to read as absent")
	}

	// New writes use the fresh key.
	if err := h.Put("d", 4); err != nil {
		t.Fatal(err)
	}
	if v, _ := GetOr(h, "d", 0); v != 4 {
		t.Fatalf("expected 4, got %d", v)
	}
}

func TestRemoveAll(t *testing.T) {
	s := &failingStore{Store: store.NewMemoryStore(), failDelete: "b"}
	h := newTestHawk(t, s, testConfig())
	for _, k := range []string{"a", "b", "c"} {
		if err := h.Put(k, 1); err != nil {
			t.Fatal(err)
		}
	}

	if err := h.RemoveAll("a", "c", "missing"); err != nil {
		t.Fatal(err)
	}
	if keys, _ := h.Keys(); !cmp.Equal(keys, []string{"b"}) {
		t.Fatalf("expected [b], got %v", keys)
	}

	if err := h.Put("d", 1); err != nil {
		t.Fatal(err)
	}
	err := h.RemoveAll("b", "", "d")
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey in %v", err)
	}
	if ok, _ := h.Contains("d"); ok {
		t.Fatal("expected remaining removals to be attempted")
	}
}

func TestNotInitialized(t *testing.T) {
	h, err := build(store.NewMemoryStore(), testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Put("k", 1); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if _, _, err := h.Get("k"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestOpen(t *testing.T) {
	cfg := testConfig()
	cfg.Store = StoreConfig{Backend: "json", DataDir: t.TempDir()}

	h, err := Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Put("k", []string{"persisted"}); err != nil {
		t.Fatal(err)
	}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}

	h, err = Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()
	got, ok, err := GetAs[[]string](h, "k")
	if err != nil || !ok {
		t.Fatalf("expected value after reopen, got ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff([]string{"persisted"}, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}

	cfg.Store.Backend = "redis"
	if _, err := Open(cfg); !errors.Is(err, store.ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	for _, cfg := range []Config{
		{Serializer: "xml"},
		{KDF: "scrypt"},
		{LogLevel: "loud"},
	} {
		if _, err := New(store.NewMemoryStore(), cfg); err == nil {
			t.Fatalf("expected error for %+v", cfg)
		}
	}
}
