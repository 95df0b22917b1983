package hawk

import (
	"errors"
	"fmt"

	"github.com/stevemurr/hawk/encryption"
)

// State tracks which encryption strategy was selected and why.
type State int

const (
	// Unprobed means no selection has run since the store was opened or the
	// capability flag was reset.
	Unprobed State = iota
	// Probing means the cipher is being initialized.
	Probing
	// CipherEnabled means values are sealed with the cipher.
	CipherEnabled
	// PlaintextSticky means the cipher failed on this installation once and
	// will not be tried again until ResetCapability.
	PlaintextSticky
	// EncryptionDisabled means the configuration turned encryption off.
	EncryptionDisabled
)

func (s State) String() string {
	switch s {
	case Unprobed:
		return "unprobed"
	case Probing:
		return "probing"
	case CipherEnabled:
		return "cipher"
	case PlaintextSticky:
		return "plaintext-sticky"
	case EncryptionDisabled:
		return "disabled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// noCryptoKey is the capability flag. Its presence in the meta namespace is
// the only durable record of PlaintextSticky.
const noCryptoKey = "no-crypto"

// selectStrategy decides which strategy serves this installation. The
// returned state is never Probing.
func (h *Hawk) selectStrategy() (encryption.Encryption, State, error) {
	if h.cfg.DisableEncryption {
		h.logger.Debug("encryption disabled by configuration")
		return encryption.NewPlaintext(), EncryptionDisabled, nil
	}

	flag, ok, err := h.meta.Get(noCryptoKey)
	if err != nil {
		return nil, Unprobed, fmt.Errorf("failed to read capability flag: %w", err)
	}
	if ok && flag == "true" {
		h.logger.Debug("installation marked incapable, skipping probe")
		return encryption.NewPlaintext(), PlaintextSticky, nil
	}

	h.setState(Probing)
	cipher := h.newCipher()
	if err := cipher.Init(); err != nil {
		var probeErr *encryption.ProbeError
		if !errors.As(err, &probeErr) {
			// Storage trouble says nothing about the cipher; keep the flag unset.
			return nil, Unprobed, fmt.Errorf("failed to initialize cipher: %w", err)
		}
		h.logger.Warn("encryption unavailable, falling back to plaintext", "error", err)
		if err := h.meta.Put(noCryptoKey, "true"); err != nil {
			return nil, Unprobed, fmt.Errorf("failed to persist capability flag: %w", err)
		}
		return encryption.NewPlaintext(), PlaintextSticky, nil
	}
	return cipher, CipherEnabled, nil
}

func (h *Hawk) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// Init selects the active encryption strategy. It runs once from New and may
// be called again, for instance after ResetCapability. When it fails the
// previous strategy is dropped and operations return ErrNotInitialized.
func (h *Hawk) Init() error {
	strategy, state, err := h.selectStrategy()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.strategy = strategy
	h.state = state
	if err != nil {
		return err
	}
	h.logger.Debug("strategy selected", "state", state)
	return nil
}

// ResetCapability clears the capability flag so the next Init probes the
// cipher again. The active strategy stays in place until then.
func (h *Hawk) ResetCapability() error {
	if _, err := h.meta.Delete(noCryptoKey); err != nil {
		return fmt.Errorf("failed to clear capability flag: %w", err)
	}
	h.setState(Unprobed)
	return nil
}

// State returns the current selection state.
func (h *Hawk) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Encrypted reports whether new values are sealed with the cipher.
func (h *Hawk) Encrypted() bool {
	return h.State() == CipherEnabled
}
