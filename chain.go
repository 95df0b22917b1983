package hawk

import (
	"fmt"

	"github.com/stevemurr/hawk/store"
)

// DefaultChainCapacity is the initial buffer size of Chain.
const DefaultChainCapacity = 10

// Chain buffers encoded writes and commits them as one atomic batch. Values
// are encoded when they are added, with the strategy active at that moment.
// A Chain must be used from a single goroutine. Dropping it without Commit
// discards the pending writes.
type Chain struct {
	h       *Hawk
	pending []store.Entry
}

// Chain starts a batch.
func (h *Hawk) Chain() *Chain {
	return h.ChainWithCapacity(DefaultChainCapacity)
}

// ChainWithCapacity starts a batch sized for n writes.
func (h *Hawk) ChainWithCapacity(n int) *Chain {
	if n < 0 {
		n = 0
	}
	return &Chain{h: h, pending: make([]store.Entry, 0, n)}
}

// Put encodes value and appends it to the batch. An item that cannot be
// encoded, including an absent value, is dropped with a warning and the
// chain carries on.
func (c *Chain) Put(key string, value any) error {
	if key == "" {
		return ErrInvalidKey
	}
	strategy, err := c.h.active()
	if err != nil {
		return err
	}
	if isAbsent(value) {
		c.h.logger.Warn("dropping chain item without a value", "key", key)
		return nil
	}
	packed, err := c.h.encode(strategy, key, value)
	if err != nil {
		c.h.logger.Warn("dropping chain item", "key", key, "error", err)
		return nil
	}
	c.pending = append(c.pending, store.Entry{Key: key, Value: packed})
	return nil
}

// Len returns the number of pending writes.
func (c *Chain) Len() int {
	return len(c.pending)
}

// Commit writes all pending items in one batch. The buffer is emptied
// whether or not the batch succeeds; failed writes are not retried.
func (c *Chain) Commit() error {
	pending := c.pending
	c.pending = make([]store.Entry, 0, cap(pending))
	if len(pending) == 0 {
		return nil
	}
	if err := c.h.data.PutBatch(pending); err != nil {
		return fmt.Errorf("failed to commit %d writes: %w", len(pending), err)
	}
	c.h.logger.Trace("chain committed", "writes", len(pending))
	return nil
}
