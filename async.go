package hawk

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/stevemurr/hawk/store"
)

// Pending is a Hawk being constructed in the background.
type Pending struct {
	group *errgroup.Group
	hawk  *Hawk
}

// InitAsync runs New on its own goroutine, so key derivation does not block
// the caller. The Hawk must not be used before Wait returns it. Cancelling
// ctx before construction starts aborts it.
func InitAsync(ctx context.Context, s store.Store, cfg Config) *Pending {
	g, ctx := errgroup.WithContext(ctx)
	p := &Pending{group: g}
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		h, err := New(s, cfg)
		if err != nil {
			return err
		}
		p.hawk = h
		return nil
	})
	return p
}

// Wait blocks until construction finishes.
func (p *Pending) Wait() (*Hawk, error) {
	if err := p.group.Wait(); err != nil {
		return nil, err
	}
	return p.hawk, nil
}
