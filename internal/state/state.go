// Package state persists the dedup memory between runs, so a restart does
// not republish every incident still on the board.
package state

import (
	"context"

	"github.com/chescofire/cadwatch/internal/dedup"
)

// Store loads remembered incidents at startup and saves them after cycles
// that changed the memory.
type Store interface {
	Load(ctx context.Context) (dedup.State, error)
	Save(ctx context.Context, st dedup.State) error
	Close()
}

// Noop keeps nothing. Every run starts with an empty memory.
type Noop struct{}

// Load returns an empty state.
func (Noop) Load(context.Context) (dedup.State, error) {
	return dedup.State{}, nil
}

// Save discards the state.
func (Noop) Save(context.Context, dedup.State) error {
	return nil
}

// Close is a no-op.
func (Noop) Close() {}
