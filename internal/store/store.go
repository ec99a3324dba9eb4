package store

import "context"

// Store persists the agent document as a whole. Load always returns a usable
// State: on an empty backend it returns the default document rather than an
// error.
type Store interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, st *State) error
}
