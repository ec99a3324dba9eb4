package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore keeps the document in memory. Used by tests and dry runs.
type MemoryStore struct {
	mu             sync.Mutex
	doc            []byte
	initialBalance float64
	SaveCount      int
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(initialBalance float64) *MemoryStore {
	return &MemoryStore{initialBalance: initialBalance}
}

func (m *MemoryStore) Load(_ context.Context) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.doc == nil {
		return NewState(m.initialBalance), nil
	}
	st := new(State)
	if err := json.Unmarshal(m.doc, st); err != nil {
		return nil, err
	}
	if st.LastOracleCall == nil {
		st.LastOracleCall = make(map[string]time.Time)
	}
	return st, nil
}

func (m *MemoryStore) Save(_ context.Context, st *State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = raw
	m.SaveCount++
	return nil
}
