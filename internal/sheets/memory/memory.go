package memory

import (
	"context"
	"fmt"
	"sync"

	"tally/internal/core"
)

// Store is an in-memory ledger mirror for tests and sheets-less setups.
type Store struct {
	mu    sync.Mutex
	items []core.TransactionInstance
}

func New() *Store {
	return &Store{}
}

// Append stores the instance and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, i core.TransactionInstance) (string, error) {
	if err := i.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, i)
	return fmt.Sprintf("mem:%d", len(s.items)), nil
}

// Items returns a copy of everything appended so far.
func (s *Store) Items() []core.TransactionInstance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.TransactionInstance(nil), s.items...)
}
