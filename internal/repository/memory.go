package repository

import (
	"context"
	"sync"

	"referral_gate_bot/internal/model"

	"github.com/pkg/errors"
)

type MemoryStore struct {
	mu       sync.RWMutex
	snapshot *model.Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshot: model.NewSnapshot()}
}

func (m *MemoryStore) Load(_ context.Context) (*model.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot.Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, s *model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.snapshot.Version != s.Version {
		return errors.Wrapf(ErrConflict, "stored version %d, loaded %d", m.snapshot.Version, s.Version)
	}

	s.Version++
	m.snapshot = s.Clone()
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
