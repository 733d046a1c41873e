package providers

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded in-memory Store useful for tests and local
// runs. It is not intended for production use.
type MemoryStore struct {
	mu      sync.Mutex
	configs map[string]Config
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{configs: make(map[string]Config)}
}

func (s *MemoryStore) GetActiveConfig(ctx context.Context, tenantID string) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.configs[tenantID]
	if !ok || !cfg.IsActive {
		return Config{}, ErrNotFound
	}
	return cfg, nil
}

func (s *MemoryStore) UpsertConfig(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.configs[cfg.TenantID]; ok {
		cfg.CreatedAt = prev.CreatedAt
	} else if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = cfg.UpdatedAt
	}
	s.configs[cfg.TenantID] = cfg
	return nil
}

func (s *MemoryStore) SwapToBackup(ctx context.Context, tenantID string, now time.Time) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.configs[tenantID]
	if !ok || !cfg.IsActive {
		return Config{}, ErrNotFound
	}
	if !cfg.HasBackup() {
		return Config{}, ErrNoBackup
	}

	cfg.Provider = cfg.BackupProvider
	cfg.Credentials = cfg.BackupCredentials
	cfg.BackupProvider = ""
	cfg.BackupCredentials = ""
	cfg.ErrorCount++
	cfg.UpdatedAt = now

	s.configs[tenantID] = cfg
	return cfg, nil
}

func (s *MemoryStore) MarkTested(ctx context.Context, tenantID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.configs[tenantID]
	if !ok || !cfg.IsActive {
		return ErrNotFound
	}
	cfg.TestedAt = now
	cfg.ErrorCount = 0
	cfg.UpdatedAt = now
	s.configs[tenantID] = cfg
	return nil
}

func (s *MemoryStore) ListActiveTenantIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.configs))
	for id, cfg := range s.configs {
		if cfg.IsActive {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) DeleteConfig(ctx context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.configs[tenantID]
	if !ok {
		return ErrNotFound
	}
	if cfg.IsActive {
		return ErrActiveConfig
	}
	delete(s.configs, tenantID)
	return nil
}
