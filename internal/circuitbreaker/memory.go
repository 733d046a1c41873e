package circuitbreaker

import (
	"context"
	"sync"
	"time"
)

// Memory is the process-local breaker. State is created lazily per pair and
// rebuilt from CLOSED on process restart; failures simply reaccumulate.
type Memory struct {
	mu       sync.Mutex
	pairs    map[string]*pairState
	settings Settings

	now func() time.Time
}

type pairState struct {
	state               State
	consecutiveFailures int
	openedAt            time.Time
}

func NewMemory(settings Settings) *Memory {
	return &Memory{
		pairs:    make(map[string]*pairState),
		settings: settings.withDefaults(),
		now:      time.Now,
	}
}

func (m *Memory) Allow(_ context.Context, tenantID, provider string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.pairs[pairKey(tenantID, provider)]
	if !ok {
		return true, nil
	}

	switch s.state {
	case StateClosed:
		return true, nil
	case StateOpen:
		if m.now().Sub(s.openedAt) >= m.settings.ResetTimeout {
			s.state = StateHalfOpen
			return true, nil
		}
		return false, nil
	case StateHalfOpen:
		// A trial call is already in flight; admit exactly one.
		return false, nil
	default:
		return true, nil
	}
}

func (m *Memory) RecordSuccess(_ context.Context, tenantID, provider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.pairs[pairKey(tenantID, provider)]
	if !ok {
		return nil
	}
	s.state = StateClosed
	s.consecutiveFailures = 0
	return nil
}

func (m *Memory) RecordFailure(_ context.Context, tenantID, provider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey(tenantID, provider)
	s, ok := m.pairs[key]
	if !ok {
		s = &pairState{state: StateClosed}
		m.pairs[key] = s
	}

	if s.state == StateHalfOpen {
		s.state = StateOpen
		s.openedAt = m.now()
		return nil
	}

	s.consecutiveFailures++
	if s.state != StateOpen && s.consecutiveFailures >= m.settings.FailureThreshold {
		s.state = StateOpen
		s.openedAt = m.now()
	}
	return nil
}

func (m *Memory) State(_ context.Context, tenantID, provider string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.pairs[pairKey(tenantID, provider)]
	if !ok {
		return StateClosed, nil
	}
	return s.state, nil
}
