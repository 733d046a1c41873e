package audit

import (
	"context"
	"errors"
	"time"

	"callcenter-platform/internal/telephony"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
	AppendCallAttempt(ctx context.Context, a CallAttempt) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to tenant users by default.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.TenantID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

func (s *Service) AppendCallAttempt(ctx context.Context, a CallAttempt) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if a.TenantID == "" || a.Provider == "" || a.Direction == "" || a.Outcome == "" {
		return ErrInvalidEvent
	}

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.clock().UTC()
	}
	return s.repo.AppendCallAttempt(ctx, a)
}

// LogProviderSelected records a successful selectProvider operation.
func (s *Service) LogProviderSelected(ctx context.Context, tenantID, actorUserID, actorRole, ip string, provider, backup telephony.ProviderName) error {
	return s.Append(ctx, Event{
		TenantID:    tenantID,
		Type:        EventTypeProviderSelected,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		ToProvider:  provider,
		Message:     "provider selected (backup: " + orNone(backup) + ")",
	})
}

// LogFailover records a backup promotion, automatic or manual.
func (s *Service) LogFailover(ctx context.Context, tenantID string, manual bool, actorUserID, actorRole, ip string, from, to telephony.ProviderName, reason string) error {
	typ := EventTypeFailover
	if manual {
		typ = EventTypeManualFailover
	}
	return s.Append(ctx, Event{
		TenantID:     tenantID,
		Type:         typ,
		ActorUserID:  actorUserID,
		ActorRole:    actorRole,
		IPAddress:    ip,
		FromProvider: from,
		ToProvider:   to,
		Message:      reason,
	})
}

func orNone(p telephony.ProviderName) string {
	if p == "" {
		return "none"
	}
	return string(p)
}
