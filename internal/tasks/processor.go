package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"ghostworks/api/internal/audit"
	"ghostworks/api/internal/models"
)

const (
	TypeCleanup    = "cleanup"
	TypeOwnerCheck = "owner_check"
)

type AuditStore interface {
	Insert(ctx context.Context, ev models.AuditEvent) error
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type OwnerChecker interface {
	ListWithoutOwner(ctx context.Context) ([]string, error)
}

type Processor struct {
	logger    zerolog.Logger
	audits    AuditStore
	tenants   OwnerChecker
	retention time.Duration
	now       func() time.Time
}

type TaskPayload struct {
	Type  string `json:"type"`
	Event string `json:"event"`
}

func NewProcessor(logger zerolog.Logger, audits AuditStore, tenants OwnerChecker, retention time.Duration) *Processor {
	return &Processor{
		logger:    logger,
		audits:    audits,
		tenants:   tenants,
		retention: retention,
		now:       time.Now,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	var payload TaskPayload
	if err := decodePayload(msg.Values, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	switch payload.Type {
	case audit.TaskType:
		return p.handleAudit(ctx, payload)
	case TypeCleanup:
		return p.handleCleanup(ctx)
	case TypeOwnerCheck:
		return p.handleOwnerCheck(ctx)
	default:
		p.logger.Warn().Str("type", payload.Type).Str("message_id", msg.ID).Msg("unknown task type")
		return nil
	}
}

func decodePayload(values map[string]interface{}, out *TaskPayload) error {
	bytes, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, out)
}

func (p *Processor) handleAudit(ctx context.Context, payload TaskPayload) error {
	ev, err := audit.Decode(payload.Event)
	if err != nil {
		// a malformed event will never decode; dropping it keeps the stream moving
		p.logger.Error().Err(err).Msg("discarding malformed audit event")
		return nil
	}
	if err := p.audits.Insert(ctx, ev); err != nil {
		return fmt.Errorf("persist audit event %s: %w", ev.ID, err)
	}
	return nil
}

func (p *Processor) handleCleanup(ctx context.Context) error {
	cutoff := p.now().Add(-p.retention)
	deleted, err := p.audits.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("cleanup audit events: %w", err)
	}
	p.logger.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("audit cleanup finished")
	return nil
}

func (p *Processor) handleOwnerCheck(ctx context.Context) error {
	orphaned, err := p.tenants.ListWithoutOwner(ctx)
	if err != nil {
		return fmt.Errorf("owner check: %w", err)
	}
	for _, tenantID := range orphaned {
		p.logger.Error().Str("tenant_id", tenantID).Msg("workspace has no active owner")
	}
	p.logger.Info().Int("orphaned", len(orphaned)).Msg("owner check finished")
	return nil
}
