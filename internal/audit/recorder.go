// Package audit records authorization decisions. Every event is written as
// a structured log line and published to a Redis stream for persistence by
// the worker.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"ghostworks/api/internal/metrics"
	"ghostworks/api/internal/models"
)

const TaskType = "audit"

type eventMessage struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"requestId"`
	UserID     string    `json:"userId"`
	TenantID   string    `json:"tenantId"`
	Method     string    `json:"method"`
	Route      string    `json:"route"`
	Required   string    `json:"required"`
	Actual     string    `json:"actual"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

func Encode(ev models.AuditEvent) (string, error) {
	b, err := json.Marshal(eventMessage{
		ID:         ev.ID,
		RequestID:  ev.RequestID,
		UserID:     ev.UserID,
		TenantID:   ev.TenantID,
		Method:     ev.Method,
		Route:      ev.Route,
		Required:   ev.Required,
		Actual:     ev.Actual,
		Outcome:    string(ev.Outcome),
		Reason:     ev.Reason,
		OccurredAt: ev.OccurredAt,
	})
	if err != nil {
		return "", fmt.Errorf("encode audit event: %w", err)
	}
	return string(b), nil
}

func Decode(raw string) (models.AuditEvent, error) {
	var msg eventMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return models.AuditEvent{}, fmt.Errorf("decode audit event: %w", err)
	}
	return models.AuditEvent{
		ID:         msg.ID,
		RequestID:  msg.RequestID,
		UserID:     msg.UserID,
		TenantID:   msg.TenantID,
		Method:     msg.Method,
		Route:      msg.Route,
		Required:   msg.Required,
		Actual:     msg.Actual,
		Outcome:    models.AuditOutcome(msg.Outcome),
		Reason:     msg.Reason,
		OccurredAt: msg.OccurredAt,
	}, nil
}

type Recorder struct {
	log       zerolog.Logger
	client    *redis.Client
	stream    string
	opTimeout time.Duration
}

// NewRecorder returns a recorder publishing to stream. A nil client keeps
// the log line only.
func NewRecorder(log zerolog.Logger, client *redis.Client, stream string, opTimeout time.Duration) *Recorder {
	return &Recorder{
		log:       log.With().Bool("audit", true).Logger(),
		client:    client,
		stream:    stream,
		opTimeout: opTimeout,
	}
}

// Record never fails the caller; publication errors are logged.
func (r *Recorder) Record(ctx context.Context, ev models.AuditEvent) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	metrics.AuthzDecisionsTotal.WithLabelValues(string(ev.Outcome)).Inc()

	event := r.log.Info()
	if ev.Outcome == models.AuditDenied {
		event = r.log.Warn()
	}
	event.
		Str("event_id", ev.ID).
		Str("request_id", ev.RequestID).
		Str("user_id", ev.UserID).
		Str("tenant_id", ev.TenantID).
		Str("method", ev.Method).
		Str("route", ev.Route).
		Str("required_role", ev.Required).
		Str("actual_role", ev.Actual).
		Str("outcome", string(ev.Outcome)).
		Str("reason", ev.Reason).
		Time("occurred_at", ev.OccurredAt).
		Msg("authorization decision")

	if r.client == nil {
		return
	}

	payload, err := Encode(ev)
	if err != nil {
		r.log.Error().Err(err).Msg("audit encode failed")
		return
	}

	if r.opTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), r.opTimeout)
		defer cancel()
	}
	if err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{
			"type":  TaskType,
			"event": payload,
		},
	}).Err(); err != nil {
		r.log.Error().Err(err).Str("stream", r.stream).Msg("audit publish failed")
	}
}
