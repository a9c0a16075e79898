// Package audit emits structured audit events for state-changing
// actions such as presence mutations and session transitions.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/unihall/attendance-api/internal/models"
)

// Event describes a single auditable action.
type Event struct {
	Component  string
	Action     string
	ActorID    *string
	TargetType string
	TargetID   string
	Detail     map[string]interface{}
	IPAddress  string
	At         time.Time
}

// Recorder consumes audit events. Implementations must not block the
// request path on failure; a lost audit entry is logged, not fatal.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

type eventStore interface {
	CreateAuditEvent(ctx context.Context, event *models.AuditEvent) error
}

// Emitter writes audit events to the persistent store and mirrors them
// to the structured log.
type Emitter struct {
	store  eventStore
	logger *zap.Logger
}

// NewEmitter constructs an Emitter. A nil store degrades to log-only.
func NewEmitter(store eventStore, logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{store: store, logger: logger}
}

// Record persists and logs the event.
func (e *Emitter) Record(ctx context.Context, event Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	fields := []zap.Field{
		zap.String("component", event.Component),
		zap.String("action", event.Action),
		zap.String("target_type", event.TargetType),
		zap.String("target_id", event.TargetID),
		zap.Time("at", event.At),
	}
	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", *event.ActorID))
	}
	e.logger.Info("audit_event", fields...)

	if e.store == nil {
		return
	}

	var detail []byte
	if event.Detail != nil {
		detail, _ = json.Marshal(event.Detail)
	}

	record := &models.AuditEvent{
		Component:  event.Component,
		Action:     event.Action,
		ActorID:    event.ActorID,
		TargetType: event.TargetType,
		TargetID:   event.TargetID,
		Detail:     detail,
		IPAddress:  event.IPAddress,
		CreatedAt:  event.At,
	}
	if err := e.store.CreateAuditEvent(ctx, record); err != nil {
		e.logger.Warn("failed to persist audit event", zap.Error(err))
	}
}

// Nop returns a Recorder that drops every event. Useful in tests.
func Nop() Recorder {
	return nopRecorder{}
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, Event) {}
