package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fieldops-platform/apps/api/internal/middleware"
)

// Record is one persisted audit_log row.
type Record struct {
	ID         uuid.UUID
	Action     string
	EntityType string
	EntityID   *string
	RequestID  *string
	Metadata   []byte
	CreatedAt  time.Time
}

// Sink persists audit records.
type Sink interface {
	InsertAuditLog(ctx context.Context, rec Record) error
}

type Logger struct {
	sink Sink
	now  func() time.Time
}

func NewLogger(sink Sink) *Logger {
	return &Logger{sink: sink, now: time.Now}
}

type Entry struct {
	Action     string
	EntityType string
	EntityID   string
	RequestID  string
	Metadata   map[string]any
}

func (l *Logger) Log(ctx context.Context, entry Entry) error {
	metadata := []byte("{}")
	if len(entry.Metadata) > 0 {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = encoded
	}

	rec := Record{
		ID:         uuid.New(),
		Action:     entry.Action,
		EntityType: entry.EntityType,
		Metadata:   metadata,
		CreatedAt:  l.now().UTC(),
	}
	if entry.EntityID != "" {
		rec.EntityID = &entry.EntityID
	}
	requestID := entry.RequestID
	if requestID == "" {
		requestID = middleware.RequestIDFromContext(ctx)
	}
	if requestID != "" {
		rec.RequestID = &requestID
	}

	if err := l.sink.InsertAuditLog(ctx, rec); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}
