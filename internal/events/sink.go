package events

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
)

// Sink publishes events fire-and-forget: implementations must neither block
// the caller beyond a short bound nor surface failures. A failed publish is
// logged and dropped; it never affects run completion.
type Sink interface {
	Publish(ctx context.Context, event Event)
}

// LogSink writes events to the structured log.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		return nil
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(ctx context.Context, event Event) {
	if s == nil || event == nil {
		return
	}
	raw, err := Marshal(event)
	if err != nil {
		s.logger.Error("marshal event failed", "type", event.EventType(), "error", err)
		return
	}
	s.logger.Info("event published", "type", event.EventType(), "event", string(raw))
}

// NopSink drops every event.
type NopSink struct{}

func (NopSink) Publish(context.Context, Event) {}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const insertEngineEventQuery = `INSERT INTO engine_events (event_type, occurred_at, payload) VALUES ($1, $2, $3)`

// PostgresSink appends events to the engine_events table with a short
// per-publish timeout. Insert failures are logged only.
type PostgresSink struct {
	db      execer
	logger  *slog.Logger
	timeout time.Duration
}

func NewPostgresSink(db execer, logger *slog.Logger, timeout time.Duration) *PostgresSink {
	if db == nil || logger == nil {
		return nil
	}
	if timeout <= 0 {
		timeout = 750 * time.Millisecond
	}
	return &PostgresSink{db: db, logger: logger, timeout: timeout}
}

func (s *PostgresSink) Publish(ctx context.Context, event Event) {
	if s == nil || event == nil {
		return
	}
	raw, err := Marshal(event)
	if err != nil {
		s.logger.Error("marshal event failed", "type", event.EventType(), "error", err)
		return
	}
	insertCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.db.ExecContext(insertCtx, insertEngineEventQuery, string(event.EventType()), time.Now().UTC(), raw); err != nil {
		s.logger.Error("append event failed", "type", event.EventType(), "error", err)
	}
}
