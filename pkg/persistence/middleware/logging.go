package middleware

import (
	"context"
	"log/slog"

	"github.com/fastmcp/sessions/pkg/domain"
	"github.com/fastmcp/sessions/pkg/ports"
)

type loggingMiddleware struct {
	next   ports.SessionStore
	logger *slog.Logger
}

// NewLoggingMiddleware creates a middleware that logs every store operation
// at Debug level. Failures are logged where they happen, so this is mostly
// useful while diagnosing backend behavior.
func NewLoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next ports.SessionStore) ports.SessionStore {
		return &loggingMiddleware{next: next, logger: logger}
	}
}

func (m *loggingMiddleware) Create(ctx context.Context, fields map[string]any) (string, error) {
	id, err := m.next.Create(ctx, fields)
	m.logger.Debug("session create", "session_id", id, "err", err)
	return id, err
}

func (m *loggingMiddleware) Get(ctx context.Context, id string) (*domain.SessionRecord, error) {
	rec, err := m.next.Get(ctx, id)
	m.logger.Debug("session get", "session_id", id, "found", rec != nil, "err", err)
	return rec, err
}

func (m *loggingMiddleware) Update(ctx context.Context, id string, fields map[string]any) (bool, error) {
	ok, err := m.next.Update(ctx, id, fields)
	m.logger.Debug("session update", "session_id", id, "ok", ok, "err", err)
	return ok, err
}

func (m *loggingMiddleware) Touch(ctx context.Context, id string) (bool, error) {
	ok, err := m.next.Touch(ctx, id)
	m.logger.Debug("session touch", "session_id", id, "ok", ok, "err", err)
	return ok, err
}

func (m *loggingMiddleware) Delete(ctx context.Context, id string) (bool, error) {
	ok, err := m.next.Delete(ctx, id)
	m.logger.Debug("session delete", "session_id", id, "ok", ok, "err", err)
	return ok, err
}

func (m *loggingMiddleware) List(ctx context.Context, filter map[string]any) ([]string, error) {
	ids, err := m.next.List(ctx, filter)
	m.logger.Debug("session list", "filtered", len(filter) > 0, "count", len(ids), "err", err)
	return ids, err
}

func (m *loggingMiddleware) Count(ctx context.Context) (int, error) {
	n, err := m.next.Count(ctx)
	m.logger.Debug("session count", "count", n, "err", err)
	return n, err
}

func (m *loggingMiddleware) Close() error {
	err := m.next.Close()
	m.logger.Debug("session store closed", "err", err)
	return err
}
