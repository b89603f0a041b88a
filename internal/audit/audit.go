// Package audit records authentication events and flags suspicious
// activity. Recording is best-effort: a failed append never aborts the
// authentication flow, but every drop is logged and counted so it stays
// observable.
package audit

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/perchmarket/perch/server/internal/store"
)

const (
	// defaultFailureThreshold is the number of failures within the window
	// that flags an account as suspicious.
	defaultFailureThreshold = 3
	defaultFailureWindow    = 10 * time.Minute
)

// Recorder appends audit events to the store.
type Recorder struct {
	store  *store.Store
	logger *slog.Logger

	threshold int
	window    time.Duration
	dropped   atomic.Int64
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithFailureWindow overrides the suspicious-activity window.
func WithFailureWindow(window time.Duration) Option {
	return func(r *Recorder) { r.window = window }
}

// WithFailureThreshold overrides the suspicious-activity threshold.
func WithFailureThreshold(n int) Option {
	return func(r *Recorder) { r.threshold = n }
}

// NewRecorder creates a new audit recorder.
func NewRecorder(st *store.Store, logger *slog.Logger, opts ...Option) *Recorder {
	r := &Recorder{
		store:     st,
		logger:    logger,
		threshold: defaultFailureThreshold,
		window:    defaultFailureWindow,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends an audit event. Failures are swallowed after logging;
// callers never see them.
func (r *Recorder) Record(ctx context.Context, e store.AuditEvent) {
	if err := r.store.Queries().AppendAuditEvent(ctx, e); err != nil {
		r.dropped.Add(1)
		r.logger.Warn("audit event dropped",
			"event_type", e.EventType,
			"account_id", e.AccountID,
			"dropped_total", r.dropped.Load(),
			"error", err)
	}
}

// Dropped returns how many audit events failed to persist since startup.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// DetectSuspicious counts recent failures for an account and, at or above
// the threshold, records a security_violation event and returns true. It is
// a heuristic for alerting; whether to block on it is the caller's call.
func (r *Recorder) DetectSuspicious(ctx context.Context, accountID, ip, userAgent string) bool {
	if accountID == "" {
		return false
	}

	n, err := r.store.Queries().CountAuditFailuresSince(ctx, accountID, time.Now().Add(-r.window))
	if err != nil {
		r.logger.Warn("suspicious-activity check failed", "account_id", accountID, "error", err)
		return false
	}
	if n < int64(r.threshold) {
		return false
	}

	r.logger.Warn("suspicious authentication activity",
		"account_id", accountID, "failures", n, "window", r.window)
	r.Record(ctx, store.AuditEvent{
		EventType:    store.AuditSecurityViolation,
		AccountID:    accountID,
		Success:      false,
		IP:           ip,
		UserAgent:    userAgent,
		ErrorMessage: "repeated authentication failures",
	})
	return true
}
