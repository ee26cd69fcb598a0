package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/goliatone/go-dal/dberrors"
	"github.com/goliatone/go-dal/internal/metrics"
)

// Work is the guarded unit.
type Work func(ctx context.Context) error

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.metrics = c }
}

// Manager runs at most one Work per (operation, subject) at a time within
// the process. Each operation owns a map of subject to the token of the
// current holder.
type Manager struct {
	slots   [operationCount]*xsync.MapOf[string, string]
	timeout time.Duration
	poll    time.Duration
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewManager returns a manager using cfg for loose mode. Invalid durations
// fall back to DefaultConfig.
func NewManager(cfg Config, opts ...Option) *Manager {
	if cfg.Validate() != nil {
		cfg = DefaultConfig()
	}
	m := &Manager{
		timeout: cfg.LooseTimeout,
		poll:    cfg.PollInterval,
		now:     time.Now,
		logger:  zap.L().Named("lock"),
	}
	for i := range m.slots {
		m.slots[i] = xsync.NewMapOf[string, string]()
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Strict runs work if no other holder exists for subject, and fails at once
// with a concurrency conflict error otherwise.
func (m *Manager) Strict(ctx context.Context, op Operation, subject string, work Work) error {
	if !op.valid() {
		return unknown(op)
	}
	token, ok := m.acquire(op, subject)
	if !ok {
		m.metrics.Lock(op.String(), "strict", "conflict")
		return dberrors.ConcurrencyConflict(op.String(), subject)
	}
	m.metrics.Lock(op.String(), "strict", "acquired")
	defer m.release(op, subject, token)
	return work(ctx)
}

// StrictOr runs work like Strict but returns fallback instead of a conflict
// error when subject is held.
func StrictOr[T any](ctx context.Context, m *Manager, op Operation, subject string, fallback T, work func(context.Context) (T, error)) (T, error) {
	if !op.valid() {
		var zero T
		return zero, unknown(op)
	}
	token, ok := m.acquire(op, subject)
	if !ok {
		m.metrics.Lock(op.String(), "strict", "fallback")
		m.logger.Debug("lock held, using fallback", zap.Stringer("operation", op), zap.String("subject", subject))
		return fallback, nil
	}
	m.metrics.Lock(op.String(), "strict", "acquired")
	defer m.release(op, subject, token)
	return work(ctx)
}

// Loose polls for subject until it is free or the configured timeout
// elapses, then fails with a concurrency timeout error. Cancelling ctx
// stops the wait.
func (m *Manager) Loose(ctx context.Context, op Operation, subject string, work Work) error {
	if !op.valid() {
		return unknown(op)
	}
	start := m.now()
	for {
		if token, ok := m.acquire(op, subject); ok {
			m.metrics.Lock(op.String(), "loose", "acquired")
			defer m.release(op, subject, token)
			return work(ctx)
		}

		waited := m.now().Sub(start)
		if waited >= m.timeout {
			m.metrics.Lock(op.String(), "loose", "timeout")
			m.logger.Warn("lock wait timed out",
				zap.Stringer("operation", op),
				zap.String("subject", subject),
				zap.Duration("waited", waited),
			)
			return dberrors.ConcurrencyTimeout(op.String(), subject, waited)
		}

		timer := time.NewTimer(min(m.poll, m.timeout-waited))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Held reports whether subject is currently held for op.
func (m *Manager) Held(op Operation, subject string) bool {
	if !op.valid() {
		return false
	}
	_, ok := m.slots[op].Load(subject)
	return ok
}

func (m *Manager) acquire(op Operation, subject string) (string, bool) {
	token := uuid.NewString()
	_, loaded := m.slots[op].LoadOrStore(subject, token)
	return token, !loaded
}

// release removes the slot only if it still carries token.
func (m *Manager) release(op Operation, subject, token string) {
	m.slots[op].Compute(subject, func(current string, loaded bool) (string, bool) {
		return current, !loaded || current == token
	})
}

func unknown(op Operation) error {
	return dberrors.Validation("unknown lock operation %d", int(op))
}
