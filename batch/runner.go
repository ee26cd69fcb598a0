package batch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-dal/lock"
	"github.com/goliatone/go-dal/txn"
)

// poolSubject serializes runs sharing the process wide pool.
const poolSubject = "single-thread-pool"

// Job is one batch process.
type Job interface {
	// Name identifies the lock file of the job.
	Name() string
	// Blocking names jobs that must not be running when this one starts.
	Blocking() []string
	Run(ctx context.Context) error
}

// Option configures a Runner.
type Option func(*Runner)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithLocks makes the runner refuse to start a job while another one runs
// in this process. The single thread pool is not safe to share.
func WithLocks(m *lock.Manager) Option {
	return func(r *Runner) { r.locks = m }
}

// Runner runs jobs in pool mode under a file lock.
type Runner struct {
	dir    string
	pool   *txn.Pool
	locks  *lock.Manager
	logger *zap.Logger
}

func NewRunner(dir string, pool *txn.Pool, opts ...Option) *Runner {
	r := &Runner{
		dir:    dir,
		pool:   pool,
		logger: zap.L().Named("batch"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run enables the pool, acquires the job's lock file, runs the job, then
// releases the pooled connections and the lock file and disables the pool,
// whatever the outcome. Only the lock and job errors are returned.
func (r *Runner) Run(ctx context.Context, job Job) error {
	if r.locks == nil {
		return r.run(ctx, job)
	}
	return r.locks.Strict(ctx, lock.RunBatch, poolSubject, func(ctx context.Context) error {
		return r.run(ctx, job)
	})
}

func (r *Runner) run(ctx context.Context, job Job) error {
	log := r.logger.With(zap.String("job", job.Name()))

	r.pool.Enable()
	defer r.pool.Disable()

	fl, err := AcquireFileLock(r.dir, job.Name(), job.Blocking(), log)
	if err != nil {
		log.Warn("batch not started", zap.Error(err))
		return err
	}

	start := time.Now()
	err = func() error {
		defer r.pool.ReleaseAll()
		return job.Run(ctx)
	}()
	_ = fl.Release()

	if err != nil {
		log.Error("batch failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return err
	}
	log.Info("batch finished", zap.Duration("elapsed", time.Since(start)))
	return nil
}
