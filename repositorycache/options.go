package repositorycache

import (
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-dal/cache"
)

// Option configures a Repository.
type Option func(*settings)

type settings struct {
	cache             *cache.EntityCache
	logger            *zap.Logger
	now               func() time.Time
	refreshCollection bool
}

// WithCache enables caching through ec. Without it every call reads the
// database.
func WithCache(ec *cache.EntityCache) Option {
	return func(s *settings) { s.cache = ec }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// SkipCollectionRefresh stops writes from invalidating cached lists of the
// entity. Lists then stay stale until they expire or ClearCollectionCache is
// called. Meant for write heavy entities whose lists tolerate lag.
func SkipCollectionRefresh() Option {
	return func(s *settings) { s.refreshCollection = false }
}

// ReadOption tunes one read call.
type ReadOption func(*readOptions)

type readOptions struct {
	useCache bool
}

// NoCache reads straight from the database and leaves the cache untouched.
func NoCache() ReadOption {
	return func(o *readOptions) { o.useCache = false }
}

func readOpts(opts []ReadOption) readOptions {
	o := readOptions{useCache: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// RemoveOption tunes one removal.
type RemoveOption func(*removeOptions)

type removeOptions struct {
	physical bool
}

// Physically deletes the row instead of setting its expired flag.
func Physically() RemoveOption {
	return func(o *removeOptions) { o.physical = true }
}
