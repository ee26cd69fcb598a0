package cacheinfra

import (
	"context"
	"time"

	"github.com/goliatone/go-dal/dberrors"
)

// DisabledStore is the store used when caching is switched off. Every call
// fails with a cache disabled error.
type DisabledStore struct{}

func NewDisabledStore() DisabledStore { return DisabledStore{} }

func (DisabledStore) Enabled() bool { return false }

func (DisabledStore) Set(context.Context, string, []byte, time.Duration) error {
	return dberrors.CacheDisabled("set")
}

func (DisabledStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, dberrors.CacheDisabled("get")
}

func (DisabledStore) Remove(context.Context, string) error {
	return dberrors.CacheDisabled("remove")
}
