package cacheinfra

import (
	"context"
	"strings"
	"time"

	"github.com/viccon/sturdyc"
)

type entry struct {
	value   []byte
	expires time.Time
}

// SturdycStore keeps cache entries in process. sturdyc applies a single TTL
// to the whole client, so each entry also carries its own deadline which is
// checked on read.
type SturdycStore struct {
	client *sturdyc.Client[entry]
	ttl    time.Duration
	now    func() time.Time
}

// NewSturdycStore validates cfg and builds the sturdyc client.
func NewSturdycStore(cfg MemoryConfig) (*SturdycStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []sturdyc.Option
	if cfg.EvictionInterval > 0 {
		opts = append(opts, sturdyc.WithEvictionInterval(cfg.EvictionInterval))
	}

	client := sturdyc.New[entry](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		opts...,
	)

	return &SturdycStore{client: client, ttl: cfg.TTL, now: time.Now}, nil
}

func (s *SturdycStore) Enabled() bool { return true }

// TTL is the client lifetime, the upper bound of every entry.
func (s *SturdycStore) TTL() time.Duration { return s.ttl }

// Set stores a copy of value. A ttl of zero, or one above the client TTL,
// falls back to the client TTL.
func (s *SturdycStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 || ttl > s.ttl {
		ttl = s.ttl
	}
	data := make([]byte, len(value))
	copy(data, value)
	s.client.Set(key, entry{value: data, expires: s.now().Add(ttl)})
	return nil
}

func (s *SturdycStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := s.client.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !s.now().Before(e.expires) {
		s.client.Delete(key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (s *SturdycStore) Remove(_ context.Context, key string) error {
	s.client.Delete(key)
	return nil
}

// RemovePrefix drops every entry whose key starts with prefix and returns
// how many were removed.
func (s *SturdycStore) RemovePrefix(_ context.Context, prefix string) (int, error) {
	n := 0
	for _, key := range s.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			s.client.Delete(key)
			n++
		}
	}
	return n, nil
}
