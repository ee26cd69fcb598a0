package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.CacheResult("User", "hit")
	c.Refresh("User", "global")
	c.Statement("main", "exec", nil, time.Millisecond)
	c.Connect("main", "ok")
	c.Transaction("main", "commit")
	c.Lock("claim_bonus", "strict", "acquired")
	c.Pooled(2)
	if c.Registry() != nil {
		t.Fatal("expected nil registry")
	}
}

func TestCollectorCounts(t *testing.T) {
	c := NewCollector("dal_test")

	c.CacheResult("User", "hit")
	c.CacheResult("User", "hit")
	c.CacheResult("User", "miss")
	c.Statement("main", "query", errors.New("boom"), time.Millisecond)
	c.Pooled(3)

	if got := testutil.ToFloat64(c.CacheRequests.WithLabelValues("User", "hit")); got != 2 {
		t.Errorf("hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.CacheRequests.WithLabelValues("User", "miss")); got != 1 {
		t.Errorf("misses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Statements.WithLabelValues("main", "query", "error")); got != 1 {
		t.Errorf("failed statements = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.PooledConnections); got != 3 {
		t.Errorf("pooled = %v, want 3", got)
	}
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewCollector("dal_a")
	b := NewCollector("dal_a")

	a.Connect("main", "ok")
	if got := testutil.ToFloat64(b.ConnectAttempts.WithLabelValues("main", "ok")); got != 0 {
		t.Errorf("collector b saw %v attempts", got)
	}
}
