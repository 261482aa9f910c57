package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTimingMetricRecord(t *testing.T) {
	m := newTimingMetric("test")
	m.Record(2 * time.Millisecond)
	m.Record(4 * time.Millisecond)

	s := m.Stats()
	if s.Count != 2 {
		t.Fatalf("count = %d", s.Count)
	}
	if s.MinMs != 2 || s.MaxMs != 4 || s.AvgMs != 3 {
		t.Errorf("stats = %+v", s)
	}

	m.Reset()
	if m.Count() != 0 || m.MinNs() != 0 {
		t.Error("reset did not clear metric")
	}
}

func TestTimerDisabled(t *testing.T) {
	SetEnabled(false)
	defer SetEnabled(true)

	m := newTimingMetric("off")
	Timer(m)()
	if m.Count() != 0 {
		t.Error("disabled timer recorded a sample")
	}
}

func TestTimerWithCallback(t *testing.T) {
	m := newTimingMetric("cb")
	var got time.Duration
	TimerWithCallback(m, func(d time.Duration) { got = d })()
	if m.Count() != 1 || got < 0 {
		t.Errorf("count=%d got=%v", m.Count(), got)
	}
}

func TestCacheMetricHitRate(t *testing.T) {
	c := newCacheMetric("c")
	if c.HitRate() != 0 {
		t.Error("empty hit rate should be 0")
	}
	c.Hit()
	c.Hit()
	c.Hit()
	c.Miss()
	if c.HitRate() != 0.75 {
		t.Errorf("hit rate = %v", c.HitRate())
	}
}

func TestPromCollectors(t *testing.T) {
	p := NewProm()
	p.ObserveFetch("tickets", "ok")
	p.ObserveFetch("tickets", "ok")
	p.ObserveFetch("tickets", "error")
	p.StaleDiscarded()
	p.SetInsights("governance", map[string]int{"risk": 2, "anomaly": 1})
	p.SetInsights("governance", map[string]int{"risk": 1})

	if got := testutil.ToFloat64(p.fetchTotal.WithLabelValues("tickets", "ok")); got != 2 {
		t.Errorf("fetch ok = %v", got)
	}
	if got := testutil.ToFloat64(p.staleDiscarded); got != 1 {
		t.Errorf("stale discarded = %v", got)
	}
	// The second SetInsights replaces the first.
	if n := testutil.CollectAndCount(p.insights); n != 1 {
		t.Errorf("insight series = %d", n)
	}

	expected := `
# HELP bmo_records Records in the latest snapshot by module.
# TYPE bmo_records gauge
bmo_records{module="tickets"} 42
`
	p.SetRecords("tickets", 42)
	if err := testutil.CollectAndCompare(p.records, strings.NewReader(expected)); err != nil {
		t.Error(err)
	}
}

func TestNilPromIsSafe(t *testing.T) {
	var p *Prom
	p.ObserveFetch("x", "ok")
	p.ObserveRefresh(time.Second)
	p.StaleDiscarded()
	p.TickSkipped()
	p.SetInsights("x", nil)
	p.SetRecords("x", 1)
}
