package cloud

import (
	"testing"
	"time"
)

func TestUsageLedger_ClosedIntervalCostsDurationTimesRate(t *testing.T) {
	l := NewUsageLedger()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.RecordStart("i1", ProviderHetzner, 0.01, start)
	l.RecordStop("i1", start.Add(10*time.Hour))

	cost := l.InstanceCost("i1", start.Add(24*time.Hour))
	want := 0.10
	if diff := cost - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("cost = %v, want %v", cost, want)
	}
}

func TestUsageLedger_OpenIntervalCountsThroughNow(t *testing.T) {
	l := NewUsageLedger()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.RecordStart("i1", ProviderDigitalOcean, 0.02, start)

	cost := l.InstanceCost("i1", start.Add(5*time.Hour))
	want := 0.10
	if diff := cost - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("cost = %v, want %v", cost, want)
	}
}

func TestUsageLedger_CostSinceClipsToWindow(t *testing.T) {
	l := NewUsageLedger()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.RecordStart("i1", ProviderHetzner, 1.0, start)
	l.RecordStop("i1", start.Add(48*time.Hour))

	since := start.Add(24 * time.Hour)
	cost := l.CostSince(since, start.Add(48*time.Hour))
	want := 24.0
	if diff := cost - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("cost = %v, want %v", cost, want)
	}
}
