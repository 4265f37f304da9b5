package cloud

import (
	"sync"
	"time"
)

// UsageLedger tracks open billing intervals per instance and sums
// them against each interval's hourly rate to compute cost, per spec
// §4.7's "usage accounting records every lifecycle transition with an
// hourly rate; monthly cost is computed by summing per-instance
// intervals × rate".
type UsageLedger struct {
	mu      sync.Mutex
	records []UsageRecord
}

// NewUsageLedger builds an empty UsageLedger.
func NewUsageLedger() *UsageLedger {
	return &UsageLedger{}
}

// RecordStart opens a new billing interval for instanceID at rate
// dollars/hour, starting now.
func (l *UsageLedger) RecordStart(instanceID string, provider ProviderName, hourlyRate float64, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, UsageRecord{
		InstanceID: instanceID,
		Provider:   provider,
		HourlyRate: hourlyRate,
		StartedAt:  now,
	})
}

// RecordStop closes the most recent open interval for instanceID.
// A no-op if no open interval exists (e.g. a stop event arrives
// without a matching recorded start).
func (l *UsageLedger) RecordStop(instanceID string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.records) - 1; i >= 0; i-- {
		if l.records[i].InstanceID == instanceID && l.records[i].EndedAt == nil {
			ended := now
			l.records[i].EndedAt = &ended
			return
		}
	}
}

// CostSince sums every interval's (duration × hourly rate) that
// overlaps [since, now), treating still-open intervals as running
// through now.
func (l *UsageLedger) CostSince(since, now time.Time) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	var total float64
	for _, r := range l.records {
		end := now
		if r.EndedAt != nil {
			end = *r.EndedAt
		}
		start := r.StartedAt
		if start.Before(since) {
			start = since
		}
		if end.Before(start) {
			continue
		}
		total += end.Sub(start).Hours() * r.HourlyRate
	}
	return total
}

// InstanceCost sums cost for a single instance across all of its
// recorded intervals, open ones counted through now.
func (l *UsageLedger) InstanceCost(instanceID string, now time.Time) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	var total float64
	for _, r := range l.records {
		if r.InstanceID != instanceID {
			continue
		}
		end := now
		if r.EndedAt != nil {
			end = *r.EndedAt
		}
		total += end.Sub(r.StartedAt).Hours() * r.HourlyRate
	}
	return total
}
