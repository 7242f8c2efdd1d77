package policy

import (
	"fmt"
	"math/big"
	"sync"
	"time"
)

// Usage is a tenant's exposure inside the current windows.
type Usage struct {
	WindowStart    time.Time
	WindowCount    int
	DayStart       time.Time
	DailyAggregate *big.Rat
}

// Tracker accumulates per-tenant transaction counts and daily aggregates
// for sandbox exposure control. This is orchestration-layer accounting
// only, never financial correctness.
type Tracker struct {
	mu      sync.Mutex
	tenants map[string]*Usage
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{tenants: make(map[string]*Usage)}
}

// CheckResult reports which limit a reservation would exceed.
type CheckResult struct {
	Exceeded  bool
	Dimension string // "rate" or "daily_aggregate"
	Details   string
}

// Reserve checks amount against the profile's rate and daily-aggregate
// limits for the tenant and, when within limits, commits the usage.
// Check-and-commit is atomic so concurrent requests cannot both pass on
// the same remaining headroom.
func (t *Tracker) Reserve(tenantID, amount string, p Profile, now time.Time) (CheckResult, error) {
	amt, ok := new(big.Rat).SetString(amount)
	if !ok {
		return CheckResult{}, fmt.Errorf("policy: invalid amount %q", amount)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	u := t.tenants[tenantID]
	if u == nil {
		u = &Usage{WindowStart: now, DayStart: dayStart(now), DailyAggregate: new(big.Rat)}
		t.tenants[tenantID] = u
	}

	if now.Sub(u.WindowStart) >= time.Second {
		u.WindowStart = now
		u.WindowCount = 0
	}
	if !dayStart(now).Equal(u.DayStart) {
		u.DayStart = dayStart(now)
		u.DailyAggregate = new(big.Rat)
	}

	if p.MaxTransactionsPerSecond > 0 && u.WindowCount >= p.MaxTransactionsPerSecond {
		return CheckResult{
			Exceeded:  true,
			Dimension: "rate",
			Details:   fmt.Sprintf("%d/%d transactions in 1s window", u.WindowCount, p.MaxTransactionsPerSecond),
		}, nil
	}

	if p.DailyAggregateLimit != "" {
		limit, ok := new(big.Rat).SetString(p.DailyAggregateLimit)
		if !ok {
			return CheckResult{}, fmt.Errorf("policy: invalid daily aggregate limit %q", p.DailyAggregateLimit)
		}
		next := new(big.Rat).Add(u.DailyAggregate, amt)
		if next.Cmp(limit) > 0 {
			return CheckResult{
				Exceeded:  true,
				Dimension: "daily_aggregate",
				Details:   fmt.Sprintf("aggregate %s + %s exceeds daily limit %s", u.DailyAggregate.RatString(), amount, p.DailyAggregateLimit),
			}, nil
		}
	}

	u.WindowCount++
	u.DailyAggregate.Add(u.DailyAggregate, amt)
	return CheckResult{}, nil
}

func dayStart(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
