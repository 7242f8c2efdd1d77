package policy

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

var baseTime = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func TestRateLimitWithinWindow(t *testing.T) {
	tr := NewTracker()
	p := Profile{MaxTransactionsPerSecond: 2}

	for i := 0; i < 2; i++ {
		res, err := tr.Reserve("tenant-a", "10.00", p, baseTime)
		if err != nil {
			t.Fatal(err)
		}
		if res.Exceeded {
			t.Fatalf("reservation %d unexpectedly exceeded: %s", i, res.Details)
		}
	}

	res, err := tr.Reserve("tenant-a", "10.00", p, baseTime.Add(500*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Exceeded || res.Dimension != "rate" {
		t.Fatalf("expected rate exceeded, got %+v", res)
	}
}

func TestRateWindowResets(t *testing.T) {
	tr := NewTracker()
	p := Profile{MaxTransactionsPerSecond: 1}

	if res, _ := tr.Reserve("tenant-a", "10.00", p, baseTime); res.Exceeded {
		t.Fatal("first reservation must pass")
	}
	if res, _ := tr.Reserve("tenant-a", "10.00", p, baseTime.Add(time.Second)); res.Exceeded {
		t.Fatalf("expected fresh window to admit, got %+v", res)
	}
}

func TestDailyAggregateLimit(t *testing.T) {
	tr := NewTracker()
	p := Profile{DailyAggregateLimit: "100.00"}

	if res, _ := tr.Reserve("tenant-a", "60.00", p, baseTime); res.Exceeded {
		t.Fatal("first reservation must pass")
	}
	if res, _ := tr.Reserve("tenant-a", "40.00", p, baseTime.Add(time.Minute)); res.Exceeded {
		t.Fatalf("expected reservation at the limit to pass, got %+v", res)
	}

	res, _ := tr.Reserve("tenant-a", "0.01", p, baseTime.Add(2*time.Minute))
	if !res.Exceeded || res.Dimension != "daily_aggregate" {
		t.Fatalf("expected daily aggregate exceeded, got %+v", res)
	}
}

func TestDailyAggregateResetsAtMidnightUTC(t *testing.T) {
	tr := NewTracker()
	p := Profile{DailyAggregateLimit: "100.00"}

	tr.Reserve("tenant-a", "100.00", p, baseTime)

	nextDay := time.Date(2026, 3, 15, 0, 0, 1, 0, time.UTC)
	if res, _ := tr.Reserve("tenant-a", "100.00", p, nextDay); res.Exceeded {
		t.Fatalf("expected fresh day to reset the aggregate, got %+v", res)
	}
}

func TestDeniedReservationDoesNotConsumeHeadroom(t *testing.T) {
	tr := NewTracker()
	p := Profile{DailyAggregateLimit: "100.00"}

	tr.Reserve("tenant-a", "90.00", p, baseTime)
	if res, _ := tr.Reserve("tenant-a", "20.00", p, baseTime.Add(time.Second)); !res.Exceeded {
		t.Fatal("expected 110 to exceed 100")
	}
	// The denied 20.00 must not have been committed.
	if res, _ := tr.Reserve("tenant-a", "10.00", p, baseTime.Add(2*time.Second)); res.Exceeded {
		t.Fatalf("expected remaining headroom to admit 10.00, got %+v", res)
	}
}

func TestTenantsAreIsolated(t *testing.T) {
	tr := NewTracker()
	p := Profile{DailyAggregateLimit: "100.00"}

	tr.Reserve("tenant-a", "100.00", p, baseTime)
	if res, _ := tr.Reserve("tenant-b", "100.00", p, baseTime); res.Exceeded {
		t.Fatalf("expected tenant-b to have its own aggregate, got %+v", res)
	}
}

func TestInvalidAmountIsAnError(t *testing.T) {
	tr := NewTracker()
	if _, err := tr.Reserve("tenant-a", "lots", Profile{}, baseTime); err == nil {
		t.Fatal("expected error for unparseable amount")
	}
}

func TestConcurrentReservationsNeverOvercommit(t *testing.T) {
	tr := NewTracker()
	p := Profile{DailyAggregateLimit: "50.00"}

	var wg sync.WaitGroup
	admitted := make(chan struct{}, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := tr.Reserve("tenant-a", "1.00", p, baseTime.Add(time.Duration(i)*2*time.Second))
			if err == nil && !res.Exceeded {
				admitted <- struct{}{}
			}
		}(i)
	}
	wg.Wait()
	close(admitted)

	count := 0
	for range admitted {
		count++
	}
	if count > 50 {
		t.Fatalf("expected at most 50 admitted reservations, got %d", count)
	}
}

func BenchmarkReserve(b *testing.B) {
	tr := NewTracker()
	p := Profile{MaxTransactionsPerSecond: 0, DailyAggregateLimit: ""}
	now := baseTime

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tenant := fmt.Sprintf("tenant-%d", i%16)
		if _, err := tr.Reserve(tenant, "10.00", p, now); err != nil {
			b.Fatal(err)
		}
	}
}
