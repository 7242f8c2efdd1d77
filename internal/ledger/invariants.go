package ledger

import (
	"context"
	"fmt"
	"sort"
)

// InvariantChecker answers whether the global ledger invariant holds for a
// currency. The accounting that backs the answer lives in the financial
// core; this package only consumes the boolean.
type InvariantChecker interface {
	InvariantHolds(ctx context.Context, currency string) (bool, error)
}

// ScanReport is the outcome of a regulator-facing invariant scan.
type ScanReport struct {
	Checked  []string `json:"checked"`
	Violated []string `json:"violated,omitempty"`
	Healthy  bool     `json:"healthy"`
}

// Scan runs the invariant check for every currency and reports violations.
// A check error counts as a violation: an unanswerable invariant is not a
// healthy one.
func Scan(ctx context.Context, checker InvariantChecker, currencies []string) (ScanReport, error) {
	if checker == nil {
		return ScanReport{}, fmt.Errorf("ledger: no invariant checker configured")
	}

	report := ScanReport{Healthy: true}
	for _, cur := range currencies {
		report.Checked = append(report.Checked, cur)
		holds, err := checker.InvariantHolds(ctx, cur)
		if err != nil || !holds {
			report.Violated = append(report.Violated, cur)
			report.Healthy = false
		}
	}
	sort.Strings(report.Violated)
	return report, nil
}
