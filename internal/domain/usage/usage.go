package usage

import "fmt"

// Period is the aggregation granularity.
type Period string

// Aggregation period constants.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// ParsePeriod validates a period name. Empty means month.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "", PeriodMonth:
		return PeriodMonth, nil
	case PeriodDay:
		return PeriodDay, nil
	default:
		return "", fmt.Errorf("unknown period %q (want day or month)", s)
	}
}

// Report is the embedding token usage of one provider for a period.
type Report struct {
	period      Period
	provider    string
	periodStart int64 // unix millis
	periodEnd   int64
	tokensUsed  int64
	tokensLimit int64 // 0 = unlimited
}

// NewReport creates a usage report.
func NewReport(period Period, provider string, start, end, used, limit int64) Report {
	return Report{
		period:      period,
		provider:    provider,
		periodStart: start,
		periodEnd:   end,
		tokensUsed:  used,
		tokensLimit: limit,
	}
}

// Period returns the aggregation granularity.
func (r Report) Period() Period { return r.period }

// Provider returns the embedding provider name.
func (r Report) Provider() string { return r.provider }

// PeriodStart returns the period start timestamp (unix millis).
func (r Report) PeriodStart() int64 { return r.periodStart }

// PeriodEnd returns the period end timestamp (unix millis). The budget resets then.
func (r Report) PeriodEnd() int64 { return r.periodEnd }

// TokensUsed returns tokens consumed in the period.
func (r Report) TokensUsed() int64 { return r.tokensUsed }

// TokensLimit returns the token cap, 0 when unlimited.
func (r Report) TokensLimit() int64 { return r.tokensLimit }

// TokensRemaining returns tokens left, or -1 when unlimited.
func (r Report) TokensRemaining() int64 {
	if r.tokensLimit == 0 {
		return -1
	}
	if left := r.tokensLimit - r.tokensUsed; left > 0 {
		return left
	}
	return 0
}

// IsExhausted reports whether a limited budget is spent.
func (r Report) IsExhausted() bool {
	return r.tokensLimit > 0 && r.tokensUsed >= r.tokensLimit
}
