package usage

import "testing"

func TestReport_Remaining(t *testing.T) {
	r := NewReport(PeriodMonth, "gemini", 1, 2, 384200, 1000000)

	if r.TokensRemaining() != 615800 {
		t.Errorf("TokensRemaining() = %d", r.TokensRemaining())
	}
	if r.IsExhausted() {
		t.Error("budget should not be exhausted")
	}
	if r.Provider() != "gemini" || r.PeriodStart() != 1 || r.PeriodEnd() != 2 {
		t.Errorf("unexpected report fields: %+v", r)
	}
}

func TestReport_Unlimited(t *testing.T) {
	r := NewReport(PeriodDay, "gemini", 0, 0, 5000, 0)
	if r.TokensRemaining() != -1 {
		t.Errorf("TokensRemaining() = %d, want -1", r.TokensRemaining())
	}
	if r.IsExhausted() {
		t.Error("unlimited budget is never exhausted")
	}
}

func TestReport_Overspent(t *testing.T) {
	r := NewReport(PeriodDay, "gemini", 0, 0, 1200, 1000)
	if r.TokensRemaining() != 0 || !r.IsExhausted() {
		t.Errorf("remaining=%d exhausted=%v", r.TokensRemaining(), r.IsExhausted())
	}
}

func TestParsePeriod(t *testing.T) {
	if p, err := ParsePeriod(""); err != nil || p != PeriodMonth {
		t.Errorf("empty: %q %v", p, err)
	}
	if p, err := ParsePeriod("day"); err != nil || p != PeriodDay {
		t.Errorf("day: %q %v", p, err)
	}
	if _, err := ParsePeriod("year"); err == nil {
		t.Error("year should be rejected")
	}
}
