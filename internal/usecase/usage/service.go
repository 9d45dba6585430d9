package usage

import (
	"context"
	"time"

	domusage "github.com/kailas-cloud/finrag/internal/domain/usage"
)

// Service handles usage reporting.
type Service struct {
	br       BudgetReader
	provider string
	now      func() time.Time
}

// New creates a Service. br can be nil (unlimited mode), then provider names the report.
func New(br BudgetReader, provider string) *Service {
	if br != nil {
		provider = br.Provider()
	}
	return &Service{br: br, provider: provider, now: time.Now}
}

// GetReport builds a usage report for the given period. Boundaries are UTC.
func (s *Service) GetReport(_ context.Context, period domusage.Period) domusage.Report {
	now := s.now().UTC()
	var start, end time.Time
	var used, limit int64

	switch period {
	case domusage.PeriodDay:
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 0, 1)
		if s.br != nil {
			used, limit = s.br.DailyUsed(), s.br.DailyLimit()
		}
	default:
		period = domusage.PeriodMonth
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, 0)
		if s.br != nil {
			used, limit = s.br.MonthlyUsed(), s.br.MonthlyLimit()
		}
	}

	return domusage.NewReport(period, s.provider, start.UnixMilli(), end.UnixMilli(), used, limit)
}
