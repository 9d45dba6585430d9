package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/domain"
)

// clock is a settable time source for rollover tests.
type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTrackerAt(t0 time.Time, daily, monthly int64, action BudgetAction) (*BudgetTracker, *clock) {
	c := &clock{t: t0}
	bt := NewBudgetTracker("openai", "finrag:", daily, monthly, action, zap.NewNop())
	bt.now = c.now
	bt.day.start = startOfDay(t0)
	bt.month.start = startOfMonth(t0)
	return bt, c
}

var oct19 = time.Date(2026, 10, 19, 15, 30, 0, 0, time.UTC)

func TestParseBudgetAction(t *testing.T) {
	if a, err := ParseBudgetAction(""); err != nil || a != BudgetActionWarn {
		t.Errorf("empty: %q %v", a, err)
	}
	if a, err := ParseBudgetAction("reject"); err != nil || a != BudgetActionReject {
		t.Errorf("reject: %q %v", a, err)
	}
	if _, err := ParseBudgetAction("block"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("block: %v", err)
	}
}

func TestBudgetTracker_Check(t *testing.T) {
	tests := []struct {
		name    string
		daily   int64
		monthly int64
		action  BudgetAction
		record  int64
		wantErr bool
	}{
		{"below limit", 1000, 10000, BudgetActionReject, 500, false},
		{"daily reached", 100, 0, BudgetActionReject, 100, true},
		{"monthly reached", 0, 500, BudgetActionReject, 500, true},
		{"warn lets through", 100, 0, BudgetActionWarn, 200, false},
		{"unlimited", 0, 0, BudgetActionReject, 999999999, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bt, _ := newTrackerAt(oct19, tt.daily, tt.monthly, tt.action)
			bt.Record(tt.record)

			err := bt.Check(context.Background())
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
				t.Fatalf("expected ErrEmbeddingQuotaExceeded, got %v", err)
			}
			if !errors.Is(err, domain.ErrEmbedding) {
				t.Errorf("quota rejection should also be an embedding error, got %v", err)
			}
		})
	}
}

func TestBudgetTracker_Remaining(t *testing.T) {
	bt, _ := newTrackerAt(oct19, 1000, 10000, BudgetActionWarn)
	bt.Record(300)

	if got := bt.RemainingDaily(); got != 700 {
		t.Errorf("daily remaining = %d, want 700", got)
	}
	if got := bt.RemainingMonthly(); got != 9700 {
		t.Errorf("monthly remaining = %d, want 9700", got)
	}

	bt.Record(5000)
	if got := bt.RemainingDaily(); got != 0 {
		t.Errorf("overspent daily remaining = %d, want 0", got)
	}
}

func TestBudgetTracker_RemainingUnlimited(t *testing.T) {
	bt, _ := newTrackerAt(oct19, 0, 0, BudgetActionWarn)
	if bt.RemainingDaily() != -1 || bt.RemainingMonthly() != -1 {
		t.Errorf("expected -1/-1, got %d/%d", bt.RemainingDaily(), bt.RemainingMonthly())
	}
}

func TestBudgetTracker_IgnoresNonPositive(t *testing.T) {
	bt, _ := newTrackerAt(oct19, 100, 0, BudgetActionReject)
	bt.Record(0)
	bt.Record(-5)
	if bt.DailyUsed() != 0 {
		t.Errorf("daily used = %d, want 0", bt.DailyUsed())
	}
}

func TestBudgetTracker_DayRollover(t *testing.T) {
	bt, c := newTrackerAt(oct19, 100, 1000, BudgetActionReject)
	bt.Record(100)
	if err := bt.Check(context.Background()); err == nil {
		t.Fatal("expected rejection before midnight")
	}

	c.t = oct19.Add(9 * time.Hour) // 2026-10-20 00:30 UTC
	if err := bt.Check(context.Background()); err != nil {
		t.Fatalf("new day should reset the daily window: %v", err)
	}
	if bt.DailyUsed() != 0 || bt.MonthlyUsed() != 100 {
		t.Errorf("used = %d/%d, want 0/100", bt.DailyUsed(), bt.MonthlyUsed())
	}
}

func TestBudgetTracker_MonthRollover(t *testing.T) {
	bt, c := newTrackerAt(time.Date(2026, 12, 31, 23, 0, 0, 0, time.UTC), 0, 500, BudgetActionReject)
	bt.Record(500)

	c.t = time.Date(2027, 1, 1, 0, 5, 0, 0, time.UTC)
	if err := bt.Check(context.Background()); err != nil {
		t.Fatalf("new month should reset the monthly window: %v", err)
	}
	if bt.MonthlyUsed() != 0 {
		t.Errorf("monthly used = %d, want 0", bt.MonthlyUsed())
	}
}

// --- persistence ---

type mockBudgetStore struct {
	mu     sync.Mutex
	data   map[string]int64
	getErr error
	setErr error
}

func newMockBudgetStore() *mockBudgetStore {
	return &mockBudgetStore{data: make(map[string]int64)}
}

func (m *mockBudgetStore) IncrBy(_ context.Context, key string, val int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] += val
	return nil
}

func (m *mockBudgetStore) Get(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return 0, m.getErr
	}
	return m.data[key], nil
}

func (m *mockBudgetStore) get(key string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key]
}

const (
	dailyKeyOct19   = "finrag:budget:openai:daily:2026-10-19"
	monthlyKeyOct19 = "finrag:budget:openai:monthly:2026-10"
)

func TestBudgetTracker_WithStore_LoadsValues(t *testing.T) {
	store := newMockBudgetStore()
	store.data[dailyKeyOct19] = 300
	store.data[monthlyKeyOct19] = 5000

	bt, _ := newTrackerAt(oct19, 1000, 10000, BudgetActionReject)
	bt.WithStore(context.Background(), store)

	if bt.DailyUsed() != 300 || bt.MonthlyUsed() != 5000 {
		t.Errorf("used = %d/%d, want 300/5000", bt.DailyUsed(), bt.MonthlyUsed())
	}
}

func TestBudgetTracker_WithStore_LoadError(t *testing.T) {
	store := newMockBudgetStore()
	store.getErr = errors.New("connection refused")

	bt, _ := newTrackerAt(oct19, 1000, 10000, BudgetActionReject)
	bt.WithStore(context.Background(), store)

	if bt.DailyUsed() != 0 || bt.MonthlyUsed() != 0 {
		t.Errorf("used = %d/%d, want 0/0 on load error", bt.DailyUsed(), bt.MonthlyUsed())
	}
}

func TestBudgetTracker_Record_PersistsBothWindows(t *testing.T) {
	store := newMockBudgetStore()
	bt, _ := newTrackerAt(oct19, 10000, 100000, BudgetActionWarn)
	bt.WithStore(context.Background(), store)

	bt.Record(100)
	bt.Record(200)
	bt.Record(300)

	if got := store.get(dailyKeyOct19); got != 600 {
		t.Errorf("stored daily = %d, want 600", got)
	}
	if got := store.get(monthlyKeyOct19); got != 600 {
		t.Errorf("stored monthly = %d, want 600", got)
	}
	if bt.DailyUsed() != 600 {
		t.Errorf("daily used = %d, want 600", bt.DailyUsed())
	}
}

func TestBudgetTracker_Record_StoreWriteError(t *testing.T) {
	store := newMockBudgetStore()
	bt, _ := newTrackerAt(oct19, 1000, 10000, BudgetActionWarn)
	bt.WithStore(context.Background(), store)

	store.mu.Lock()
	store.setErr = errors.New("write timeout")
	store.mu.Unlock()

	bt.Record(50)
	if bt.DailyUsed() != 50 {
		t.Errorf("daily used = %d, want 50 even with store error", bt.DailyUsed())
	}
}

func TestBudgetTracker_WithStore_CheckStillInMemory(t *testing.T) {
	store := newMockBudgetStore()
	bt, _ := newTrackerAt(oct19, 100, 0, BudgetActionReject)
	bt.WithStore(context.Background(), store)
	bt.Record(100)

	store.mu.Lock()
	store.getErr = errors.New("store down")
	store.mu.Unlock()

	if err := bt.Check(context.Background()); !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
		t.Fatalf("expected ErrEmbeddingQuotaExceeded, got %v", err)
	}
}

func TestBudgetTracker_Record_NextDayKey(t *testing.T) {
	store := newMockBudgetStore()
	bt, c := newTrackerAt(oct19, 0, 0, BudgetActionWarn)
	bt.WithStore(context.Background(), store)

	c.t = oct19.Add(24 * time.Hour)
	bt.Record(7)

	if got := store.get("finrag:budget:openai:daily:2026-10-20"); got != 7 {
		t.Errorf("next-day counter = %d, want 7", got)
	}
	if got := store.get(dailyKeyOct19); got != 0 {
		t.Errorf("previous day counter = %d, want 0", got)
	}
}
