package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/domain"
)

// BudgetAction defines behavior when token budget is exceeded.
type BudgetAction string

const (
	// BudgetActionWarn logs a warning but allows the request.
	BudgetActionWarn BudgetAction = "warn"
	// BudgetActionReject blocks the request.
	BudgetActionReject BudgetAction = "reject"
)

// ParseBudgetAction maps the configured action name. Empty means warn.
func ParseBudgetAction(s string) (BudgetAction, error) {
	switch BudgetAction(s) {
	case "", BudgetActionWarn:
		return BudgetActionWarn, nil
	case BudgetActionReject:
		return BudgetActionReject, nil
	default:
		return "", fmt.Errorf("%w: unknown budget action %q", domain.ErrInvalidInput, s)
	}
}

// BudgetStore is the persistence interface for budget counters.
// IncrBy must be additive: counters from several replicas sum up.
type BudgetStore interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Get(ctx context.Context, key string) (int64, error)
}

const persistTimeout = 2 * time.Second

// window is one UTC accounting period (day or month) with its own cap.
type window struct {
	name     string // "daily" / "monthly", part of the store key
	layout   string // period suffix of the store key
	truncate func(time.Time) time.Time
	limit    int64 // 0 = unlimited
	used     int64
	start    time.Time
}

// roll zeroes the counter once now leaves the current period.
func (w *window) roll(now time.Time) {
	if p := w.truncate(now); p.After(w.start) {
		w.start = p
		w.used = 0
	}
}

func (w *window) exceeded() bool { return w.limit > 0 && w.used >= w.limit }

func (w *window) remaining() int64 {
	if w.limit == 0 {
		return -1
	}
	return max(w.limit-w.used, 0)
}

// BudgetTracker counts embedding tokens per UTC day and month.
// Check reads memory only; Record updates memory, then writes behind to the store if one is attached.
type BudgetTracker struct {
	mu        sync.Mutex
	day       window
	month     window
	action    BudgetAction
	provider  string
	keyPrefix string
	store     BudgetStore
	logger    *zap.Logger
	now       func() time.Time
}

// NewBudgetTracker creates a budget tracker with the given limits. A zero limit disables that window.
func NewBudgetTracker(
	provider, keyPrefix string, dailyLimit, monthlyLimit int64,
	action BudgetAction, logger *zap.Logger,
) *BudgetTracker {
	b := &BudgetTracker{
		day:       window{name: "daily", layout: "2006-01-02", truncate: startOfDay, limit: dailyLimit},
		month:     window{name: "monthly", layout: "2006-01", truncate: startOfMonth, limit: monthlyLimit},
		action:    action,
		provider:  provider,
		keyPrefix: keyPrefix,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	now := b.now()
	b.day.start = startOfDay(now)
	b.month.start = startOfMonth(now)
	return b
}

// WithStore attaches a persistence store and seeds the counters from it.
// Load failures are logged; counting then starts from zero.
func (b *BudgetTracker) WithStore(ctx context.Context, store BudgetStore) *BudgetTracker {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.store = store
	now := b.now()
	for _, w := range b.windows() {
		w.roll(now)
		key := b.key(w, now)
		val, err := store.Get(ctx, key)
		if err != nil {
			b.logger.Warn("Failed to load budget counter", zap.String("key", key), zap.Error(err))
			continue
		}
		w.used = val
	}

	b.logger.Info("Budget loaded from store",
		zap.String("provider", b.provider),
		zap.Int64("daily_used", b.day.used),
		zap.Int64("monthly_used", b.month.used),
	)
	return b
}

func (b *BudgetTracker) windows() [2]*window { return [2]*window{&b.day, &b.month} }

// key renders e.g. finrag:budget:openai:daily:2026-10-19.
func (b *BudgetTracker) key(w *window, t time.Time) string {
	return fmt.Sprintf("%sbudget:%s:%s:%s", b.keyPrefix, b.provider, w.name, t.Format(w.layout))
}

// Check verifies the budget allows a new request. In-memory only (hot path).
func (b *BudgetTracker) Check(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.day.roll(now)
	b.month.roll(now)
	if !b.day.exceeded() && !b.month.exceeded() {
		return nil
	}

	if b.action == BudgetActionReject {
		return fmt.Errorf("%w: %w", domain.ErrEmbedding, domain.ErrEmbeddingQuotaExceeded)
	}
	b.logger.Warn("Token budget exceeded",
		zap.String("provider", b.provider),
		zap.Int64("daily_used", b.day.used),
		zap.Int64("daily_limit", b.day.limit),
		zap.Int64("monthly_used", b.month.used),
		zap.Int64("monthly_limit", b.month.limit),
	)
	return nil
}

// Record adds consumed tokens to both windows and persists the increment.
func (b *BudgetTracker) Record(tokens int64) {
	if tokens <= 0 {
		return
	}

	b.mu.Lock()
	now := b.now()
	keys := make([]string, 0, 2)
	for _, w := range b.windows() {
		w.roll(now)
		w.used += tokens
		keys = append(keys, b.key(w, now))
	}
	store := b.store
	b.mu.Unlock()

	if store == nil {
		return
	}

	// Отдельный контекст: запрос клиента мог уже завершиться.
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	for _, key := range keys {
		if err := store.IncrBy(ctx, key, tokens); err != nil {
			b.logger.Warn("Failed to persist budget counter", zap.String("key", key), zap.Error(err))
		}
	}
}

func (b *BudgetTracker) read(w *window, f func(*window) int64) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	w.roll(b.now())
	return f(w)
}

func usedTokens(w *window) int64 { return w.used }

// RemainingDaily returns tokens left in the daily budget (-1 if unlimited).
func (b *BudgetTracker) RemainingDaily() int64 { return b.read(&b.day, (*window).remaining) }

// RemainingMonthly returns tokens left in the monthly budget (-1 if unlimited).
func (b *BudgetTracker) RemainingMonthly() int64 { return b.read(&b.month, (*window).remaining) }

// DailyUsed returns tokens consumed today.
func (b *BudgetTracker) DailyUsed() int64 { return b.read(&b.day, usedTokens) }

// MonthlyUsed returns tokens consumed this month.
func (b *BudgetTracker) MonthlyUsed() int64 { return b.read(&b.month, usedTokens) }

// Provider returns the provider name the counters belong to.
func (b *BudgetTracker) Provider() string { return b.provider }

// DailyLimit returns the daily token cap.
func (b *BudgetTracker) DailyLimit() int64 { return b.day.limit }

// MonthlyLimit returns the monthly token cap.
func (b *BudgetTracker) MonthlyLimit() int64 { return b.month.limit }

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
