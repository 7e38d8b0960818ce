package worker

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"trade_engine/internal/domain"
	"trade_engine/internal/domain/entity"
	"trade_engine/pkg/contextx"
	"trade_engine/pkg/logx"
	"trade_engine/pkg/metrics"
)

const (
	DefaultMaxOutboundPages = 50
	DefaultStatusCheckDelay = time.Second
	DefaultStatusRateWait   = 2 * time.Second
)

type StatusPlatform interface {
	OutboundPage(ctx context.Context, cursor string) (entity.OutboundPage, error)
	TradeStatus(ctx context.Context, id entity.TradeID) (entity.TradeState, error)
}

type TradeRepository interface {
	Pending(ctx context.Context) ([]entity.PendingTrade, error)
	Finalize(ctx context.Context, trades ...entity.FinalizedTrade) ([]entity.FinalizedTrade, error)
}

// Notifier accepts notifications for delivery. Duplicates are dropped by the
// notifier.
type Notifier interface {
	Enqueue(ctx context.Context, n entity.TradeNotification) bool
}

// ReconcileResult describes one reconciliation pass.
type ReconcileResult struct {
	Pending     int
	StillOpen   int
	Checked     int
	Finalized   int
	Notified    int
	RateLimited bool
}

// Reconciler сверяет отправленные трейды со статусами на платформе и
// переносит завершённые в finalized.
type Reconciler struct {
	platform StatusPlatform
	trades   TradeRepository
	notifier Notifier
	store    Flusher

	maxPages   int
	checkDelay time.Duration
	rateWait   time.Duration
	clock      func() time.Time

	// Проходы не пересекаются.
	mu sync.Mutex
}

func NewReconciler(platform StatusPlatform, trades TradeRepository, notifier Notifier, store Flusher) *Reconciler {
	return &Reconciler{
		platform:   platform,
		trades:     trades,
		notifier:   notifier,
		store:      store,
		maxPages:   DefaultMaxOutboundPages,
		checkDelay: DefaultStatusCheckDelay,
		rateWait:   DefaultStatusRateWait,
		clock:      time.Now,
	}
}

func (r *Reconciler) WithMaxPages(n int) *Reconciler {
	if n > 0 {
		r.maxPages = n
	}
	return r
}

func (r *Reconciler) WithDelays(check, rateWait time.Duration) *Reconciler {
	r.checkDelay = check
	r.rateWait = rateWait
	return r
}

func (r *Reconciler) WithClock(clock func() time.Time) *Reconciler {
	r.clock = clock
	return r
}

// Reconcile выполняет один проход сверки. Ошибки отдельных проверок не
// прерывают проход: трейд останется pending до следующего раза.
func (r *Reconciler) Reconcile(ctx context.Context) (ReconcileResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending, err := r.trades.Pending(ctx)
	if err != nil {
		return ReconcileResult{}, err
	}

	res := ReconcileResult{Pending: len(pending)}
	metrics.PendingTrades.Set(float64(len(pending)))

	if len(pending) == 0 {
		return res, nil
	}

	open := r.scanOutbound(ctx, pending)

	// Самые старые проверяются первыми.
	slices.SortStableFunc(pending, func(a, b entity.PendingTrade) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	finalized := make([]entity.FinalizedTrade, 0)

	for _, p := range pending {
		if open[p.ID.String()] {
			res.StillOpen++
			continue
		}
		if ctx.Err() != nil {
			break
		}

		if res.Checked > 0 {
			if err := contextx.Sleep(ctx, r.checkDelay); err != nil {
				break
			}
		}
		res.Checked++

		state, err := r.platform.TradeStatus(ctx, p.ID)
		if err != nil {
			if _, limited := domain.RetryAfter(err); limited {
				logger(ctx).Warn("Status checks rate limited, stopping pass", logx.FieldTradeID, p.ID.String())
				res.RateLimited = true
				_ = contextx.Sleep(ctx, r.rateWait)
				break
			}
			logger(ctx).Debug("Status check failed", logx.FieldTradeID, p.ID.String(), logx.Error(err))
			continue
		}

		status, ok := state.Normalize()
		if !ok || !status.IsTerminal() {
			continue
		}

		finalized = append(finalized, p.Finalize(status, r.clock()))
	}

	fresh, err := r.finalize(ctx, finalized)
	if err != nil {
		return res, err
	}
	res.Finalized = len(fresh)
	res.Notified = r.notify(ctx, fresh)

	metrics.PendingTrades.Set(float64(res.Pending - res.Finalized))

	if res.Finalized > 0 {
		logger(ctx).Info("Trades reconciled",
			"pending", res.Pending,
			"checked", res.Checked,
			"finalized", res.Finalized,
		)
	}

	return res, nil
}

// scanOutbound собирает id pending-трейдов, которые ещё висят в исходящих.
// Сканирование останавливается на странице, где встретился трейд старше
// самого старого pending.
func (r *Reconciler) scanOutbound(ctx context.Context, pending []entity.PendingTrade) map[string]bool {
	want := make(map[string]bool, len(pending))
	oldest := pending[0].CreatedAt
	for _, p := range pending {
		want[p.ID.String()] = true
		if p.CreatedAt.Before(oldest) {
			oldest = p.CreatedAt
		}
	}

	open := make(map[string]bool)
	cursor := ""

	for range r.maxPages {
		page, err := r.platform.OutboundPage(ctx, cursor)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				logger(ctx).Warn("Outbound listing failed", logx.Error(err))
			}
			break
		}
		if len(page.Trades) == 0 {
			break
		}

		older := false
		for _, t := range page.Trades {
			if want[t.ID.String()] {
				open[t.ID.String()] = true
			}
			if !oldest.IsZero() && !t.CreatedAt.IsZero() && t.CreatedAt.Before(oldest) {
				older = true
			}
		}

		if older || page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	return open
}

func (r *Reconciler) finalize(ctx context.Context, trades []entity.FinalizedTrade) ([]entity.FinalizedTrade, error) {
	if len(trades) == 0 {
		return nil, nil
	}

	// Перенос в finalized не должен обрываться отменой.
	ctx = context.WithoutCancel(ctx)

	fresh, err := r.trades.Finalize(ctx, trades...)
	if err != nil {
		return nil, err
	}
	if err := r.store.Flush(ctx); err != nil {
		logger(ctx).Error("Failed to flush finalized trades", logx.Error(err))
	}

	for _, f := range fresh {
		metrics.ReconciledTrades.WithLabelValues(string(f.Status)).Inc()
	}

	return fresh, nil
}

func (r *Reconciler) notify(ctx context.Context, trades []entity.FinalizedTrade) int {
	n := 0
	for _, f := range trades {
		if !f.Status.Notifiable() || f.UserDeclined {
			continue
		}
		if r.notifier.Enqueue(ctx, entity.TradeNotification{Trade: f, Status: f.Status}) {
			n++
		}
	}
	return n
}

// Cleanup переносит в finalized pending-записи, у которых уже проставлен
// терминальный статус. Уведомления не отправляются.
func (r *Reconciler) Cleanup(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending, err := r.trades.Pending(ctx)
	if err != nil {
		return 0, err
	}

	now := r.clock()
	moved := make([]entity.FinalizedTrade, 0)
	for _, p := range pending {
		if p.Status.IsTerminal() {
			moved = append(moved, p.Finalize(p.Status, now))
		}
	}

	if len(moved) == 0 {
		return 0, nil
	}

	if _, err := r.trades.Finalize(context.WithoutCancel(ctx), moved...); err != nil {
		return 0, err
	}

	logger(ctx).Info("Moved finalized entries out of pending", "count", len(moved))

	return len(moved), nil
}
