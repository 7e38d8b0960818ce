package worker

import (
	"context"
	"slices"
	"sync"
	"time"

	"trade_engine/internal/domain/entity"
	"trade_engine/pkg/contextx"
	"trade_engine/pkg/logx"
)

const (
	DefaultDeclineDelay       = time.Second
	DefaultDeclineRetryDelay  = 2 * time.Second
	DefaultDeclineMaxAttempts = 3
)

type DeclinePlatform interface {
	DeclineTrade(ctx context.Context, id entity.TradeID) error
}

// DeclineResult is the tally of one decline run.
type DeclineResult struct {
	Total    int
	Declined int
	Failed   int
	Stopped  bool
}

// Decliner отклоняет исходящие трейды шаблона по запросу пользователя.
// Такие трейды финализируются с userDeclined и не порождают уведомлений.
type Decliner struct {
	platform DeclinePlatform
	trades   TradeRepository
	store    Flusher
	ui       UI

	delay       time.Duration
	retryDelay  time.Duration
	maxAttempts int
	clock       func() time.Time

	// Control fields
	mu         sync.Mutex
	cancelFunc context.CancelFunc
	isRunning  bool
	wg         sync.WaitGroup
}

func NewDecliner(platform DeclinePlatform, trades TradeRepository, store Flusher, ui UI) *Decliner {
	return &Decliner{
		platform:    platform,
		trades:      trades,
		store:       store,
		ui:          ui,
		delay:       DefaultDeclineDelay,
		retryDelay:  DefaultDeclineRetryDelay,
		maxAttempts: DefaultDeclineMaxAttempts,
		clock:       time.Now,
	}
}

func (d *Decliner) WithDelays(delay, retryDelay time.Duration) *Decliner {
	d.delay = delay
	d.retryDelay = retryDelay
	return d
}

func (d *Decliner) WithMaxAttempts(n int) *Decliner {
	if n > 0 {
		d.maxAttempts = n
	}
	return d
}

func (d *Decliner) WithClock(clock func() time.Time) *Decliner {
	d.clock = clock
	return d
}

// IsRunning возвращает текущий статус
func (d *Decliner) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isRunning
}

// Stop отменяет текущий запуск и ждёт его завершения.
func (d *Decliner) Stop() {
	d.mu.Lock()
	if !d.isRunning {
		d.mu.Unlock()
		return
	}
	if d.cancelFunc != nil {
		d.cancelFunc()
	}
	d.mu.Unlock()

	d.wg.Wait()
}

// Decline отклоняет все pending-трейды шаблона. Повторный вызов во время
// работы возвращает пустой результат.
func (d *Decliner) Decline(ctx context.Context, templateID string) (DeclineResult, error) {
	d.mu.Lock()
	if d.isRunning {
		d.mu.Unlock()
		return DeclineResult{}, nil
	}
	ctx, cancel := context.WithCancel(ctx)
	d.cancelFunc = cancel
	d.isRunning = true
	d.wg.Add(1)
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		cancel()
		d.isRunning = false
		d.cancelFunc = nil
		d.mu.Unlock()
		d.wg.Done()
	}()

	pending, err := d.trades.Pending(ctx)
	if err != nil {
		return DeclineResult{}, err
	}

	matching := slices.DeleteFunc(pending, func(p entity.PendingTrade) bool { return p.TemplateID != templateID })
	res := DeclineResult{Total: len(matching)}
	if len(matching) == 0 {
		return res, nil
	}

	for i, trade := range matching {
		if ctx.Err() != nil {
			res.Stopped = true
			break
		}
		if i > 0 {
			if err := contextx.Sleep(ctx, d.delay); err != nil {
				res.Stopped = true
				break
			}
		}

		ok, err := d.declineOne(ctx, trade, &res)
		if err != nil {
			return res, err
		}
		if !ok && ctx.Err() != nil {
			res.Stopped = true
			break
		}

		d.ui.Progress(ctx, ProgressSnapshot{
			Success:   res.Declined,
			Failed:    res.Failed,
			Goal:      res.Total,
			Remaining: res.Total - i - 1,
			Message:   "Declining trades",
		}, false)
	}

	cleanupCtx := context.WithoutCancel(ctx)
	if err := d.store.Flush(cleanupCtx); err != nil {
		logger(ctx).Error("Failed to flush declined trades", logx.Error(err))
	}
	d.ui.Progress(cleanupCtx, ProgressSnapshot{
		Success: res.Declined, Failed: res.Failed, Goal: res.Total, Message: "Declining trades",
	}, true)

	logger(ctx).Info("Decline finished",
		logx.FieldTemplateID, templateID,
		"declined", res.Declined,
		"failed", res.Failed,
		"total", res.Total,
	)

	return res, nil
}

// declineOne повторяет отклонение, пока трейд остаётся pending.
func (d *Decliner) declineOne(ctx context.Context, trade entity.PendingTrade, res *DeclineResult) (bool, error) {
	for attempt := range d.maxAttempts {
		if attempt > 0 {
			if err := contextx.Sleep(ctx, d.retryDelay); err != nil {
				return false, nil
			}
		}

		still, err := d.stillPending(ctx, trade.ID)
		if err != nil {
			return false, err
		}
		if !still {
			return false, nil
		}

		if err := d.platform.DeclineTrade(ctx, trade.ID); err != nil {
			if ctx.Err() != nil {
				return false, nil
			}
			logger(ctx).Warn("Decline failed", logx.FieldTradeID, trade.ID.String(),
				logx.FieldAttempt, attempt+1, logx.Error(err))
			if attempt == d.maxAttempts-1 {
				res.Failed++
			}
			continue
		}

		finalized := trade.Finalize(entity.StatusDeclined, d.clock())
		finalized.UserDeclined = true

		if _, err := d.trades.Finalize(context.WithoutCancel(ctx), finalized); err != nil {
			return false, err
		}
		res.Declined++

		return true, nil
	}

	return false, nil
}

func (d *Decliner) stillPending(ctx context.Context, id entity.TradeID) (bool, error) {
	pending, err := d.trades.Pending(ctx)
	if err != nil {
		return false, err
	}
	return slices.ContainsFunc(pending, func(p entity.PendingTrade) bool { return p.ID.Equal(id) }), nil
}
