package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"trade_engine/internal/domain/entity"
	"trade_engine/internal/domain/service/confirmer"
	"trade_engine/internal/domain/service/ledger"
	"trade_engine/internal/domain/service/matcher"
	"trade_engine/pkg/contextx"
	"trade_engine/pkg/logx"
	"trade_engine/pkg/metrics"
)

const (
	DefaultRefetchAttempts = 3
	DefaultSendDelay       = time.Second
	DefaultRateLimitWait   = 5 * time.Second
)

type Platform interface {
	UserID() int64
	CheckEligibility(ctx context.Context, userID int64) (entity.Eligibility, error)
	ResolveInstances(ctx context.Context, req entity.InstanceRequest) (map[int64][]string, error)
	SubmitTrade(ctx context.Context, offer entity.TradeOffer) (entity.TradeID, error)
}

type TemplateRepository interface {
	List(ctx context.Context) ([]entity.TradeTemplate, error)
	RecordSend(ctx context.Context, id string, at time.Time) (entity.TradeTemplate, error)
}

type PendingRepository interface {
	AddPending(ctx context.Context, trade entity.PendingTrade) error
}

type ExclusionRepository interface {
	Add(ctx context.Context, userID int64) error
}

type Ledger interface {
	Record(ctx context.Context, combo ledger.Combo) error
	MarkSent(ctx context.Context, templateID string, targetUserID int64) error
	Prune(ctx context.Context) (int, error)
}

type Matcher interface {
	Index(ctx context.Context) *matcher.ItemIndex
	Find(ctx context.Context, index *matcher.ItemIndex, tpl entity.TradeTemplate, needed int) ([]entity.Opportunity, error)
}

type Confirmer interface {
	Send(ctx context.Context, templateID string, offer entity.TradeOffer) (confirmer.Result, error)
}

type Flusher interface {
	Flush(ctx context.Context) error
}

// UI is the operator side of a run. Progress with done=true closes the
// progress view.
type UI interface {
	Confirm(ctx context.Context, title, message string) (bool, error)
	Alert(ctx context.Context, title, message string) error
	Progress(ctx context.Context, snapshot ProgressSnapshot, done bool)
}

type RunState string

const (
	RunCompleted      RunState = "completed"
	RunStopped        RunState = "stopped"
	RunAlreadyRunning RunState = "already_running"
	RunNoTrades       RunState = "no_trades"
	RunDeclined       RunState = "declined"
)

// Summary is the result of one send-all run.
type Summary struct {
	RunID   string
	State   RunState
	Success int
	Failed  int
	Skipped int
}

// SendAll отправляет трейды по всем шаблонам, пока не достигнуты дневные
// цели. Одновременно может работать только один запуск.
type SendAll struct {
	platform   Platform
	templates  TemplateRepository
	trades     PendingRepository
	exclusions ExclusionRepository
	ledger     Ledger
	matcher    Matcher
	confirmer  Confirmer
	store      Flusher
	ui         UI

	refetchAttempts  int
	sendDelay        time.Duration
	rateLimitWait    time.Duration
	privacyPermanent bool
	clock            func() time.Time

	lastSend time.Time

	// Control fields
	mu         sync.Mutex
	cancelFunc context.CancelFunc
	isRunning  bool
	wg         sync.WaitGroup
}

func NewSendAll(
	platform Platform,
	templates TemplateRepository,
	trades PendingRepository,
	exclusions ExclusionRepository,
	ledger Ledger,
	matcher Matcher,
	confirmer Confirmer,
	store Flusher,
	ui UI,
) *SendAll {
	return &SendAll{
		platform:         platform,
		templates:        templates,
		trades:           trades,
		exclusions:       exclusions,
		ledger:           ledger,
		matcher:          matcher,
		confirmer:        confirmer,
		store:            store,
		ui:               ui,
		refetchAttempts:  DefaultRefetchAttempts,
		sendDelay:        DefaultSendDelay,
		rateLimitWait:    DefaultRateLimitWait,
		privacyPermanent: true,
		clock:            time.Now,
	}
}

func (w *SendAll) WithRefetchAttempts(n int) *SendAll {
	if n >= 0 {
		w.refetchAttempts = n
	}
	return w
}

func (w *SendAll) WithSendDelay(d time.Duration) *SendAll {
	w.sendDelay = d
	return w
}

func (w *SendAll) WithRateLimitWait(d time.Duration) *SendAll {
	w.rateLimitWait = d
	return w
}

// WithPrivacyPermanent controls whether privacy-restricted counterparties are
// persisted as excluded.
func (w *SendAll) WithPrivacyPermanent(permanent bool) *SendAll {
	w.privacyPermanent = permanent
	return w
}

func (w *SendAll) WithClock(clock func() time.Time) *SendAll {
	w.clock = clock
	return w
}

// acquire занимает единственный слот запуска. Если запуск уже идёт,
// оператор получает предупреждение, а не ошибку.
func (w *SendAll) acquire(ctx context.Context) (context.Context, bool) {
	w.mu.Lock()

	if w.isRunning {
		w.mu.Unlock()
		w.alert(ctx, "Already Sending",
			"A trade sending process is already in progress. Please wait for it to complete or stop it first.")
		return nil, false
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel
	w.isRunning = true
	w.wg.Add(1)
	w.mu.Unlock()

	return runCtx, true
}

func (w *SendAll) release() {
	w.mu.Lock()
	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	w.isRunning = false
	w.cancelFunc = nil
	w.mu.Unlock()

	w.wg.Done()
}

// Start запускает отправку в фоне. Пустой templateID означает все шаблоны.
// Возвращает false, если запуск уже идёт.
func (w *SendAll) Start(ctx context.Context, templateID string) bool {
	runCtx, ok := w.acquire(ctx)
	if !ok {
		return false
	}

	if operator, err := contextx.UserIDFromContext(ctx); err == nil {
		logger(ctx).Info("Send-all requested", logx.Stringer("operator", operator), "template_id", templateID)
	}

	go func() {
		defer w.release()

		if _, err := w.run(runCtx, templateID); err != nil && !errors.Is(err, context.Canceled) {
			logger(ctx).Error("Send-all stopped with error", logx.Error(err))
		}
	}()

	return true
}

// Run выполняет отправку синхронно.
func (w *SendAll) Run(ctx context.Context, templateID string) (Summary, error) {
	runCtx, ok := w.acquire(ctx)
	if !ok {
		return Summary{State: RunAlreadyRunning}, nil
	}
	defer w.release()

	return w.run(runCtx, templateID)
}

// Stop отменяет текущий запуск и ждёт завершения его учёта.
func (w *SendAll) Stop() {
	w.mu.Lock()

	if !w.isRunning {
		w.mu.Unlock()
		return
	}

	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	w.mu.Unlock()

	w.wg.Wait()
}

// IsRunning возвращает текущий статус
func (w *SendAll) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.isRunning
}

func (w *SendAll) run(ctx context.Context, templateID string) (Summary, error) {
	templates, err := w.loadTemplates(ctx, templateID)
	if err != nil {
		return Summary{}, err
	}

	if _, err := w.ledger.Prune(ctx); err != nil {
		logger(ctx).Warn("Failed to prune sent history", logx.Error(err))
	}

	rc := NewRunContext(w.clock(), templates, w.matcher.Index(ctx))
	ctx = contextx.WithLogger(ctx, logger(ctx).With(logx.FieldRunID, rc.ID))

	for _, id := range rc.Tracker.TemplatesNeedingMore() {
		opps, err := w.matcher.Find(ctx, rc.Index, rc.Templates[id], rc.Tracker.Needed(id))
		if err != nil {
			logger(ctx).Warn("Failed to match template", logx.FieldTemplateID, id, logx.Error(err))
			continue
		}
		rc.Append(opps...)
	}

	summary := Summary{RunID: rc.ID}

	if rc.PoolSize() == 0 {
		summary.State = RunNoTrades
		w.alert(ctx, "No Trades", "There are no trades available to send.")
		return summary, nil
	}

	ok, err := w.ui.Confirm(ctx, "Send All Trades",
		fmt.Sprintf("Are you sure you want to send %d trade(s)?", rc.PoolSize()))
	if err != nil || !ok {
		summary.State = RunDeclined
		return summary, nil
	}

	logger(ctx).Info("Send-all started", "templates", len(rc.Templates), "pool", rc.PoolSize(),
		"goal", rc.Tracker.TotalGoal())

	stopped := w.loop(ctx, rc)

	// Учёт доводим до хранилища до итогового сообщения.
	cleanupCtx := context.WithoutCancel(ctx)
	if err := w.store.Flush(cleanupCtx); err != nil {
		logger(ctx).Error("Failed to flush store after run", logx.Error(err))
	}

	summary.Success, summary.Failed, summary.Skipped = rc.Success, rc.Failed, rc.Skipped
	summary.State = RunCompleted
	title, verb := "Send All Trades Complete", "Finished"
	if stopped {
		summary.State = RunStopped
		title, verb = "Send All Trades Stopped", "Stopped"
	}

	w.ui.Progress(cleanupCtx, rc.Snapshot(title), true)
	w.alert(cleanupCtx, title,
		fmt.Sprintf("%s sending trades. %d succeeded, %d failed.", verb, rc.Success, rc.Failed))

	metrics.SendRuns.WithLabelValues(string(summary.State)).Inc()
	logger(ctx).Info("Send-all finished",
		logx.FieldStatus, summary.State,
		"success", summary.Success,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
	)

	return summary, nil
}

// loop идёт по пулу, пока есть цели. Возвращает true, если запуск остановлен.
func (w *SendAll) loop(ctx context.Context, rc *RunContext) bool {
	maxAttempts := rc.PoolSize() * 2
	attempts := 0

	for rc.cursor < rc.PoolSize() || attempts < maxAttempts {
		if ctx.Err() != nil {
			return true
		}

		i, opp, found := rc.Next()
		if !found {
			if rc.Tracker.AllGoalsReached() {
				return false
			}
			if attempts >= w.refetchAttempts {
				return false
			}

			if w.refetch(ctx, rc) > 0 {
				attempts = 0
				rc.Rewind()
				continue
			}

			attempts++
			if attempts >= maxAttempts {
				return false
			}
			continue
		}

		attempts = 0
		rc.Consume(i)

		if err := w.waitForNextSlot(ctx); err != nil {
			return true
		}

		outcome := w.sendOne(ctx, rc, opp)
		metrics.SendOutcomes.WithLabelValues(string(outcome.Kind), outcome.Reason).Inc()

		switch outcome.Kind {
		case entity.OutcomeSuccess:
			rc.Tracker.RecordSuccess(opp.TemplateID)
			rc.Success++
			logger(ctx).Info("Trade sent",
				logx.FieldTemplateID, opp.TemplateID,
				logx.FieldTargetUserID, opp.TargetUserID,
				logx.FieldTradeID, outcome.TradeID.String(),
			)
		case entity.OutcomeSkip:
			if outcome.Reason == ReasonCancelled {
				return true
			}
			rc.Skipped++
		case entity.OutcomeFail:
			if outcome.PrivacyRestricted {
				rc.Skipped++
				break
			}
			rc.Failed++
			if outcome.Reason == ReasonRateLimited {
				if err := contextx.Sleep(ctx, w.rateLimitWait); err != nil {
					return true
				}
			}
		}

		w.ui.Progress(ctx, rc.Snapshot(fmt.Sprintf("Sent %d of %d", rc.Success, rc.Tracker.TotalGoal())), false)

		if outcome.Kind == entity.OutcomeSuccess && rc.Tracker.AllGoalsReached() {
			return false
		}
	}

	return false
}

// refetch дозапрашивает возможности для шаблонов, которым не хватает
// отправок. Возвращает число новых возможностей в пуле.
func (w *SendAll) refetch(ctx context.Context, rc *RunContext) int {
	added := 0

	for _, id := range rc.Tracker.TemplatesNeedingMore() {
		if ctx.Err() != nil {
			return added
		}

		opps, err := w.matcher.Find(ctx, rc.Index, rc.Templates[id], rc.Tracker.Needed(id))
		if err != nil {
			logger(ctx).Warn("Refetch failed", logx.FieldTemplateID, id, logx.Error(err))
			continue
		}
		added += rc.Append(opps...)
	}

	logger(ctx).Debug("Refetched opportunities", "added", added)

	return added
}

func (w *SendAll) loadTemplates(ctx context.Context, templateID string) ([]entity.TradeTemplate, error) {
	all, err := w.templates.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	if templateID == "" {
		return all, nil
	}

	for _, tpl := range all {
		if tpl.ID == templateID {
			return []entity.TradeTemplate{tpl}, nil
		}
	}

	return nil, nil
}

func (w *SendAll) waitForNextSlot(ctx context.Context) error {
	if w.lastSend.IsZero() || w.sendDelay <= 0 {
		w.lastSend = w.clock()
		return ctx.Err()
	}

	elapsed := w.clock().Sub(w.lastSend)
	if elapsed < w.sendDelay {
		if err := contextx.Sleep(ctx, w.sendDelay-elapsed); err != nil {
			return err
		}
	}

	w.lastSend = w.clock()
	return nil
}

func (w *SendAll) alert(ctx context.Context, title, message string) {
	if err := w.ui.Alert(ctx, title, message); err != nil && !errors.Is(err, context.Canceled) {
		logger(ctx).Warn("Failed to alert operator", "title", title, logx.Error(err))
	}
}
