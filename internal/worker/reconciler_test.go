package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trade_engine/internal/domain"
	"trade_engine/internal/domain/entity"
	"trade_engine/internal/infrastructure/persistence"
	"trade_engine/internal/infrastructure/storage"
	"trade_engine/internal/worker"
)

type fakeStatusPlatform struct {
	mu       sync.Mutex
	pages    map[string]entity.OutboundPage
	statuses map[string]entity.TradeState
	errs     map[string]error
	fetched  []string
	checked  []string
	declines map[string]int
	failures map[string]int
}

func newFakeStatusPlatform() *fakeStatusPlatform {
	return &fakeStatusPlatform{
		pages:    map[string]entity.OutboundPage{},
		statuses: map[string]entity.TradeState{},
		errs:     map[string]error{},
		declines: map[string]int{},
		failures: map[string]int{},
	}
}

func (p *fakeStatusPlatform) OutboundPage(_ context.Context, cursor string) (entity.OutboundPage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.fetched = append(p.fetched, cursor)
	return p.pages[cursor], nil
}

func (p *fakeStatusPlatform) TradeStatus(_ context.Context, id entity.TradeID) (entity.TradeState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.checked = append(p.checked, id.String())
	if err := p.errs[id.String()]; err != nil {
		return entity.TradeState{}, err
	}
	return p.statuses[id.String()], nil
}

func (p *fakeStatusPlatform) DeclineTrade(_ context.Context, id entity.TradeID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.declines[id.String()]++
	if p.failures[id.String()] > 0 {
		p.failures[id.String()]--
		return errors.New("decline failed")
	}
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	seen map[string]bool
	sent []entity.TradeNotification
}

func (n *fakeNotifier) Enqueue(_ context.Context, note entity.TradeNotification) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.seen == nil {
		n.seen = map[string]bool{}
	}
	if n.seen[note.Key()] {
		return false
	}
	n.seen[note.Key()] = true
	n.sent = append(n.sent, note)
	return true
}

var base = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) //nolint:gochecknoglobals

func pendingTrade(id string, age time.Duration) entity.PendingTrade {
	return entity.PendingTrade{
		ID:           entity.MustTradeID(id),
		TemplateID:   "tpl",
		TargetUserID: 7,
		CreatedAt:    base.Add(-age),
		Status:       entity.StatusOutbound,
	}
}

func newTradeRepo(t *testing.T, trades ...entity.PendingTrade) (*storage.Store, *persistence.TradeRepository) {
	t.Helper()

	store := storage.New(context.Background(), storage.NewMemory())
	repo := persistence.NewTradeRepository(store, "1001")
	for _, tr := range trades {
		require.NoError(t, repo.AddPending(context.Background(), tr))
	}
	return store, repo
}

func inactive() *bool {
	v := false
	return &v
}

func TestReconcileIdempotent(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()

	store, repo := newTradeRepo(t,
		pendingTrade("1", 3*time.Hour),
		pendingTrade("2", 2*time.Hour),
		pendingTrade("3", time.Hour),
	)

	platform := newFakeStatusPlatform()
	platform.pages[""] = entity.OutboundPage{Trades: []entity.OutboundTrade{
		{ID: entity.MustTradeID("3"), CreatedAt: base.Add(-time.Hour), Status: "Open"},
	}}
	platform.statuses["1"] = entity.TradeState{Status: "Completed"}
	platform.statuses["2"] = entity.TradeState{Status: "Open", IsActive: inactive()}

	notifier := &fakeNotifier{}
	r := worker.NewReconciler(platform, repo, notifier, store).WithDelays(0, 0)

	res, err := r.Reconcile(ctx)
	rq.NoError(err)
	rq.Equal(3, res.Pending)
	rq.Equal(1, res.StillOpen)
	rq.Equal(2, res.Checked)
	rq.Equal(2, res.Finalized)
	rq.Equal(2, res.Notified)
	rq.Equal([]string{"1", "2"}, platform.checked)

	finalized, err := repo.Finalized(ctx)
	rq.NoError(err)
	rq.Len(finalized, 2)
	rq.Equal(entity.StatusDeclined, finalized[1].Status)

	res, err = r.Reconcile(ctx)
	rq.NoError(err)
	rq.Equal(1, res.Pending)
	rq.Zero(res.Finalized)

	// Re-finalizing a trade with the same status neither duplicates the
	// record nor notifies again.
	rq.NoError(repo.AddPending(ctx, pendingTrade("1", 3*time.Hour)))
	res, err = r.Reconcile(ctx)
	rq.NoError(err)
	rq.Zero(res.Finalized)
	rq.Zero(res.Notified)
	rq.Len(notifier.sent, 2)

	finalized, err = repo.Finalized(ctx)
	rq.NoError(err)
	rq.Len(finalized, 2)
}

func TestReconcileStopsOnRateLimit(t *testing.T) {
	rq := require.New(t)

	store, repo := newTradeRepo(t, pendingTrade("10", 2*time.Hour), pendingTrade("11", time.Hour))

	platform := newFakeStatusPlatform()
	platform.errs["10"] = &domain.RateLimitError{}
	platform.statuses["11"] = entity.TradeState{Status: "Completed"}

	r := worker.NewReconciler(platform, repo, &fakeNotifier{}, store).WithDelays(0, 0)

	res, err := r.Reconcile(context.Background())
	rq.NoError(err)
	rq.True(res.RateLimited)
	rq.Equal([]string{"10"}, platform.checked)
	rq.Zero(res.Finalized)
}

func TestReconcileOutboundEarlyStop(t *testing.T) {
	rq := require.New(t)

	store, repo := newTradeRepo(t, pendingTrade("20", time.Hour))

	platform := newFakeStatusPlatform()
	platform.pages[""] = entity.OutboundPage{
		Trades: []entity.OutboundTrade{
			{ID: entity.MustTradeID("99"), CreatedAt: base.Add(-2 * time.Hour)},
			{ID: entity.MustTradeID("20"), CreatedAt: base.Add(-time.Hour)},
		},
		NextCursor: "next",
	}
	platform.pages["next"] = entity.OutboundPage{Trades: []entity.OutboundTrade{
		{ID: entity.MustTradeID("98"), CreatedAt: base.Add(-3 * time.Hour)},
	}}

	r := worker.NewReconciler(platform, repo, &fakeNotifier{}, store).WithDelays(0, 0)

	res, err := r.Reconcile(context.Background())
	rq.NoError(err)
	rq.Equal([]string{""}, platform.fetched)
	rq.Equal(1, res.StillOpen)
	rq.Empty(platform.checked)
}

func TestReconcileIgnoresUnknownStatus(t *testing.T) {
	rq := require.New(t)

	store, repo := newTradeRepo(t, pendingTrade("30", time.Hour), pendingTrade("31", time.Hour))

	platform := newFakeStatusPlatform()
	platform.statuses["30"] = entity.TradeState{Status: "Weird"}
	platform.errs["31"] = errors.New("boom")

	r := worker.NewReconciler(platform, repo, &fakeNotifier{}, store).WithDelays(0, 0)

	res, err := r.Reconcile(context.Background())
	rq.NoError(err)
	rq.Equal(2, res.Checked)
	rq.Zero(res.Finalized)

	pending, err := repo.Pending(context.Background())
	rq.NoError(err)
	rq.Len(pending, 2)
}

func TestReconcileCleanup(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()

	done := pendingTrade("40", time.Hour)
	done.Status = entity.StatusCompleted
	store, repo := newTradeRepo(t, done, pendingTrade("41", time.Hour))

	notifier := &fakeNotifier{}
	r := worker.NewReconciler(newFakeStatusPlatform(), repo, notifier, store)

	moved, err := r.Cleanup(ctx)
	rq.NoError(err)
	rq.Equal(1, moved)
	rq.Empty(notifier.sent)

	pending, err := repo.Pending(ctx)
	rq.NoError(err)
	rq.Len(pending, 1)
	rq.Equal("41", pending[0].ID.String())
}

func TestReconcileConcurrentPasses(t *testing.T) {
	testCases := []struct {
		name   string
		shared bool
	}{
		{name: "same reconciler", shared: true},
		{name: "separate reconcilers", shared: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rq := require.New(t)
			ctx := context.Background()

			store, repo := newTradeRepo(t, pendingTrade("80", time.Hour))

			platform := newFakeStatusPlatform()
			platform.statuses["80"] = entity.TradeState{Status: "Completed"}

			notifier := &fakeNotifier{}
			first := worker.NewReconciler(platform, repo, notifier, store).WithDelays(0, 0)
			second := first
			if !tc.shared {
				second = worker.NewReconciler(platform, repo, notifier, store).WithDelays(0, 0)
			}

			start := make(chan struct{})
			results := make([]worker.ReconcileResult, 2)
			errs := make([]error, 2)

			var wg sync.WaitGroup
			for i, r := range []*worker.Reconciler{first, second} {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					results[i], errs[i] = r.Reconcile(ctx)
				}()
			}
			close(start)
			wg.Wait()

			rq.NoError(errs[0])
			rq.NoError(errs[1])
			rq.Equal(1, results[0].Finalized+results[1].Finalized)
			rq.Equal(1, results[0].Notified+results[1].Notified)
			rq.Len(notifier.sent, 1)

			finalized, err := repo.Finalized(ctx)
			rq.NoError(err)
			rq.Len(finalized, 1)
			rq.Equal("80", finalized[0].ID.String())

			pending, err := repo.Pending(ctx)
			rq.NoError(err)
			rq.Empty(pending)
		})
	}
}

func TestDeclineTemplateTrades(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()

	other := pendingTrade("52", time.Hour)
	other.TemplateID = "other"
	store, repo := newTradeRepo(t, pendingTrade("50", time.Hour), pendingTrade("51", time.Hour), other)

	platform := newFakeStatusPlatform()
	platform.failures["51"] = 1

	ui := &fakeUI{confirm: true}
	d := worker.NewDecliner(platform, repo, store, ui).WithDelays(0, 0)

	res, err := d.Decline(ctx, "tpl")
	rq.NoError(err)
	rq.Equal(worker.DeclineResult{Total: 2, Declined: 2, Failed: 0}, res)
	rq.Equal(2, platform.declines["51"])
	rq.Zero(platform.declines["52"])
	rq.True(ui.closed)

	finalized, err := repo.Finalized(ctx)
	rq.NoError(err)
	rq.Len(finalized, 2)
	for _, f := range finalized {
		rq.True(f.UserDeclined)
		rq.Equal(entity.StatusDeclined, f.Status)
	}

	// User-declined trades never reach the notifier.
	notifier := &fakeNotifier{}
	r := worker.NewReconciler(platform, repo, notifier, store).WithDelays(0, 0)
	_, err = r.Reconcile(ctx)
	rq.NoError(err)
	rq.Empty(notifier.sent)

	pending, err := repo.Pending(ctx)
	rq.NoError(err)
	rq.Len(pending, 1)
}

func TestDeclineCountsFailedTradesOnce(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()

	store, repo := newTradeRepo(t, pendingTrade("70", time.Hour), pendingTrade("71", time.Hour))

	platform := newFakeStatusPlatform()
	platform.failures["70"] = 10

	d := worker.NewDecliner(platform, repo, store, &fakeUI{}).
		WithDelays(0, 0).
		WithMaxAttempts(3)

	res, err := d.Decline(ctx, "tpl")
	rq.NoError(err)
	rq.Equal(worker.DeclineResult{Total: 2, Declined: 1, Failed: 1}, res)
	rq.LessOrEqual(res.Declined+res.Failed, res.Total)
	rq.Equal(3, platform.declines["70"])

	pending, err := repo.Pending(ctx)
	rq.NoError(err)
	rq.Len(pending, 1)
	rq.Equal("70", pending[0].ID.String())
}

func TestDeclineCancelled(t *testing.T) {
	rq := require.New(t)

	store, repo := newTradeRepo(t, pendingTrade("60", time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := worker.NewDecliner(newFakeStatusPlatform(), repo, store, &fakeUI{}).WithDelays(0, 0)

	res, err := d.Decline(ctx, "tpl")
	rq.NoError(err)
	rq.True(res.Stopped)
	rq.Zero(res.Declined)
	rq.False(d.IsRunning())
}
