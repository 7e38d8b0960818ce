package notifier_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trade_engine/internal/domain/entity"
	"trade_engine/internal/infrastructure/notifier"
	"trade_engine/internal/infrastructure/persistence"
	"trade_engine/internal/infrastructure/storage"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []string
	at       []time.Time
	fail     bool
	failures int
	calls    int
}

func (s *fakeSender) SendHTML(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.fail {
		return errors.New("telegram down")
	}
	if s.failures > 0 {
		s.failures--
		return errors.New("telegram hiccup")
	}
	s.sent = append(s.sent, text)
	s.at = append(s.at, time.Now())
	return nil
}

func (s *fakeSender) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func note(id string, status entity.TradeStatus) entity.TradeNotification {
	return entity.TradeNotification{
		Trade: entity.FinalizedTrade{PendingTrade: entity.PendingTrade{
			ID:           entity.MustTradeID(id),
			TemplateName: "helm <for> fedora",
			TargetUserID: 7,
			Giving:       []entity.Item{{ID: 1, Name: "Fedora"}},
			Receiving:    []entity.Item{{ID: 2}},
			RobuxGet:     50,
		}},
		Status: status,
	}
}

func newRepo() *persistence.TradeRepository {
	return persistence.NewTradeRepository(storage.New(context.Background(), storage.NewMemory()), "1001")
}

func TestQueueDedupe(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()

	sender := &fakeSender{}
	repo := newRepo()
	q := notifier.NewQueue(sender, repo).WithSpacing(0)

	rq.True(q.Enqueue(ctx, note("1", entity.StatusCompleted)))
	rq.False(q.Enqueue(ctx, note("1", entity.StatusCompleted)))
	rq.True(q.Enqueue(ctx, note("1", entity.StatusCountered)))
	rq.Equal(2, q.Len())

	rq.Equal(2, q.Drain(ctx))

	// Delivered keys are never sent again, even by a fresh queue.
	rq.False(q.Enqueue(ctx, note("1", entity.StatusCompleted)))

	fresh := notifier.NewQueue(sender, repo).WithSpacing(0)
	rq.True(fresh.Enqueue(ctx, note("1", entity.StatusCompleted)))
	rq.Zero(fresh.Drain(ctx))
	rq.Equal(2, sender.Count())

	notified, err := repo.IsNotified(ctx, "1-completed")
	rq.NoError(err)
	rq.True(notified)
}

func TestQueueFailedSendIsNotRemembered(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()

	sender := &fakeSender{fail: true}
	repo := newRepo()
	q := notifier.NewQueue(sender, repo).WithSpacing(0)

	rq.True(q.Enqueue(ctx, note("2", entity.StatusDeclined)))
	rq.Zero(q.Drain(ctx))
	rq.Equal(notifier.DefaultMaxAttempts, sender.calls)
	rq.Zero(q.Len())

	notified, err := repo.IsNotified(ctx, "2-declined")
	rq.NoError(err)
	rq.False(notified)

	sender.fail = false
	rq.True(q.Enqueue(ctx, note("2", entity.StatusDeclined)))
	rq.Equal(1, q.Drain(ctx))
}

func TestQueueRetriesFailedSend(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()

	sender := &fakeSender{failures: 2}
	repo := newRepo()
	q := notifier.NewQueue(sender, repo).WithSpacing(0).WithMaxAttempts(3)

	rq.True(q.Enqueue(ctx, note("6", entity.StatusCompleted)))
	rq.True(q.Enqueue(ctx, note("7", entity.StatusAccepted)))

	rq.Equal(2, q.Drain(ctx))
	rq.Equal(2, sender.Count())
	rq.Equal(4, sender.calls)

	notified, err := repo.IsNotified(ctx, "6-completed")
	rq.NoError(err)
	rq.True(notified)
}

func TestQueueRunRetriesFailedSend(t *testing.T) {
	rq := require.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sender := &fakeSender{failures: 1}
	q := notifier.NewQueue(sender, newRepo()).WithSpacing(time.Millisecond)

	q.Enqueue(ctx, note("8", entity.StatusCompleted))

	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	rq.Eventually(func() bool { return sender.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	rq.NoError(<-done)
}

func TestQueueRunSpacing(t *testing.T) {
	rq := require.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sender := &fakeSender{}
	q := notifier.NewQueue(sender, newRepo()).WithSpacing(50 * time.Millisecond)

	q.Enqueue(ctx, note("3", entity.StatusCompleted))
	q.Enqueue(ctx, note("4", entity.StatusAccepted))

	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	rq.Eventually(func() bool { return sender.Count() == 2 }, 2*time.Second, 10*time.Millisecond)

	sender.mu.Lock()
	gap := sender.at[1].Sub(sender.at[0])
	sender.mu.Unlock()
	rq.GreaterOrEqual(gap, 40*time.Millisecond)

	cancel()
	rq.NoError(<-done)
}

func TestFormatNotification(t *testing.T) {
	testCases := []struct {
		status entity.TradeStatus
		title  string
	}{
		{status: entity.StatusCompleted, title: "Trade Completed"},
		{status: entity.StatusAccepted, title: "Trade Accepted"},
		{status: entity.StatusCountered, title: "Trade Countered"},
		{status: entity.StatusDeclined, title: "Trade Declined"},
	}

	for _, tc := range testCases {
		t.Run(string(tc.status), func(t *testing.T) {
			rq := require.New(t)

			text := notifier.FormatNotification(note("5", tc.status))
			rq.Contains(text, tc.title)
			rq.Contains(text, "helm &lt;for&gt; fedora")
			rq.Contains(text, "Fedora")
			rq.Contains(text, "#2, R$50")
			rq.Contains(text, "<code>5</code>")
		})
	}
}
