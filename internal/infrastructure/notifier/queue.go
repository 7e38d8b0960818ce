package notifier

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"trade_engine/internal/domain/entity"
	"trade_engine/pkg/contextx"
	"trade_engine/pkg/logx"
)

const (
	DefaultSpacing     = 1500 * time.Millisecond
	DefaultMaxAttempts = 3
	recentTTL          = time.Hour
)

type Sender interface {
	SendHTML(ctx context.Context, text string) error
}

// Delivered хранит ключи уже доставленных уведомлений между перезапусками.
type Delivered interface {
	IsNotified(ctx context.Context, key string) (bool, error)
	MarkNotified(ctx context.Context, key string) error
}

// Queue доставляет уведомления о трейдах по одному, с паузой между
// сообщениями. Ключ (tradeId, status) доставляется не более одного раза.
type Queue struct {
	sender      Sender
	delivered   Delivered
	spacing     time.Duration
	maxAttempts int

	mu       sync.Mutex
	items    []entity.TradeNotification
	pending  map[string]struct{}
	attempts map[string]int
	wake     chan struct{}

	// Недавно доставленные ключи, чтобы не ходить в хранилище.
	recent *cache.Cache
}

func NewQueue(sender Sender, delivered Delivered) *Queue {
	return &Queue{
		sender:      sender,
		delivered:   delivered,
		spacing:     DefaultSpacing,
		maxAttempts: DefaultMaxAttempts,
		pending:     make(map[string]struct{}),
		attempts:    make(map[string]int),
		wake:        make(chan struct{}, 1),
		recent:      cache.New(recentTTL, 2*recentTTL),
	}
}

func (q *Queue) WithSpacing(d time.Duration) *Queue {
	q.spacing = d
	return q
}

// WithMaxAttempts ограничивает число попыток отправки одного уведомления.
func (q *Queue) WithMaxAttempts(n int) *Queue {
	if n > 0 {
		q.maxAttempts = n
	}
	return q
}

// Enqueue ставит уведомление в очередь. Возвращает false, если такое
// уведомление уже ждёт отправки или было доставлено недавно.
func (q *Queue) Enqueue(ctx context.Context, n entity.TradeNotification) bool {
	key := n.Key()

	if _, ok := q.recent.Get(key); ok {
		return false
	}

	q.mu.Lock()
	if _, ok := q.pending[key]; ok {
		q.mu.Unlock()
		return false
	}
	q.pending[key] = struct{}{}
	q.items = append(q.items, n)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	logger(ctx).Debug("Notification queued", logx.FieldTradeID, n.Trade.ID.String(), logx.FieldStatus, n.Status)

	return true
}

// Len возвращает число уведомлений в очереди.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) pop() (entity.TradeNotification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return entity.TradeNotification{}, false
	}

	n := q.items[0]
	q.items = q.items[1:]
	delete(q.pending, n.Key())

	return n, true
}

type outcome int

const (
	skipped outcome = iota
	sent
	failed
)

// Run разбирает очередь до отмены контекста.
func (q *Queue) Run(ctx context.Context) error {
	logger(ctx).Info("Notification queue started")

	for {
		n, ok := q.pop()
		if !ok {
			select {
			case <-ctx.Done():
				logger(ctx).Info("Notification queue stopped")
				return nil
			case <-q.wake:
				continue
			}
		}

		if q.deliver(ctx, n) == skipped {
			continue
		}

		if q.Len() > 0 {
			if err := contextx.Sleep(ctx, q.spacing); err != nil {
				return nil
			}
		}
	}
}

// Drain доставляет всё, что уже в очереди, и возвращает число отправленных.
// Неудачные отправки повторяются в пределах maxAttempts.
func (q *Queue) Drain(ctx context.Context) int {
	delivered, tried := 0, 0
	for {
		n, ok := q.pop()
		if !ok {
			return delivered
		}
		if tried > 0 {
			if err := contextx.Sleep(ctx, q.spacing); err != nil {
				return delivered
			}
		}

		switch q.deliver(ctx, n) {
		case sent:
			delivered++
			tried++
		case failed:
			tried++
		case skipped:
		}
	}
}

func (q *Queue) deliver(ctx context.Context, n entity.TradeNotification) outcome {
	key := n.Key()

	done, err := q.delivered.IsNotified(ctx, key)
	if err != nil {
		logger(ctx).Warn("Failed to read notified keys", logx.Error(err))
	}
	if done {
		q.recent.SetDefault(key, struct{}{})
		q.forget(key)
		return skipped
	}

	if err := q.sender.SendHTML(ctx, FormatNotification(n)); err != nil {
		logger(ctx).Error("Failed to send trade notification", logx.FieldTradeID, n.Trade.ID.String(), logx.Error(err))
		q.retry(ctx, n)
		return failed
	}

	q.forget(key)
	q.recent.SetDefault(key, struct{}{})
	if err := q.delivered.MarkNotified(context.WithoutCancel(ctx), key); err != nil {
		logger(ctx).Error("Failed to remember notification", logx.Error(err))
	}

	return sent
}

// retry возвращает уведомление в конец очереди, пока не исчерпаны попытки.
// После последней попытки ключ освобождается, и следующий Enqueue снова
// поставит уведомление.
func (q *Queue) retry(ctx context.Context, n entity.TradeNotification) {
	key := n.Key()

	q.mu.Lock()
	defer q.mu.Unlock()

	q.attempts[key]++
	if q.attempts[key] >= q.maxAttempts {
		delete(q.attempts, key)
		logger(ctx).Warn("Notification dropped after retries",
			logx.FieldTradeID, n.Trade.ID.String(), logx.FieldAttempt, q.maxAttempts)
		return
	}
	if _, ok := q.pending[key]; ok {
		return
	}

	q.pending[key] = struct{}{}
	q.items = append(q.items, n)
}

func (q *Queue) forget(key string) {
	q.mu.Lock()
	delete(q.attempts, key)
	q.mu.Unlock()
}

// FormatNotification renders the operator message for a finalized trade.
func FormatNotification(n entity.TradeNotification) string {
	var title string
	switch n.Status {
	case entity.StatusCompleted:
		title = "✅ <b>Trade Completed</b>"
	case entity.StatusAccepted:
		title = "🤝 <b>Trade Accepted</b>"
	case entity.StatusCountered:
		title = "🔄 <b>Trade Countered</b>"
	case entity.StatusDeclined:
		title = "❌ <b>Trade Declined</b>"
	default:
		title = fmt.Sprintf("ℹ️ <b>Trade %s</b>", html.EscapeString(string(n.Status)))
	}

	t := n.Trade
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\n")
	if t.TemplateName != "" {
		fmt.Fprintf(&b, "📋 <b>Template:</b> %s\n", html.EscapeString(t.TemplateName))
	}
	fmt.Fprintf(&b, "👤 <b>User:</b> %d\n", t.TargetUserID)
	fmt.Fprintf(&b, "📤 <b>Giving:</b> %s\n", formatSide(t.Giving, t.RobuxGive))
	fmt.Fprintf(&b, "📥 <b>Receiving:</b> %s\n", formatSide(t.Receiving, t.RobuxGet))
	fmt.Fprintf(&b, "🆔 <code>%s</code>", t.ID.String())

	return b.String()
}

func formatSide(items []entity.Item, robux int64) string {
	parts := make([]string, 0, len(items)+1)
	for _, item := range items {
		name := item.Name
		if name == "" {
			name = fmt.Sprintf("#%d", item.ID)
		}
		parts = append(parts, html.EscapeString(name))
	}
	if robux > 0 {
		parts = append(parts, fmt.Sprintf("R$%d", robux))
	}
	if len(parts) == 0 {
		return "nothing"
	}
	return strings.Join(parts, ", ")
}
