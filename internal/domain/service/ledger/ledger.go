package ledger

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"trade_engine/internal/domain/entity"
	"trade_engine/internal/infrastructure/storage"
	"trade_engine/pkg/contextx"
)

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

const DefaultRetention = 7 * 24 * time.Hour

type Store interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}

// Combo is the full shape of an offer to one counterparty.
type Combo struct {
	TargetUserID int64
	Giving       []int64
	Receiving    []int64
	RobuxGive    int64
	RobuxGet     int64
}

// Key hashes the combo. Item order does not matter.
func (c Combo) Key() string {
	return ComboKey(c.TargetUserID, c.Giving, c.Receiving, c.RobuxGive, c.RobuxGet)
}

// ComboKey returns the hex sha256 of the canonical combo form
// "user|giving|receiving|robuxGive|robuxGet" with sorted item ids.
func ComboKey(targetUserID int64, giving, receiving []int64, robuxGive, robuxGet int64) string {
	canonical := strings.Join([]string{
		strconv.FormatInt(targetUserID, 10),
		joinSorted(giving),
		joinSorted(receiving),
		strconv.FormatInt(robuxGive, 10),
		strconv.FormatInt(robuxGet, 10),
	}, "|")

	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

func joinSorted(ids []int64) string {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)

	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// ComboRecord is one persisted combo hash.
type ComboRecord struct {
	DedupKey  string `json:"hash"`
	Timestamp int64  `json:"timestamp"`
}

// Ledger remembers who was already contacted and with which exact offer.
// State is loaded lazily and written through the store, so a write is visible
// to later reads before the store flushes it.
type Ledger struct {
	store     Store
	accountID string
	retention time.Duration
	clock     func() time.Time

	mu      sync.Mutex
	loaded  bool
	history map[string]int64
	sent    map[string]struct{}
}

func New(store Store, accountID string) *Ledger {
	return &Ledger{
		store:     store,
		accountID: accountID,
		retention: DefaultRetention,
		clock:     time.Now,
	}
}

func (l *Ledger) WithRetention(d time.Duration) *Ledger {
	if d > 0 {
		l.retention = d
	}
	return l
}

func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

func (l *Ledger) historyKey() string {
	return storage.AccountKey(storage.KeySentTradeHistory, l.accountID)
}

func (l *Ledger) sentKey() string {
	return storage.AccountKey(storage.KeySentTrades, l.accountID)
}

func (l *Ledger) load(ctx context.Context) error {
	if l.loaded {
		return nil
	}

	var records []ComboRecord
	if _, err := l.store.Get(ctx, l.historyKey(), &records); err != nil {
		return fmt.Errorf("load combo history: %w", err)
	}

	var sent []string
	if _, err := l.store.Get(ctx, l.sentKey(), &sent); err != nil {
		return fmt.Errorf("load sent set: %w", err)
	}

	l.history = make(map[string]int64, len(records))
	for _, r := range records {
		if r.Timestamp > l.history[r.DedupKey] {
			l.history[r.DedupKey] = r.Timestamp
		}
	}

	l.sent = make(map[string]struct{}, len(sent))
	for _, k := range sent {
		l.sent[k] = struct{}{}
	}

	l.loaded = true

	return nil
}

// Reload drops the in-memory view so the next call reads the store again.
func (l *Ledger) Reload() {
	l.mu.Lock()
	l.loaded = false
	l.mu.Unlock()
}

// Record stores the combo hash with the current time. Recording the same
// combo twice keeps a single entry.
func (l *Ledger) Record(ctx context.Context, combo Combo) error {
	return l.RecordKey(ctx, combo.Key())
}

func (l *Ledger) RecordKey(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.load(ctx); err != nil {
		return err
	}

	l.history[key] = l.clock().UnixMilli()
	l.pruneLocked()

	return l.store.Set(ctx, l.historyKey(), l.records())
}

// WasRecentlySent reports whether the combo was recorded within retention.
func (l *Ledger) WasRecentlySent(ctx context.Context, combo Combo) (bool, error) {
	return l.Seen(ctx, combo.Key())
}

func (l *Ledger) Seen(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.load(ctx); err != nil {
		return false, err
	}

	ts, ok := l.history[key]
	if !ok {
		return false, nil
	}

	// запись ровно на границе уже считается устаревшей
	return ts > l.cutoff(), nil
}

// MarkSent adds the template/counterparty pair to the flat sent set.
func (l *Ledger) MarkSent(ctx context.Context, templateID string, targetUserID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.load(ctx); err != nil {
		return err
	}

	key := entity.SentKey(templateID, targetUserID)
	if _, ok := l.sent[key]; ok {
		return nil
	}
	l.sent[key] = struct{}{}

	return l.store.Set(ctx, l.sentKey(), l.sentList())
}

func (l *Ledger) IsSent(ctx context.Context, templateID string, targetUserID int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.load(ctx); err != nil {
		return false, err
	}

	_, ok := l.sent[entity.SentKey(templateID, targetUserID)]
	return ok, nil
}

// Prune drops combo records older than retention and persists the result.
func (l *Ledger) Prune(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.load(ctx); err != nil {
		return 0, err
	}

	removed := l.pruneLocked()
	if removed == 0 {
		return 0, nil
	}

	if err := l.store.Set(ctx, l.historyKey(), l.records()); err != nil {
		return 0, err
	}

	logger(ctx).Info("Combo history pruned", "removed", removed)

	return removed, nil
}

func (l *Ledger) cutoff() int64 {
	return l.clock().Add(-l.retention).UnixMilli()
}

func (l *Ledger) pruneLocked() int {
	cutoff := l.cutoff()
	removed := 0
	for key, ts := range l.history {
		if ts <= cutoff {
			delete(l.history, key)
			removed++
		}
	}
	return removed
}

func (l *Ledger) records() []ComboRecord {
	out := make([]ComboRecord, 0, len(l.history))
	for key, ts := range l.history {
		out = append(out, ComboRecord{DedupKey: key, Timestamp: ts})
	}
	slices.SortFunc(out, func(a, b ComboRecord) int {
		return cmp.Or(cmp.Compare(a.Timestamp, b.Timestamp), strings.Compare(a.DedupKey, b.DedupKey))
	})
	return out
}

func (l *Ledger) sentList() []string {
	out := make([]string, 0, len(l.sent))
	for key := range l.sent {
		out = append(out, key)
	}
	slices.Sort(out)
	return out
}
