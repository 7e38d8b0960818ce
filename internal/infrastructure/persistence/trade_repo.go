package persistence

import (
	"context"
	"slices"
	"sync"

	"github.com/samber/lo"

	"trade_engine/internal/domain"
	"trade_engine/internal/domain/entity"
	"trade_engine/internal/infrastructure/storage"
	"trade_engine/pkg/errcodes"
)

const (
	notifiedCap  = 1000
	notifiedKeep = 500
)

// TradeRepository хранит отправленные (pending) и завершённые (finalized)
// трейды аккаунта, а также ключи уже доставленных уведомлений.
type TradeRepository struct {
	kv           KV
	pendingKey   string
	finalizedKey string
	notifiedKey  string

	mu sync.Mutex
}

func NewTradeRepository(kv KV, accountID string) *TradeRepository {
	return &TradeRepository{
		kv:           kv,
		pendingKey:   storage.AccountKey(storage.KeyPendingTrades, accountID),
		finalizedKey: storage.AccountKey(storage.KeyFinalizedTrades, accountID),
		notifiedKey:  storage.AccountKey(storage.KeyNotifiedTrades, accountID),
	}
}

func (r *TradeRepository) loadPending(ctx context.Context) ([]entity.PendingTrade, error) {
	var rows []pendingSchema
	if _, err := r.kv.Get(ctx, r.pendingKey, &rows); err != nil {
		return nil, domain.WrapError(err, errcodes.InternalServerError, "failed to load pending trades")
	}
	return lo.Map(rows, func(s pendingSchema, _ int) entity.PendingTrade { return s.toDomain() }), nil
}

func (r *TradeRepository) loadFinalized(ctx context.Context) ([]entity.FinalizedTrade, error) {
	var rows []finalizedSchema
	if _, err := r.kv.Get(ctx, r.finalizedKey, &rows); err != nil {
		return nil, domain.WrapError(err, errcodes.InternalServerError, "failed to load finalized trades")
	}
	return lo.Map(rows, func(s finalizedSchema, _ int) entity.FinalizedTrade { return s.toDomain() }), nil
}

func pendingRows(trades []entity.PendingTrade) []pendingSchema {
	return lo.Map(trades, func(p entity.PendingTrade, _ int) pendingSchema { return fromPending(p) })
}

func finalizedRows(trades []entity.FinalizedTrade) []finalizedSchema {
	return lo.Map(trades, func(f entity.FinalizedTrade, _ int) finalizedSchema { return fromFinalized(f) })
}

// Pending возвращает трейды, ожидающие ответа контрагента.
func (r *TradeRepository) Pending(ctx context.Context) ([]entity.PendingTrade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.loadPending(ctx)
}

// Finalized возвращает трейды в терминальном статусе.
func (r *TradeRepository) Finalized(ctx context.Context) ([]entity.FinalizedTrade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.loadFinalized(ctx)
}

// AddPending добавляет отправленный трейд. Повторная запись с тем же id
// заменяет предыдущую.
func (r *TradeRepository) AddPending(ctx context.Context, trade entity.PendingTrade) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending, err := r.loadPending(ctx)
	if err != nil {
		return err
	}

	pending = slices.DeleteFunc(pending, func(p entity.PendingTrade) bool { return p.ID.Equal(trade.ID) })
	pending = append(pending, trade)

	if err := r.kv.Set(ctx, r.pendingKey, pendingRows(pending)); err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to save pending trade")
	}

	return nil
}

// Finalize переносит трейды из pending в finalized одной пачкой. Запись в
// finalized идемпотентна: повторная финализация того же трейда заменяет
// запись. Возвращает трейды, которых ещё не было в finalized с тем же статусом.
func (r *TradeRepository) Finalize(ctx context.Context, trades ...entity.FinalizedTrade) ([]entity.FinalizedTrade, error) {
	if len(trades) == 0 {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pending, err := r.loadPending(ctx)
	if err != nil {
		return nil, err
	}
	finalized, err := r.loadFinalized(ctx)
	if err != nil {
		return nil, err
	}

	fresh := make([]entity.FinalizedTrade, 0, len(trades))
	for _, t := range trades {
		pending = slices.DeleteFunc(pending, func(p entity.PendingTrade) bool { return p.ID.Equal(t.ID) })

		i := slices.IndexFunc(finalized, func(f entity.FinalizedTrade) bool { return f.ID.Equal(t.ID) })
		switch {
		case i < 0:
			finalized = append(finalized, t)
			fresh = append(fresh, t)
		case finalized[i].Status != t.Status:
			finalized[i] = t
			fresh = append(fresh, t)
		default:
			finalized[i] = t
		}
	}

	err = r.kv.SetBatch(ctx, map[string]any{
		r.pendingKey:   pendingRows(pending),
		r.finalizedKey: finalizedRows(finalized),
	})
	if err != nil {
		return nil, domain.WrapError(err, errcodes.InternalServerError, "failed to finalize trades")
	}

	return fresh, nil
}

// IsNotified сообщает, было ли уже доставлено уведомление с ключом key.
func (r *TradeRepository) IsNotified(ctx context.Context, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys, err := r.loadNotified(ctx)
	if err != nil {
		return false, err
	}

	return slices.Contains(keys, key), nil
}

// MarkNotified запоминает ключ доставленного уведомления. История
// ограничена: при превышении лимита остаются только последние записи.
func (r *TradeRepository) MarkNotified(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys, err := r.loadNotified(ctx)
	if err != nil {
		return err
	}
	if slices.Contains(keys, key) {
		return nil
	}

	keys = append(keys, key)
	if len(keys) > notifiedCap {
		keys = slices.Clone(keys[len(keys)-notifiedKeep:])
	}

	if err := r.kv.Set(ctx, r.notifiedKey, keys); err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to save notified keys")
	}

	return nil
}

func (r *TradeRepository) loadNotified(ctx context.Context) ([]string, error) {
	var keys []string
	if _, err := r.kv.Get(ctx, r.notifiedKey, &keys); err != nil {
		return nil, domain.WrapError(err, errcodes.InternalServerError, "failed to load notified keys")
	}
	return keys, nil
}
