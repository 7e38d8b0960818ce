package persistence

import (
	"context"
	"slices"
	"strconv"
	"sync"

	"trade_engine/internal/domain"
	"trade_engine/internal/infrastructure/storage"
	"trade_engine/pkg/errcodes"
)

// ExclusionRepository хранит пользователей, чьи настройки приватности
// запрещают трейды. Набор загружается один раз и дальше живёт в памяти.
type ExclusionRepository struct {
	kv  KV
	key string

	mu     sync.Mutex
	loaded bool
	users  map[int64]struct{}
}

func NewExclusionRepository(kv KV, accountID string) *ExclusionRepository {
	return &ExclusionRepository{
		kv:  kv,
		key: storage.AccountKey(storage.KeyPrivacyRestricted, accountID),
	}
}

func (r *ExclusionRepository) ensureLoaded(ctx context.Context) error {
	if r.loaded {
		return nil
	}

	var schema exclusionSchema
	if _, err := r.kv.Get(ctx, r.key, &schema); err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to load exclusions")
	}

	r.users = schema.toDomain()
	r.loaded = true

	return nil
}

// IsExcluded сообщает, исключён ли пользователь.
func (r *ExclusionRepository) IsExcluded(ctx context.Context, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLoaded(ctx); err != nil {
		return false, err
	}

	_, ok := r.users[userID]
	return ok, nil
}

// Add исключает пользователя навсегда.
func (r *ExclusionRepository) Add(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLoaded(ctx); err != nil {
		return err
	}
	if _, ok := r.users[userID]; ok {
		return nil
	}

	r.users[userID] = struct{}{}

	return r.save(ctx)
}

// Remove снимает исключение.
func (r *ExclusionRepository) Remove(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLoaded(ctx); err != nil {
		return err
	}
	if _, ok := r.users[userID]; !ok {
		return nil
	}

	delete(r.users, userID)

	return r.save(ctx)
}

// List возвращает исключённых пользователей по возрастанию id.
func (r *ExclusionRepository) List(ctx context.Context) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	out := make([]int64, 0, len(r.users))
	for uid := range r.users {
		out = append(out, uid)
	}
	slices.Sort(out)

	return out, nil
}

func (r *ExclusionRepository) save(ctx context.Context) error {
	schema := make(exclusionSchema, 0, len(r.users))
	for uid := range r.users {
		schema = append(schema, strconv.FormatInt(uid, 10))
	}
	slices.Sort(schema)

	if err := r.kv.Set(ctx, r.key, schema); err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to save exclusions")
	}

	return nil
}
