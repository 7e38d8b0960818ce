package persistence

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"trade_engine/internal/domain"
	"trade_engine/internal/domain/entity"
	"trade_engine/internal/infrastructure/storage"
	"trade_engine/pkg/errcodes"
)

// KV is the account store the repositories persist into.
type KV interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	SetBatch(ctx context.Context, values map[string]any) error
}

type TemplateRepository struct {
	kv  KV
	key string
	mu  sync.Mutex
}

// NewTemplateRepository создаёт репозиторий шаблонов аккаунта.
func NewTemplateRepository(kv KV, accountID string) *TemplateRepository {
	return &TemplateRepository{
		kv:  kv,
		key: storage.AccountKey(storage.KeyTemplates, accountID),
	}
}

func (r *TemplateRepository) load(ctx context.Context) ([]entity.TradeTemplate, error) {
	var templates []entity.TradeTemplate
	if _, err := r.kv.Get(ctx, r.key, &templates); err != nil {
		return nil, domain.WrapError(err, errcodes.InternalServerError, "failed to load templates")
	}
	return templates, nil
}

func (r *TemplateRepository) save(ctx context.Context, templates []entity.TradeTemplate) error {
	if templates == nil {
		templates = []entity.TradeTemplate{}
	}
	if err := r.kv.Set(ctx, r.key, templates); err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to save templates")
	}
	return nil
}

// List возвращает все шаблоны в порядке создания.
func (r *TemplateRepository) List(ctx context.Context) ([]entity.TradeTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.load(ctx)
}

// GetByID возвращает шаблон по идентификатору.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (entity.TradeTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	templates, err := r.load(ctx)
	if err != nil {
		return entity.TradeTemplate{}, err
	}

	i := slices.IndexFunc(templates, func(t entity.TradeTemplate) bool { return t.ID == id })
	if i < 0 {
		return entity.TradeTemplate{}, domain.NewError(errcodes.TemplateNotFound, "template not found")
	}

	return templates[i], nil
}

// Save создаёт шаблон или заменяет существующий с тем же id.
func (r *TemplateRepository) Save(ctx context.Context, tpl entity.TradeTemplate) (entity.TradeTemplate, error) {
	if err := validateTemplate(tpl); err != nil {
		return entity.TradeTemplate{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	templates, err := r.load(ctx)
	if err != nil {
		return entity.TradeTemplate{}, err
	}

	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = time.Now().UTC()
	}
	if tpl.Status == "" {
		tpl.Status = entity.CompletionIncomplete
	}

	i := slices.IndexFunc(templates, func(t entity.TradeTemplate) bool { return t.ID == tpl.ID })
	if i < 0 {
		templates = append(templates, tpl)
	} else {
		templates[i] = tpl
	}

	return tpl, r.save(ctx, templates)
}

// Delete удаляет шаблон. Отсутствующий шаблон не считается ошибкой.
func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	templates, err := r.load(ctx)
	if err != nil {
		return err
	}

	return r.save(ctx, slices.DeleteFunc(templates, func(t entity.TradeTemplate) bool { return t.ID == id }))
}

// RecordSend увеличивает дневной счётчик шаблона и обновляет его статус.
func (r *TemplateRepository) RecordSend(ctx context.Context, id string, at time.Time) (entity.TradeTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	templates, err := r.load(ctx)
	if err != nil {
		return entity.TradeTemplate{}, err
	}

	i := slices.IndexFunc(templates, func(t entity.TradeTemplate) bool { return t.ID == id })
	if i < 0 {
		return entity.TradeTemplate{}, domain.NewError(errcodes.TemplateNotFound, "template not found")
	}

	templates[i].RecordSend(at)

	return templates[i], r.save(ctx, templates)
}

func validateTemplate(tpl entity.TradeTemplate) error {
	switch {
	case strings.TrimSpace(tpl.Name) == "":
		return domain.NewError(errcodes.InvalidTemplate, "template name is required")
	case len(tpl.ReceivingItems) == 0:
		return domain.NewError(errcodes.InvalidTemplate, "template requests no items")
	case tpl.DailyGoal <= 0:
		return domain.NewError(errcodes.InvalidTemplate, "daily goal must be positive")
	case tpl.RobuxGive < 0 || tpl.RobuxGet < 0:
		return domain.NewError(errcodes.InvalidTemplate, "robux amounts must not be negative")
	}
	return nil
}
