package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/samber/lo"

	"trade_engine/internal/domain/entity"
	"trade_engine/pkg/httpx/reply"
	"trade_engine/pkg/httpx/req"
	"trade_engine/pkg/rest"
)

type templateRepository interface {
	List(ctx context.Context) ([]entity.TradeTemplate, error)
	GetByID(ctx context.Context, id string) (entity.TradeTemplate, error)
	Save(ctx context.Context, tpl entity.TradeTemplate) (entity.TradeTemplate, error)
	Delete(ctx context.Context, id string) error
}

type TemplateServer struct {
	templates templateRepository
	clock     func() time.Time
}

func NewTemplateServer(templates templateRepository) TemplateServer {
	return TemplateServer{
		templates: templates,
		clock:     time.Now,
	}
}

func (s TemplateServer) getV1Templates(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	templates, err := s.templates.List(ctx)
	if err != nil {
		return fmt.Errorf("templates.List: %w", err)
	}

	now := s.clock()
	reply.JSON(ctx, w, http.StatusOK, lo.Map(templates, func(tpl entity.TradeTemplate, _ int) rest.Template {
		return newRESTTemplate(tpl, now)
	}))

	return nil
}

func (s TemplateServer) getV1Template(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	tpl, err := s.templates.GetByID(ctx, r.PathValue("id"))
	if err != nil {
		return fmt.Errorf("templates.GetByID: %w", err)
	}

	reply.JSON(ctx, w, http.StatusOK, newRESTTemplate(tpl, s.clock()))

	return nil
}

func (s TemplateServer) postV1Template(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	var request rest.Template

	if err := req.Read(r, &request); err != nil {
		return fmt.Errorf("req.Read: %w", err)
	}

	tpl := newDomainTemplate(request)
	tpl.ID = ""

	saved, err := s.templates.Save(ctx, tpl)
	if err != nil {
		return fmt.Errorf("templates.Save: %w", err)
	}

	reply.JSON(ctx, w, http.StatusCreated, newRESTTemplate(saved, s.clock()))

	return nil
}

// putV1Template заменяет редактируемые поля, сохраняя дневной счётчик.
func (s TemplateServer) putV1Template(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	var request rest.Template

	if err := req.Read(r, &request); err != nil {
		return fmt.Errorf("req.Read: %w", err)
	}

	current, err := s.templates.GetByID(ctx, r.PathValue("id"))
	if err != nil {
		return fmt.Errorf("templates.GetByID: %w", err)
	}

	update := newDomainTemplate(request)
	current.Name = update.Name
	current.GivingItems = update.GivingItems
	current.ReceivingItems = update.ReceivingItems
	current.RobuxGive = update.RobuxGive
	current.RobuxGet = update.RobuxGet
	current.DailyGoal = update.DailyGoal

	saved, err := s.templates.Save(ctx, current)
	if err != nil {
		return fmt.Errorf("templates.Save: %w", err)
	}

	reply.JSON(ctx, w, http.StatusOK, newRESTTemplate(saved, s.clock()))

	return nil
}

func (s TemplateServer) deleteV1Template(w http.ResponseWriter, r *http.Request) error {
	if err := s.templates.Delete(r.Context(), r.PathValue("id")); err != nil {
		return fmt.Errorf("templates.Delete: %w", err)
	}

	reply.OK(w)

	return nil
}
