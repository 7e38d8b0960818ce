package server

import (
	"context"
	"fmt"
	"net/http"

	"trade_engine/internal/domain"
	"trade_engine/internal/domain/entity"
	"trade_engine/internal/worker"
	"trade_engine/pkg/errcodes"
	"trade_engine/pkg/httpx/reply"
	"trade_engine/pkg/httpx/req"
	"trade_engine/pkg/rest"
)

type sendAll interface {
	Start(ctx context.Context, templateID string) bool
	Stop()
	IsRunning() bool
}

type decliner interface {
	Decline(ctx context.Context, templateID string) (worker.DeclineResult, error)
	Stop()
	IsRunning() bool
}

type reconciler interface {
	Reconcile(ctx context.Context) (worker.ReconcileResult, error)
}

type pendingLister interface {
	Pending(ctx context.Context) ([]entity.PendingTrade, error)
}

type templateLister interface {
	List(ctx context.Context) ([]entity.TradeTemplate, error)
}

type secretChecker interface {
	HasSecret(ctx context.Context, account string) (bool, error)
}

type passwordChecker interface {
	Has(account string) bool
}

// EngineServer управляет запусками: отправкой, отклонением и проверкой
// статусов.
type EngineServer struct {
	sendAll    sendAll
	decliner   decliner
	reconciler reconciler
	trades     pendingLister
	templates  templateLister
	vault      secretChecker
	passwords  passwordChecker
	accountID  string
}

func NewEngineServer(
	sendAll sendAll,
	decliner decliner,
	reconciler reconciler,
	trades pendingLister,
	templates templateLister,
	vault secretChecker,
	passwords passwordChecker,
	accountID string,
) EngineServer {
	return EngineServer{
		sendAll:    sendAll,
		decliner:   decliner,
		reconciler: reconciler,
		trades:     trades,
		templates:  templates,
		vault:      vault,
		passwords:  passwords,
		accountID:  accountID,
	}
}

func (s EngineServer) postV1SendAll(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	var request rest.SendAllRequest

	if err := req.Read(r, &request); err != nil {
		return fmt.Errorf("req.Read: %w", err)
	}

	// Запуск переживает запрос, его останавливает DELETE /v1/sendall.
	if !s.sendAll.Start(context.WithoutCancel(ctx), request.TemplateID) {
		return domain.NewError(errcodes.AlreadyRunning, "send-all is already running")
	}

	reply.JSON(ctx, w, http.StatusAccepted, rest.SendAllResponse{Started: true})

	return nil
}

func (s EngineServer) deleteV1SendAll(w http.ResponseWriter, _ *http.Request) error {
	s.sendAll.Stop()
	s.decliner.Stop()

	reply.OK(w)

	return nil
}

func (s EngineServer) getV1Status(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	pending, err := s.trades.Pending(ctx)
	if err != nil {
		return fmt.Errorf("trades.Pending: %w", err)
	}

	templates, err := s.templates.List(ctx)
	if err != nil {
		return fmt.Errorf("templates.List: %w", err)
	}

	hasSecret, err := s.vault.HasSecret(ctx, s.accountID)
	if err != nil {
		return fmt.Errorf("vault.HasSecret: %w", err)
	}

	reply.JSON(ctx, w, http.StatusOK, rest.Status{
		Sending:        s.sendAll.IsRunning(),
		Declining:      s.decliner.IsRunning(),
		PendingTrades:  len(pending),
		Templates:      len(templates),
		SecretEnrolled: hasSecret,
		PasswordCached: s.passwords.Has(s.accountID),
	})

	return nil
}

func (s EngineServer) postV1Reconcile(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	res, err := s.reconciler.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("reconciler.Reconcile: %w", err)
	}

	reply.JSON(ctx, w, http.StatusOK, newRESTReconcileResult(res))

	return nil
}

func (s EngineServer) postV1Decline(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	if s.decliner.IsRunning() {
		return domain.NewError(errcodes.AlreadyRunning, "decline is already running")
	}

	res, err := s.decliner.Decline(ctx, r.PathValue("id"))
	if err != nil {
		return fmt.Errorf("decliner.Decline: %w", err)
	}

	reply.JSON(ctx, w, http.StatusOK, newRESTDeclineResult(res))

	return nil
}
