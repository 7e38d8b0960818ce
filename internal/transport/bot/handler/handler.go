package handler

import (
	"context"

	"trade_engine/internal/domain/entity"
	"trade_engine/internal/worker"
	"trade_engine/pkg/contextx"
)

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

const pageSize = 10

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

type templateRepository interface {
	List(ctx context.Context) ([]entity.TradeTemplate, error)
}

type tradeRepository interface {
	Pending(ctx context.Context) ([]entity.PendingTrade, error)
	Finalized(ctx context.Context) ([]entity.FinalizedTrade, error)
}

type exclusionRepository interface {
	List(ctx context.Context) ([]int64, error)
	Remove(ctx context.Context, userID int64) error
}

type secretVault interface {
	Enroll(ctx context.Context, account string, seed, password []byte) error
	Code(ctx context.Context, account string, password []byte) (string, error)
	Clear(ctx context.Context, account string) error
	HasSecret(ctx context.Context, account string) (bool, error)
}

type passwordCache interface {
	Set(account string, password []byte)
	Has(account string) bool
	Clear(account string)
}

type dialogs interface {
	PromptPassword(ctx context.Context, title, message string) ([]byte, error)
	HandleCallback(ctx context.Context, queryID, data string) bool
	HandleReply(ctx context.Context, messageID int, text []byte) bool
	AwaitingReply() bool
}

// Deps собирает всё, чем управляют команды бота.
type Deps struct {
	SendAll    sendAll
	Decliner   decliner
	Reconciler reconciler
	Templates  templateRepository
	Trades     tradeRepository
	Exclusions exclusionRepository
	Vault      secretVault
	Passwords  passwordCache
	Dialogs    dialogs
	AccountID  string
}

type Handler struct {
	sendAll    sendAll
	decliner   decliner
	reconciler reconciler
	templates  templateRepository
	trades     tradeRepository
	exclusions exclusionRepository
	vault      secretVault
	passwords  passwordCache
	dialogs    dialogs
	accountID  string
}

func New(deps Deps) *Handler {
	return &Handler{
		sendAll:    deps.SendAll,
		decliner:   deps.Decliner,
		reconciler: deps.Reconciler,
		templates:  deps.Templates,
		trades:     deps.Trades,
		exclusions: deps.Exclusions,
		vault:      deps.Vault,
		passwords:  deps.Passwords,
		dialogs:    deps.Dialogs,
		accountID:  deps.AccountID,
	}
}
