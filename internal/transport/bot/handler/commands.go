package handler

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"

	"trade_engine/internal/domain"
	"trade_engine/internal/domain/service/vault"
	"trade_engine/internal/transport/bot/view"
	"trade_engine/pkg/errcodes"
	"trade_engine/pkg/logx"
)

func (h *Handler) OnStart(ctx *th.Context, msg telego.Message) error {
	return h.sendHTML(ctx, msg.Chat.ID, view.StartMessage)
}

// OnSendAll запускает отправку по всем шаблонам или по одному.
// Использование: /sendall [ID]
func (h *Handler) OnSendAll(ctx *th.Context, msg telego.Message) error {
	templateID := ""
	if args := strings.Fields(msg.Text); len(args) > 1 {
		templateID = args[1]
	}

	// Запуск живёт дольше обработки апдейта, его останавливает /stop или
	// завершение приложения.
	if !h.sendAll.Start(context.WithoutCancel(ctx), templateID) {
		// Оператор уже получил оповещение от самого запуска.
		return nil
	}

	return h.sendHTML(ctx, msg.Chat.ID, view.SendAllStarted)
}

func (h *Handler) OnStop(ctx *th.Context, msg telego.Message) error {
	if !h.sendAll.IsRunning() && !h.decliner.IsRunning() {
		return h.sendHTML(ctx, msg.Chat.ID, view.SendAllNotRunning)
	}

	if err := h.sendHTML(ctx, msg.Chat.ID, view.SendAllStopping); err != nil {
		return err
	}

	h.sendAll.Stop()
	h.decliner.Stop()

	return nil
}

func (h *Handler) OnStatus(ctx *th.Context, msg telego.Message) error {
	text, err := h.statusText(ctx)
	if err != nil {
		logger(ctx).Error("Failed to build status", logx.Error(err))
		return h.sendHTML(ctx, msg.Chat.ID, view.InternalError)
	}
	return h.sendHTML(ctx, msg.Chat.ID, text)
}

func (h *Handler) statusText(ctx context.Context) (string, error) {
	pending, err := h.trades.Pending(ctx)
	if err != nil {
		return "", fmt.Errorf("trades.Pending: %w", err)
	}

	templates, err := h.templates.List(ctx)
	if err != nil {
		return "", fmt.Errorf("templates.List: %w", err)
	}

	hasSecret, err := h.vault.HasSecret(ctx, h.accountID)
	if err != nil {
		return "", fmt.Errorf("vault.HasSecret: %w", err)
	}

	return fmt.Sprintf(view.StatusTemplate,
		runState(h.sendAll.IsRunning()),
		runState(h.decliner.IsRunning()),
		len(pending),
		len(templates),
		yesNo(hasSecret),
		yesNo(h.passwords.Has(h.accountID)),
	), nil
}

func runState(running bool) string {
	if running {
		return view.Running
	}
	return view.Idle
}

func yesNo(b bool) string {
	if b {
		return view.Yes
	}
	return view.No
}

func (h *Handler) OnReconcile(ctx *th.Context, msg telego.Message) error {
	if err := h.sendHTML(ctx, msg.Chat.ID, view.ReconcileStarted); err != nil {
		return err
	}

	res, err := h.reconciler.Reconcile(ctx)
	if err != nil {
		logger(ctx).Error("Manual reconcile failed", logx.Error(err))
		return h.sendHTML(ctx, msg.Chat.ID, view.ReconcileError)
	}

	text := fmt.Sprintf(view.ReconcileResult, res.Pending, res.StillOpen, res.Checked, res.Finalized, res.Notified)
	if res.RateLimited {
		text += view.ReconcileRateLimited
	}

	return h.sendHTML(ctx, msg.Chat.ID, text)
}

// OnDecline отклоняет исходящие трейды шаблона.
// Использование: /decline ID
func (h *Handler) OnDecline(ctx *th.Context, msg telego.Message) error {
	args := strings.Fields(msg.Text)
	if len(args) < 2 {
		return h.sendHTML(ctx, msg.Chat.ID, view.DeclineUsage)
	}

	if h.decliner.IsRunning() {
		return h.sendHTML(ctx, msg.Chat.ID, view.DeclineAlreadyRunning)
	}

	res, err := h.decliner.Decline(ctx, args[1])
	if err != nil {
		logger(ctx).Error("Decline failed", logx.Error(err))
		return h.sendHTML(ctx, msg.Chat.ID, view.InternalError)
	}

	format := view.DeclineResult
	if res.Stopped {
		format = view.DeclineStopped
	}

	return h.sendHTML(ctx, msg.Chat.ID, fmt.Sprintf(format, res.Total, res.Declined, res.Failed))
}

func (h *Handler) OnTemplates(ctx *th.Context, msg telego.Message) error {
	templates, err := h.templates.List(ctx)
	if err != nil {
		logger(ctx).Error("Failed to list templates", logx.Error(err))
		return h.sendHTML(ctx, msg.Chat.ID, view.ListError)
	}

	if len(templates) == 0 {
		return h.sendHTML(ctx, msg.Chat.ID, view.TemplatesEmpty)
	}

	now := time.Now()

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(view.TemplatesHeader, len(templates)))
	for _, tpl := range templates {
		sb.WriteString(fmt.Sprintf(view.TemplateItem,
			html.EscapeString(tpl.Name), html.EscapeString(tpl.ID), tpl.AlreadySentToday(now), tpl.DailyGoal))
	}

	return h.sendHTML(ctx, msg.Chat.ID, sb.String())
}

func (h *Handler) OnPending(ctx *th.Context, msg telego.Message) error {
	return h.sendPage(ctx, msg.Chat.ID, pendingList, 1)
}

func (h *Handler) OnFinalized(ctx *th.Context, msg telego.Message) error {
	return h.sendPage(ctx, msg.Chat.ID, finalizedList, 1)
}

func (h *Handler) sendPage(ctx *th.Context, chatID int64, list string, page int) error {
	text, keyboard, err := h.renderPage(ctx, list, page)
	if err != nil {
		logger(ctx).Error("Failed to render list", logx.Error(err))
		return h.sendHTML(ctx, chatID, view.ListError)
	}

	params := tu.Message(tu.ID(chatID), text).WithParseMode(telego.ModeHTML)
	if keyboard != nil {
		params = params.WithReplyMarkup(keyboard)
	}

	_, err = ctx.Bot().SendMessage(ctx, params)
	return err
}

// OnPassword запрашивает пароль хранилища, проверяет его и кладёт в кэш.
func (h *Handler) OnPassword(ctx *th.Context, msg telego.Message) error {
	hasSecret, err := h.vault.HasSecret(ctx, h.accountID)
	if err != nil {
		logger(ctx).Error("Failed to check secret", logx.Error(err))
		return h.sendHTML(ctx, msg.Chat.ID, view.InternalError)
	}
	if !hasSecret {
		return h.sendHTML(ctx, msg.Chat.ID, view.PasswordNoVault)
	}

	password, err := h.dialogs.PromptPassword(ctx, view.PasswordTitle, view.PasswordText)
	if err != nil {
		return err
	}
	defer vault.Zero(password)

	if len(password) == 0 {
		return h.sendHTML(ctx, msg.Chat.ID, view.PasswordNoReply)
	}

	if _, err := h.vault.Code(ctx, h.accountID, password); err != nil {
		if domain.HasCode(err, errcodes.InvalidPassword) {
			return h.sendHTML(ctx, msg.Chat.ID, view.PasswordInvalid)
		}
		logger(ctx).Error("Failed to verify password", logx.Error(err))
		return h.sendHTML(ctx, msg.Chat.ID, view.InternalError)
	}

	h.passwords.Set(h.accountID, password)

	return h.sendHTML(ctx, msg.Chat.ID, view.PasswordSaved)
}

func (h *Handler) OnForget(ctx *th.Context, msg telego.Message) error {
	h.passwords.Clear(h.accountID)
	return h.sendHTML(ctx, msg.Chat.ID, view.PasswordForgot)
}

// OnEnroll сохраняет секрет 2FA. Сообщение с секретом сразу удаляется.
// Использование: /enroll SEED
func (h *Handler) OnEnroll(ctx *th.Context, msg telego.Message) error {
	args := strings.Fields(msg.Text)
	if len(args) < 2 {
		return h.sendHTML(ctx, msg.Chat.ID, view.EnrollUsage)
	}
	seed := []byte(strings.Join(args[1:], ""))
	defer vault.Zero(seed)

	err := ctx.Bot().DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    tu.ID(msg.Chat.ID),
		MessageID: msg.MessageID,
	})
	if err != nil {
		logger(ctx).Warn("Failed to delete secret message", logx.Error(err))
	}

	password, err := h.dialogs.PromptPassword(ctx, view.EnrollPasswordTitle, view.EnrollPasswordText)
	if err != nil {
		return err
	}
	defer vault.Zero(password)

	if len(password) == 0 {
		return h.sendHTML(ctx, msg.Chat.ID, view.PasswordNoReply)
	}

	if err := h.vault.Enroll(ctx, h.accountID, seed, password); err != nil {
		logger(ctx).Warn("Failed to enroll secret", logx.Error(err))
		return h.sendHTML(ctx, msg.Chat.ID, fmt.Sprintf(view.EnrollFailed, html.EscapeString(enrollReason(err))))
	}

	h.passwords.Set(h.accountID, password)

	return h.sendHTML(ctx, msg.Chat.ID, view.EnrollSuccess)
}

func enrollReason(err error) string {
	if code, ok := domain.GetCode(err); ok {
		return code.String()
	}
	return errcodes.InternalServerError.String()
}

func (h *Handler) OnClearSecret(ctx *th.Context, msg telego.Message) error {
	if err := h.vault.Clear(ctx, h.accountID); err != nil {
		logger(ctx).Error("Failed to clear secret", logx.Error(err))
		return h.sendHTML(ctx, msg.Chat.ID, view.InternalError)
	}
	h.passwords.Clear(h.accountID)

	return h.sendHTML(ctx, msg.Chat.ID, view.SecretCleared)
}

func (h *Handler) OnExclusions(ctx *th.Context, msg telego.Message) error {
	ids, err := h.exclusions.List(ctx)
	if err != nil {
		logger(ctx).Error("Failed to list exclusions", logx.Error(err))
		return h.sendHTML(ctx, msg.Chat.ID, view.ListError)
	}

	if len(ids) == 0 {
		return h.sendHTML(ctx, msg.Chat.ID, view.ExclusionsEmpty)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(view.ExclusionsHeader, len(ids)))
	for _, id := range ids {
		sb.WriteString(fmt.Sprintf(view.ExclusionItem, id))
	}

	return h.sendHTML(ctx, msg.Chat.ID, sb.String())
}

// OnUnexclude убирает пользователя из исключений.
// Использование: /unexclude USER_ID
func (h *Handler) OnUnexclude(ctx *th.Context, msg telego.Message) error {
	args := strings.Fields(msg.Text)
	if len(args) < 2 {
		return h.sendHTML(ctx, msg.Chat.ID, view.UnexcludeUsage)
	}

	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || id <= 0 {
		return h.sendHTML(ctx, msg.Chat.ID, view.InvalidID)
	}

	if err := h.exclusions.Remove(ctx, id); err != nil {
		logger(ctx).Error("Failed to remove exclusion", logx.Error(err))
		return h.sendHTML(ctx, msg.Chat.ID, view.InternalError)
	}

	return h.sendHTML(ctx, msg.Chat.ID, fmt.Sprintf(view.UnexcludeSuccess, id))
}

// OnText отдаёт ответ оператора ожидающему запросу пароля.
func (h *Handler) OnText(ctx *th.Context, msg telego.Message) error {
	if strings.HasPrefix(msg.Text, "/") || !h.dialogs.AwaitingReply() {
		return nil
	}
	h.dialogs.HandleReply(ctx, msg.MessageID, []byte(msg.Text))
	return nil
}

// Вспомогательные методы

func (h *Handler) sendHTML(ctx *th.Context, chatID int64, text string) error {
	_, err := ctx.Bot().SendMessage(ctx, &telego.SendMessageParams{
		ChatID:    telego.ChatID{ID: chatID},
		Text:      text,
		ParseMode: telego.ModeHTML,
	})
	return err
}
