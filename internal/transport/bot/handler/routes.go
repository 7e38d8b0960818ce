package handler

import (
	"trade_engine/internal/transport/bot/middleware"

	th "github.com/mymmrac/telego/telegohandler"
)

func (h *Handler) RegisterRoutes(bh *th.BotHandler, adminID int64) {
	// Все команды доступны только администратору
	adminGroup := bh.Group(th.AnyMessage())
	adminGroup.Use(middleware.AdminOnly(adminID))

	adminGroup.HandleMessage(h.OnStart, th.CommandEqual("start"))
	adminGroup.HandleMessage(h.OnStatus, th.CommandEqual("status"))

	// Отправка
	adminGroup.HandleMessage(h.OnSendAll, th.CommandEqual("sendall"))
	adminGroup.HandleMessage(h.OnStop, th.CommandEqual("stop"))

	// Трейды
	adminGroup.HandleMessage(h.OnTemplates, th.CommandEqual("templates"))
	adminGroup.HandleMessage(h.OnPending, th.CommandEqual("pending"))
	adminGroup.HandleMessage(h.OnFinalized, th.CommandEqual("finalized"))
	adminGroup.HandleMessage(h.OnReconcile, th.CommandEqual("reconcile"))
	adminGroup.HandleMessage(h.OnDecline, th.CommandEqual("decline"))

	// 2FA
	adminGroup.HandleMessage(h.OnEnroll, th.CommandEqual("enroll"))
	adminGroup.HandleMessage(h.OnPassword, th.CommandEqual("password"))
	adminGroup.HandleMessage(h.OnForget, th.CommandEqual("forget"))
	adminGroup.HandleMessage(h.OnClearSecret, th.CommandEqual("clearsecret"))

	// Исключения
	adminGroup.HandleMessage(h.OnExclusions, th.CommandEqual("exclusions"))
	adminGroup.HandleMessage(h.OnUnexclude, th.CommandEqual("unexclude"))

	// Ответы на запрос пароля
	adminGroup.HandleMessage(h.OnText, th.AnyMessageWithText())

	cbGroup := bh.Group(th.AnyCallbackQuery())
	cbGroup.Use(middleware.AdminOnly(adminID))

	cbGroup.HandleCallbackQuery(h.OnDialogCallback, th.CallbackDataPrefix("dlg:"))
	cbGroup.HandleCallbackQuery(h.OnPageCallback, th.CallbackDataPrefix(pendingList+pageSuffix))
	cbGroup.HandleCallbackQuery(h.OnPageCallback, th.CallbackDataPrefix(finalizedList+pageSuffix))
	cbGroup.HandleCallbackQuery(h.OnNoop, th.CallbackDataEqual("noop"))
}
