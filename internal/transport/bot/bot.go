package bot

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"trade_engine/internal/config"
	"trade_engine/internal/transport/bot/handler"
	"trade_engine/pkg/contextx"
	"trade_engine/pkg/logx"
)

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

// Bot представляет собой Telegram-бота оператора
type Bot struct {
	bot     *telego.Bot
	adminID int64

	handler *handler.Handler
}

// NewClient создает клиент Telegram, общий для бота, диалогов и уведомлений
func NewClient(cfg config.Bot) (*telego.Bot, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return bot, nil
}

// New создает новый экземпляр бота
func New(cfg config.Bot, client *telego.Bot, h *handler.Handler) *Bot {
	return &Bot{
		bot:     client,
		adminID: cfg.AdminID,
		handler: h,
	}
}

// Run получает обновления через long polling и обрабатывает их до отмены
// контекста
func (b *Bot) Run(ctx context.Context) error {
	updates, err := b.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout: 60,
	})
	if err != nil {
		return fmt.Errorf("failed to get updates: %w", err)
	}

	botHandler, err := th.NewBotHandler(b.bot, updates)
	if err != nil {
		return fmt.Errorf("failed to create bot handler: %w", err)
	}

	b.handler.RegisterRoutes(botHandler, b.adminID)

	// Запускаем обработку обновлений
	go func() {
		if err := botHandler.Start(); err != nil {
			logger(ctx).Error("Failed to start bot handler", logx.Error(err))
		}
	}()

	logger(ctx).Info("Telegram bot started")

	// Ждем завершения
	<-ctx.Done()

	// Останавливаем обработчик
	if err := botHandler.Stop(); err != nil {
		logger(ctx).Error("Failed to stop bot handler", logx.Error(err))
	}

	logger(ctx).Info("Telegram bot stopped")

	return nil
}
