package application

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"trade_engine/internal/config"
	"trade_engine/internal/domain/service/confirmer"
	"trade_engine/internal/domain/service/ledger"
	"trade_engine/internal/domain/service/matcher"
	"trade_engine/internal/domain/service/vault"
	"trade_engine/internal/infrastructure/notifier"
	"trade_engine/internal/infrastructure/persistence"
	"trade_engine/internal/infrastructure/platform"
	"trade_engine/internal/infrastructure/storage"
	"trade_engine/internal/server"
	"trade_engine/internal/transport/bot"
	"trade_engine/internal/transport/bot/dialog"
	"trade_engine/internal/transport/bot/handler"
	"trade_engine/internal/worker"
	"trade_engine/pkg/application/modules"
	"trade_engine/pkg/contextx"
	"trade_engine/pkg/logx"
)

const (
	appName    = "trade-engine"
	appVersion = "1.0.0"
	day        = 24 * time.Hour
)

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

// Run собирает движок и работает до отмены ctx.
func Run(ctx context.Context) error { //nolint:funlen
	// 1. Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config.Load: %w", err)
	}

	// 2. Storage
	backend, closeBackend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	store := storage.New(ctx, backend).WithDebounce(cfg.Storage.Debounce)
	accountID := cfg.Storage.AccountID

	templates := persistence.NewTemplateRepository(store, accountID)
	trades := persistence.NewTradeRepository(store, accountID)
	exclusions := persistence.NewExclusionRepository(store, accountID)

	secrets := vault.New(store).WithIterations(cfg.Engine.PBKDF2Iterations)
	passwords := vault.NewPasswordCache(cfg.Engine.PasswordTTL)

	// 3. Platform and domain services
	client := platform.New(cfg.Platform)

	sent := ledger.New(store, accountID).
		WithRetention(time.Duration(cfg.Engine.RetentionDays) * day)

	finder := matcher.New(client, sent, exclusions).
		WithOwnerFilter(cfg.Engine.MaxOwnerDays, cfg.Engine.LastOnlineDays)

	// 4. Telegram
	tg, err := bot.NewClient(cfg.Bot)
	if err != nil {
		return fmt.Errorf("bot.NewClient: %w", err)
	}

	dialogs := dialog.New(tg, cfg.Bot.ChatID)

	confirm := confirmer.New(client, secrets, passwords, dialogs, accountID).
		WithFailureThreshold(cfg.Engine.FailureThreshold).
		WithVerifyRetry(cfg.Engine.VerifyAttempts, cfg.Engine.VerifyRetryDelay).
		WithPasswordPrompts(cfg.Engine.PasswordPrompts)

	telegramBot := notifier.NewTelegramBot(tg, cfg.Bot.ChatID)
	notifications := notifier.NewQueue(telegramBot, trades).
		WithSpacing(cfg.Engine.NotifySpacing)

	// 5. Workers
	sendAll := worker.NewSendAll(client, templates, trades, exclusions, sent, finder, confirm, store, dialogs).
		WithRefetchAttempts(cfg.Engine.RefetchAttempts).
		WithSendDelay(cfg.Engine.SendDelay).
		WithRateLimitWait(cfg.Engine.RateLimitWait).
		WithPrivacyPermanent(cfg.Engine.PrivacyPermanent)

	reconciler := worker.NewReconciler(client, trades, notifications, store).
		WithMaxPages(cfg.Engine.MaxOutboundPages).
		WithDelays(cfg.Engine.StatusCheckDelay, cfg.Engine.RateLimitWait)

	decliner := worker.NewDecliner(client, trades, store, dialogs).
		WithDelays(cfg.Engine.DeclineDelay, cfg.Engine.DeclineRetryDelay)

	reconcileTask := worker.NewReconcileTask(reconciler)

	// 6. Transports
	commands := handler.New(handler.Deps{
		SendAll:    sendAll,
		Decliner:   decliner,
		Reconciler: reconciler,
		Templates:  templates,
		Trades:     trades,
		Exclusions: exclusions,
		Vault:      secrets,
		Passwords:  passwords,
		Dialogs:    dialogs,
		AccountID:  accountID,
	})
	telegram := bot.New(cfg.Bot, tg, commands)

	api := server.NewServer(
		server.NewEngineServer(sendAll, decliner, reconciler, trades, templates, secrets, passwords, accountID),
		server.NewTemplateServer(templates),
		server.NewTradeServer(trades, exclusions),
		server.NewVaultServer(secrets, passwords, accountID),
	)

	// 7. Run
	g, ctx := errgroup.WithContext(ctx)

	modules.HTTPServer{ShutdownTimeout: cfg.Servers.ShutdownTimeout}.Run(ctx, g, &http.Server{
		Addr:              cfg.Servers.HTTPAddress,
		Handler:           server.NewRouter(api, cfg.Servers.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	})

	modules.ProbeServer{
		Name:          appName,
		Version:       appVersion,
		ListenAddress: cfg.Servers.ProbeAddress,
	}.Run(ctx, g)

	modules.MetricServer{ListenAddress: cfg.Servers.MetricsAddress}.Run(ctx, g)

	g.Go(func() error { return notifications.Run(ctx) })
	g.Go(func() error { return telegram.Run(ctx) })

	if cfg.Asynq.Enabled {
		queue := modules.AsynqServer{
			RedisUsername: cfg.Redis.Username,
			RedisPassword: cfg.Redis.Password,
			RedisAddress:  cfg.Redis.Address,
			RedisDB:       cfg.Redis.DatabaseNumber,
			Concurrency:   cfg.Asynq.Concurrency,
		}
		queue.Run(ctx, g, modules.AsynqQueues{"default": 1}, reconcileTask.Handler())
		queue.RunScheduler(ctx, g, reconcileTask.Schedule(cfg.Asynq.ReconcileSchedule))
	} else {
		g.Go(func() error { return reconcileTask.RunEvery(ctx, cfg.Engine.ReconcileInterval) })
	}

	if err := telegramBot.SendText(ctx, "Движок запущен"); err != nil {
		logger(ctx).Warn("Startup notification failed", logx.Error(err))
	}

	logger(ctx).Info("Application started",
		"storage", cfg.Storage.Backend,
		"account", accountID,
		"asynq", cfg.Asynq.Enabled,
	)

	err = g.Wait()

	// 8. Shutdown
	shutdownCtx := context.WithoutCancel(ctx)

	sendAll.Stop()
	decliner.Stop()
	passwords.Purge()

	if closeErr := store.Close(shutdownCtx); closeErr != nil {
		logger(shutdownCtx).Error("store.Close", logx.Error(closeErr))
	}

	logger(shutdownCtx).Info("Application stopped")

	if err != nil {
		return fmt.Errorf("errgroup.Wait: %w", err)
	}

	return nil
}
