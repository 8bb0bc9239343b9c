package bootstrap

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/appeal"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/bot"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/commands"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/config"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/correlator"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/database"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/decision"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/dispatcher"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/ingest"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/ledger"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/notifier"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/service"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/watchdog"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/whitelist"
)

const (
	componentCorrelator = "correlator"
	componentGateway    = "gateway"
	componentDatabase   = "database"
	componentAppeals    = "appeals"

	watchdogInterval = 5 * time.Second
)

type Components struct {
	// Storage
	Database *database.Database
	Policies *config.PolicyStore
	Ledger   *ledger.Ledger

	// Pipeline
	Whitelist  *whitelist.Resolver
	Correlator *correlator.Correlator
	Dispatcher *dispatcher.Dispatcher
	Appeals    *appeal.Machine
	Moderation *service.Moderation

	// Discord
	Session  *bot.Session
	Notifier *notifier.Discord

	Watchdog *watchdog.Watchdog
}

// Wire builds every component from cfg and restores persisted state. On error
// the partially built Components are still returned so they can be shut down.
func Wire(ctx context.Context, cfg *config.Config, logger, dbLogger *zap.Logger) (*Components, error) {
	logger.Info("Wiring components...")
	c := &Components{}

	db, err := database.Open(ctx, cfg.Database.Path, dbLogger)
	if err != nil {
		return nil, err
	}
	c.Database = db

	c.Policies = config.NewPolicyStore(cfg.PolicyDefaults(), db)
	if err := db.SyncPolicies(ctx, c.Policies); err != nil {
		return c, fmt.Errorf("policy sync failed: %w", err)
	}

	c.Ledger = ledger.New(db, logger)
	if err := c.Ledger.Load(ctx); err != nil {
		return c, fmt.Errorf("ledger load failed: %w", err)
	}

	pool := dispatcher.NewHTTPPool(cfg.Dispatch.HTTPPoolSize, cfg.Dispatch.RequestTimeout)
	limits := dispatcher.NewRateLimitMonitor(cfg.Dispatch.GlobalRate, cfg.Dispatch.GlobalBurst)
	platform := dispatcher.NewRESTPlatform(cfg.Dispatch.APIBaseURL, cfg.Bot.Token, cfg.Dispatch.RequestTimeout, pool, limits, logger)
	c.Dispatcher = dispatcher.New(platform, c.Ledger, dispatcher.Options{
		MaxAttempts:     cfg.Dispatch.MaxAttempts,
		InitialInterval: cfg.Dispatch.InitialInterval,
		MaxInterval:     cfg.Dispatch.MaxInterval,
		DefaultTimeout:  cfg.Detection.TimeoutDuration,
	}, logger)

	c.Appeals = appeal.NewMachine(db, c.Ledger, c.Dispatcher, c.Policies, logger)
	if err := c.Appeals.Load(ctx); err != nil {
		return c, fmt.Errorf("appeal load failed: %w", err)
	}

	// The bot ID is filled in once the gateway reports our identity.
	c.Whitelist = whitelist.NewResolver(0)
	c.Session, err = bot.NewSession(cfg.Bot.Token, c.Whitelist, logger)
	if err != nil {
		return c, err
	}
	c.Notifier = notifier.NewDiscord(c.Session.Discord(), cfg.Bot.WarnCooldown, logger)

	c.Watchdog = watchdog.NewWatchdog(watchdogInterval, logger)
	c.Watchdog.RegisterComponent(componentCorrelator, 3*cfg.Engine.GCInterval)
	c.Watchdog.RegisterComponent(componentGateway, gatewayStaleAfter)
	c.Watchdog.RegisterComponent(componentDatabase, 3*databasePollInterval)
	c.Watchdog.RegisterComponent(componentAppeals, 3*cfg.Appeals.SweepInterval)

	c.Correlator = correlator.New(
		correlator.NewWindowTracker(),
		decision.NewEngine(),
		c.Whitelist,
		c.Policies,
		c.Dispatcher,
		c.Notifier,
		correlator.Options{
			Workers:    cfg.Engine.Workers,
			QueueSize:  cfg.Engine.QueueSize,
			BatchSize:  cfg.Engine.BatchSize,
			GCInterval: cfg.Engine.GCInterval,
			Heartbeat:  func() { c.Watchdog.Heartbeat(componentCorrelator) },
		},
		logger,
	)

	c.Moderation = service.NewModeration(c.Policies, c.Ledger, c.Appeals, c.Correlator, c.Notifier, logger)

	// Handlers go in before the gateway connects so no early event is missed.
	classifier := bot.NewKeywordClassifier(cfg.Detection.FlaggedTerms, cfg.Detection.MentionLimit)
	normalizer := ingest.NewNormalizer(classifier, time.Now)
	bot.NewHandlers(c.Session.Discord(), normalizer, c.Correlator, c.Dispatcher, c.Moderation, logger).
		Register(ctx, c.Session)
	c.Session.AddHandler(commands.NewHandler(c.Moderation, logger).HandleInteraction)

	logger.Info("Component wiring complete")
	return c, nil
}
