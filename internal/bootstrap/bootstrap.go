package bootstrap

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/commands"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/config"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/metrics"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
)

const (
	gatewayPollInterval  = 15 * time.Second
	gatewayStaleAfter    = 2 * time.Minute
	databasePollInterval = 10 * time.Second
	databasePollTimeout  = 3 * time.Second
)

// App owns every long-running component of the bot.
type App struct {
	Config     *config.Config
	Components *Components

	logger   *zap.Logger
	dbLogger *zap.Logger
}

func New(cfg *config.Config, logger, dbLogger *zap.Logger) (*App, error) {
	if cfg.Bot.Token == "" {
		return nil, &models.ConfigError{Field: "bot.token", Reason: "a bot token is required (set DISCORD_TOKEN)"}
	}
	return &App{Config: cfg, logger: logger, dbLogger: dbLogger}, nil
}

// Run wires the components, connects to the gateway, and blocks until ctx ends
// or a component fails. Everything is shut down before it returns.
func (a *App) Run(ctx context.Context) error {
	c, err := Wire(ctx, a.Config, a.logger, a.dbLogger)
	if c != nil {
		a.Components = c
		defer Shutdown(c, a.logger)
	}
	if err != nil {
		return fmt.Errorf("component wiring failed: %w", err)
	}

	if err := a.connect(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	a.start(gctx, g)
	a.logger.Info("All components started")

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (a *App) connect() error {
	c := a.Components
	if err := c.Session.Connect(); err != nil {
		return err
	}
	if a.Config.Bot.RegisterCommands {
		if err := c.Session.RegisterCommands(a.Config.Bot.ClientID, commands.All()); err != nil {
			return fmt.Errorf("failed to register commands: %w", err)
		}
	}
	return nil
}

func (a *App) start(ctx context.Context, g *errgroup.Group) {
	c := a.Components

	g.Go(func() error { return c.Correlator.Run(ctx) })
	g.Go(func() error { return a.sweepAppeals(ctx) })
	g.Go(func() error { return c.Watchdog.Run(ctx) })
	g.Go(func() error {
		return c.Watchdog.Poll(ctx, componentGateway, gatewayPollInterval, a.gatewayAlive)
	})
	g.Go(func() error {
		return c.Watchdog.Poll(ctx, componentDatabase, databasePollInterval, func(ctx context.Context) bool {
			pctx, cancel := context.WithTimeout(ctx, databasePollTimeout)
			defer cancel()
			return c.Database.Ping(pctx) == nil
		})
	})

	if a.Config.Metrics.Enabled {
		exporter := metrics.NewExporter(c.Watchdog.Healthy, a.logger)
		g.Go(func() error { return exporter.ListenAndServe(ctx, a.Config.Metrics.Addr) })
	}
}

// sweepAppeals returns abandoned investigations to pending on every tick.
func (a *App) sweepAppeals(ctx context.Context) error {
	c := a.Components
	ticker := time.NewTicker(a.Config.Appeals.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			c.Appeals.Sweep(ctx, now)
			c.Watchdog.Heartbeat(componentAppeals)
		}
	}
}

// gatewayAlive reports whether the gateway acknowledged a heartbeat recently.
func (a *App) gatewayAlive(context.Context) bool {
	s := a.Components.Session.Discord()
	s.RLock()
	ready, ack := s.DataReady, s.LastHeartbeatAck
	s.RUnlock()
	return ready && time.Since(ack) < gatewayStaleAfter
}
