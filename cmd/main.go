package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/bootstrap"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/config"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/logging"
)

const defaultConfigPath = "config.toml"

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "modguard",
		Usage: "Abuse detection and moderation bot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   defaultConfigPath,
				Usage:   "Path to the TOML config file",
			},
		},
		Action: runBot,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Connect to Discord and start enforcing",
				Action: runBot,
			},
			{
				Name:   "check-config",
				Usage:  "Load and validate the config, then exit",
				Action: checkConfig,
			},
		},
	}

	return app.Run(context.Background(), os.Args)
}

func runBot(ctx context.Context, c *cli.Command) error {
	cfg, err := config.LoadOrDefault(c.String("config"))
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	logger, dbLogger, err := logging.NewManager(cfg.Logging).GetLoggers()
	if err != nil {
		return fmt.Errorf("logging init failed: %w", err)
	}
	defer func() {
		_ = logger.Sync()
		_ = dbLogger.Sync()
	}()

	app, err := bootstrap.New(cfg, logger, dbLogger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting moderation engine", zap.String("config", c.String("config")))
	if err := app.Run(ctx); err != nil {
		logger.Error("Engine stopped with error", zap.Error(err))
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}

func checkConfig(_ context.Context, c *cli.Command) error {
	cfg, err := config.LoadOrDefault(c.String("config"))
	if err != nil {
		return err
	}

	fmt.Printf("Config OK: %s\n", c.String("config"))
	fmt.Printf("  database:       %s\n", cfg.Database.Path)
	fmt.Printf("  workers:        %d (queue %d)\n", cfg.Engine.Workers, cfg.Engine.QueueSize)
	fmt.Printf("  default action: %s\n", cfg.Detection.DefaultAction)
	fmt.Printf("  limits:         %d categories\n", len(cfg.Detection.Limits))
	if cfg.Bot.Token == "" {
		fmt.Println("  warning: no bot token configured (set DISCORD_TOKEN)")
	}
	return nil
}
