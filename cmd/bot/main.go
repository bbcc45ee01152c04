package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"

	"github.com/blackmichael/claimbot/internal/config"
	"github.com/blackmichael/claimbot/internal/discord"
	"github.com/blackmichael/claimbot/internal/domain"
	"github.com/blackmichael/claimbot/internal/ingest"
	"github.com/blackmichael/claimbot/internal/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	logger.Info("store opened", "path", cfg.DatabasePath)

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	client := discord.NewClient(session, cfg, logger)
	svc := domain.NewDropService(store, client, cfg.PrivateMarker, logger)
	ingestor := ingest.NewIngestor(svc, client, logger)
	bot := discord.NewBot(session, cfg, svc, ingestor, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := bot.Start(ctx); err != nil {
		return fmt.Errorf("start bot: %w", err)
	}
	defer bot.Close()

	logger.Info("bot started",
		"drops_channel", cfg.DropsChannelID,
		"ingestion_channel", cfg.WebhookInChannelID,
	)

	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()

	return nil
}
