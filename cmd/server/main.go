package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"holdem-engine/internal/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("holdem-server"),
		kong.Description("Multi-table Texas Hold'em engine with websocket and bot line protocol."),
	)

	if err := logger.Init(cli.logger()); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		kctx.Exit(1)
	}
	log := logger.With("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := NewServer(ctx, &cli)
	if err != nil {
		log.Error().Err(err).Msg("failed to start")
		kctx.Exit(1)
	}

	log.Info().
		Str("env", cli.Environment).
		Str("http", cli.HTTPAddr).
		Str("tcp", cli.TCPAddr).
		Msg("holdem server starting")

	if err := srv.Run(ctx, shutdownTimeout); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		kctx.Exit(1)
	}
	log.Info().Msg("server stopped")
}
