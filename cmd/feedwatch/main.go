// Package main is the entry point for the feed watcher, a client of the
// broadcast push feed that keeps local player and chat state in sync.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/onnwee/studiocast/internal/config"
	"github.com/onnwee/studiocast/internal/feed"
	"github.com/onnwee/studiocast/internal/middleware"
	"github.com/onnwee/studiocast/internal/statesync"
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to a YAML config file (environment variables take precedence)")
	flag.Parse()

	if *help {
		fmt.Println("Studiocast Feed Watcher")
		fmt.Println()
		fmt.Println("Usage: feedwatch [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, loadErrs := config.Load(*configPath)
	if len(loadErrs) > 0 {
		for _, err := range loadErrs {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	if errs := cfg.ValidateWatcher(); len(errs) > 0 {
		for _, err := range errs {
			logger.Error("invalid configuration", "error", err)
		}
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := watch(ctx, cfg, logger); err != nil {
		logger.Error("feed watcher stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("feed watcher stopped")
}

// watch follows the feed until ctx is cancelled or reconnects are exhausted.
// Cancellation is a clean exit.
func watch(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	bus := newWatchBus(logger)

	streamCfg := feed.DefaultStreamConfig(cfg.FeedURL)
	streamCfg.BaseDelay = cfg.FeedRetryBaseDelay
	streamCfg.MaxAttempts = cfg.FeedMaxRetries
	streamCfg.OnStateChange = func(state feed.ConnectionState) {
		logger.Info("feed connection state changed", "status", state.Status, "attempt", state.Attempt)
	}

	stream, err := feed.NewStream(streamCfg, func(ctx context.Context, ev feed.Event) {
		bus.Apply(ctx, ev)
	}, logger)
	if err != nil {
		return fmt.Errorf("invalid feed configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = stream.Close()
	}()

	logger.Info("watching broadcast feed", "url", cfg.FeedURL)
	err = stream.Run(ctx)
	if errors.Is(err, feed.ErrStreamClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// newWatchBus builds a bus with no durable writer: the watcher only mirrors
// what the server already recorded.
func newWatchBus(logger *slog.Logger) *statesync.Bus {
	bus := statesync.NewBus(nil, logger)
	chat := statesync.NewChatActivation()
	player := statesync.NewPlayerState()
	bus.Subscribe(chat)
	bus.Subscribe(player)
	bus.Subscribe(statesync.SubscriberFunc(func(ctx context.Context, fact statesync.Fact) {
		nowPlaying, playing := player.Current()
		logger.InfoContext(ctx, "broadcast liveness changed",
			"broadcast_id", fact.BroadcastID,
			"live", fact.Live,
			"chat_active", chat.IsActive(fact.BroadcastID),
			"playing", playing,
			"now_playing", nowPlaying.BroadcastID,
		)
	}))
	return bus
}
