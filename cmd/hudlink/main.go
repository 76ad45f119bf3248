// hudlink keeps a set of GraphQL subscriptions open over one graphql-ws
// connection and optionally records every event to PostgreSQL.
//
// Usage: hudlink --config configs/hudlink.yaml [--debug]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/hudlink/internal/buffer"
	"github.com/rickgao/hudlink/internal/config"
	"github.com/rickgao/hudlink/internal/database"
	"github.com/rickgao/hudlink/internal/model"
	"github.com/rickgao/hudlink/internal/recorder"
	"github.com/rickgao/hudlink/internal/subscription"
	"github.com/rickgao/hudlink/internal/version"
)

type options struct {
	Config string `long:"config" env:"HUDLINK_CONFIG" default:"configs/hudlink.yaml" description:"Path to config file"`
	Debug  bool   `long:"debug" env:"HUDLINK_DEBUG" description:"Enable debug logging"`
}

func main() {
	_ = godotenv.Load()

	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	// Set up structured logging
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting hudlink",
		"version", version.Version,
		"commit", version.Commit,
		"config", opts.Config,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(opts.Config)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"url", cfg.Transport.URL,
		"subscriptions", len(cfg.Subscriptions),
		"recorder", cfg.Recorder.Enabled,
	)

	// Cancel on shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("hudlink failed", "error", err)
		os.Exit(1)
	}

	logger.Info("hudlink stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	sources := healthSources{}

	// Recorder
	var events *buffer.Growable[model.Event]
	var rec *recorder.Recorder
	if cfg.Recorder.Enabled {
		db := cfg.Recorder.Database
		logger.Info("connecting to database",
			"host", db.Host,
			"port", db.Port,
			"database", db.Name,
		)

		pool, err := database.Connect(ctx, db)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		if err := recorder.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		logger.Info("database connected")

		events = buffer.New[model.Event](cfg.Recorder.BufferSize)
		rec = recorder.New(recorder.Config{
			BatchSize:     cfg.Recorder.BatchSize,
			FlushInterval: cfg.Recorder.FlushInterval,
		}, events, pool, logger.With("component", "recorder"))

		if err := rec.Start(ctx); err != nil {
			return fmt.Errorf("start recorder: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			rec.Stop(shutdownCtx)
			events.Close()
		}()

		sources.recorder = rec.Stats
		sources.pingDB = pool.Ping
	}

	// Subscriptions
	client := subscription.NewClient(ctx, cfg.Transport.SocketConfig(), subscription.DefaultConnFactory,
		transportOptions(cfg.Transport, logger)...)
	defer client.Close()

	transport, err := client.Transport()
	if err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	sources.transport = transport.Stats

	streams := make([]*subscription.Stream, 0, len(cfg.Subscriptions))
	for _, sub := range cfg.Subscriptions {
		s, err := client.SubscribeStream(sub.Name, sub.Request())
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", sub.Name, err)
		}
		defer s.Close()

		logger.Info("subscribed", "name", sub.Name, "id", s.ID())
		streams = append(streams, s)
	}
	sources.streams = func() []streamStatus {
		out := make([]streamStatus, 0, len(streams))
		for _, s := range streams {
			out = append(out, statusOf(s))
		}
		return out
	}

	// Health server
	healthServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Health.Port),
		Handler:           createHealthHandler(sources, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, s := range streams {
		g.Go(func() error {
			pump(gctx, s, events, logger)
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return healthServer.Shutdown(shutdownCtx)
	})

	logger.Info("hudlink running",
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
	)

	return g.Wait()
}

// transportOptions maps the transport section onto subscription options.
func transportOptions(tc config.TransportConfig, logger *slog.Logger) []subscription.Option {
	// Validated at load time
	policy, _ := subscription.ParseConnectionErrorPolicy(tc.ConnectionErrorPolicy)

	opts := []subscription.Option{
		subscription.WithLogger(logger.With("component", "transport")),
		subscription.WithKeepAliveTimeout(tc.KeepAliveTimeout),
		subscription.WithConnectionErrorPolicy(policy),
		subscription.WithErrorHandler(func(err error) {
			logger.Warn("transport error", "error", err)
		}),
		subscription.WithClosedHandler(func() {
			logger.Info("connection closed, waiting for reconnect")
		}),
	}
	if len(tc.InitPayload) > 0 {
		opts = append(opts, subscription.WithInitPayload(tc.InitPayload))
	}
	return opts
}

// pump forwards a stream's events to the log and, if set, the recorder input.
// It returns when ctx ends or the stream ends.
func pump(ctx context.Context, s *subscription.Stream, events *buffer.Growable[model.Event], logger *slog.Logger) {
	logger = logger.With("subscription", s.Name(), "id", s.ID())

	for {
		ev, err := s.Next(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil, errors.Is(err, io.EOF):
			default:
				logger.Error("subscription ended", "error", err)
			}
			return
		}

		logger.Debug("event received", "bytes", len(ev.Payload))
		if events != nil {
			events.Send(ev)
		}
	}
}
