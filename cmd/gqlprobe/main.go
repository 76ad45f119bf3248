// gqlprobe opens one GraphQL subscription over graphql-ws and prints what the
// server sends. Useful for checking an endpoint before adding it to hudlink.
//
// Usage:
//
//	gqlprobe --url ws://localhost:4000/graphql --query 'subscription { zoneChanged { id } }'
//	gqlprobe --url wss://hud.example.com/graphql --query-file player.graphql \
//	         --variables '{"id":"p1"}' --init '{"authToken":"..."}' --verbose --duration 30s
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"github.com/rickgao/hudlink/internal/protocol"
	"github.com/rickgao/hudlink/internal/socket"
	"github.com/rickgao/hudlink/internal/subscription"
)

type options struct {
	URL       string        `long:"url" env:"GQLPROBE_URL" required:"true" description:"graphql-ws endpoint (ws:// or wss://)"`
	Query     string        `long:"query" description:"Subscription query text"`
	QueryFile string        `long:"query-file" description:"Read the query from a file"`
	Operation string        `long:"operation" description:"Operation name"`
	Variables string        `long:"variables" description:"Variables as a JSON object"`
	Init      string        `long:"init" env:"GQLPROBE_INIT" description:"connection_init payload as a JSON object"`
	Policy    string        `long:"connection-error-policy" default:"keep" choice:"keep" choice:"refresh" choice:"drop" description:"What to do on connection_error"`
	Duration  time.Duration `long:"duration" description:"Stop after this long (0 runs until interrupted)"`
	Verbose   bool          `long:"verbose" description:"Print full payload JSON"`
	Debug     bool          `long:"debug" description:"Enable debug logging"`
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

	// Setup logger
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	req, err := buildRequest(opts)
	if err != nil {
		logger.Error("invalid request", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	policy, _ := subscription.ParseConnectionErrorPolicy(opts.Policy)
	transportOpts := []subscription.Option{
		subscription.WithLogger(logger),
		subscription.WithConnectionErrorPolicy(policy),
		subscription.WithErrorHandler(func(err error) {
			fmt.Printf("[TRANSPORT ERROR] %v\n", err)
		}),
	}
	if opts.Init != "" {
		var initPayload map[string]any
		if err := json.Unmarshal([]byte(opts.Init), &initPayload); err != nil {
			logger.Error("invalid --init payload", "error", err)
			os.Exit(2)
		}
		transportOpts = append(transportOpts, subscription.WithInitPayload(initPayload))
	}

	cfg := socket.DefaultConfig()
	cfg.URL = opts.URL
	cfg.Protocols = []string{protocol.Subprotocol}

	client := subscription.NewClient(ctx, cfg, subscription.DefaultConnFactory, transportOpts...)
	defer client.Close()

	var received, failures atomic.Int64
	id, transport, err := client.Subscribe(req,
		func(payload json.RawMessage) {
			n := received.Add(1)
			printPayload(n, payload, opts.Verbose)
		},
		func(err error) {
			failures.Add(1)
			fmt.Printf("[SUBSCRIPTION ERROR] %v\n", err)
		},
	)
	if err != nil {
		logger.Error("subscribe failed", "error", err)
		os.Exit(1)
	}

	logger.Info("subscribed - press Ctrl+C to stop", "url", opts.URL, "id", id)

	<-ctx.Done()
	transport.Stop(id)

	stats := transport.Stats()
	logger.Info("probe finished",
		"state", stats.State.String(),
		"payloads", received.Load(),
		"errors", failures.Load(),
		"acks", stats.Acks,
		"keep_alive_timeouts", stats.KeepAliveTimeouts,
		"malformed_frames", stats.MalformedFrames,
	)
}

func buildRequest(opts options) (protocol.Request, error) {
	query := opts.Query
	if opts.QueryFile != "" {
		data, err := os.ReadFile(opts.QueryFile)
		if err != nil {
			return protocol.Request{}, fmt.Errorf("read query file: %w", err)
		}
		query = string(data)
	}
	if query == "" {
		return protocol.Request{}, errors.New("one of --query or --query-file is required")
	}

	req := protocol.Request{Query: query, OperationName: opts.Operation}
	if opts.Variables != "" {
		if err := json.Unmarshal([]byte(opts.Variables), &req.Variables); err != nil {
			return protocol.Request{}, fmt.Errorf("parse --variables: %w", err)
		}
	}
	return req, nil
}

func printPayload(n int64, payload json.RawMessage, verbose bool) {
	if verbose {
		var v any
		if err := json.Unmarshal(payload, &v); err == nil {
			data, _ := json.MarshalIndent(v, "", "  ")
			fmt.Printf("[DATA #%d] %s\n", n, data)
			return
		}
		fmt.Printf("[DATA #%d] %s\n", n, payload)
		return
	}

	res, err := protocol.DecodeResult(payload)
	if err != nil {
		fmt.Printf("[DATA #%d] undecodable payload (%d bytes)\n", n, len(payload))
		return
	}
	fmt.Printf("[DATA #%d] bytes=%d errors=%d\n", n, len(res.Data), len(res.Errors))
}
