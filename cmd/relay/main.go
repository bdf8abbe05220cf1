package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"flowrelay/internal/adapter/channel"
	"flowrelay/internal/adapter/langflow"
	"flowrelay/internal/adapter/session"
	"flowrelay/internal/domain"
	"flowrelay/internal/infra/config"
	"flowrelay/internal/infra/logger"
	"flowrelay/internal/infra/metrics"
	"flowrelay/internal/infra/tracer"
	"flowrelay/internal/usecase"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`flowrelay - chat directive router for workflow backends

USAGE:
    flowrelay [FLAGS]

FLAGS:
    -h, --help       Show this help message
    --config PATH    Config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml
    Environment: FLOWRELAY_* variables override config

EXAMPLES:
    flowrelay                               # Run with config.yaml
    flowrelay --config /etc/flowrelay.yaml  # Run with custom config
    FLOWRELAY_BACKEND_BASE_URL=http://lf:7860 flowrelay`)
}

func run() error {
	startTime := time.Now()

	// 1. Config
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	// 3. Metrics
	m := &metrics.Metrics{}

	// 4. Target catalog (static config merged with discovery)
	static := make([]domain.Target, 0, len(cfg.Targets))
	for _, t := range cfg.Targets {
		static = append(static, domain.Target{
			Key:         t.Key,
			RemoteID:    t.RemoteID,
			DisplayName: t.DisplayName,
			Keywords:    t.Keywords,
			Tweaks:      t.Tweaks,
		})
	}
	catalog := langflow.NewCatalog(cfg.Backend, static, log, m)

	// 5. Backend client, optionally behind a circuit breaker
	client := langflow.NewClient(cfg.Backend, log)
	var backend usecase.Backend = client
	if cfg.Breaker.Enabled {
		backend = langflow.NewBreakerClient(client, langflow.CircuitBreakerConfig{
			MaxFailures: cfg.Breaker.MaxFailures,
			Timeout:     cfg.Breaker.Timeout,
			Interval:    cfg.Breaker.Interval,
		}, log)
	}

	// 6. Session bindings
	sessions, sessionCloser, err := buildSessions(cfg.Session, log)
	if err != nil {
		return fmt.Errorf("sessions: %w", err)
	}
	if sessionCloser != nil {
		defer sessionCloser()
	}

	// 7. Router & pipeline
	router := usecase.NewRouter(sessions, usecase.RouteConfig{
		DefaultTarget:        cfg.Routing.DefaultTarget,
		LongFormTarget:       cfg.Routing.LongFormTarget,
		ConversationalTarget: cfg.Routing.ConversationalTarget,
		LongFormThreshold:    cfg.Routing.LongFormThreshold,
		AutoRouting:          cfg.Routing.AutoRouting,
		SessionMemory:        cfg.Session.Memory,
	}, log)

	pipeline := usecase.NewPipeline(router, catalog, backend, sessions,
		usecase.PipelineConfig{MultiTarget: cfg.Routing.MultiTarget}, log, m)

	// 8. Channels
	var channels []domain.Channel
	if cfg.Channels.HTTP.Enabled {
		httpCh := channel.NewHTTPChannel(cfg.Channels.HTTP.Addr, log)
		httpCh.Mount("/metrics", metrics.Handler(m, startTime, metrics.HandlerDeps{
			SessionCount: sessions.Len,
			TargetCount:  func() int { return catalog.Registry(ctx).Len() },
		}))
		channels = append(channels, httpCh)
	}
	if cfg.Channels.Slack.Enabled {
		channels = append(channels,
			channel.NewSlackChannel(cfg.Channels.Slack.BotToken, cfg.Channels.Slack.AppToken, log))
	}
	if len(channels) == 0 {
		return fmt.Errorf("no channels enabled")
	}

	// 9. Graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Backend.Discovery {
		go refreshLoop(ctx, catalog, cfg.Backend.DiscoveryTTL)
	}

	// 10. Message handler: every channel turn goes through the pipeline,
	// which always produces displayable text.
	handler := func(sendFn func(context.Context, domain.OutboundMessage) error) domain.MessageHandler {
		return func(ctx context.Context, msg domain.InboundMessage) error {
			reply := pipeline.Respond(ctx, msg.SessionID, msg.Content)
			return sendFn(ctx, domain.OutboundMessage{
				SessionID: msg.SessionID,
				Content:   reply,
				IsError:   strings.HasPrefix(reply, "error:"),
				ThreadID:  msg.ThreadID,
			})
		}
	}

	log.Info("flowrelay starting",
		"backend", cfg.Backend.BaseURL,
		"discovery", cfg.Backend.Discovery,
		"static_targets", len(static),
		"session_store", cfg.Session.Store,
		"channels", len(channels),
	)

	// 11. Start channels
	var wg sync.WaitGroup
	errCh := make(chan error, len(channels))

	for _, ch := range channels {
		wg.Add(1)
		go func(c domain.Channel) {
			defer wg.Done()
			if err := c.Start(ctx, handler(c.Send)); err != nil {
				errCh <- fmt.Errorf("channel %s: %w", c.Name(), err)
				cancel()
			}
		}(ch)
	}

	<-ctx.Done()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	for _, ch := range channels {
		if err := ch.Stop(shutdownCtx); err != nil {
			log.Error("channel stop error", "channel", ch.Name(), "error", err)
		}
	}

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// refreshLoop keeps the discovery cache warm so a stale TTL is never paid
// on a chat turn.
func refreshLoop(ctx context.Context, catalog *langflow.Catalog, ttl time.Duration) {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()

	catalog.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			catalog.Refresh(ctx)
		}
	}
}

func buildSessions(cfg config.SessionConfig, log *slog.Logger) (domain.SessionStore, func() error, error) {
	switch cfg.Store {
	case "sqlite":
		store, err := session.NewSQLiteStore(cfg.Path, cfg.TTL, log)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return session.NewMemoryStore(cfg.TTL), nil, nil
	}
}

func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("FLOWRELAY_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}
