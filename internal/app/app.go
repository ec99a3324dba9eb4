package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agentra/internal/config"
	"agentra/internal/decision"
	"agentra/internal/engine"
	"agentra/internal/gateway/binance"
	"agentra/internal/gateway/notifier"
	"agentra/internal/gateway/oracle"
	"agentra/internal/logger"
	"agentra/internal/memory"
	"agentra/internal/override"
	"agentra/internal/position"
	"agentra/internal/regime"
	"agentra/internal/store/gormstore"
	apihttp "agentra/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

// App is the fully wired process: engine loop, override watcher and the
// HTTP surface, sharing one state store.
type App struct {
	cfg       *config.Config
	engine    *engine.Engine
	overrides *override.Registry
	server    *apihttp.Server
	state     *gormstore.GormStore
	lessons   *memory.Store
}

// Build wires every component from configuration. Construction is explicit:
// each dependency is created once and handed down, no ambient singletons.
func Build(cfg *config.Config) (*App, error) {
	state, err := gormstore.New(cfg.Store.StatePath, cfg.Store.InitialBalance)
	if err != nil {
		return nil, fmt.Errorf("state store: %w", err)
	}
	lessons, err := memory.Open(cfg.Store.LessonsPath)
	if err != nil {
		state.Close()
		return nil, fmt.Errorf("lessons store: %w", err)
	}
	overrides, err := override.New(cfg.Signals.Dir)
	if err != nil {
		lessons.Close()
		state.Close()
		return nil, fmt.Errorf("override registry: %w", err)
	}

	source := binance.New(binance.Config{
		RESTBaseURL: cfg.Exchange.RESTBaseURL,
		HTTPTimeout: cfg.Exchange.HTTPTimeout,
	})

	var push notifier.Notifier = notifier.Nop{}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		push = notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	}

	client := oracle.NewChatClient(cfg.Oracle.BaseURL, cfg.Oracle.APIKey, cfg.Oracle.Model, cfg.Oracle.Timeout)
	gateway := decision.NewGateway(client, cfg.Oracle.Cooldown, time.Now)
	classifier := regime.NewClassifier(cfg.Classifier)
	lifecycle := position.NewEngine(cfg.Risk.RiskPct, cfg.Risk.MaxPositions, cfg.Risk.LeverageCap,
		lessons, push, time.Now)

	eng := engine.New(cfg, source, state, gateway, classifier, lifecycle, overrides, lessons, nil)

	var server *apihttp.Server
	if cfg.HTTP.Enabled {
		server, err = apihttp.NewServer(apihttp.ServerConfig{
			Addr:       cfg.HTTP.Addr,
			Store:      state,
			SignalsDir: cfg.Signals.Dir,
		})
		if err != nil {
			lessons.Close()
			state.Close()
			return nil, fmt.Errorf("http server: %w", err)
		}
	}

	return &App{
		cfg:       cfg,
		engine:    eng,
		overrides: overrides,
		server:    server,
		state:     state,
		lessons:   lessons,
	}, nil
}

// Run drives all long-lived components until the context ends or one of
// them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.engine.Run(ctx) })
	g.Go(func() error { return a.overrides.Run(ctx) })
	if a.server != nil {
		g.Go(func() error {
			logger.Infof("[app] http surface on %s", a.server.Addr())
			return a.server.Start(ctx)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the stores.
func (a *App) Close() {
	if a.lessons != nil {
		a.lessons.Close()
	}
	if a.state != nil {
		a.state.Close()
	}
}
