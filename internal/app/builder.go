package app

import (
	"context"
	"fmt"

	"algoengine/internal/algo"
	"algoengine/internal/algo/twap"
	"algoengine/internal/config"
	"algoengine/internal/engine"
	"algoengine/internal/event"
	"algoengine/internal/gateway/exchange"
	"algoengine/internal/gateway/sim"
	"algoengine/internal/logger"
	"algoengine/internal/persist"
	"algoengine/internal/setting"
	"algoengine/internal/store/gormstore"
)

type AppBuilder struct {
	cfg *config.Config

	mainEngineFn func(*config.Config, event.Bus) exchange.MainEngine
	templatesFn  func() (*algo.Templates, error)
}

type AppBuilderOption func(*AppBuilder)

// WithMainEngine replaces the paper main engine, e.g. with a live gateway.
func WithMainEngine(fn func(*config.Config, event.Bus) exchange.MainEngine) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.mainEngineFn = fn
		}
	}
}

// WithTemplates replaces the default template table.
func WithTemplates(fn func() (*algo.Templates, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.templatesFn = fn
		}
	}
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:          cfg,
		mainEngineFn: buildSimEngine,
		templatesFn:  DefaultTemplates,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// DefaultTemplates 返回内置算法模板
func DefaultTemplates() (*algo.Templates, error) {
	t := algo.NewTemplates()
	if err := twap.Register(t); err != nil {
		return nil, err
	}
	return t, nil
}

func buildSimEngine(cfg *config.Config, bus event.Bus) exchange.MainEngine {
	contracts := make([]exchange.Contract, 0, len(cfg.Sim.Contracts))
	for _, c := range cfg.Sim.Contracts {
		contracts = append(contracts, exchange.Contract{
			Symbol:      c.Symbol,
			Exchange:    c.Exchange,
			GatewayName: c.Gateway,
			Name:        c.Name,
		})
	}
	return sim.New(bus, contracts, cfg.Sim.Fill)
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	templates, err := b.templatesFn()
	if err != nil {
		return nil, fmt.Errorf("register algo templates: %w", err)
	}
	bus := event.NewEngine(event.Options{TimerInterval: cfg.Engine.TimerInterval})
	mainEngine := b.mainEngineFn(cfg, bus)
	writer := persist.NewWriter(cfg.Engine.PersistQueueSize, func(job string, err error) {
		logger.Errorf("persist %s failed: %v", job, err)
	})

	engCfg := engine.Config{
		SettingFile: cfg.Storage.SettingFile,
		DBName:      cfg.Storage.DBName,
		Writer:      writer,
		AlgoLogs:    logger.NewAlgoLogs(cfg.App.AlgoLogDir),
		Topic:       cfg.Control.Topic,
	}
	var docs *gormstore.GormStore
	if cfg.Storage.UseDocumentStore {
		docs, err = gormstore.NewGormStore(cfg.Storage.DBPath)
		if err != nil {
			writer.Close()
			return nil, fmt.Errorf("open document store: %w", err)
		}
		engCfg.Documents = docs
		engCfg.Settings = setting.NewDocumentBackend(docs, cfg.Storage.DBName)
		logger.Infof("✓ 文档存储已启用: %s (%s)", cfg.Storage.DBPath, cfg.Storage.DBName)
	}

	eng, err := engine.New(mainEngine, bus, templates, engCfg)
	if err != nil {
		writer.Close()
		if docs != nil {
			_ = docs.Close()
		}
		return nil, err
	}

	return &App{
		cfg:     cfg,
		bus:     bus,
		main:    mainEngine,
		engine:  eng,
		writer:  writer,
		docs:    docs,
		Summary: buildSummary(cfg, eng),
	}, nil
}
