// Package engine hosts algorithm instances: it routes market events to
// them, forwards their orders to the main engine, and keeps their settings.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"algoengine/internal/algo"
	"algoengine/internal/event"
	"algoengine/internal/gateway/exchange"
	"algoengine/internal/logger"
	"algoengine/internal/persist"
	"algoengine/internal/setting"
	"algoengine/internal/transport/rpc"
)

const (
	DefaultDBName      = "VnTrader_AlgoTrading_Db"
	DefaultSettingFile = "Algo_setting.json"
	DefaultTopic       = "AlgoTrading"

	// HistoryCollection holds the latest var/param snapshot per algoName.
	HistoryCollection = "AlgoHistory"
)

var (
	ErrContractNotFound = errors.New("contract not found")
	ErrOrderNotFound    = errors.New("order not found")
	ErrEmptyOrderID     = errors.New("main engine returned empty order id")
)

// Config carries the collaborators chosen at startup.
type Config struct {
	// Settings is the active setting backend. Defaults to a FileBackend on
	// SettingFile.
	Settings setting.Backend
	// SettingFile backs SaveAlgoSettingToFile / LoadAlgoSettingFromFile.
	SettingFile string

	// Documents enables AlgoHistory snapshots when set.
	Documents exchange.DocumentStore
	DBName    string

	Writer   *persist.Writer
	AlgoLogs *logger.AlgoLogs
	Topic    string
}

// Engine implements algo.Engine.
type Engine struct {
	main      exchange.MainEngine
	bus       event.Bus
	templates *algo.Templates
	registry  *Registry

	settings    *setting.Store
	settingFile *setting.FileBackend

	docs       exchange.DocumentStore
	dbName     string
	writer     *persist.Writer
	ownsWriter bool
	algoLogs   *logger.AlgoLogs
	topic      string

	historyMu sync.Mutex
	history   map[string]*HistorySnapshot

	rpcMu sync.Mutex
	rpc   *rpc.Server
}

var _ algo.Engine = (*Engine)(nil)

// New builds the engine and registers its handlers on bus. The template
// table is frozen from here on.
func New(main exchange.MainEngine, bus event.Bus, templates *algo.Templates, cfg Config) (*Engine, error) {
	if main == nil {
		return nil, fmt.Errorf("main engine is required")
	}
	if bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if templates == nil {
		templates = algo.NewTemplates()
	}
	templates.Freeze()

	if cfg.SettingFile == "" {
		cfg.SettingFile = DefaultSettingFile
	}
	if cfg.DBName == "" {
		cfg.DBName = DefaultDBName
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	fb, err := setting.NewFileBackend(cfg.SettingFile)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		main:        main,
		bus:         bus,
		templates:   templates,
		registry:    NewRegistry(),
		settingFile: fb,
		docs:        cfg.Documents,
		dbName:      cfg.DBName,
		writer:      cfg.Writer,
		algoLogs:    cfg.AlgoLogs,
		topic:       cfg.Topic,
		history:     make(map[string]*HistorySnapshot),
	}
	if e.writer == nil {
		e.writer = persist.NewWriter(0, nil)
		e.ownsWriter = true
	}
	if e.algoLogs == nil {
		e.algoLogs = logger.NewAlgoLogs("")
	}
	backend := cfg.Settings
	if backend == nil {
		backend = fb
	}
	e.settings = setting.NewStore(backend, bus,
		setting.WithWriter(e.writer),
		setting.WithReporter(
			func(c string) { e.WriteLog(c, nil) },
			func(c string) { e.WriteError(c, nil) },
		),
	)
	e.registerEvent()
	return e, nil
}

func (e *Engine) registerEvent() {
	e.bus.Register(event.KindTick, e.processTickEvent)
	e.bus.Register(event.KindOrder, e.processOrderEvent)
	e.bus.Register(event.KindTrade, e.processTradeEvent)
	e.bus.Register(event.KindTimer, e.processTimerEvent)
}

func (e *Engine) Registry() *Registry { return e.registry }

func (e *Engine) Templates() *algo.Templates { return e.templates }

// AddAlgo builds an instance from the setting's template and activates it.
func (e *Engine) AddAlgo(st algo.Setting) (string, error) {
	factory, err := e.templates.Lookup(st.TemplateName())
	if err != nil {
		e.WriteError(fmt.Sprintf("add algo failed: %v", err), nil)
		return "", err
	}
	scope := newBuildScope(e)
	a, err := factory(scope, st.Clone())
	if err != nil {
		scope.discard()
		e.WriteError(fmt.Sprintf("create %s algo failed: %v", st.TemplateName(), err), nil)
		return "", err
	}
	if err := e.registry.Add(a); err != nil {
		scope.discard()
		e.WriteError(fmt.Sprintf("add algo failed: %v", err), nil)
		return "", err
	}
	scope.commit()
	logger.Infof("algo %s started, template=%s", a.Name(), st.TemplateName())
	return a.Name(), nil
}

// StopAlgo stops and removes one instance. Unknown names are a no-op.
func (e *Engine) StopAlgo(name string) {
	a, ok := e.registry.Remove(name)
	if !ok {
		return
	}
	e.registry.Unsubscribe(a)
	e.deliver(a, "stop", a.Stop)
	logger.Infof("algo %s stopped", name)
}

func (e *Engine) StopAll() {
	for _, name := range e.registry.Names() {
		e.StopAlgo(name)
	}
}

// Status is a point-in-time view for the control surface.
type Status struct {
	Active    []string `json:"active"`
	Symbols   []string `json:"symbols"`
	Orders    int      `json:"orders"`
	Templates []string `json:"templates"`
	Settings  int      `json:"settings"`
	Backend   string   `json:"backend"`
}

func (e *Engine) Status() Status {
	return Status{
		Active:    e.registry.Names(),
		Symbols:   e.registry.Symbols(),
		Orders:    e.registry.OrderCount(),
		Templates: e.templates.Names(),
		Settings:  len(e.settings.Settings()),
		Backend:   e.settings.Backend().Name(),
	}
}

// Flush waits for queued persistence work.
func (e *Engine) Flush(ctx context.Context) error {
	return e.writer.Flush(ctx)
}

// Close stops the control server and releases the writer and log files.
// Active instances are left alone; call StopAll first.
func (e *Engine) Close(ctx context.Context) error {
	err := e.StopRPC(ctx)
	if e.ownsWriter {
		e.writer.Close()
	} else if ferr := e.writer.Flush(ctx); ferr != nil && !errors.Is(ferr, persist.ErrClosed) {
		err = errors.Join(err, ferr)
	}
	if cerr := e.algoLogs.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}
