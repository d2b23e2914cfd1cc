package app

import (
	"context"
	"fmt"
	"time"

	"algoengine/internal/config"
	"algoengine/internal/engine"
	"algoengine/internal/event"
	"algoengine/internal/gateway/exchange"
	"algoengine/internal/logger"
	"algoengine/internal/persist"
	"algoengine/internal/store/gormstore"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// App 负责应用级编排：事件引擎、算法引擎与控制服务的启动和关闭。
type App struct {
	cfg     *config.Config
	bus     *event.Engine
	main    exchange.MainEngine
	engine  *engine.Engine
	writer  *persist.Writer
	docs    *gormstore.GormStore
	Summary *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run starts everything and blocks until ctx is cancelled, then shuts down.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil || a.engine == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}

	a.bus.Start()
	defer a.shutdown()

	if err := a.engine.LoadAlgoSetting(ctx); err != nil {
		logger.Warnf("加载算法配置失败，继续启动: %v", err)
	}
	if a.cfg.Control.Enabled {
		if err := a.engine.StartRPC(a.cfg.Control.RepAddr, a.cfg.Control.PubAddr); err != nil {
			return fmt.Errorf("start control server: %w", err)
		}
	}

	group, ctx := errgroup.WithContext(ctx)
	if a.cfg.Storage.WatchSettingFile && !a.cfg.Storage.UseDocumentStore {
		group.Go(func() error {
			if err := a.engine.WatchSettingFile(ctx); err != nil {
				return fmt.Errorf("watch setting file: %w", err)
			}
			return nil
		})
	}
	group.Go(func() error {
		<-ctx.Done()
		return nil
	})
	return group.Wait()
}

func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// 先关控制端口，避免关停期间还有远程 addAlgo 进来
	if err := a.engine.StopRPC(ctx); err != nil {
		logger.Warnf("control server stop: %v", err)
	}
	a.engine.StopAll()
	if err := a.engine.Close(ctx); err != nil {
		logger.Warnf("algo engine close: %v", err)
	}
	a.writer.Close()
	a.bus.Stop()
	if a.docs != nil {
		if err := a.docs.Close(); err != nil {
			logger.Warnf("document store close: %v", err)
		}
	}
	logger.Infof("algo engine stopped")
}

// Engine exposes the algo engine (for tests and embedding).
func (a *App) Engine() *engine.Engine {
	if a == nil {
		return nil
	}
	return a.engine
}

func (a *App) MainEngine() exchange.MainEngine {
	if a == nil {
		return nil
	}
	return a.main
}
