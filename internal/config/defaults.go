package config

import (
	"strings"
	"time"
)

// 默认值常量
const (
	defaultAppEnv           = "dev"
	defaultAppLogLevel      = "info"
	defaultAlgoLogDir       = "logs/algo"
	defaultTimerInterval    = time.Second
	defaultPersistQueueSize = 256
	defaultSettingFile      = "Algo_setting.json"
	defaultDBPath           = "data/algotrading.db"
	defaultDBName           = "VnTrader_AlgoTrading_Db"
	defaultRepAddr          = ":2014"
	defaultPubAddr          = ":2015"
	defaultTopic            = "AlgoTrading"
	defaultSimGateway       = "SIM"
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Engine.applyDefaults(keys)
	c.Storage.applyDefaults(keys)
	c.Control.applyDefaults(keys)
	c.Sim.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.algo_log_dir", &a.AlgoLogDir, defaultAlgoLogDir),
	)
}

func (e *EngineConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "engine.timer_interval",
			need:  func() bool { return e.TimerInterval <= 0 },
			apply: func() { e.TimerInterval = defaultTimerInterval },
		},
		fieldDefault{
			key:   "engine.persist_queue_size",
			need:  func() bool { return e.PersistQueueSize <= 0 },
			apply: func() { e.PersistQueueSize = defaultPersistQueueSize },
		},
	)
}

func (s *StorageConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("storage.use_document_store", &s.UseDocumentStore, false),
		boolFieldDefault("storage.watch_setting_file", &s.WatchSettingFile, false),
		stringFieldDefault("storage.setting_file", &s.SettingFile, defaultSettingFile),
		stringFieldDefault("storage.db_path", &s.DBPath, defaultDBPath),
		stringFieldDefault("storage.db_name", &s.DBName, defaultDBName),
	)
}

func (c *ControlConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("control.enabled", &c.Enabled, true),
		stringFieldDefault("control.rep_addr", &c.RepAddr, defaultRepAddr),
		stringFieldDefault("control.pub_addr", &c.PubAddr, defaultPubAddr),
		stringFieldDefault("control.topic", &c.Topic, defaultTopic),
	)
}

func (s *SimConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("sim.fill", &s.Fill, true),
	)
	for i := range s.Contracts {
		c := &s.Contracts[i]
		c.Symbol = strings.TrimSpace(c.Symbol)
		c.Exchange = strings.ToUpper(strings.TrimSpace(c.Exchange))
		if strings.TrimSpace(c.Gateway) == "" {
			c.Gateway = defaultSimGateway
		}
	}
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
