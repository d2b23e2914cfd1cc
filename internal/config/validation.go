package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Engine.validate(); err != nil {
		return err
	}
	if err := c.Storage.validate(); err != nil {
		return err
	}
	if err := c.Control.validate(); err != nil {
		return err
	}
	if err := c.Sim.validate(); err != nil {
		return err
	}
	return nil
}

func (a *AppConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(a.LogLevel)) {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("app.log_level must be one of debug/info/warn/error, got %s", a.LogLevel)
	}
}

func (e *EngineConfig) validate() error {
	if e.TimerInterval < 0 {
		return fmt.Errorf("engine.timer_interval must be >= 0")
	}
	if e.PersistQueueSize <= 0 {
		return fmt.Errorf("engine.persist_queue_size must be > 0")
	}
	return nil
}

func (s *StorageConfig) validate() error {
	if strings.TrimSpace(s.SettingFile) == "" {
		return fmt.Errorf("storage.setting_file cannot be empty")
	}
	if s.UseDocumentStore {
		if strings.TrimSpace(s.DBPath) == "" {
			return fmt.Errorf("storage.db_path is required when use_document_store is on")
		}
		if strings.TrimSpace(s.DBName) == "" {
			return fmt.Errorf("storage.db_name is required when use_document_store is on")
		}
	}
	return nil
}

func (c *ControlConfig) validate() error {
	if !c.Enabled {
		return nil
	}
	if strings.TrimSpace(c.RepAddr) == "" || strings.TrimSpace(c.PubAddr) == "" {
		return fmt.Errorf("control.rep_addr and control.pub_addr are required when control is enabled")
	}
	if c.RepAddr == c.PubAddr && !strings.HasSuffix(c.RepAddr, ":0") {
		return fmt.Errorf("control.rep_addr and control.pub_addr must differ, both %s", c.RepAddr)
	}
	return nil
}

func (s *SimConfig) validate() error {
	seen := make(map[string]struct{}, len(s.Contracts))
	for i, c := range s.Contracts {
		if c.Symbol == "" {
			return fmt.Errorf("sim.contracts[%d] missing symbol", i)
		}
		key := c.Symbol + "." + c.Exchange
		if _, dup := seen[key]; dup {
			return fmt.Errorf("sim.contracts has duplicate contract %s", key)
		}
		seen[key] = struct{}{}
	}
	return nil
}
