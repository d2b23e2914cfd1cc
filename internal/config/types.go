package config

import (
	"strings"
	"time"
)

// Config 是算法交易引擎的主配置载体。
type Config struct {
	App     AppConfig     `toml:"app" yaml:"app"`
	Engine  EngineConfig  `toml:"engine" yaml:"engine"`
	Storage StorageConfig `toml:"storage" yaml:"storage"`
	Control ControlConfig `toml:"control" yaml:"control"`
	Sim     SimConfig     `toml:"sim" yaml:"sim"`
}

type AppConfig struct {
	Env        string `toml:"env" yaml:"env"`
	LogLevel   string `toml:"log_level" yaml:"log_level"`
	LogPath    string `toml:"log_path" yaml:"log_path"`
	AlgoLogDir string `toml:"algo_log_dir" yaml:"algo_log_dir"`
}

type EngineConfig struct {
	TimerInterval    time.Duration `toml:"timer_interval" yaml:"timer_interval"`
	PersistQueueSize int           `toml:"persist_queue_size" yaml:"persist_queue_size"`
}

// StorageConfig 决定算法配置的存储位置；use_document_store 同时打开历史快照。
type StorageConfig struct {
	UseDocumentStore bool   `toml:"use_document_store" yaml:"use_document_store"`
	SettingFile      string `toml:"setting_file" yaml:"setting_file"`
	DBPath           string `toml:"db_path" yaml:"db_path"`
	DBName           string `toml:"db_name" yaml:"db_name"`
	WatchSettingFile bool   `toml:"watch_setting_file" yaml:"watch_setting_file"`
}

type ControlConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	RepAddr string `toml:"rep_addr" yaml:"rep_addr"`
	PubAddr string `toml:"pub_addr" yaml:"pub_addr"`
	Topic   string `toml:"topic" yaml:"topic"`
}

// SimConfig 配置内置的模拟主引擎。
type SimConfig struct {
	Fill      bool          `toml:"fill" yaml:"fill"`
	Contracts []SimContract `toml:"contracts" yaml:"contracts"`
}

type SimContract struct {
	Symbol   string `toml:"symbol" yaml:"symbol"`
	Exchange string `toml:"exchange" yaml:"exchange"`
	Gateway  string `toml:"gateway" yaml:"gateway"`
	Name     string `toml:"name" yaml:"name,omitempty"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
