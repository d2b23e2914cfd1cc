package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// EnvConfigPath 指定配置文件路径的环境变量
	EnvConfigPath = "ALGOENGINE_CONFIG"
	DefaultPath   = "configs/algoengine.yaml"
)

// PathFromEnv returns $ALGOENGINE_CONFIG, or DefaultPath when unset.
func PathFromEnv() string {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p
	}
	return DefaultPath
}

// Dump writes the effective configuration as YAML.
func Dump(cfg *Config, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}

// Load reads path plus the files it lists under `include` (depth first,
// includes before the including file; later files win), then applies
// defaults and validates.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	var files []string
	if err := walkIncludes(abs, map[string]bool{}, map[string]bool{}, &files); err != nil {
		return nil, err
	}

	v := viper.New()
	for _, file := range files {
		part := viper.New()
		part.SetConfigFile(file)
		if err := part.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", file, err)
		}
		if err := v.MergeConfigMap(part.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging config file failed (%s): %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	setKeys := make(keySet)
	for _, key := range v.AllKeys() {
		setKeys.mark(key)
	}
	cfg.applyDefaults(setKeys)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// walkIncludes appends path and its includes to out in merge order.
func walkIncludes(path string, seen, stack map[string]bool, out *[]string) error {
	path = filepath.Clean(path)
	if stack[path] {
		return fmt.Errorf("include cycle detected: %s", path)
	}
	if seen[path] {
		return nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	stack[path] = true
	for _, inc := range v.GetStringSlice("include") {
		inc = strings.TrimSpace(inc)
		if inc == "" {
			continue
		}
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		if err := walkIncludes(inc, seen, stack, out); err != nil {
			return err
		}
	}
	delete(stack, path)
	seen[path] = true
	*out = append(*out, path)
	return nil
}
