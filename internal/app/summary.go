package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	"algoengine/internal/config"
	"algoengine/internal/engine"
)

type StartupSummary struct {
	Env       string
	Templates []string
	Contracts []string
	Backend   string
	Setting   string
	History   bool
	Control   ControlSummary
	Timer     string
}

type ControlSummary struct {
	Enabled bool
	RepAddr string
	PubAddr string
	Topic   string
}

func buildSummary(cfg *config.Config, eng *engine.Engine) *StartupSummary {
	contracts := make([]string, 0, len(cfg.Sim.Contracts))
	for _, c := range cfg.Sim.Contracts {
		contracts = append(contracts, fmt.Sprintf("%s.%s@%s", c.Symbol, c.Exchange, c.Gateway))
	}
	setting := cfg.Storage.SettingFile
	if cfg.Storage.UseDocumentStore {
		setting = fmt.Sprintf("%s/%s", cfg.Storage.DBName, "AlgoSetting")
	}
	return &StartupSummary{
		Env:       cfg.App.Env,
		Templates: eng.Templates().Names(),
		Contracts: contracts,
		Backend:   eng.Status().Backend,
		Setting:   setting,
		History:   cfg.Storage.UseDocumentStore,
		Control: ControlSummary{
			Enabled: cfg.Control.Enabled,
			RepAddr: cfg.Control.RepAddr,
			PubAddr: cfg.Control.PubAddr,
			Topic:   cfg.Control.Topic,
		},
		Timer: cfg.Engine.TimerInterval.String(),
	}
}

func (s *StartupSummary) Print() {
	s.Fprint(os.Stdout)
}

func (s *StartupSummary) Fprint(w io.Writer) {
	title := "启动配置摘要 (STARTUP SUMMARY)"
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%*s\n", 40+len(title)/2, title)
	fmt.Fprintln(w, strings.Repeat("=", 80))

	fmt.Fprintln(w, "[引擎 (ENGINE)]")
	fmt.Fprintf(w, "  环境: %s\n", s.Env)
	fmt.Fprintf(w, "  定时器: %s\n", s.Timer)
	fmt.Fprintf(w, "  算法模板: %s\n", formatList(s.Templates))
	fmt.Fprintf(w, "  合约: %s\n", formatList(s.Contracts))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[存储 (STORAGE)]")
	fmt.Fprintf(w, "  配置后端: %s (%s)\n", s.Backend, s.Setting)
	if s.History {
		fmt.Fprintln(w, "  历史快照: 开启")
	} else {
		fmt.Fprintln(w, "  历史快照: 关闭")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[远程控制 (CONTROL)]")
	if !s.Control.Enabled {
		fmt.Fprintln(w, "  (未启用)")
	} else {
		fmt.Fprintf(w, "  REP: %s\n", s.Control.RepAddr)
		fmt.Fprintf(w, "  PUB: %s (topic=%s)\n", s.Control.PubAddr, s.Control.Topic)
	}
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
