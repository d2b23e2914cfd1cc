package event

import (
	"time"

	"algoengine/internal/gateway/exchange"
)

// Kind 事件类型
type Kind string

const (
	KindTick  Kind = "eTick."
	KindOrder Kind = "eOrder."
	KindTrade Kind = "eTrade."
	KindTimer Kind = "eTimer"

	KindAlgoLog     Kind = "eAlgoLog"
	KindAlgoParam   Kind = "eAlgoParam"
	KindAlgoVar     Kind = "eAlgoVar"
	KindAlgoSetting Kind = "eAlgoSetting"
)

// Event is what travels on the bus. Data holds one of the typed payloads
// below, matching Kind.
type Event struct {
	Kind Kind
	Data any
}

// LogEvent 算法日志
type LogEvent struct {
	Content string    `json:"content"`
	Source  string    `json:"sourceName,omitempty"`
	Time    time.Time `json:"time"`
}

// ParamEvent 算法参数更新
type ParamEvent struct {
	AlgoName string         `json:"algoName"`
	Params   map[string]any `json:"params"`
}

// VarEvent 算法变量更新
type VarEvent struct {
	AlgoName string         `json:"algoName"`
	Vars     map[string]any `json:"vars"`
}

// SettingEvent announces a saved setting. A nil Payload means the setting
// was deleted.
type SettingEvent struct {
	SettingName string         `json:"settingName"`
	Payload     map[string]any `json:"payload"`
}

// Deleted reports whether the event signals removal of the setting.
func (e SettingEvent) Deleted() bool { return len(e.Payload) == 0 }

// Flat merges the params with algoName into one map, the shape remote
// observers receive.
func (e ParamEvent) Flat() map[string]any { return flatten(e.AlgoName, e.Params) }

// Flat merges the vars with algoName into one map.
func (e VarEvent) Flat() map[string]any { return flatten(e.AlgoName, e.Vars) }

func flatten(algoName string, src map[string]any) map[string]any {
	out := make(map[string]any, len(src)+1)
	for k, v := range src {
		out[k] = v
	}
	out["algoName"] = algoName
	return out
}

func NewTick(t *exchange.Tick) Event   { return Event{Kind: KindTick, Data: t} }
func NewOrder(o *exchange.Order) Event { return Event{Kind: KindOrder, Data: o} }
func NewTrade(t *exchange.Trade) Event { return Event{Kind: KindTrade, Data: t} }
func NewTimer() Event                  { return Event{Kind: KindTimer} }

func NewLog(content, source string) Event {
	return Event{Kind: KindAlgoLog, Data: LogEvent{Content: content, Source: source, Time: time.Now()}}
}

func NewParam(algoName string, params map[string]any) Event {
	return Event{Kind: KindAlgoParam, Data: ParamEvent{AlgoName: algoName, Params: params}}
}

func NewVar(algoName string, vars map[string]any) Event {
	return Event{Kind: KindAlgoVar, Data: VarEvent{AlgoName: algoName, Vars: vars}}
}

func NewSetting(settingName string, payload map[string]any) Event {
	return Event{Kind: KindAlgoSetting, Data: SettingEvent{SettingName: settingName, Payload: payload}}
}
