package engine

import (
	"context"

	"algoengine/internal/algo"
	"algoengine/internal/event"
	"algoengine/internal/gateway/exchange"
	"algoengine/internal/logger"
)

// HistorySnapshot is the last var and param payload seen for an instance.
type HistorySnapshot struct {
	AlgoName string
	Var      map[string]any
	Param    map[string]any
}

func (h *HistorySnapshot) document() exchange.Document {
	doc := exchange.Document{"algoName": h.AlgoName}
	if h.Var != nil {
		doc["var"] = copyMap(h.Var)
	}
	if h.Param != nil {
		doc["param"] = copyMap(h.Param)
	}
	return doc
}

// WriteLog publishes a log event. a may be nil for engine messages.
func (e *Engine) WriteLog(content string, a algo.Algo) {
	source := sourceName(a)
	if source != "" {
		logger.Infof("[%s] %s", source, content)
	} else {
		logger.Infof("%s", content)
	}
	e.bus.Publish(event.NewLog(content, source))
}

// WriteError publishes a log event, appends to the instance's own log and
// reports to the main engine.
func (e *Engine) WriteError(content string, a algo.Algo) {
	source := sourceName(a)
	e.bus.Publish(event.NewLog(content, source))
	if a != nil {
		e.algoLogs.Get(source).Error(content)
	} else {
		logger.Errorf("%s", content)
	}
	e.main.WriteError(content)
}

func (e *Engine) PutVarEvent(a algo.Algo, vars map[string]any) {
	name := a.Name()
	data := copyMap(vars)
	evt := event.NewVar(name, data)
	e.bus.Publish(evt)
	e.mirror(evt)
	e.recordHistory(name, func(h *HistorySnapshot) { h.Var = event.VarEvent{AlgoName: name, Vars: data}.Flat() })
}

func (e *Engine) PutParamEvent(a algo.Algo, params map[string]any) {
	name := a.Name()
	data := copyMap(params)
	evt := event.NewParam(name, data)
	e.bus.Publish(evt)
	e.mirror(evt)
	e.recordHistory(name, func(h *HistorySnapshot) { h.Param = event.ParamEvent{AlgoName: name, Params: data}.Flat() })
}

// History returns a copy of the snapshot kept for name.
func (e *Engine) History(name string) (HistorySnapshot, bool) {
	e.historyMu.Lock()
	defer e.historyMu.Unlock()
	h, ok := e.history[name]
	if !ok {
		return HistorySnapshot{}, false
	}
	return HistorySnapshot{AlgoName: h.AlgoName, Var: copyMap(h.Var), Param: copyMap(h.Param)}, true
}

// mirror forwards var/param events to remote observers once the control
// server runs.
func (e *Engine) mirror(evt event.Event) {
	e.rpcMu.Lock()
	srv := e.rpc
	e.rpcMu.Unlock()
	if srv != nil {
		srv.Publish(e.topic, evt)
	}
}

func (e *Engine) recordHistory(name string, update func(*HistorySnapshot)) {
	if e.docs == nil {
		return
	}
	e.historyMu.Lock()
	h, ok := e.history[name]
	if !ok {
		h = &HistorySnapshot{AlgoName: name}
		e.history[name] = h
	}
	update(h)
	doc := h.document()
	e.historyMu.Unlock()

	filter := exchange.Document{"algoName": name}
	err := e.writer.Submit("history "+name, func(ctx context.Context) error {
		if err := e.docs.Upsert(ctx, e.dbName, HistoryCollection, doc, filter); err != nil {
			logger.Errorf("save algo history %s failed: %v", name, err)
		}
		return nil
	})
	if err != nil {
		logger.Warnf("algo history %s not queued: %v", name, err)
	}
}

func sourceName(a algo.Algo) string {
	if a == nil {
		return ""
	}
	return a.Name()
}

func copyMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
