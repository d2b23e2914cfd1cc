package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"algoengine/internal/algo"
	"algoengine/internal/transport/rpc"

	"github.com/tidwall/gjson"
)

// StartRPC exposes addAlgo, stopAlgo and stopAll and begins mirroring
// var/param events. Only the first successful call starts anything.
func (e *Engine) StartRPC(repAddr, pubAddr string) error {
	e.rpcMu.Lock()
	defer e.rpcMu.Unlock()
	if e.rpc != nil {
		return nil
	}
	srv := rpc.NewServer(rpc.Config{
		RepAddr: repAddr,
		PubAddr: pubAddr,
		Status:  func() any { return e.Status() },
	})
	srv.Register("addAlgo", e.rpcAddAlgo)
	srv.Register("stopAlgo", e.rpcStopAlgo)
	srv.Register("stopAll", e.rpcStopAll)
	if err := srv.Start(); err != nil {
		e.WriteError(fmt.Sprintf("算法交易RPC服务启动失败: %v", err), nil)
		return err
	}
	e.rpc = srv
	e.WriteLog(fmt.Sprintf("算法交易RPC服务启动成功，REP端口:%s，PUB端口:%s", srv.RepAddr(), srv.PubAddr()), nil)
	return nil
}

// RPC returns the running control server, or nil.
func (e *Engine) RPC() *rpc.Server {
	e.rpcMu.Lock()
	defer e.rpcMu.Unlock()
	return e.rpc
}

func (e *Engine) StopRPC(ctx context.Context) error {
	e.rpcMu.Lock()
	srv := e.rpc
	e.rpc = nil
	e.rpcMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Stop(ctx)
}

func (e *Engine) rpcAddAlgo(_ context.Context, params []gjson.Result) (any, error) {
	if len(params) < 1 || !params[0].IsObject() {
		return nil, fmt.Errorf("addAlgo expects a setting object")
	}
	var st algo.Setting
	if err := json.Unmarshal([]byte(params[0].Raw), &st); err != nil {
		return nil, fmt.Errorf("decode setting: %w", err)
	}
	return e.AddAlgo(st)
}

func (e *Engine) rpcStopAlgo(_ context.Context, params []gjson.Result) (any, error) {
	if len(params) < 1 || params[0].String() == "" {
		return nil, fmt.Errorf("stopAlgo expects an algoName")
	}
	e.StopAlgo(params[0].String())
	return nil, nil
}

func (e *Engine) rpcStopAll(context.Context, []gjson.Result) (any, error) {
	e.StopAll()
	return nil, nil
}
