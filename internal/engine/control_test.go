package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"algoengine/internal/algo"
	"algoengine/internal/event"
	"algoengine/internal/persist"
	"algoengine/internal/setting"
	"algoengine/internal/store/gormstore"
	"algoengine/internal/transport/rpc"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rpcCall(t *testing.T, addr, body string) (int, rpc.Reply) {
	t.Helper()
	resp, err := http.Post("http://"+addr+"/rpc", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var r rpc.Reply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&r))
	return resp.StatusCode, r
}

func TestStartRPC_ControlAndMirror(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.eng.StartRPC("127.0.0.1:0", "127.0.0.1:0"))
	srv := f.eng.RPC()
	require.NotNil(t, srv)
	require.NoError(t, f.eng.StartRPC("127.0.0.1:0", "127.0.0.1:0"))
	assert.Same(t, srv, f.eng.RPC())

	status, r := rpcCall(t, srv.RepAddr(), `{"method":"addAlgo","params":[{"templateName":"Iceberg"}]}`)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, r.Error, "unknown algo template")

	status, r = rpcCall(t, srv.RepAddr(), `{"method":"addAlgo","params":[{"templateName":"Fake"}]}`)
	require.Equal(t, http.StatusOK, status, r.Error)
	name, _ := r.Result.(string)
	require.NotEmpty(t, name)
	a := f.algo(name)
	require.NotNil(t, a)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+srv.PubAddr()+"/pub?topic=AlgoTrading", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return srv.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	f.eng.PutParamEvent(a, map[string]any{"volume": 10})
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg rpc.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "AlgoTrading", msg.Topic)
	assert.Equal(t, event.KindAlgoParam, msg.Kind)
	data := msg.Data.(map[string]any)
	assert.Equal(t, name, data["algoName"])
	assert.Equal(t, float64(10), data["volume"])

	status, _ = rpcCall(t, srv.RepAddr(), `{"method":"stopAlgo","params":["`+name+`"]}`)
	assert.Equal(t, http.StatusOK, status)
	_, _, _, _, stops := a.counts()
	assert.Equal(t, 1, stops)

	status, _ = rpcCall(t, srv.RepAddr(), `{"method":"stopAll"}`)
	assert.Equal(t, http.StatusOK, status)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.eng.StopRPC(ctx))
	assert.Nil(t, f.eng.RPC())
}

func TestHistory_PersistedToDocumentStore(t *testing.T) {
	store, err := gormstore.NewGormStore(filepath.Join(t.TempDir(), "algo.db"))
	require.NoError(t, err)
	defer store.Close()
	w := persist.NewWriter(16, nil)
	defer w.Close()

	f := newFixture(t, func(c *Config) {
		c.Documents = store
		c.Writer = w
	})
	a := f.add(t, "")
	f.eng.PutParamEvent(a, map[string]any{"volume": 10})
	f.eng.PutVarEvent(a, map[string]any{"tradedVolume": 4})
	f.eng.PutVarEvent(a, map[string]any{"tradedVolume": 6})

	h, ok := f.eng.History(a.Name())
	require.True(t, ok)
	assert.Equal(t, 6, h.Var["tradedVolume"])
	assert.Equal(t, 10, h.Param["volume"])

	ctx := context.Background()
	require.NoError(t, f.eng.Flush(ctx))
	docs, err := store.Query(ctx, DefaultDBName, HistoryCollection, map[string]any{"algoName": a.Name()}, "")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, a.Name(), docs[0]["algoName"])
	assert.Equal(t, float64(6), docs[0]["var"].(map[string]any)["tradedVolume"])
	assert.Equal(t, float64(10), docs[0]["param"].(map[string]any)["volume"])
}

func TestSettingsGlue(t *testing.T) {
	store, err := gormstore.NewGormStore(filepath.Join(t.TempDir(), "algo.db"))
	require.NoError(t, err)
	defer store.Close()

	f := newFixture(t, func(c *Config) {
		c.Settings = setting.NewDocumentBackend(store, DefaultDBName)
		c.Documents = store
	})
	ctx := context.Background()
	assert.ErrorIs(t, f.eng.SaveAlgoSetting(ctx, algo.Setting{"templateName": "Twap"}), setting.ErrMissingSettingName)

	require.NoError(t, f.eng.SaveAlgoSetting(ctx, algo.Setting{"settingName": "T1", "templateName": "Twap", "volume": 10.0}))
	require.NoError(t, f.eng.SaveAlgoSetting(ctx, algo.Setting{"settingName": "T2", "templateName": "Twap"}))
	require.NoError(t, f.eng.DeleteAlgoSetting(ctx, algo.Setting{"settingName": "T2"}))
	require.NoError(t, f.eng.Flush(ctx))

	evts := f.rec.ofKind(event.KindAlgoSetting)
	require.Len(t, evts, 3)
	last := evts[2].Data.(event.SettingEvent)
	assert.Equal(t, "T2", last.SettingName)
	assert.True(t, last.Deleted())

	require.NoError(t, f.eng.SaveAlgoSettingToFile())
	require.NoError(t, f.eng.DeleteAlgoSetting(ctx, algo.Setting{"settingName": "T1"}))
	assert.Empty(t, f.eng.Settings())

	require.NoError(t, f.eng.LoadAlgoSettingFromFile(ctx))
	st, ok := f.eng.Setting("T1")
	require.True(t, ok)
	assert.Equal(t, 10.0, st["volume"])

	require.NoError(t, f.eng.Flush(ctx))
	require.NoError(t, f.eng.LoadAlgoSetting(ctx))
	assert.Empty(t, f.eng.Settings())
	assert.Equal(t, "document", f.eng.Status().Backend)
}
