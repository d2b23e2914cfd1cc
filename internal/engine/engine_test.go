package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"algoengine/internal/algo"
	"algoengine/internal/event"
	"algoengine/internal/gateway/exchange"
	"algoengine/internal/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	rb = "rb2405.SHFE"
	ag = "ag2406.SHFE"
)

type mockMain struct {
	mock.Mock
}

func (m *mockMain) GetContract(vtSymbol string) (*exchange.Contract, bool) {
	args := m.Called(vtSymbol)
	c, _ := args.Get(0).(*exchange.Contract)
	return c, args.Bool(1)
}

func (m *mockMain) Subscribe(req exchange.SubscribeRequest, gatewayName string) {
	m.Called(req, gatewayName)
}

func (m *mockMain) SendOrder(req exchange.OrderRequest, gatewayName string) (string, error) {
	args := m.Called(req, gatewayName)
	return args.String(0), args.Error(1)
}

func (m *mockMain) GetOrder(vtOrderID string) (*exchange.Order, bool) {
	args := m.Called(vtOrderID)
	o, _ := args.Get(0).(*exchange.Order)
	return o, args.Bool(1)
}

func (m *mockMain) CancelOrder(req exchange.CancelRequest, gatewayName string) error {
	return m.Called(req, gatewayName).Error(0)
}

func (m *mockMain) GetTick(vtSymbol string) (*exchange.Tick, bool) {
	args := m.Called(vtSymbol)
	t, _ := args.Get(0).(*exchange.Tick)
	return t, args.Bool(1)
}

func (m *mockMain) WriteError(content string) { m.Called(content) }

func contract(vtSymbol, symbol string) *exchange.Contract {
	return &exchange.Contract{VtSymbol: vtSymbol, Symbol: symbol, Exchange: "SHFE", GatewayName: "CTP"}
}

// fakeAlgo records every hook it receives.
type fakeAlgo struct {
	name string

	mu          sync.Mutex
	ticks       []*exchange.Tick
	orders      []*exchange.Order
	trades      []*exchange.Trade
	timers      int
	stops       int
	panicOnTick bool
}

func (f *fakeAlgo) Name() string { return f.name }

func (f *fakeAlgo) UpdateTick(t *exchange.Tick) {
	if f.panicOnTick {
		panic("bad tick")
	}
	f.mu.Lock()
	f.ticks = append(f.ticks, t)
	f.mu.Unlock()
}

func (f *fakeAlgo) UpdateOrder(o *exchange.Order) {
	f.mu.Lock()
	f.orders = append(f.orders, o)
	f.mu.Unlock()
}

func (f *fakeAlgo) UpdateTrade(t *exchange.Trade) {
	f.mu.Lock()
	f.trades = append(f.trades, t)
	f.mu.Unlock()
}

func (f *fakeAlgo) UpdateTimer() {
	f.mu.Lock()
	f.timers++
	f.mu.Unlock()
}

func (f *fakeAlgo) Stop() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
}

func (f *fakeAlgo) counts() (ticks, orders, trades, timers, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ticks), len(f.orders), len(f.trades), f.timers, f.stops
}

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) record(evt event.Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func (r *recorder) ofKind(kind event.Kind) []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.Event
	for _, evt := range r.events {
		if evt.Kind == kind {
			out = append(out, evt)
		}
	}
	return out
}

type fixture struct {
	eng   *Engine
	main  *mockMain
	bus   *event.SyncBus
	rec   *recorder
	mu    sync.Mutex
	algos map[string]*fakeAlgo
}

func (f *fixture) algo(name string) *fakeAlgo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.algos[name]
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		main:  &mockMain{},
		bus:   event.NewSyncBus(),
		rec:   &recorder{},
		algos: make(map[string]*fakeAlgo),
	}
	f.main.On("WriteError", mock.Anything).Maybe()
	f.main.On("GetContract", rb).Return(contract(rb, "rb2405"), true).Maybe()
	f.main.On("GetContract", ag).Return(contract(ag, "ag2406"), true).Maybe()
	f.main.On("GetContract", mock.Anything).Return(nil, false).Maybe()
	f.main.On("Subscribe", mock.Anything, "CTP").Maybe()
	f.bus.RegisterGeneral(f.rec.record)

	templates := algo.NewTemplates()
	templates.MustRegister("Fake", func(eng algo.Engine, s algo.Setting) (algo.Algo, error) {
		a := &fakeAlgo{name: algo.NewAlgoName("Fake")}
		if sym, ok := s["vtSymbol"].(string); ok {
			eng.Subscribe(a, sym)
		}
		f.mu.Lock()
		f.algos[a.name] = a
		f.mu.Unlock()
		return a, nil
	})
	// Fixed reuses the name given in the setting.
	templates.MustRegister("Fixed", func(eng algo.Engine, s algo.Setting) (algo.Algo, error) {
		a := &fakeAlgo{name: s["name"].(string)}
		if sym, ok := s["vtSymbol"].(string); ok {
			eng.Subscribe(a, sym)
		}
		f.mu.Lock()
		f.algos[a.name] = a
		f.mu.Unlock()
		return a, nil
	})
	templates.MustRegister("Broken", func(eng algo.Engine, s algo.Setting) (algo.Algo, error) {
		eng.Subscribe(&fakeAlgo{name: algo.NewAlgoName("Broken")}, s["vtSymbol"].(string))
		return nil, errors.New("bad params")
	})

	cfg := Config{
		SettingFile: filepath.Join(dir, "Algo_setting.json"),
		AlgoLogs:    logger.NewAlgoLogs(filepath.Join(dir, "algo_logs")),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	eng, err := New(f.main, f.bus, templates, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close(context.Background()) })
	f.eng = eng
	return f
}

func (f *fixture) add(t *testing.T, vtSymbol string) *fakeAlgo {
	t.Helper()
	s := algo.Setting{"templateName": "Fake"}
	if vtSymbol != "" {
		s["vtSymbol"] = vtSymbol
	}
	name, err := f.eng.AddAlgo(s)
	require.NoError(t, err)
	a := f.algo(name)
	require.NotNil(t, a)
	return a
}

func TestAddAlgo_UnknownTemplate(t *testing.T) {
	f := newFixture(t)
	name, err := f.eng.AddAlgo(algo.Setting{"templateName": "Iceberg"})
	assert.ErrorIs(t, err, algo.ErrUnknownTemplate)
	assert.Empty(t, name)
	assert.Empty(t, f.eng.Registry().Names())
	assert.NotEmpty(t, f.rec.ofKind(event.KindAlgoLog))
}

func TestAddAlgo_ActivatesInstance(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "")
	assert.Contains(t, a.Name(), "Fake_")
	got, ok := f.eng.Registry().Get(a.Name())
	require.True(t, ok)
	assert.Same(t, a, got)
}

func TestSubscribe_OnceUpstreamPerSymbol(t *testing.T) {
	f := newFixture(t)
	a1 := f.add(t, rb)
	a2 := f.add(t, rb)
	a3 := f.add(t, ag)

	f.main.AssertNumberOfCalls(t, "Subscribe", 2)
	f.main.AssertCalled(t, "Subscribe", exchange.SubscribeRequest{Symbol: "rb2405", Exchange: "SHFE"}, "CTP")
	assert.Equal(t, []string{ag, rb}, f.eng.Registry().Symbols())

	f.bus.Publish(event.NewTick(&exchange.Tick{VtSymbol: rb, LastPrice: decimal.NewFromInt(3500)}))
	for _, a := range []*fakeAlgo{a1, a2} {
		ticks, _, _, _, _ := a.counts()
		assert.Equal(t, 1, ticks, a.Name())
	}
	ticks, _, _, _, _ := a3.counts()
	assert.Zero(t, ticks)
}

func TestSubscribe_MissingContract(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "zz.NOWHERE")
	f.main.AssertNotCalled(t, "Subscribe", mock.Anything, mock.Anything)
	assert.Empty(t, f.eng.Registry().Subscribers("zz.NOWHERE"))
	ticks, _, _, _, _ := a.counts()
	assert.Zero(t, ticks)
}

func TestSendOrder_RoutesUpdatesToOwner(t *testing.T) {
	f := newFixture(t)
	owner := f.add(t, "")
	other := f.add(t, "")

	f.main.On("SendOrder", mock.Anything, "CTP").Return("CTP.1", nil).Once()
	id, err := f.eng.Buy(owner, rb, decimal.NewFromInt(3500), decimal.NewFromInt(2))
	require.NoError(t, err)
	assert.Equal(t, "CTP.1", id)

	req := f.main.Calls[len(f.main.Calls)-1].Arguments.Get(0).(exchange.OrderRequest)
	assert.Equal(t, exchange.DirectionLong, req.Direction)
	assert.Equal(t, exchange.PriceTypeLimit, req.PriceType)
	assert.Equal(t, exchange.OffsetOpen, req.Offset)
	assert.Equal(t, "rb2405", req.Symbol)
	assert.True(t, req.Volume.Equal(decimal.NewFromInt(2)))

	got, ok := f.eng.Registry().Owner("CTP.1")
	require.True(t, ok)
	assert.Same(t, owner, got)

	f.bus.Publish(event.NewTrade(&exchange.Trade{VtOrderID: "CTP.1", Volume: decimal.NewFromInt(2)}))
	f.bus.Publish(event.NewOrder(&exchange.Order{VtOrderID: "CTP.1", Status: exchange.StatusAllTraded}))
	f.bus.Publish(event.NewOrder(&exchange.Order{VtOrderID: "CTP.unknown"}))

	_, orders, trades, _, _ := owner.counts()
	assert.Equal(t, 1, orders)
	assert.Equal(t, 1, trades)
	_, orders, trades, _, _ = other.counts()
	assert.Zero(t, orders)
	assert.Zero(t, trades)
}

func TestSendOrder_Options(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "")
	f.main.On("SendOrder", mock.MatchedBy(func(r exchange.OrderRequest) bool {
		return r.Direction == exchange.DirectionShort && r.PriceType == exchange.PriceTypeMarket && r.Offset == exchange.OffsetCloseToday
	}), "CTP").Return("CTP.9", nil).Once()

	id, err := f.eng.Sell(a, rb, decimal.NewFromInt(3490), decimal.NewFromInt(1),
		algo.WithPriceType(exchange.PriceTypeMarket), algo.WithOffset(exchange.OffsetCloseToday))
	require.NoError(t, err)
	assert.Equal(t, "CTP.9", id)
	f.main.AssertExpectations(t)
}

func TestSendOrder_MissingContractFailsClosed(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "")
	id, err := f.eng.Buy(a, "zz.NOWHERE", decimal.NewFromInt(1), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrContractNotFound)
	assert.Empty(t, id)
	f.main.AssertNotCalled(t, "SendOrder", mock.Anything, mock.Anything)
	assert.Zero(t, f.eng.Registry().OrderCount())
	logs := f.rec.ofKind(event.KindAlgoLog)
	require.NotEmpty(t, logs)
	assert.Equal(t, a.Name(), logs[len(logs)-1].Data.(event.LogEvent).Source)
}

func TestSendOrder_EmptyOrderID(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "")
	f.main.On("SendOrder", mock.Anything, "CTP").Return("", nil).Once()
	_, err := f.eng.Buy(a, rb, decimal.NewFromInt(1), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrEmptyOrderID)
	assert.Zero(t, f.eng.Registry().OrderCount())
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "")
	f.main.On("GetOrder", "CTP.404").Return(nil, false).Once()
	assert.ErrorIs(t, f.eng.CancelOrder(a, "CTP.404"), ErrOrderNotFound)
	f.main.AssertNotCalled(t, "CancelOrder", mock.Anything, mock.Anything)

	f.main.On("GetOrder", "CTP.7").Return(&exchange.Order{
		VtOrderID: "CTP.7", OrderID: "7", Symbol: "rb2405", Exchange: "SHFE",
		GatewayName: "CTP", FrontID: "1", SessionID: "42",
	}, true).Once()
	want := exchange.CancelRequest{Symbol: "rb2405", Exchange: "SHFE", OrderID: "7", FrontID: "1", SessionID: "42"}
	f.main.On("CancelOrder", want, "CTP").Return(nil).Once()
	require.NoError(t, f.eng.CancelOrder(a, "CTP.7"))
	f.main.AssertExpectations(t)
}

func TestStopAlgo_RetainsOwnershipDropsUpdates(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, rb)
	f.main.On("SendOrder", mock.Anything, "CTP").Return("CTP.3", nil).Once()
	_, err := f.eng.Buy(a, rb, decimal.NewFromInt(1), decimal.NewFromInt(1))
	require.NoError(t, err)

	f.eng.StopAlgo(a.Name())
	f.eng.StopAlgo(a.Name())
	_, _, _, _, stops := a.counts()
	assert.Equal(t, 1, stops)
	_, ok := f.eng.Registry().Get(a.Name())
	assert.False(t, ok)

	owner, ok := f.eng.Registry().Owner("CTP.3")
	require.True(t, ok)
	assert.Same(t, a, owner)

	f.main.On("GetOrder", "CTP.3").Return(&exchange.Order{
		VtOrderID: "CTP.3", OrderID: "3", Symbol: "rb2405", Exchange: "SHFE",
		GatewayName: "CTP", FrontID: "1", SessionID: "42",
	}, true).Once()
	f.main.On("CancelOrder", exchange.CancelRequest{
		Symbol: "rb2405", Exchange: "SHFE", OrderID: "3", FrontID: "1", SessionID: "42",
	}, "CTP").Return(nil).Once()
	require.NoError(t, f.eng.CancelOrder(a, "CTP.3"))
	f.main.AssertExpectations(t)

	f.bus.Publish(event.NewOrder(&exchange.Order{VtOrderID: "CTP.3"}))
	f.bus.Publish(event.NewTrade(&exchange.Trade{VtOrderID: "CTP.3"}))
	f.bus.Publish(event.NewTick(&exchange.Tick{VtSymbol: rb}))
	ticks, orders, trades, _, _ := a.counts()
	assert.Zero(t, ticks)
	assert.Zero(t, orders)
	assert.Zero(t, trades)

	// the symbol set survives, so a newcomer does not re-subscribe upstream
	f.add(t, rb)
	f.main.AssertNumberOfCalls(t, "Subscribe", 1)
}

func TestAddAlgo_DuplicateNameKeepsLiveSubscription(t *testing.T) {
	f := newFixture(t)
	st := algo.Setting{"templateName": "Fixed", "name": "Fixed_1", "vtSymbol": rb}
	name, err := f.eng.AddAlgo(st)
	require.NoError(t, err)
	live := f.algo(name)

	_, err = f.eng.AddAlgo(st)
	assert.ErrorIs(t, err, ErrDuplicateAlgo)
	assert.Equal(t, []string{"Fixed_1"}, f.eng.Registry().Names())

	subs := f.eng.Registry().Subscribers(rb)
	require.Len(t, subs, 1)
	assert.Same(t, live, subs[0])
	f.main.AssertNumberOfCalls(t, "Subscribe", 1)

	f.bus.Publish(event.NewTick(&exchange.Tick{VtSymbol: rb}))
	ticks, _, _, _, _ := live.counts()
	assert.Equal(t, 1, ticks)
}

func TestAddAlgo_FactoryErrorLeavesNoSubscription(t *testing.T) {
	f := newFixture(t)
	_, err := f.eng.AddAlgo(algo.Setting{"templateName": "Broken", "vtSymbol": ag})
	require.Error(t, err)
	assert.Empty(t, f.eng.Registry().Names())
	assert.Empty(t, f.eng.Registry().Symbols())
	f.main.AssertNotCalled(t, "Subscribe", mock.Anything, mock.Anything)
}

func TestRegistry_UnsubscribeMatchesInstance(t *testing.T) {
	r := NewRegistry()
	live := &fakeAlgo{name: "Fake_1"}
	stale := &fakeAlgo{name: "Fake_1"}
	r.AddSubscriber(rb, live)

	r.Unsubscribe(stale)
	subs := r.Subscribers(rb)
	require.Len(t, subs, 1)
	assert.Same(t, live, subs[0])

	r.Unsubscribe(live)
	assert.Empty(t, r.Subscribers(rb))
	assert.Equal(t, []string{rb}, r.Symbols())
}

func TestStopAll(t *testing.T) {
	f := newFixture(t)
	a1 := f.add(t, "")
	a2 := f.add(t, rb)
	f.eng.StopAll()
	assert.Empty(t, f.eng.Registry().Names())
	for _, a := range []*fakeAlgo{a1, a2} {
		_, _, _, _, stops := a.counts()
		assert.Equal(t, 1, stops)
	}
	f.eng.StopAll()
}

func TestTimer_BroadcastAndPanicIsolation(t *testing.T) {
	f := newFixture(t)
	bad := f.add(t, rb)
	bad.panicOnTick = true
	good := f.add(t, rb)

	f.bus.Publish(event.NewTimer())
	f.bus.Publish(event.NewTick(&exchange.Tick{VtSymbol: rb}))

	for _, a := range []*fakeAlgo{bad, good} {
		_, _, _, timers, _ := a.counts()
		assert.Equal(t, 1, timers)
	}
	ticks, _, _, _, _ := good.counts()
	assert.Equal(t, 1, ticks)

	var sawPanic bool
	for _, evt := range f.rec.ofKind(event.KindAlgoLog) {
		if le := evt.Data.(event.LogEvent); le.Source == bad.Name() {
			sawPanic = true
		}
	}
	assert.True(t, sawPanic)
	f.main.AssertCalled(t, "WriteError", mock.Anything)
}

func TestWriteErrorCreatesAlgoLog(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "")
	logs := f.eng.algoLogs
	assert.False(t, logs.Has(a.Name()))

	f.eng.WriteLog("hello", a)
	assert.False(t, logs.Has(a.Name()))

	f.eng.WriteError("boom", a)
	assert.True(t, logs.Has(a.Name()))
	f.main.AssertCalled(t, "WriteError", "boom")

	entries := f.rec.ofKind(event.KindAlgoLog)
	require.GreaterOrEqual(t, len(entries), 2)
	last := entries[len(entries)-1].Data.(event.LogEvent)
	assert.Equal(t, "boom", last.Content)
	assert.Equal(t, a.Name(), last.Source)
}

func TestGetTickAndContract(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "")
	f.main.On("GetTick", rb).Return(&exchange.Tick{VtSymbol: rb}, true).Once()
	f.main.On("GetTick", ag).Return(nil, false).Once()

	tick, ok := f.eng.GetTick(a, rb)
	require.True(t, ok)
	assert.Equal(t, rb, tick.VtSymbol)
	_, ok = f.eng.GetTick(a, ag)
	assert.False(t, ok)

	c, ok := f.eng.GetContract(a, rb)
	require.True(t, ok)
	assert.Equal(t, "rb2405", c.Symbol)
	_, ok = f.eng.GetContract(a, "zz.NOWHERE")
	assert.False(t, ok)
}

func TestPutVarEvent_PublishesWithoutHistory(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "")
	f.eng.PutVarEvent(a, map[string]any{"tradedVolume": 1})
	vars := f.rec.ofKind(event.KindAlgoVar)
	require.Len(t, vars, 1)
	ve := vars[0].Data.(event.VarEvent)
	assert.Equal(t, a.Name(), ve.AlgoName)
	assert.Equal(t, 1, ve.Vars["tradedVolume"])
	_, ok := f.eng.History(a.Name())
	assert.False(t, ok)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, rb)
	st := f.eng.Status()
	assert.Equal(t, []string{a.Name()}, st.Active)
	assert.Equal(t, []string{rb}, st.Symbols)
	assert.Equal(t, []string{"Fake"}, st.Templates)
	assert.Equal(t, "file", st.Backend)
}

func TestConcurrentDispatch(t *testing.T) {
	f := newFixture(t)
	f.main.On("SendOrder", mock.Anything, "CTP").Return("CTP.x", nil).Maybe()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name, err := f.eng.AddAlgo(algo.Setting{"templateName": "Fake", "vtSymbol": rb})
			if err != nil {
				return
			}
			a := f.algo(name)
			f.bus.Publish(event.NewTick(&exchange.Tick{VtSymbol: rb}))
			f.bus.Publish(event.NewTimer())
			_, _ = f.eng.Buy(a, rb, decimal.NewFromInt(1), decimal.NewFromInt(1))
			f.eng.StopAlgo(name)
		}()
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch deadlocked")
	}
	assert.Empty(t, f.eng.Registry().Names())
	f.main.AssertNumberOfCalls(t, "Subscribe", 1)
}
