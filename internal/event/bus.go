package event

import (
	"runtime/debug"
	"sync"
	"time"

	"algoengine/internal/logger"
)

// Handler consumes one event.
type Handler func(Event)

// Bus is the event channel shared by the main engine and the algo engine.
type Bus interface {
	Register(kind Kind, h Handler)
	Publish(evt Event)
}

const slowHandlerThreshold = 100 * time.Millisecond

type handlerTable struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
	general  []Handler
}

func (t *handlerTable) register(kind Kind, h Handler) {
	if h == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.handlers == nil {
		t.handlers = make(map[Kind][]Handler)
	}
	t.handlers[kind] = append(t.handlers[kind], h)
}

func (t *handlerTable) registerGeneral(h Handler) {
	if h == nil {
		return
	}
	t.mu.Lock()
	t.general = append(t.general, h)
	t.mu.Unlock()
}

func (t *handlerTable) dispatch(evt Event) {
	t.mu.RLock()
	hs := make([]Handler, 0, len(t.handlers[evt.Kind])+len(t.general))
	hs = append(hs, t.handlers[evt.Kind]...)
	hs = append(hs, t.general...)
	t.mu.RUnlock()

	for _, h := range hs {
		invoke(h, evt)
	}
}

func invoke(h Handler, evt Event) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("event handler panic on %s: %v\n%s", evt.Kind, r, debug.Stack())
		}
		if dur := time.Since(start); dur > slowHandlerThreshold {
			logger.Warnf("slow event handler for %s took %v", evt.Kind, dur)
		}
	}()
	h(evt)
}

// SyncBus delivers every event on the publisher's goroutine before Publish
// returns. Used when the caller already serializes event delivery.
type SyncBus struct {
	table handlerTable
}

func NewSyncBus() *SyncBus { return &SyncBus{} }

func (b *SyncBus) Register(kind Kind, h Handler) { b.table.register(kind, h) }

// RegisterGeneral subscribes h to every kind.
func (b *SyncBus) RegisterGeneral(h Handler) { b.table.registerGeneral(h) }

func (b *SyncBus) Publish(evt Event) { b.table.dispatch(evt) }

// Options configures an Engine.
type Options struct {
	// TimerInterval is the period of KindTimer heartbeats; 0 disables them.
	TimerInterval time.Duration
}

// Engine is the asynchronous bus: one goroutine drains an unbounded FIFO
// queue so handlers see events in publish order and never overlap. A
// second goroutine publishes timer heartbeats.
type Engine struct {
	table    handlerTable
	interval time.Duration

	qmu    sync.Mutex
	queue  []Event
	notify chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

func NewEngine(opts Options) *Engine {
	return &Engine{
		interval: opts.TimerInterval,
		notify:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
}

func (e *Engine) Register(kind Kind, h Handler) { e.table.register(kind, h) }

func (e *Engine) RegisterGeneral(h Handler) { e.table.registerGeneral(h) }

// Publish enqueues evt. It never blocks, so handlers may publish freely.
func (e *Engine) Publish(evt Event) {
	select {
	case <-e.stopCh:
		logger.Debugf("event engine stopped, dropping %s", evt.Kind)
		return
	default:
	}
	e.qmu.Lock()
	e.queue = append(e.queue, evt)
	e.qmu.Unlock()
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

func (e *Engine) Start() {
	e.startOnce.Do(func() {
		e.wg.Add(1)
		go e.runLoop()
		if e.interval > 0 {
			e.wg.Add(1)
			go e.runTimer()
		}
		logger.Infof("event engine started (timer=%v)", e.interval)
	})
}

// Stop halts both goroutines. Events still queued are discarded.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
	e.wg.Wait()
}

// Pending returns the number of queued, undelivered events.
func (e *Engine) Pending() int {
	e.qmu.Lock()
	defer e.qmu.Unlock()
	return len(e.queue)
}

func (e *Engine) runLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			logger.Infof("event engine stopping")
			return
		case <-e.notify:
		}
		for {
			batch := e.take()
			if len(batch) == 0 {
				break
			}
			for _, evt := range batch {
				select {
				case <-e.stopCh:
					return
				default:
				}
				e.table.dispatch(evt)
			}
		}
	}
}

func (e *Engine) take() []Event {
	e.qmu.Lock()
	defer e.qmu.Unlock()
	if len(e.queue) == 0 {
		return nil
	}
	batch := e.queue
	e.queue = nil
	return batch
}

func (e *Engine) runTimer() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.Publish(NewTimer())
		}
	}
}

var (
	_ Bus = (*SyncBus)(nil)
	_ Bus = (*Engine)(nil)
)
