package rpc

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"algoengine/internal/event"
	"algoengine/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout  = 10 * time.Second
	subscriberQueue = 64
)

// Message is one frame on the publish channel.
type Message struct {
	Topic string     `json:"topic"`
	Kind  event.Kind `json:"kind"`
	Data  any        `json:"data"`
	Time  time.Time  `json:"time"`
}

// Publish sends evt to every subscriber of topic. It never blocks: a
// subscriber whose queue is full is disconnected.
func (s *Server) Publish(topic string, evt event.Event) {
	if s.hub.count() == 0 {
		return
	}
	raw, err := json.Marshal(Message{Topic: topic, Kind: evt.Kind, Data: payload(evt), Time: time.Now()})
	if err != nil {
		logger.Warnf("rpc publish %s encode failed: %v", evt.Kind, err)
		return
	}
	s.hub.broadcast(topic, raw)
}

// Subscribers returns the number of connected websocket clients.
func (s *Server) Subscribers() int { return s.hub.count() }

func payload(evt event.Event) any {
	switch d := evt.Data.(type) {
	case event.ParamEvent:
		return d.Flat()
	case event.VarEvent:
		return d.Flat()
	default:
		return evt.Data
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handlePub streams messages to one client. ?topic= narrows the stream.
func (s *Server) handlePub(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	sub := &subscriber{
		conn:  conn,
		topic: c.Query("topic"),
		send:  make(chan []byte, subscriberQueue),
		done:  make(chan struct{}),
	}
	s.hub.add(sub)
	defer s.hub.remove(sub)
	go sub.writeLoop()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

type subscriber struct {
	conn  *websocket.Conn
	topic string
	send  chan []byte
	done  chan struct{}
	once  sync.Once
}

func (s *subscriber) wants(topic string) bool {
	return s.topic == "" || s.topic == topic
}

func (s *subscriber) writeLoop() {
	for {
		select {
		case msg := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
				s.close()
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.close()
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

type hub struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[*subscriber]struct{})}
}

func (h *hub) add(s *subscriber) {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
	s.close()
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *hub) broadcast(topic string, msg []byte) {
	var slow []*subscriber
	h.mu.RLock()
	for s := range h.subs {
		if !s.wants(topic) {
			continue
		}
		select {
		case s.send <- msg:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()
	for _, s := range slow {
		logger.Warnf("rpc subscriber %s too slow, disconnected", s.conn.RemoteAddr())
		h.remove(s)
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*subscriber]struct{})
	h.mu.Unlock()
	for s := range subs {
		s.close()
	}
}
