// Package rpc is the remote control surface: a request/reply endpoint that
// runs registered procedures and a websocket endpoint streaming events.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"algoengine/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
)

var (
	ErrUnknownMethod = errors.New("unknown rpc method")
	ErrBadRequest    = errors.New("bad rpc request")
)

const maxRequestBody = 1 << 20

// Method is one remotely callable procedure. params holds the raw entries
// of the request's "params" array.
type Method func(ctx context.Context, params []gjson.Result) (any, error)

type Config struct {
	RepAddr string
	PubAddr string
	// Status backs GET /status when set.
	Status func() any
}

// Reply 是 /rpc 的响应体
type Reply struct {
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

type Server struct {
	cfg       Config
	repRouter *gin.Engine
	pubRouter *gin.Engine
	hub       *hub

	methodsMu sync.RWMutex
	methods   map[string]Method

	mu      sync.Mutex
	started bool
	repSrv  *http.Server
	pubSrv  *http.Server
	repAddr string
	pubAddr string
}

func NewServer(cfg Config) *Server {
	if cfg.RepAddr == "" {
		cfg.RepAddr = ":2014"
	}
	if cfg.PubAddr == "" {
		cfg.PubAddr = ":2015"
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		cfg:     cfg,
		hub:     newHub(),
		methods: make(map[string]Method),
	}

	s.repRouter = gin.New()
	s.repRouter.Use(gin.Recovery(), requestLogger())
	s.repRouter.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.repRouter.GET("/status", s.handleStatus)
	s.repRouter.GET("/methods", func(c *gin.Context) {
		c.JSON(http.StatusOK, Reply{OK: true, Result: s.Methods()})
	})
	s.repRouter.POST("/rpc", s.handleCall)

	s.pubRouter = gin.New()
	s.pubRouter.Use(gin.Recovery())
	s.pubRouter.GET("/pub", s.handlePub)
	return s
}

// Register adds or replaces a procedure.
func (s *Server) Register(name string, m Method) {
	if name == "" || m == nil {
		return
	}
	s.methodsMu.Lock()
	s.methods[name] = m
	s.methodsMu.Unlock()
}

func (s *Server) Methods() []string {
	s.methodsMu.RLock()
	defer s.methodsMu.RUnlock()
	out := make([]string, 0, len(s.methods))
	for name := range s.methods {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *Server) RepHandler() http.Handler { return s.repRouter }

func (s *Server) PubHandler() http.Handler { return s.pubRouter }

// Start binds both endpoints and serves them in the background. Calling it
// again on a running server does nothing.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	repLn, err := net.Listen("tcp", s.cfg.RepAddr)
	if err != nil {
		return fmt.Errorf("listen rep %s: %w", s.cfg.RepAddr, err)
	}
	pubLn, err := net.Listen("tcp", s.cfg.PubAddr)
	if err != nil {
		_ = repLn.Close()
		return fmt.Errorf("listen pub %s: %w", s.cfg.PubAddr, err)
	}
	s.repSrv = &http.Server{Handler: s.repRouter, ReadHeaderTimeout: 5 * time.Second}
	s.pubSrv = &http.Server{Handler: s.pubRouter, ReadHeaderTimeout: 5 * time.Second}
	s.repAddr = repLn.Addr().String()
	s.pubAddr = pubLn.Addr().String()
	go serve("rep", s.repSrv, repLn)
	go serve("pub", s.pubSrv, pubLn)
	s.started = true
	return nil
}

func serve(name string, srv *http.Server, ln net.Listener) {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("rpc %s endpoint stopped: %v", name, err)
	}
}

// RepAddr returns the bound request/reply address, empty before Start.
func (s *Server) RepAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repAddr
}

func (s *Server) PubAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pubAddr
}

// Stop shuts both endpoints and disconnects every subscriber.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	repSrv, pubSrv := s.repSrv, s.pubSrv
	s.started = false
	s.repSrv, s.pubSrv = nil, nil
	s.mu.Unlock()

	s.hub.closeAll()
	return errors.Join(repSrv.Shutdown(ctx), pubSrv.Shutdown(ctx))
}

func (s *Server) handleCall(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBody))
	if err != nil || !gjson.ValidBytes(body) {
		c.JSON(http.StatusBadRequest, Reply{Error: fmt.Sprintf("%v: invalid json body", ErrBadRequest)})
		return
	}
	method := gjson.GetBytes(body, "method")
	if method.Type != gjson.String || method.String() == "" {
		c.JSON(http.StatusBadRequest, Reply{Error: fmt.Sprintf("%v: method is required", ErrBadRequest)})
		return
	}
	var params []gjson.Result
	if p := gjson.GetBytes(body, "params"); p.IsArray() {
		params = p.Array()
	} else if p.Exists() && p.Type != gjson.Null {
		params = []gjson.Result{p}
	}

	result, err := s.Call(c.Request.Context(), method.String(), params)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrUnknownMethod) {
			status = http.StatusNotFound
		}
		c.JSON(status, Reply{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, Reply{OK: true, Result: result})
}

// Call runs a registered procedure. Panics come back as errors.
func (s *Server) Call(ctx context.Context, name string, params []gjson.Result) (result any, err error) {
	s.methodsMu.RLock()
	m, ok := s.methods[name]
	s.methodsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, name)
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("rpc %s panic: %v\n%s", name, r, debug.Stack())
			result, err = nil, fmt.Errorf("rpc %s panic: %v", name, r)
		}
	}()
	return m(ctx, params)
}

func (s *Server) handleStatus(c *gin.Context) {
	if s.cfg.Status == nil {
		c.JSON(http.StatusNotFound, Reply{Error: "status unavailable"})
		return
	}
	c.JSON(http.StatusOK, Reply{OK: true, Result: s.cfg.Status()})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("RPC %s %s status=%d ip=%s dur=%s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}
