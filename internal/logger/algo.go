package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// AlgoLogs hands out one file-backed logger per algorithm name. Files are
// opened on first use, so algorithms that never fail never touch the disk.
type AlgoLogs struct {
	dir string

	mu      sync.Mutex
	files   map[string]*os.File
	loggers map[string]*slog.Logger
}

func NewAlgoLogs(dir string) *AlgoLogs {
	return &AlgoLogs{
		dir:     strings.TrimSpace(dir),
		files:   make(map[string]*os.File),
		loggers: make(map[string]*slog.Logger),
	}
}

// Get returns the logger for name, creating it if needed. When no directory
// is configured or the file cannot be opened the shared logger is returned
// with an "algo" attribute instead.
func (a *AlgoLogs) Get(name string) *slog.Logger {
	if a == nil {
		return L().With("algo", name)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if l, ok := a.loggers[name]; ok {
		return l
	}
	if a.dir == "" {
		return L().With("algo", name)
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		Warnf("algo log dir %s unavailable: %v", a.dir, err)
		return L().With("algo", name)
	}
	path := filepath.Join(a.dir, fileName(name))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		Warnf("open algo log %s failed: %v", path, err)
		return L().With("algo", name)
	}
	Infof("create algo logger: %s", path)
	l := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	a.files[name] = f
	a.loggers[name] = l
	return l
}

// Has reports whether a dedicated logger was created for name.
func (a *AlgoLogs) Has(name string) bool {
	if a == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.loggers[name]
	return ok
}

func (a *AlgoLogs) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	var firstErr error
	for name, f := range a.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(a.files, name)
		delete(a.loggers, name)
	}
	return firstErr
}

func fileName(name string) string {
	base := unsafeFileChars.ReplaceAllString(strings.TrimSpace(name), "_")
	if base == "" {
		base = "algo"
	}
	return base + ".log"
}
