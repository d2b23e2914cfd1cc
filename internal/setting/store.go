package setting

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"algoengine/internal/algo"
	"algoengine/internal/event"
	"algoengine/internal/logger"
	"algoengine/internal/persist"
)

// Publisher is where setting-changed events go.
type Publisher interface {
	Publish(evt event.Event)
}

// Option customizes a Store.
type Option func(*Store)

// WithWriter runs backend writes on w instead of the caller's goroutine.
func WithWriter(w *persist.Writer) Option {
	return func(s *Store) { s.writer = w }
}

// WithReporter routes informational and error messages, typically to the
// engine's WriteLog/WriteError so they reach the event bus.
func WithReporter(info, failure func(content string)) Option {
	return func(s *Store) {
		if info != nil {
			s.info = info
		}
		if failure != nil {
			s.failure = failure
		}
	}
}

// Store is the in-memory setting map. Each mutation updates memory,
// publishes a SettingEvent, then persists.
type Store struct {
	mu       sync.RWMutex
	settings map[string]algo.Setting

	backend Backend
	pub     Publisher
	writer  *persist.Writer
	info    func(string)
	failure func(string)
}

func NewStore(backend Backend, pub Publisher, opts ...Option) *Store {
	s := &Store{
		settings: make(map[string]algo.Setting),
		backend:  backend,
		pub:      pub,
		info:     func(c string) { logger.Infof("%s", c) },
		failure:  func(c string) { logger.Errorf("%s", c) },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) Backend() Backend { return s.backend }

// Load replaces the in-memory map with the backend contents and publishes
// one event per loaded entry. Entries that disappeared are announced as
// deletions.
func (s *Store) Load(ctx context.Context) error {
	return s.LoadFrom(ctx, s.backend)
}

// LoadFrom is Load against another backend, e.g. a settings file while the
// document store is active. Nothing is written back. Queued writes land
// before the backend is read.
func (s *Store) LoadFrom(ctx context.Context, src Backend) error {
	if s.writer != nil {
		if err := s.writer.Flush(ctx); err != nil && !errors.Is(err, persist.ErrClosed) {
			s.failure(fmt.Sprintf("load algo settings from %s: wait for pending writes: %v", src.Name(), err))
			return err
		}
	}
	list, err := src.Load(ctx)
	if err != nil {
		s.failure(fmt.Sprintf("load algo settings from %s failed: %v", src.Name(), err))
		return err
	}
	next := make(map[string]algo.Setting, len(list))
	for _, st := range list {
		name := st.SettingName()
		if name == "" {
			s.failure(fmt.Sprintf("skip algo setting without settingName: %v", st))
			continue
		}
		next[name] = st.Clone()
	}

	s.mu.Lock()
	var removed []string
	for name := range s.settings {
		if _, ok := next[name]; !ok {
			removed = append(removed, name)
		}
	}
	s.settings = next
	loaded := s.sortedLocked()
	s.mu.Unlock()

	for _, st := range loaded {
		s.publish(st.SettingName(), st)
	}
	for _, name := range removed {
		s.publish(name, nil)
	}
	s.info(fmt.Sprintf("load algo settings ok (%s, %d entries)", src.Name(), len(loaded)))
	return nil
}

// Save stores or replaces a setting.
func (s *Store) Save(ctx context.Context, st algo.Setting) error {
	name := st.SettingName()
	if name == "" {
		return ErrMissingSettingName
	}
	cp := st.Clone()
	cp[algo.KeySettingName] = name

	s.mu.Lock()
	s.settings[name] = cp
	all := s.sortedLocked()
	s.mu.Unlock()

	s.publish(name, cp)
	s.persist(ctx, "save setting "+name, func(ctx context.Context) error {
		return s.backend.Save(ctx, all, cp.Clone())
	})
	return nil
}

// Delete removes a setting. Unknown names are logged and ignored.
func (s *Store) Delete(ctx context.Context, st algo.Setting) error {
	name := st.SettingName()
	if name == "" {
		return ErrMissingSettingName
	}
	s.mu.Lock()
	if _, ok := s.settings[name]; !ok {
		s.mu.Unlock()
		s.info(fmt.Sprintf("delete algo setting: %s not found", name))
		return nil
	}
	delete(s.settings, name)
	all := s.sortedLocked()
	s.mu.Unlock()

	s.publish(name, nil)
	s.persist(ctx, "delete setting "+name, func(ctx context.Context) error {
		return s.backend.Delete(ctx, all, name)
	})
	return nil
}

// Export writes the whole in-memory map to a settings file, whatever the
// active backend is. Last writer wins.
func (s *Store) Export(fb *FileBackend) error {
	if err := fb.write(s.Settings()); err != nil {
		s.failure(fmt.Sprintf("save algo settings to %s failed: %v", fb.Path(), err))
		return err
	}
	return nil
}

func (s *Store) Get(name string) (algo.Setting, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.settings[name]
	if !ok {
		return nil, false
	}
	return st.Clone(), true
}

// Settings returns copies sorted by settingName.
func (s *Store) Settings() []algo.Setting {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked()
}

func (s *Store) sortedLocked() []algo.Setting {
	out := make([]algo.Setting, 0, len(s.settings))
	for _, st := range s.settings {
		out = append(out, st.Clone())
	}
	sortSettings(out)
	return out
}

func (s *Store) publish(name string, payload algo.Setting) {
	if s.pub == nil {
		return
	}
	var data map[string]any
	if len(payload) > 0 {
		data = map[string]any(payload.Clone())
		data[algo.KeySettingName] = name
	}
	s.pub.Publish(event.NewSetting(name, data))
}

func (s *Store) persist(ctx context.Context, job string, run func(context.Context) error) {
	if s.writer != nil {
		backend := s.backend.Name()
		err := s.writer.Submit(job, func(ctx context.Context) error {
			if err := run(ctx); err != nil {
				s.failure(fmt.Sprintf("%s via %s failed: %v", job, backend, err))
			}
			return nil
		})
		if err != nil {
			s.failure(fmt.Sprintf("%s not queued: %v", job, err))
		}
		return
	}
	if err := run(ctx); err != nil {
		s.failure(fmt.Sprintf("%s via %s failed: %v", job, s.backend.Name(), err))
	}
}
