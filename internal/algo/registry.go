package algo

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"algoengine/internal/logger"
)

var (
	// ErrUnknownTemplate is returned when a setting names an unregistered template.
	ErrUnknownTemplate = errors.New("unknown algo template")
	// ErrTemplatesFrozen is returned by Register once the table is in use.
	ErrTemplatesFrozen = errors.New("algo template table is frozen")
)

// TemplateError reports the offending template name.
type TemplateError struct {
	Name string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnknownTemplate.Error(), e.Name)
}

func (e *TemplateError) Unwrap() error { return ErrUnknownTemplate }

// Templates maps templateName to a constructor. It is filled at startup and
// frozen once the engine owns it.
type Templates struct {
	mu        sync.RWMutex
	factories map[string]Factory
	frozen    bool
}

func NewTemplates() *Templates {
	return &Templates{factories: make(map[string]Factory)}
}

// Register adds a factory. A second registration for the same name
// replaces the first.
func (t *Templates) Register(name string, f Factory) error {
	name = strings.TrimSpace(name)
	if name == "" || f == nil {
		return fmt.Errorf("algo template requires name and factory")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frozen {
		return ErrTemplatesFrozen
	}
	if _, exists := t.factories[name]; exists {
		logger.Warnf("algo template %s registered twice, replacing", name)
	}
	t.factories[name] = f
	return nil
}

// MustRegister panics on error; meant for static startup tables.
func (t *Templates) MustRegister(name string, f Factory) {
	if err := t.Register(name, f); err != nil {
		panic(err)
	}
}

func (t *Templates) Lookup(name string) (Factory, error) {
	name = strings.TrimSpace(name)
	t.mu.RLock()
	f, ok := t.factories[name]
	t.mu.RUnlock()
	if !ok {
		return nil, &TemplateError{Name: name}
	}
	return f, nil
}

func (t *Templates) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.factories))
	for name := range t.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t *Templates) Freeze() {
	t.mu.Lock()
	t.frozen = true
	t.mu.Unlock()
	logger.Debugf("algo templates frozen: %s", strings.Join(t.Names(), ","))
}
