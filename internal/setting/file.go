package setting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"algoengine/internal/algo"
	"algoengine/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const settingFileSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["settingName", "templateName"],
    "properties": {
      "settingName": {"type": "string", "minLength": 1},
      "templateName": {"type": "string", "minLength": 1}
    }
  }
}`

const watchDebounce = 200 * time.Millisecond

// FileBackend stores the whole collection as one JSON array. Every save
// rewrites the file.
type FileBackend struct {
	path   string
	schema *jsonschema.Schema

	mu          sync.Mutex
	lastWritten []byte
}

func NewFileBackend(path string) (*FileBackend, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("setting file path is empty")
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("algo_setting.json", strings.NewReader(settingFileSchema)); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile("algo_setting.json")
	if err != nil {
		return nil, err
	}
	return &FileBackend{path: path, schema: schema}, nil
}

func (f *FileBackend) Name() string { return "file" }

func (f *FileBackend) Path() string { return f.path }

// Load returns nothing (and no error) when the file does not exist.
func (f *FileBackend) Load(_ context.Context) ([]algo.Setting, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Infof("algo setting file %s not found", f.path)
			return nil, nil
		}
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	return f.decode(raw)
}

func (f *FileBackend) decode(raw []byte) ([]algo.Setting, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSettingFile, f.path, err)
	}
	if err := f.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSettingFile, f.path, err)
	}
	items, _ := doc.([]any)
	out := make([]algo.Setting, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, algo.Setting(m))
	}
	return out, nil
}

func (f *FileBackend) Save(_ context.Context, all []algo.Setting, _ algo.Setting) error {
	return f.write(all)
}

func (f *FileBackend) Delete(_ context.Context, all []algo.Setting, _ string) error {
	return f.write(all)
}

func (f *FileBackend) write(all []algo.Setting) error {
	list := make([]algo.Setting, len(all))
	copy(list, all)
	sortSettings(list)
	if list == nil {
		list = []algo.Setting{}
	}
	data, err := json.MarshalIndent(list, "", "    ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	f.mu.Lock()
	f.lastWritten = data
	f.mu.Unlock()
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Watch calls onChange whenever the file is modified by someone else. It
// returns when ctx is done.
func (f *FileBackend) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		return err
	}
	base := filepath.Base(f.path)
	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(evt.Name) != base {
				continue
			}
			if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			if f.isOwnWrite() {
				continue
			}
			logger.Infof("algo setting file %s changed on disk", f.path)
			onChange()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("algo setting watcher error: %v", err)
		}
	}
}

func (f *FileBackend) isOwnWrite() bool {
	current, err := os.ReadFile(f.path)
	if err != nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastWritten != nil && bytes.Equal(current, f.lastWritten)
}
