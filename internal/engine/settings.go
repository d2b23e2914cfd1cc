package engine

import (
	"context"

	"algoengine/internal/algo"
	"algoengine/internal/setting"
)

func (e *Engine) LoadAlgoSetting(ctx context.Context) error {
	return e.settings.Load(ctx)
}

func (e *Engine) SaveAlgoSetting(ctx context.Context, st algo.Setting) error {
	return e.settings.Save(ctx, st)
}

func (e *Engine) DeleteAlgoSetting(ctx context.Context, st algo.Setting) error {
	return e.settings.Delete(ctx, st)
}

// SaveAlgoSettingToFile writes every in-memory setting to the settings file.
func (e *Engine) SaveAlgoSettingToFile() error {
	if err := e.settings.Export(e.settingFile); err != nil {
		return err
	}
	e.WriteLog("algo settings saved to "+e.settingFile.Path(), nil)
	return nil
}

// LoadAlgoSettingFromFile replaces the in-memory settings with the file
// contents. The active backend is not rewritten.
func (e *Engine) LoadAlgoSettingFromFile(ctx context.Context) error {
	return e.settings.LoadFrom(ctx, e.settingFile)
}

func (e *Engine) Settings() []algo.Setting { return e.settings.Settings() }

func (e *Engine) Setting(name string) (algo.Setting, bool) { return e.settings.Get(name) }

// WatchSettingFile reloads from the settings file whenever another process
// rewrites it. It blocks until ctx is done.
func (e *Engine) WatchSettingFile(ctx context.Context) error {
	return e.settingFile.Watch(ctx, func() {
		var err error
		if _, active := e.settings.Backend().(*setting.FileBackend); active {
			err = e.settings.Load(ctx)
		} else {
			err = e.settings.LoadFrom(ctx, e.settingFile)
		}
		if err != nil {
			e.WriteError("reload algo settings failed: "+err.Error(), nil)
		}
	})
}
