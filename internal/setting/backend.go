// Package setting keeps the named algorithm configurations in memory and
// mirrors them to one persistence backend chosen at construction.
package setting

import (
	"context"
	"errors"
	"sort"

	"algoengine/internal/algo"
)

var (
	ErrMissingSettingName = errors.New("setting has no settingName")
	ErrInvalidSettingFile = errors.New("invalid algo setting file")
)

// Backend persists the setting collection.
type Backend interface {
	Name() string

	Load(ctx context.Context) ([]algo.Setting, error)

	// Save persists changed; all is the full collection after the change,
	// for backends that rewrite everything.
	Save(ctx context.Context, all []algo.Setting, changed algo.Setting) error

	Delete(ctx context.Context, all []algo.Setting, settingName string) error
}

func sortSettings(list []algo.Setting) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].SettingName() < list[j].SettingName()
	})
}
