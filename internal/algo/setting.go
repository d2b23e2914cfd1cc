package algo

import (
	"fmt"
	"strings"
)

const (
	KeySettingName  = "settingName"
	KeyTemplateName = "templateName"
)

// Setting is a named configuration for instantiating an algorithm:
// {settingName, templateName, <template params>...}.
type Setting map[string]any

func (s Setting) SettingName() string  { return s.str(KeySettingName) }
func (s Setting) TemplateName() string { return s.str(KeyTemplateName) }

func (s Setting) str(key string) string {
	if s == nil {
		return ""
	}
	switch v := s[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Clone returns a deep copy of nested maps and slices.
func (s Setting) Clone() Setting {
	if s == nil {
		return nil
	}
	return Setting(cloneMap(s))
}

func cloneMap(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case Setting:
		return Setting(cloneMap(val))
	case []any:
		cp := make([]any, len(val))
		for i := range val {
			cp[i] = cloneValue(val[i])
		}
		return cp
	default:
		return val
	}
}
