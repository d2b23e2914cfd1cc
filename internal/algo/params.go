package algo

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
)

var decimalType = reflect.TypeOf(decimal.Decimal{})

// DecodeParams copies a setting's template params into out, a pointer to a
// struct tagged with `mapstructure:"..."`. Numbers may arrive as strings.
func DecodeParams(s Setting, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			decimalHook,
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]any(s)); err != nil {
		return fmt.Errorf("decode %s params: %w", s.TemplateName(), err)
	}
	return nil
}

func decimalHook(from, to reflect.Type, data any) (any, error) {
	if to != decimalType {
		return data, nil
	}
	switch v := data.(type) {
	case decimal.Decimal:
		return v, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(v)
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case int32:
		return decimal.NewFromInt32(v), nil
	case nil:
		return decimal.Zero, nil
	default:
		return nil, fmt.Errorf("cannot convert %s to decimal", from)
	}
}

// NewAlgoName builds a fresh instance name like "Twap_3f9a1c2e".
func NewAlgoName(templateName string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s_%s", strings.TrimSpace(templateName), id[:8])
}
