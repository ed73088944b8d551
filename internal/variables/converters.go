package variables

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/dbsmedya/gomigrator/internal/types"
)

// DateLayout is the ISO-8601 layout dates are written in.
const DateLayout = "2006-01-02T15:04:05.000Z07:00"

// legacyDateLayout is what the legacy REST API returns for date values.
const legacyDateLayout = "2006-01-02T15:04:05.000-0700"

// UnsupportedConverter rejects kinds that cannot cross to the target.
type UnsupportedConverter struct{}

func (UnsupportedConverter) Name() string { return "unsupported" }

func (UnsupportedConverter) Convert(v Value) (interface{}, bool, error) {
	switch v.Kind {
	case KindBytes, KindFile, KindXML:
		return nil, false, unsupported(v, reasonFor(v))
	case KindObject:
		if v.SerializationFormat != FormatJSON {
			return nil, false, unsupported(v, reasonFor(v))
		}
	}
	return nil, false, nil
}

// PrimitiveConverter passes strings, booleans and numbers through.
type PrimitiveConverter struct{}

func (PrimitiveConverter) Name() string { return "primitive" }

func (PrimitiveConverter) Convert(v Value) (interface{}, bool, error) {
	switch v.Kind {
	case KindNull:
		return nil, true, nil
	case KindString:
		if v.Raw == nil {
			return nil, true, nil
		}
		return fmt.Sprint(v.Raw), true, nil
	case KindBoolean:
		return toBool(v)
	case KindShort, KindInteger, KindLong:
		if v.Raw == nil {
			return nil, true, nil
		}
		n, ok := types.ToInt64(v.Raw)
		if !ok {
			return nil, false, fmt.Errorf("variable %q: %v is not an integer", v.Name, v.Raw)
		}
		return n, true, nil
	case KindDouble:
		return toFloat(v)
	}
	return nil, false, nil
}

func toBool(v Value) (interface{}, bool, error) {
	switch b := v.Raw.(type) {
	case nil:
		return nil, true, nil
	case bool:
		return b, true, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return nil, false, fmt.Errorf("variable %q: %w", v.Name, err)
		}
		return parsed, true, nil
	default:
		// History rows keep booleans as 0/1 in a numeric column.
		n, ok := types.ToInt64(b)
		if !ok {
			return nil, false, fmt.Errorf("variable %q: %v is not a boolean", v.Name, v.Raw)
		}
		return n != 0, true, nil
	}
}

func toFloat(v Value) (interface{}, bool, error) {
	switch f := v.Raw.(type) {
	case nil:
		return nil, true, nil
	case float64:
		return f, true, nil
	case float32:
		return float64(f), true, nil
	case string:
		parsed, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, false, fmt.Errorf("variable %q: %w", v.Name, err)
		}
		return parsed, true, nil
	default:
		n, ok := types.ToInt64(f)
		if !ok {
			return nil, false, fmt.Errorf("variable %q: %v is not a number", v.Name, v.Raw)
		}
		return float64(n), true, nil
	}
}

// DateConverter writes dates as ISO-8601 strings in UTC.
type DateConverter struct{}

func (DateConverter) Name() string { return "date" }

func (DateConverter) Convert(v Value) (interface{}, bool, error) {
	if v.Kind != KindDate {
		return nil, false, nil
	}

	var t time.Time
	switch d := v.Raw.(type) {
	case nil:
		return nil, true, nil
	case time.Time:
		t = d
	case string:
		parsed, err := time.Parse(legacyDateLayout, d)
		if err != nil {
			if parsed, err = time.Parse(time.RFC3339Nano, d); err != nil {
				return nil, false, fmt.Errorf("variable %q: unparseable date %q", v.Name, d)
			}
		}
		t = parsed
	default:
		// History rows keep dates as epoch milliseconds.
		ms, ok := types.ToInt64(d)
		if !ok {
			return nil, false, fmt.Errorf("variable %q: %v is not a date", v.Name, v.Raw)
		}
		t = types.MillisToTime(ms)
	}
	return t.UTC().Format(DateLayout), true, nil
}

// JSONConverter deserializes JSON values into structured data.
type JSONConverter struct{}

func (JSONConverter) Name() string { return "json" }

func (JSONConverter) Convert(v Value) (interface{}, bool, error) {
	if v.Kind != KindJSON && !(v.Kind == KindObject && v.SerializationFormat == FormatJSON) {
		return nil, false, nil
	}

	var data []byte
	switch raw := v.Raw.(type) {
	case nil:
		return nil, true, nil
	case string:
		data = []byte(raw)
	case []byte:
		data = raw
	default:
		// Already structured, e.g. decoded by the REST client.
		return raw, true, nil
	}

	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, false, &UnsupportedValueError{
			Name:   v.Name,
			Kind:   v.Kind,
			Reason: types.ReasonUnsupportedVariableType,
		}
	}
	return out, true, nil
}
