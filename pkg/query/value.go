package query

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"
)

// Value tags written into the encoded payload. The set is closed: decoding a tag that is
// not listed here fails instead of guessing a type.
const (
	tagString   = "s"
	tagInt      = "i"
	tagFloat    = "f"
	tagBool     = "b"
	tagNull     = "n"
	tagDate     = "d"
	tagDateTime = "dt"
	tagList     = "l"
)

type valueDecoder func(payload any) (any, error)

var valueDecoders = map[string]valueDecoder{
	tagString: func(payload any) (any, error) {
		s, ok := payload.(string)
		if !ok {
			return nil, fmt.Errorf("string value has type %T", payload)
		}
		return s, nil
	},
	tagInt: func(payload any) (any, error) { return toInt64(payload) },
	tagFloat: func(payload any) (any, error) {
		return toFloat64(payload)
	},
	tagBool: func(payload any) (any, error) {
		b, ok := payload.(bool)
		if !ok {
			return nil, fmt.Errorf("bool value has type %T", payload)
		}
		return b, nil
	},
	tagNull: func(any) (any, error) { return nil, nil },
	tagDate: func(payload any) (any, error) {
		s, ok := payload.(string)
		if !ok {
			return nil, fmt.Errorf("date value has type %T", payload)
		}
		return ParseDate(s)
	},
	tagDateTime: func(payload any) (any, error) {
		s, ok := payload.(string)
		if !ok {
			return nil, fmt.Errorf("datetime value has type %T", payload)
		}
		return time.Parse(time.RFC3339Nano, s)
	},
}

// NormalizeValue converts v into the canonical value set (nil, string, int64, float64,
// bool, Date, time.Time, []any). It fails with ErrUnsupportedValue for anything else.
func NormalizeValue(v any) (any, error) {
	return normalize(v, true)
}

func normalize(v any, allowList bool) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		return x, nil
	case bool:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d overflows int64", ErrUnsupportedValue, x)
		}
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d overflows int64", ErrUnsupportedValue, x)
		}
		return int64(x), nil
	case float32:
		return normalizeFloat(float64(x))
	case float64:
		return normalizeFloat(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedValue, x.String())
		}
		return normalizeFloat(f)
	case Date:
		return x, nil
	case time.Time:
		return x, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		if !allowList {
			return nil, fmt.Errorf("%w: nested list", ErrUnsupportedValue)
		}
		items := make([]any, rv.Len())
		for i := range items {
			item, err := normalize(rv.Index(i).Interface(), false)
			if err != nil {
				return nil, err
			}
			items[i] = item
		}
		return items, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
}

func normalizeFloat(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: non-finite float", ErrUnsupportedValue)
	}
	return f, nil
}

// encodeValue expects a normalized value.
func encodeValue(v any) map[string]any {
	switch x := v.(type) {
	case nil:
		return map[string]any{"t": tagNull}
	case string:
		return map[string]any{"t": tagString, "v": x}
	case bool:
		return map[string]any{"t": tagBool, "v": x}
	case int64:
		return map[string]any{"t": tagInt, "v": x}
	case float64:
		return map[string]any{"t": tagFloat, "v": x}
	case Date:
		return map[string]any{"t": tagDate, "v": x.String()}
	case time.Time:
		return map[string]any{"t": tagDateTime, "v": x.Format(time.RFC3339Nano)}
	case []any:
		items := make([]any, len(x))
		for i, item := range x {
			items[i] = encodeValue(item)
		}
		return map[string]any{"t": tagList, "v": items}
	}
	// normalize guarantees the cases above
	panic(fmt.Sprintf("query: unnormalized value %T", v))
}

func decodeValue(raw any, allowList bool) (any, error) {
	m, ok := asMap(raw)
	if !ok {
		return nil, decodeErrorf("value must be an object, got %T", raw)
	}
	tag, ok := m["t"].(string)
	if !ok {
		return nil, decodeErrorf("value is missing its type tag")
	}
	if tag == tagList {
		if !allowList {
			return nil, decodeErrorf("nested lists are not supported")
		}
		items, ok := m["v"].([]any)
		if !ok {
			return nil, decodeErrorf("list value has type %T", m["v"])
		}
		out := make([]any, len(items))
		for i, item := range items {
			v, err := decodeValue(item, false)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
	dec, ok := valueDecoders[tag]
	if !ok {
		return nil, decodeErrorf("unknown value tag %q", tag)
	}
	v, err := dec(m["v"])
	if err != nil {
		return nil, &DecodeError{Reason: "invalid " + tag + " value", Err: err}
	}
	return v, nil
}

func toInt64(payload any) (int64, error) {
	switch x := payload.(type) {
	case json.Number:
		return x.Int64()
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", x)
		}
		return int64(x), nil
	}
	return 0, fmt.Errorf("int value has type %T", payload)
}

func toFloat64(payload any) (float64, error) {
	switch x := payload.(type) {
	case json.Number:
		return x.Float64()
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	}
	i, err := toInt64(payload)
	if err != nil {
		return 0, fmt.Errorf("float value has type %T", payload)
	}
	return float64(i), nil
}

func asMap(raw any) (map[string]any, bool) {
	switch m := raw.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			key, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[key] = v
		}
		return out, true
	}
	return nil, false
}
