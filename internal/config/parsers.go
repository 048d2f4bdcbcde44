// Package config provides configuration loading and parsing for poolbench.
package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// lookupSetting returns the first of candidates present in settings, also
// trying each key in lower case.
func lookupSetting(settings map[string]interface{}, candidates ...string) (interface{}, bool) {
	for _, key := range candidates {
		for _, k := range []string{key, strings.ToLower(key)} {
			if val, ok := settings[k]; ok {
				return val, true
			}
		}
	}
	return nil, false
}

func asString(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case []byte:
		return string(v), nil
	default:
		return fmt.Sprint(v), nil
	}
}

// number reports the numeric value of any Go integer or float kind.
func number(value interface{}) (int64, float64, bool) {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return int64(rv.Float()), rv.Float(), true
	default:
		return 0, 0, false
	}
}

// asInt64 accepts any numeric kind or a decimal string; underscores in
// strings are digit separators.
func asInt64(value interface{}) (int64, error) {
	if s, ok := value.(string); ok {
		s = strings.TrimSpace(strings.ReplaceAll(s, "_", ""))
		if s == "" {
			return 0, nil
		}
		return strconv.ParseInt(s, 10, 64)
	}
	if value == nil {
		return 0, nil
	}
	if i, _, ok := number(value); ok {
		return i, nil
	}
	return 0, fmt.Errorf("unsupported numeric type %T", value)
}

func asInt(value interface{}) (int, error) {
	v, err := asInt64(value)
	return int(v), err
}

func asFloat64(value interface{}) (float64, error) {
	if s, ok := value.(string); ok {
		if s = strings.TrimSpace(s); s == "" {
			return 0, nil
		}
		return strconv.ParseFloat(s, 64)
	}
	if value == nil {
		return 0, nil
	}
	if _, f, ok := number(value); ok {
		return f, nil
	}
	return 0, fmt.Errorf("unsupported float type %T", value)
}

func asBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		if v = strings.TrimSpace(v); v == "" {
			return false, nil
		}
		return strconv.ParseBool(v)
	default:
		return false, fmt.Errorf("unsupported boolean type %T", value)
	}
}

// asDuration parses duration strings; bare numbers are seconds.
func asDuration(value interface{}) (time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		if v = strings.TrimSpace(v); v == "" {
			return 0, nil
		}
		return time.ParseDuration(v)
	}
	if _, f, ok := number(value); ok {
		return time.Duration(f * float64(time.Second)), nil
	}
	return 0, fmt.Errorf("unsupported duration type %T", value)
}

// asStringSlice accepts a list or a comma separated string.
func asStringSlice(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []string:
		return v, nil
	case string:
		var out []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, _ := asString(item)
			out = append(out, strings.TrimSpace(s))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported string slice type %T", value)
	}
}

// asIntSlice accepts a list, a comma separated string or a single number,
// so `threads: 8` and `threads: [1, 8, 64]` both work.
func asIntSlice(value interface{}) ([]int, error) {
	var items []interface{}
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []int:
		return v, nil
	case []interface{}:
		items = v
	case string:
		parts, _ := asStringSlice(v)
		for _, p := range parts {
			items = append(items, p)
		}
	default:
		items = []interface{}{v}
	}

	out := make([]int, len(items))
	for i, item := range items {
		n, err := asInt(item)
		if err != nil {
			if len(items) == 1 {
				return nil, err
			}
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		out[i] = n
	}
	return out, nil
}

// toStringKeyMap normalizes a decoded map's keys to trimmed lower case.
func toStringKeyMap(value interface{}) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	add := func(key string, val interface{}) {
		out[strings.ToLower(strings.TrimSpace(key))] = val
	}
	switch v := value.(type) {
	case map[string]interface{}:
		for key, val := range v {
			add(key, val)
		}
	case map[interface{}]interface{}:
		for key, val := range v {
			s, _ := asString(key)
			add(s, val)
		}
	default:
		return nil, fmt.Errorf("expected map, got %T", value)
	}
	return out, nil
}
