package kv

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// ErrNotFound is returned when a requested key does not exist.
var ErrNotFound = errors.New("not found")

// Stored value types. The type column records how a value was written; reads
// decode by the caller's expected type regardless, so a legacy string "true"
// still reads as a bool.
const (
	TypeBool      = "bool"
	TypeString    = "string"
	TypeStringSet = "string_set"
)

func encodeBool(v bool) string {
	return strconv.FormatBool(v)
}

func encodeStringSet(v []string) (string, error) {
	b, err := json.Marshal(NormalizeSet(v))
	if err != nil {
		return "", fmt.Errorf("marshalling string set: %w", err)
	}
	return string(b), nil
}

func decodeStringSet(raw string) ([]string, error) {
	var set []string
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		return nil, err
	}
	return NormalizeSet(set), nil
}

// NormalizeSet returns a sorted, de-duplicated, non-nil copy of in. It is the
// canonical form string sets are stored and returned in.
func NormalizeSet(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// encodeImported maps a legacy value onto one of the store's primitive types.
// ok is false for values the store cannot represent (numbers, objects, mixed
// arrays).
func encodeImported(v any) (typ, raw string, ok bool) {
	switch val := v.(type) {
	case bool:
		return TypeBool, encodeBool(val), true
	case string:
		return TypeString, val, true
	case []string:
		raw, err := encodeStringSet(val)
		if err != nil {
			return "", "", false
		}
		return TypeStringSet, raw, true
	case []any:
		strs := make([]string, 0, len(val))
		for _, item := range val {
			s, isStr := item.(string)
			if !isStr {
				return "", "", false
			}
			strs = append(strs, s)
		}
		raw, err := encodeStringSet(strs)
		if err != nil {
			return "", "", false
		}
		return TypeStringSet, raw, true
	default:
		return "", "", false
	}
}
