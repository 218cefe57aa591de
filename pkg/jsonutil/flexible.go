// Package jsonutil parses loosely-typed JSON at the boundary of the engine.
// Curated metadata overlays and LLM output both arrive as blobs that may be
// malformed or differently typed than expected; everything here degrades to
// an absent value instead of returning an error.
package jsonutil

import (
	"encoding/json"
	"fmt"
)

// FlexibleStringValue converts a json.RawMessage to a string, handling cases
// where the source stored numbers or booleans instead of strings. Returns
// empty string for null/empty.
func FlexibleStringValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	// Try string first
	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	// Try number
	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if numVal == float64(int64(numVal)) {
			return fmt.Sprintf("%d", int64(numVal))
		}
		return fmt.Sprintf("%g", numVal)
	}

	// Try boolean
	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return fmt.Sprintf("%t", boolVal)
	}

	// Fallback: return raw string representation
	return string(raw)
}

// StringList decodes a serialized JSON array of strings. Non-string elements
// are coerced with FlexibleStringValue. Malformed input yields nil.
func StringList(raw string) []string {
	if raw == "" {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := FlexibleStringValue(item); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// StringMap decodes a serialized JSON object into a string-to-string map.
// Values of other primitive types are coerced. Malformed input yields nil.
func StringMap(raw string) map[string]string {
	if raw == "" {
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil
	}

	out := make(map[string]string, len(obj))
	for k, v := range obj {
		out[k] = FlexibleStringValue(v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Decode unmarshals a serialized JSON value into target. Returns false
// (leaving target untouched beyond partial decode) when the input is empty
// or malformed, so callers can treat the field as absent.
func Decode(raw string, target any) bool {
	if raw == "" {
		return false
	}
	return json.Unmarshal([]byte(raw), target) == nil
}
