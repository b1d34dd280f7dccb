// Package jsonq resolves optional nested values inside decoded JSON
// payloads. The vendor API freely omits keys, sends explicit nulls, or
// replaces objects with scalars between firmware versions, so every lookup
// short-circuits to absent instead of panicking.
package jsonq

// Path walks value through the given keys. It returns (nil, false) as soon
// as a segment is missing, explicitly null, or not an object. A missing key,
// a null value, and a non-object intermediate are all equivalent absences.
func Path(value any, keys ...string) (any, bool) {
	cur := value
	for _, key := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		next, ok := m[key]
		if !ok || next == nil {
			return nil, false
		}
		cur = next
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// Map resolves a path expecting an object at the end.
func Map(value any, keys ...string) (map[string]any, bool) {
	v, ok := Path(value, keys...)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// Slice resolves a path expecting an array at the end.
func Slice(value any, keys ...string) ([]any, bool) {
	v, ok := Path(value, keys...)
	if !ok {
		return nil, false
	}
	s, ok := v.([]any)
	return s, ok
}

// Str resolves a path expecting a string at the end.
func Str(value any, keys ...string) (string, bool) {
	v, ok := Path(value, keys...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Float resolves a path expecting a number at the end. encoding/json decodes
// every JSON number into float64.
func Float(value any, keys ...string) (float64, bool) {
	v, ok := Path(value, keys...)
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// Int resolves a path expecting a number and truncates it to an int.
func Int(value any, keys ...string) (int, bool) {
	f, ok := Float(value, keys...)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// Bool resolves a path expecting a boolean at the end.
func Bool(value any, keys ...string) (bool, bool) {
	v, ok := Path(value, keys...)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
