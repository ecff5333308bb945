package nga

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// The forum's JSON is loosely typed: ids arrive as numbers or strings,
// subjects can be booleans, and collections are objects keyed "0".."n" or
// plain arrays depending on the endpoint. These types absorb that.

// flexInt decodes numbers, numeric strings and booleans. Anything else is 0.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*f = 0
	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")), bytes.Equal(b, []byte("false")):
		return nil
	case bytes.Equal(b, []byte("true")):
		*f = 1
		return nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		b = []byte(strings.TrimSpace(s))
	}
	if n, err := strconv.ParseInt(string(b), 10, 64); err == nil {
		*f = flexInt(n)
		return nil
	}
	if x, err := strconv.ParseFloat(string(b), 64); err == nil {
		*f = flexInt(x)
	}
	return nil
}

// flexString decodes strings, numbers and booleans as text. Null and false
// become the empty string.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*f = ""
	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")), bytes.Equal(b, []byte("false")):
		return nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
	case b[0] == '{' || b[0] == '[':
		// Structured values have no text form.
	default:
		*f = flexString(b)
	}
	return nil
}

// keyedList decodes either a JSON array or an object whose values are the
// elements. Object members are ordered by numeric key, then lexically.
// Elements that fail to decode are skipped.
type keyedList[T any] []T

func (l *keyedList[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*l = nil
	if len(b) == 0 {
		return nil
	}
	switch b[0] {
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		for _, r := range raw {
			l.add(r)
		}
	case '{':
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		keys := make([]string, 0, len(raw))
		for k := range raw {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			ni, ei := strconv.Atoi(keys[i])
			nj, ej := strconv.Atoi(keys[j])
			if ei == nil && ej == nil {
				return ni < nj
			}
			if (ei == nil) != (ej == nil) {
				return ei == nil
			}
			return keys[i] < keys[j]
		})
		for _, k := range keys {
			l.add(raw[k])
		}
	}
	return nil
}

func (l *keyedList[T]) add(raw json.RawMessage) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return
	}
	*l = append(*l, v)
}
