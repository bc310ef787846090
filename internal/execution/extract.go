package execution

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// ExtractValues evaluates each configured path against the response body and
// returns the successfully extracted scalars. Each path is evaluated
// independently: a path that does not resolve, or that resolves to an object,
// array, or null, simply produces no entry. A non-JSON body extracts nothing.
func ExtractValues(body []byte, paths map[string]string) map[string]string {
	if len(paths) == 0 || len(body) == 0 {
		return nil
	}
	doc, err := decodeBody(body)
	if err != nil {
		return nil
	}
	out := make(map[string]string, len(paths))
	for name, path := range paths {
		if value, ok := extractPath(doc, path); ok {
			out[name] = value
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func decodeBody(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// extractPath walks a dot-notation path with optional [i] array indexing,
// e.g. "id", "data.items[0].name". A leading "$." or "$" prefix is accepted.
func extractPath(doc any, path string) (string, bool) {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")

	current := doc
	if path != "" {
		for _, segment := range strings.Split(path, ".") {
			if segment == "" {
				return "", false
			}
			field, indexes, ok := splitIndexes(segment)
			if !ok {
				return "", false
			}
			if field != "" {
				m, ok := current.(map[string]any)
				if !ok {
					return "", false
				}
				current, ok = m[field]
				if !ok {
					return "", false
				}
			}
			for _, idx := range indexes {
				arr, ok := current.([]any)
				if !ok {
					return "", false
				}
				if idx < 0 || idx >= len(arr) {
					return "", false
				}
				current = arr[idx]
			}
		}
	}
	return coerceScalar(current)
}

// splitIndexes splits a segment like name[0][1] into the field name and its
// array indexes.
func splitIndexes(segment string) (string, []int, bool) {
	open := strings.Index(segment, "[")
	if open < 0 {
		return segment, nil, true
	}
	field := segment[:open]
	rest := segment[open:]
	var indexes []int
	for rest != "" {
		if !strings.HasPrefix(rest, "[") {
			return "", nil, false
		}
		close := strings.Index(rest, "]")
		if close < 0 {
			return "", nil, false
		}
		idx, err := strconv.Atoi(rest[1:close])
		if err != nil {
			return "", nil, false
		}
		indexes = append(indexes, idx)
		rest = rest[close+1:]
	}
	return field, indexes, true
}

// coerceScalar renders a decoded JSON scalar as its wire text. Objects,
// arrays, and null are treated as unresolved.
func coerceScalar(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}
