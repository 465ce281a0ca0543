package models

import (
	"bytes"
	"encoding/json"
)

// DecodeItems normalizes an item payload into the canonical slice.
//
// Terminals have historically sent the item list as a JSON array, a single
// object, or a JSON string holding either of those. All three are accepted
// here, once, so nothing downstream has to care.
func DecodeItems(raw json.RawMessage) ([]OrderItem, error) {
	return decodeItems(raw, 0)
}

func decodeItems(raw json.RawMessage, depth int) ([]OrderItem, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		var items []OrderItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, Invalid("items", "malformed item list: %v", err)
		}
		return items, nil
	case '{':
		var item OrderItem
		if err := json.Unmarshal(trimmed, &item); err != nil {
			return nil, Invalid("items", "malformed item: %v", err)
		}
		return []OrderItem{item}, nil
	case '"':
		if depth > 0 {
			return nil, Invalid("items", "doubly encoded item payload")
		}
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, Invalid("items", "malformed item string: %v", err)
		}
		return decodeItems(json.RawMessage(s), depth+1)
	}
	return nil, Invalid("items", "unsupported payload starting with %q", trimmed[0])
}
