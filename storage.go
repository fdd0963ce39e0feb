package beacon

import (
	"encoding/json"
	"fmt"
)

// loadJSON decodes the value under key into v. A missing key leaves v
// untouched and is not an error.
func loadJSON(storage StorageAdapter, key string, v any) error {
	raw, ok, err := storage.Get(key)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if !ok || raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// saveJSON encodes v and stores it under key.
func saveJSON(storage StorageAdapter, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := storage.Set(key, string(data)); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}
