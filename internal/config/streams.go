package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// StreamEntry is one configured source: a unique name and its input URL.
type StreamEntry struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// streamEntriesEnvelope matches the object form of the streams config file:
// {"streams": [...]}.
type streamEntriesEnvelope struct {
	Streams []StreamEntry `json:"streams"`
}

// LoadStreamList reads path and returns the configured stream entries.
// spec.md §6: the file is either a bare array of {name,url} objects or an
// object with a "streams" array; entries with an empty name or url are
// skipped. Grounded on original_source/src/StreamManager.cpp's loadConfig.
func LoadStreamList(path string) ([]StreamEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot open streams file: %w", err)
	}
	return ParseStreamList(data)
}

// ParseStreamList parses the streams config JSON from data, applying the
// same array-or-{"streams":[...]}-shape rule and empty-entry filter as
// LoadStreamList. Split out for direct use by tests and by callers that
// already have the bytes in hand.
func ParseStreamList(data []byte) ([]StreamEntry, error) {
	trimmed := firstNonSpace(data)

	var entries []StreamEntry
	switch trimmed {
	case '[':
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("config: streams.json parse error: %w", err)
		}
	case '{':
		var env streamEntriesEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("config: streams.json parse error: %w", err)
		}
		entries = env.Streams
	default:
		return nil, fmt.Errorf("config: streams.json: expected array or object at top level")
	}

	out := make([]StreamEntry, 0, len(entries))
	for _, e := range entries {
		if e.Name == "" || e.URL == "" {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func firstNonSpace(data []byte) byte {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return b
		}
	}
	return 0
}
