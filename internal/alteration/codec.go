package alteration

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// EncodeValues serializes an ordered value vector into the text form stored
// by backends. The encoding is a JSON array, so values may contain any
// character, including the legacy ',' delimiter.
func EncodeValues(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode values: %w", err)
	}
	return string(b), nil
}

// DecodeValues parses text produced by EncodeValues.
func DecodeValues(s string) ([]string, error) {
	var values []string
	if err := json.Unmarshal([]byte(s), &values); err != nil {
		return nil, fmt.Errorf("decode values: %w", err)
	}
	if values == nil {
		values = []string{}
	}
	return values, nil
}
