package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NormalizeOptions converts a raw option payload into an ordered list of
// strings. Legacy ingestion produced two shapes: a JSON string array, or a
// single comma-delimited string. Everything past this boundary sees []string
// only; no other component may re-interpret the raw format.
func NormalizeOptions(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return trimOptions(list), nil
	}

	var delimited string
	if err := json.Unmarshal(raw, &delimited); err == nil {
		return trimOptions(strings.Split(delimited, ",")), nil
	}

	return nil, fmt.Errorf("unsupported options format: %s", string(raw))
}

func trimOptions(options []string) []string {
	out := make([]string, 0, len(options))
	for _, opt := range options {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			continue
		}
		out = append(out, opt)
	}
	return out
}
