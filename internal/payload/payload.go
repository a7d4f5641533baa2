// Package payload defines the blob formats the queue stores but never
// interprets. A task's function blob is the UTF-8 name of a registered
// handler; kwargs and successful results are JSON documents. Blobs are
// stored and read back bit-identically.
package payload

import (
	"encoding/json"
	"fmt"
)

// EncodeFunction encodes a handler name as a function blob.
func EncodeFunction(name string) []byte {
	return []byte(name)
}

// DecodeFunction returns the handler name held in a function blob.
func DecodeFunction(blob []byte) string {
	return string(blob)
}

// EncodeArgs encodes keyword arguments as a kwargs blob.
func EncodeArgs(args map[string]any) ([]byte, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode arguments: %w", err)
	}
	return data, nil
}

// DecodeArgs decodes a kwargs blob. An empty blob means no arguments.
func DecodeArgs(blob []byte) (map[string]any, error) {
	if len(blob) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(blob, &args); err != nil {
		return nil, fmt.Errorf("failed to decode arguments: %w", err)
	}
	return args, nil
}

// EncodeResult encodes a handler's return value as a results blob.
func EncodeResult(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return data, nil
}

// DecodeResult decodes a results blob into out.
func DecodeResult(blob []byte, out any) error {
	if err := json.Unmarshal(blob, out); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}
