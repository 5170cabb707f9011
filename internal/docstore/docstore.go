// Package docstore is a path-addressed document database with
// partial-merge writes. Paths alternate collection and document ids,
// e.g. users/testUser/months/2024-06.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidPath = errors.New("invalid document path")

// Document is a decoded JSON object. Numbers are float64, arrays []any
// and nested objects map[string]any, whatever backend produced them.
type Document = map[string]any

// Store reads and writes whole documents. Get reports ok=false when the
// document does not exist. With merge set, Set deep-merges data into the
// existing document; otherwise it replaces it.
type Store interface {
	Get(ctx context.Context, path string) (doc Document, ok bool, err error)
	Set(ctx context.Context, path string, data Document, merge bool) error
}

// Path joins segments into a document path.
func Path(segments ...string) string {
	return strings.Join(segments, "/")
}

// ValidatePath checks that path names a document: an even, non-zero
// number of non-empty segments.
func ValidatePath(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	parts := strings.Split(path, "/")
	if len(parts)%2 != 0 {
		return fmt.Errorf("%w: %q names a collection", ErrInvalidPath, path)
	}
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%w: %q has an empty segment", ErrInvalidPath, path)
		}
	}
	return nil
}

// Merge copies src into dst. Nested objects are merged key by key; any
// other value (arrays included) replaces what dst held.
func Merge(dst, src Document) Document {
	if dst == nil {
		dst = Document{}
	}
	for k, v := range src {
		srcMap, ok := v.(map[string]any)
		if !ok {
			dst[k] = v
			continue
		}
		dstMap, _ := dst[k].(map[string]any)
		dst[k] = Merge(dstMap, srcMap)
	}
	return dst
}

// Normalize round-trips data through JSON so callers get the same value
// shapes a remote backend would return.
func Normalize(data Document) (Document, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return Decode(raw)
}

// Decode parses a JSON object.
func Decode(raw []byte) (Document, error) {
	var out Document
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if out == nil {
		out = Document{}
	}
	return out, nil
}
