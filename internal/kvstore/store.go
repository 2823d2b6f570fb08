// Package kvstore is a path-addressed JSON node store in the style of a
// realtime database: records live at slash-delimited paths such as
// "owners/<id>" or "listings/<id>", and a path's direct children can be listed
// in insertion order.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no value exists at a path.
	ErrNotFound = errors.New("node not found")
	// ErrInvalidPath is returned for empty paths or paths with empty segments.
	ErrInvalidPath = errors.New("invalid node path")
	// ErrNotObject is returned when Update receives something other than a JSON object.
	ErrNotObject = errors.New("update value must be a JSON object")
)

// Node is one direct child of a path.
type Node struct {
	Key   string
	Value json.RawMessage
}

// Store is the node store contract shared by all backends.
type Store interface {
	Get(ctx context.Context, path string) (json.RawMessage, error)
	Children(ctx context.Context, path string) ([]Node, error)
	Set(ctx context.Context, path string, value any) error
	Update(ctx context.Context, path string, partial map[string]any) error
	Remove(ctx context.Context, path string) error
	Push(ctx context.Context, path string, value any) (string, error)
}

// Clean trims surrounding slashes and validates the segments of path.
func Clean(path string) (string, error) {
	p := strings.Trim(strings.TrimSpace(path), "/")
	if p == "" {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.Split(p, "/") {
		if strings.TrimSpace(seg) == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return p, nil
}

// Join builds a path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// split returns the parent path ("" at the top level) and the last segment.
func split(path string) (parent, key string) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// GetJSON decodes the value at path into dst.
func GetJSON(ctx context.Context, s Store, path string, dst any) error {
	raw, err := s.Get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func newPushID() string {
	// v7 ids are time-ordered, so pushed children sort by creation.
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func encode(value any) ([]byte, error) {
	if raw, ok := value.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, errors.New("invalid raw json value")
		}
		return raw, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return raw, nil
}

func encodeObject(partial map[string]any) ([]byte, error) {
	if partial == nil {
		return nil, ErrNotObject
	}
	return encode(partial)
}
