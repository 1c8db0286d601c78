package artifacts

import (
	"context"
	"errors"
	"path"
	"strings"
)

var ErrNotConfigured = errors.New("artifact store not configured")

// Store publishes report artifacts under an object key
type Store interface {
	Put(ctx context.Context, objectKey string, payload []byte, contentType string) error
	Get(ctx context.Context, objectKey string) ([]byte, string, error)
	Close() error
}

type NoopStore struct{}

func NewNoopStore() *NoopStore {
	return &NoopStore{}
}

func (s *NoopStore) Put(_ context.Context, _ string, _ []byte, _ string) error {
	return ErrNotConfigured
}

func (s *NoopStore) Get(_ context.Context, _ string) ([]byte, string, error) {
	return nil, "", ErrNotConfigured
}

func (s *NoopStore) Close() error {
	return nil
}

// Artifact is one rendered output of a run
type Artifact struct {
	Name        string
	ContentType string
	Body        []byte
}

// ObjectKey places a run artifact under prefix/runID/name
func ObjectKey(prefix, runID, name string) string {
	return path.Join(strings.Trim(prefix, "/"), runID, name)
}

// Publish uploads every artifact of a run and returns their object keys.
// A NoopStore reports ErrNotConfigured on the first artifact.
func Publish(ctx context.Context, store Store, prefix, runID string, items []Artifact) ([]string, error) {
	keys := make([]string, 0, len(items))
	for _, item := range items {
		key := ObjectKey(prefix, runID, item.Name)
		if err := store.Put(ctx, key, item.Body, item.ContentType); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}
