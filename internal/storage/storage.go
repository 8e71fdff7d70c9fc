package storage

import (
	"context"
	"errors"
)

// Provider is an interface for reading and writing blobs
type Provider interface {
	// Get returns the contents of the blob with the given name
	Get(ctx context.Context, name string) ([]byte, error)
	// Put creates or overwrites the blob with the given name
	Put(ctx context.Context, name string, data []byte, contentType string) error
}

// Errors
var (
	ErrNotFound    = errors.New("blob does not exist")
	ErrInvalidName = errors.New("invalid blob name")
)
