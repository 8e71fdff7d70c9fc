package mock

import (
	"context"
	"fmt"

	"github.com/DMarby/image-resizer/internal/cache"
)

// Provider is a mock cache with fixed behaviour per key
type Provider struct{}

// Get returns "cached" for every key except notfound, seterror and error
func (p *Provider) Get(ctx context.Context, key string) (data []byte, err error) {
	if key == "notfound" || key == "seterror" {
		return nil, cache.ErrNotFound
	}

	if key == "error" {
		return nil, fmt.Errorf("error")
	}

	return []byte("cached"), nil
}

// Set fails for the seterror key
func (p *Provider) Set(ctx context.Context, key string, data []byte) (err error) {
	if key == "seterror" {
		return fmt.Errorf("seterror")
	}

	return nil
}

// Shutdown shuts down the cache
func (p *Provider) Shutdown() {}
