package memory

import (
	"context"

	"github.com/DMarby/image-resizer/internal/cache"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Provider implements an in-memory cache holding at most a fixed number of objects
type Provider struct {
	cache *lru.Cache[string, []byte]
}

// New returns a new Provider instance that evicts the least recently used object once size is reached
func New(size int) (*Provider, error) {
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}

	return &Provider{
		cache: c,
	}, nil
}

// Get returns an object from the cache if it exists
func (p *Provider) Get(ctx context.Context, key string) (data []byte, err error) {
	data, exists := p.cache.Get(key)
	if !exists {
		return nil, cache.ErrNotFound
	}

	return data, nil
}

// Set adds an object to the cache
func (p *Provider) Set(ctx context.Context, key string, data []byte) (err error) {
	p.cache.Add(key, data)
	return nil
}

// Len returns the number of cached objects
func (p *Provider) Len() int {
	return p.cache.Len()
}

// Shutdown shuts down the cache
func (p *Provider) Shutdown() {}
