package cache

import (
	"context"
	"errors"

	"github.com/DMarby/image-resizer/internal/tracing"
	"golang.org/x/sync/singleflight"
)

// Provider is an interface for getting and setting cached objects
type Provider interface {
	Get(ctx context.Context, key string) (data []byte, err error)
	Set(ctx context.Context, key string, data []byte) (err error)
	Shutdown()
}

// LoaderFunc is a function for loading data into a cache
type LoaderFunc func(ctx context.Context) (data []byte, err error)

// Auto is a cache that automatically attempts to load objects if they don't exist
type Auto struct {
	Tracer      *tracing.Tracer
	Provider    Provider
	lookupGroup singleflight.Group
}

// Get returns an object from the cache if it exists, otherwise it loads it into the cache and returns it.
// The second return value reports whether the object came from the cache.
func (a *Auto) Get(ctx context.Context, key string, loader LoaderFunc) (data []byte, cached bool, err error) {
	ctx, span := a.Tracer.Start(ctx, "cache.Get")
	defer span.End()

	// Attempt to get the data from the cache
	data, err = a.Provider.Get(ctx, key)
	// Exit early if the error is nil as we got data from the cache
	// Or if there's an error indicating that something went wrong
	if err == nil {
		return data, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	// Use singleflight to avoid concurrent loads
	var v interface{}
	v, err, _ = a.lookupGroup.Do(key, func() (interface{}, error) {
		// Get the data
		data, err := loader(ctx)
		if err != nil {
			return nil, err
		}

		// Store the data in the cache
		err = a.Provider.Set(ctx, key, data)
		if err != nil {
			return nil, err
		}

		return data, nil
	})

	if err != nil {
		return nil, false, err
	}

	data, _ = v.([]byte)
	return data, false, nil
}

// Errors
var (
	ErrNotFound = errors.New("not found in cache")
)
