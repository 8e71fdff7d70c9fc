package memory

import (
	"context"
	"sync"

	"github.com/DMarby/image-resizer/internal/storage"
)

// Object is a stored blob
type Object struct {
	Data        []byte
	ContentType string
}

// Provider implements a simple in-memory blob storage
type Provider struct {
	objects map[string]Object
	mutex   sync.RWMutex
}

// New returns a new Provider instance
func New() *Provider {
	return &Provider{
		objects: make(map[string]Object),
	}
}

// Get returns the contents of a blob
func (p *Provider) Get(ctx context.Context, name string) ([]byte, error) {
	object, ok := p.Object(name)
	if !ok {
		return nil, storage.ErrNotFound
	}

	return object.Data, nil
}

// Put stores a copy of the blob, replacing any existing blob with the same name
func (p *Provider) Put(ctx context.Context, name string, data []byte, contentType string) error {
	if name == "" {
		return storage.ErrInvalidName
	}

	p.mutex.Lock()
	p.objects[name] = Object{
		Data:        append([]byte(nil), data...),
		ContentType: contentType,
	}
	p.mutex.Unlock()

	return nil
}

// Object returns a stored blob
func (p *Provider) Object(name string) (Object, bool) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	object, ok := p.objects[name]
	return object, ok
}

// Len returns the number of stored blobs
func (p *Provider) Len() int {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	return len(p.objects)
}
