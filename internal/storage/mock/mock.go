package mock

import (
	"context"
	"fmt"
)

// Provider implements a mock blob storage that fails every call
type Provider struct {
}

// Get returns an error instead of a blob
func (p *Provider) Get(ctx context.Context, name string) ([]byte, error) {
	return nil, fmt.Errorf("get error")
}

// Put returns an error instead of writing a blob
func (p *Provider) Put(ctx context.Context, name string, data []byte, contentType string) error {
	return fmt.Errorf("put error")
}
