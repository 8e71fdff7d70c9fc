package memory

import (
	"context"
	"sync"

	"github.com/DMarby/image-resizer/internal/deadletter"
)

// Provider keeps dead letters in memory
type Provider struct {
	letters []*deadletter.Letter
	mutex   sync.Mutex
}

// New returns a new Provider instance
func New() *Provider {
	return &Provider{}
}

// Put records a letter
func (p *Provider) Put(ctx context.Context, letter *deadletter.Letter) error {
	p.mutex.Lock()
	p.letters = append(p.letters, letter)
	p.mutex.Unlock()

	return nil
}

// Letters returns the recorded letters
func (p *Provider) Letters() []*deadletter.Letter {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return append([]*deadletter.Letter(nil), p.letters...)
}
