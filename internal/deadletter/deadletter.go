package deadletter

import (
	"context"
	"time"

	"github.com/twmb/murmur3"
)

// Provider is an interface for recording invocations that could not be completed
type Provider interface {
	Put(ctx context.Context, letter *Letter) error
}

// Letter describes a failed invocation
type Letter struct {
	Name       string    `json:"name"`
	Kind       string    `json:"kind"`
	Error      string    `json:"error"`
	SourceHash uint64    `json:"source_hash,omitempty"` // murmur3 of the source blob, zero if it was never fetched
	Size       int       `json:"size"`
	FailedAt   time.Time `json:"failed_at"`
}

// New creates a letter for a failed blob
func New(name, kind string, data []byte, err error) *Letter {
	letter := &Letter{
		Name:     name,
		Kind:     kind,
		Size:     len(data),
		FailedAt: time.Now().UTC(),
	}

	if err != nil {
		letter.Error = err.Error()
	}

	if data != nil {
		letter.SourceHash = murmur3.Sum64(data)
	}

	return letter
}
