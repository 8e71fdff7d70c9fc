package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/DMarby/image-resizer/internal/deadletter"
)

// Provider writes each dead letter to its own JSON file
type Provider struct {
	path string
}

// New returns a new Provider instance, creating the directory if needed
func New(path string) (*Provider, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, err
	}

	return &Provider{
		path,
	}, nil
}

// Put writes a letter to <unix nanos>-<source hash>-<random>.json, never replacing an existing letter
func (p *Provider) Put(ctx context.Context, letter *deadletter.Letter) error {
	data, err := json.MarshalIndent(letter, "", "  ")
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(p.path, fmt.Sprintf("%d-%016x-*.json", letter.FailedAt.UnixNano(), letter.SourceHash))
	if err != nil {
		return err
	}

	if err := f.Chmod(0644); err != nil {
		f.Close()
		return err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

// Ping checks that the directory still exists
func (p *Provider) Ping(ctx context.Context) error {
	info, err := os.Stat(p.path)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", p.path)
	}

	return nil
}
