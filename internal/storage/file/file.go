package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/DMarby/image-resizer/internal/storage"
)

// MetadataDir is the directory inside the storage root that holds blob metadata
const MetadataDir = ".meta"

// Provider implements a file-based blob storage
type Provider struct {
	path string
}

// Metadata is stored next to each blob written through Put
type Metadata struct {
	ContentType string `json:"content_type"`
}

// New returns a new Provider instance
func New(path string) (*Provider, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	return &Provider{
		path,
	}, nil
}

// Path returns the root directory of the storage
func (p *Provider) Path() string {
	return p.path
}

// Get returns the contents of a blob
func (p *Provider) Get(ctx context.Context, name string) ([]byte, error) {
	blobPath, err := p.resolve(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(blobPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storage.ErrNotFound
		}

		return nil, err
	}

	return data, nil
}

// Put writes a blob and its metadata, replacing any existing blob with the same name
func (p *Provider) Put(ctx context.Context, name string, data []byte, contentType string) error {
	blobPath, err := p.resolve(name)
	if err != nil {
		return err
	}

	metadata, err := json.Marshal(Metadata{ContentType: contentType})
	if err != nil {
		return err
	}

	if err := writeFile(p.metadataPath(name), metadata); err != nil {
		return fmt.Errorf("error writing metadata: %w", err)
	}

	return writeFile(blobPath, data)
}

// Metadata returns the metadata of a blob written through Put
func (p *Provider) Metadata(name string) (*Metadata, error) {
	if _, err := p.resolve(name); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p.metadataPath(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storage.ErrNotFound
		}

		return nil, err
	}

	var metadata Metadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, err
	}

	return &metadata, nil
}

// resolve maps a blob name to a path inside the storage root
func (p *Provider) resolve(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if name == "" || filepath.IsAbs(clean) || clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", storage.ErrInvalidName
	}

	if clean == MetadataDir || strings.HasPrefix(clean, MetadataDir+string(filepath.Separator)) {
		return "", storage.ErrInvalidName
	}

	return filepath.Join(p.path, clean), nil
}

func (p *Provider) metadataPath(name string) string {
	return filepath.Join(p.path, MetadataDir, filepath.Clean(filepath.FromSlash(name))+".json")
}

// writeFile writes through a temporary file so readers never observe a partial blob
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}
