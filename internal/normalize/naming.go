package normalize

import (
	"path"
	"strings"
)

// Naming derives the destination name of an artifact from the source name.
// An empty Suffix keeps the source name unchanged.
type Naming struct {
	Suffix string
}

// KeepName returns a naming strategy that reuses the source name
func KeepName() Naming {
	return Naming{}
}

// SuffixName returns a naming strategy that inserts suffix before the extension
func SuffixName(suffix string) Naming {
	return Naming{Suffix: suffix}
}

// Derive returns the destination name for a source name.
// Directory components of the name are kept, so "products/photo.jpg" becomes "products/photo_thumb.jpg".
func (n Naming) Derive(name string) string {
	if n.Suffix == "" {
		return name
	}

	dir, stem, ext := splitName(name)
	return dir + stem + n.Suffix + ext
}

// IsDerived reports whether name already looks like the output of Derive
func (n Naming) IsDerived(name string) bool {
	if n.Suffix == "" {
		return false
	}

	_, stem, _ := splitName(name)
	return strings.HasSuffix(stem, n.Suffix)
}

func splitName(name string) (dir, stem, ext string) {
	dir, file := path.Split(name)
	ext = path.Ext(file)
	return dir, strings.TrimSuffix(file, ext), ext
}
