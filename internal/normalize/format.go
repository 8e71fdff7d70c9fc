package normalize

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Format is an encoded image format
type Format int

const (
	// Unknown is any container we don't handle
	Unknown Format = iota
	// JPEG represents the JPEG format
	JPEG
	// PNG represents the PNG format
	PNG
	// GIF represents the GIF format
	GIF
	// BMP represents the BMP format
	BMP
)

var formatNames = map[Format]string{
	Unknown: "unknown",
	JPEG:    "jpeg",
	PNG:     "png",
	GIF:     "gif",
	BMP:     "bmp",
}

var contentTypes = map[Format]string{
	JPEG: "image/jpeg",
	PNG:  "image/png",
	GIF:  "image/gif",
	BMP:  "image/bmp",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}

	return formatNames[Unknown]
}

// ContentType returns the canonical MIME type of the format
func (f Format) ContentType() string {
	return contentTypes[f]
}

// ParseFormat parses a format name, accepting "jpg" as an alias for "jpeg"
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "jpg", "jpeg":
		return JPEG, nil
	case "png":
		return PNG, nil
	case "gif":
		return GIF, nil
	case "bmp":
		return BMP, nil
	}

	return Unknown, fmt.Errorf("invalid image format %q", s)
}

// Detect sniffs the container format of an encoded image.
// The detected MIME type's parents are walked so that subtypes (e.g. APNG) resolve to their base format.
func Detect(data []byte) Format {
	if len(data) == 0 {
		return Unknown
	}

	for mt := mimetype.Detect(data); mt != nil; mt = mt.Parent() {
		for format, contentType := range contentTypes {
			if mt.Is(contentType) {
				return format
			}
		}
	}

	return Unknown
}
