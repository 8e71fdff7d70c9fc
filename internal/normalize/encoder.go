package normalize

import (
	"fmt"
	"image"
	"io"
	"path"
	"strings"

	"github.com/disintegration/imaging"
)

// DefaultJPEGQuality is the quality used for JPEG output when none is configured
const DefaultJPEGQuality = 75

// Encoder is one of the closed set of output encoders: JPEG(quality), PNG, GIF or BMP
type Encoder struct {
	Format  Format
	Quality int // Only used for JPEG
}

// ContentType returns the canonical MIME type of the encoder's output
func (e Encoder) ContentType() string {
	return e.Format.ContentType()
}

func (e Encoder) String() string {
	if e.Format == JPEG {
		return fmt.Sprintf("jpeg(%d)", e.Quality)
	}

	return e.Format.String()
}

// Encode writes img to w
func (e Encoder) Encode(w io.Writer, img image.Image) error {
	switch e.Format {
	case JPEG:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(e.Quality))
	case PNG:
		return imaging.Encode(w, img, imaging.PNG)
	case GIF:
		return imaging.Encode(w, img, imaging.GIF)
	case BMP:
		return imaging.Encode(w, img, imaging.BMP)
	}

	return fmt.Errorf("no encoder for format %s", e.Format)
}

// EncoderForName maps a file name's extension to an encoder: .jpg/.jpeg to JPEG, .bmp to BMP, .gif to GIF, anything else to PNG
func EncoderForName(name string, jpegQuality int) Encoder {
	switch strings.ToLower(path.Ext(name)) {
	case ".jpg", ".jpeg":
		return Encoder{Format: JPEG, Quality: jpegQuality}
	case ".bmp":
		return Encoder{Format: BMP}
	case ".gif":
		return Encoder{Format: GIF}
	default:
		return Encoder{Format: PNG}
	}
}

// Output selects the encoder for an image
type Output struct {
	// Fixed selects Format for every image, otherwise the encoder is picked from the source name's extension
	Fixed   bool
	Format  Format
	Quality int
}

// ByExtension returns an output strategy that picks the encoder from the source name
func ByExtension(jpegQuality int) Output {
	return Output{Quality: jpegQuality}
}

// FixedFormat returns an output strategy that always uses the given format
func FixedFormat(format Format, jpegQuality int) Output {
	return Output{Fixed: true, Format: format, Quality: jpegQuality}
}

// Encoder resolves the encoder for the given source name
func (o Output) Encoder(name string) Encoder {
	if o.Fixed {
		return Encoder{Format: o.Format, Quality: o.Quality}
	}

	return EncoderForName(name, o.Quality)
}
