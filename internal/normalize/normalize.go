// Package normalize turns a source image into a resized, re-encoded artifact ready to be published.
// It performs no I/O: everything happens on in-memory buffers owned by a single call.
package normalize

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/gif"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
)

// SourceImage is an encoded image and the name it was stored under
type SourceImage struct {
	Name string
	Data []byte
}

// Artifact is a normalized image and the metadata needed to publish it
type Artifact struct {
	Name        string
	ContentType string
	Data        []byte
}

// Normalizer applies a policy to source images
type Normalizer struct {
	policy Policy
}

// New returns a Normalizer for a validated policy
func New(policy Policy) (*Normalizer, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	return &Normalizer{
		policy: policy,
	}, nil
}

// Policy returns the policy the normalizer applies
func (n *Normalizer) Policy() Policy {
	return n.policy
}

// Normalize detects, decodes, resizes and re-encodes a source image.
// Any returned error is an *Error.
func (n *Normalizer) Normalize(src SourceImage) (*Artifact, error) {
	format := Detect(src.Data)
	if format == Unknown {
		return nil, &Error{Kind: UnsupportedFormat, Name: src.Name}
	}

	img, err := n.decode(format, src.Data)
	if err != nil {
		return nil, &Error{Kind: DecodeError, Name: src.Name, Err: err}
	}

	resized := n.resize(img)

	encoder := n.policy.Output.Encoder(src.Name)
	buf, err := encode(encoder, resized)
	if err != nil {
		return nil, &Error{Kind: EncodeError, Name: src.Name, Err: err}
	}

	return &Artifact{
		Name:        n.policy.Naming.Derive(src.Name),
		ContentType: encoder.ContentType(),
		Data:        buf,
	}, nil
}

func (n *Normalizer) decode(format Format, data []byte) (img image.Image, err error) {
	// Decoders may panic on malformed input
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("panic decoding image: %v", r)
		}
	}()

	config, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	if config.Width <= 0 || config.Height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", config.Width, config.Height)
	}

	if n.policy.MaxPixels > 0 && config.Width*config.Height > n.policy.MaxPixels {
		return nil, fmt.Errorf("image size %dx%d exceeds the %d pixel limit", config.Width, config.Height, n.policy.MaxPixels)
	}

	if format == GIF {
		return decodeGIF(data)
	}

	return imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
}

// decodeGIF composites the first frame onto the logical screen, since frames may cover only part of it
func decodeGIF(data []byte) (image.Image, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	if len(g.Image) == 0 {
		return nil, fmt.Errorf("gif has no frames")
	}

	frame := g.Image[0]
	screen := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if screen.Empty() {
		screen = frame.Bounds()
	}

	canvas := image.NewNRGBA(screen)
	draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Src)

	return canvas, nil
}

func (n *Normalizer) resize(img image.Image) image.Image {
	width, height := n.policy.Width, n.policy.Height
	interpolation := n.policy.Filter.interpolation()

	if n.policy.Mode == Stretch {
		return resize.Resize(uint(width), uint(height), img, interpolation)
	}

	bounds := img.Bounds()
	contentWidth, contentHeight := Fit(bounds.Dx(), bounds.Dy(), width, height)
	content := resize.Resize(uint(contentWidth), uint(contentHeight), img, interpolation)

	canvas := imaging.New(width, height, n.policy.Background)
	return imaging.Paste(canvas, content, image.Pt((width-contentWidth)/2, (height-contentHeight)/2))
}

// Fit returns the largest size with the aspect ratio of srcWidth x srcHeight that fits inside width x height.
// The scaled side is rounded to the nearest pixel and is never smaller than one pixel.
func Fit(srcWidth, srcHeight, width, height int) (int, int) {
	if srcWidth*height > srcHeight*width {
		// Wider than the box, the width is the constraint
		return width, max(1, (2*srcHeight*width+srcWidth)/(2*srcWidth))
	}

	return max(1, (2*srcWidth*height+srcHeight)/(2*srcHeight)), height
}

func encode(encoder Encoder, img image.Image) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("panic encoding image: %v", r)
		}
	}()

	buf := new(bytes.Buffer)
	if err := encoder.Encode(buf, img); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
