package normalize_test

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/DMarby/image-resizer/internal/normalize"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	red  = color.NRGBA{R: 0xff, A: 0xff}
	blue = color.NRGBA{B: 0xff, A: 0xff}
)

func solid(width, height int, c color.NRGBA) *image.NRGBA {
	return imaging.New(width, height, c)
}

func encodeFixture(t testing.TB, img image.Image, format normalize.Format) []byte {
	t.Helper()

	buf := new(bytes.Buffer)
	var err error
	switch format {
	case normalize.JPEG:
		err = jpeg.Encode(buf, img, &jpeg.Options{Quality: 90})
	case normalize.PNG:
		err = png.Encode(buf, img)
	case normalize.GIF:
		err = gif.Encode(buf, img, nil)
	case normalize.BMP:
		err = imaging.Encode(buf, img, imaging.BMP)
	}
	require.NoError(t, err)

	return buf.Bytes()
}

func newNormalizer(t testing.TB, policy normalize.Policy) *normalize.Normalizer {
	t.Helper()

	n, err := normalize.New(policy)
	require.NoError(t, err)

	return n
}

func policy(width, height int, mode normalize.Mode, output normalize.Output) normalize.Policy {
	return normalize.Policy{
		Width:      width,
		Height:     height,
		Mode:       mode,
		Filter:     normalize.Nearest,
		Background: blue,
		Output:     output,
		Naming:     normalize.SuffixName("_thumb"),
	}
}

func TestNormalizeSupportedFormats(t *testing.T) {
	sources := []struct {
		Name   string
		Format normalize.Format
	}{
		{"photo.jpg", normalize.JPEG},
		{"photo.png", normalize.PNG},
		{"photo.gif", normalize.GIF},
		{"photo.bmp", normalize.BMP},
	}

	policies := map[string]normalize.Policy{
		"pad by extension":  policy(100, 100, normalize.Pad, normalize.ByExtension(75)),
		"stretch fixed jpeg": policy(200, 200, normalize.Stretch, normalize.FixedFormat(normalize.JPEG, 80)),
		"pad wide box":      policy(160, 90, normalize.Pad, normalize.ByExtension(75)),
	}

	for policyName, p := range policies {
		n := newNormalizer(t, p)

		for _, src := range sources {
			t.Run(policyName+" "+src.Name, func(t *testing.T) {
				data := encodeFixture(t, solid(500, 300, red), src.Format)

				artifact, err := n.Normalize(normalize.SourceImage{Name: src.Name, Data: data})
				require.NoError(t, err)

				config, format, err := image.DecodeConfig(bytes.NewReader(artifact.Data))
				require.NoError(t, err)
				assert.Equal(t, p.Width, config.Width)
				assert.Equal(t, p.Height, config.Height)

				expected := p.Output.Encoder(src.Name)
				assert.Equal(t, expected.Format.String(), format)
				assert.Equal(t, expected.ContentType(), artifact.ContentType)
				assert.Equal(t, "photo_thumb"+src.Name[len("photo"):], artifact.Name)
			})
		}
	}
}

func TestNormalizeMalformed(t *testing.T) {
	n := newNormalizer(t, policy(100, 100, normalize.Pad, normalize.ByExtension(75)))

	validPNG := encodeFixture(t, solid(64, 64, red), normalize.PNG)
	validJPEG := encodeFixture(t, solid(64, 64, red), normalize.JPEG)
	validGIF := encodeFixture(t, solid(64, 64, red), normalize.GIF)
	validBMP := encodeFixture(t, solid(64, 64, red), normalize.BMP)

	tests := []struct {
		Name string
		Data []byte
		Kind normalize.Kind
	}{
		{"nil", nil, normalize.UnsupportedFormat},
		{"empty", []byte{}, normalize.UnsupportedFormat},
		{"text", []byte("definitely not an image"), normalize.UnsupportedFormat},
		{"zeros", make([]byte, 1024), normalize.UnsupportedFormat},
		{"truncated png", validPNG[:len(validPNG)/2], normalize.DecodeError},
		{"png signature only", validPNG[:8], normalize.DecodeError},
		{"truncated jpeg", validJPEG[:20], normalize.DecodeError},
		{"truncated gif", validGIF[:16], normalize.DecodeError},
		{"truncated bmp", validBMP[:30], normalize.DecodeError},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			artifact, err := n.Normalize(normalize.SourceImage{Name: "broken.png", Data: test.Data})
			require.Error(t, err)
			assert.Nil(t, artifact)

			var nerr *normalize.Error
			require.True(t, errors.As(err, &nerr))
			assert.Equal(t, test.Kind, nerr.Kind)
			assert.Equal(t, "broken.png", nerr.Name)

			kind, ok := normalize.KindOf(err)
			assert.True(t, ok)
			assert.Equal(t, test.Kind, kind)
		})
	}

	t.Run("sentinel errors", func(t *testing.T) {
		_, err := n.Normalize(normalize.SourceImage{Name: "a.png", Data: []byte("nope")})
		assert.ErrorIs(t, err, normalize.ErrUnsupportedFormat)
		assert.NotErrorIs(t, err, normalize.ErrDecode)

		_, err = n.Normalize(normalize.SourceImage{Name: "a.png", Data: validPNG[:8]})
		assert.ErrorIs(t, err, normalize.ErrDecode)
	})
}

func TestNormalizePad(t *testing.T) {
	tests := []struct {
		Name                        string
		SourceWidth, SourceHeight   int
		Width, Height               int
		ContentWidth, ContentHeight int
	}{
		{"landscape into square", 500, 300, 300, 300, 300, 180},
		{"portrait into square", 300, 500, 300, 300, 180, 300},
		{"landscape into thumbnail", 640, 480, 100, 100, 100, 75},
		{"square into wide box", 200, 200, 160, 90, 90, 90},
		{"same aspect ratio", 400, 200, 200, 100, 200, 100},
		{"upscale", 50, 25, 100, 100, 100, 50},
		{"odd surplus floors the offset", 300, 100, 100, 100, 100, 33},
		{"odd surplus on both axes", 100, 300, 100, 100, 33, 100},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			n := newNormalizer(t, policy(test.Width, test.Height, normalize.Pad, normalize.FixedFormat(normalize.PNG, 75)))

			data := encodeFixture(t, solid(test.SourceWidth, test.SourceHeight, red), normalize.PNG)
			artifact, err := n.Normalize(normalize.SourceImage{Name: "source.png", Data: data})
			require.NoError(t, err)

			img, err := png.Decode(bytes.NewReader(artifact.Data))
			require.NoError(t, err)
			require.Equal(t, test.Width, img.Bounds().Dx())
			require.Equal(t, test.Height, img.Bounds().Dy())

			offsetX := (test.Width - test.ContentWidth) / 2
			offsetY := (test.Height - test.ContentHeight) / 2
			content := image.Rect(offsetX, offsetY, offsetX+test.ContentWidth, offsetY+test.ContentHeight)

			surplus := 0
			for y := 0; y < test.Height; y++ {
				for x := 0; x < test.Width; x++ {
					c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
					if image.Pt(x, y).In(content) {
						require.Equal(t, red, c, "content pixel at %d,%d", x, y)
					} else {
						require.Equal(t, blue, c, "surplus pixel at %d,%d", x, y)
						surplus++
					}
				}
			}

			assert.Equal(t, test.Width*test.Height-test.ContentWidth*test.ContentHeight, surplus)
		})
	}
}

func TestNormalizeStretch(t *testing.T) {
	n := newNormalizer(t, policy(200, 200, normalize.Stretch, normalize.FixedFormat(normalize.PNG, 75)))

	data := encodeFixture(t, solid(500, 300, red), normalize.PNG)
	artifact, err := n.Normalize(normalize.SourceImage{Name: "source.png", Data: data})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(artifact.Data))
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 200, 200), img.Bounds())

	// No letterboxing in stretch mode
	for _, pt := range []image.Point{{0, 0}, {199, 0}, {0, 199}, {199, 199}, {100, 100}} {
		assert.Equal(t, red, color.NRGBAModel.Convert(img.At(pt.X, pt.Y)))
	}
}

func TestNormalizeEndToEnd(t *testing.T) {
	n := newNormalizer(t, normalize.Policy{
		Width:      300,
		Height:     300,
		Mode:       normalize.Pad,
		Filter:     normalize.Lanczos,
		Background: normalize.Transparent,
		Output:     normalize.ByExtension(normalize.DefaultJPEGQuality),
		Naming:     normalize.KeepName(),
	})

	data := encodeFixture(t, solid(500, 300, red), normalize.PNG)
	artifact, err := n.Normalize(normalize.SourceImage{Name: "banner.png", Data: data})
	require.NoError(t, err)

	assert.Equal(t, "banner.png", artifact.Name)
	assert.Equal(t, "image/png", artifact.ContentType)

	img, format, err := image.Decode(bytes.NewReader(artifact.Data))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	require.Equal(t, image.Rect(0, 0, 300, 300), img.Bounds())

	// 500x300 scales to 300x180, centered with 60 rows of padding above and below
	for _, y := range []int{0, 30, 59, 240, 270, 299} {
		for _, x := range []int{0, 150, 299} {
			_, _, _, a := img.At(x, y).RGBA()
			assert.Zero(t, a, "expected transparent padding at %d,%d", x, y)
		}
	}

	for _, y := range []int{62, 150, 237} {
		for _, x := range []int{2, 150, 297} {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			assert.Equal(t, uint8(0xff), c.A, "expected opaque content at %d,%d", x, y)
			assert.Greater(t, c.R, uint8(0xf0))
		}
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 123, 77))
	for y := 0; y < 77; y++ {
		for x := 0; x < 123; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 2), G: uint8(y * 3), B: uint8(x ^ y), A: 0xff})
		}
	}
	data := encodeFixture(t, src, normalize.PNG)

	for _, filter := range []normalize.Filter{normalize.Nearest, normalize.Bilinear, normalize.Bicubic, normalize.Lanczos} {
		t.Run(filter.String(), func(t *testing.T) {
			p := policy(50, 50, normalize.Pad, normalize.ByExtension(75))
			p.Filter = filter
			n := newNormalizer(t, p)

			first, err := n.Normalize(normalize.SourceImage{Name: "gradient.jpg", Data: data})
			require.NoError(t, err)
			second, err := n.Normalize(normalize.SourceImage{Name: "gradient.jpg", Data: data})
			require.NoError(t, err)

			assert.Equal(t, first.Data, second.Data)
			assert.Equal(t, "image/jpeg", first.ContentType)
		})
	}
}

func TestNormalizeMaxPixels(t *testing.T) {
	p := policy(10, 10, normalize.Pad, normalize.ByExtension(75))
	p.MaxPixels = 100 * 100
	n := newNormalizer(t, p)

	_, err := n.Normalize(normalize.SourceImage{Name: "big.png", Data: encodeFixture(t, solid(101, 100, red), normalize.PNG)})
	assert.ErrorIs(t, err, normalize.ErrDecode)

	_, err = n.Normalize(normalize.SourceImage{Name: "ok.png", Data: encodeFixture(t, solid(100, 100, red), normalize.PNG)})
	assert.NoError(t, err)
}

func TestNormalizeGIFLogicalScreen(t *testing.T) {
	// A 400x200 logical screen whose only frame covers the top left 40x40
	frame := image.NewPaletted(image.Rect(0, 0, 40, 40), color.Palette{red, color.Transparent})
	buf := new(bytes.Buffer)
	require.NoError(t, gif.EncodeAll(buf, &gif.GIF{
		Image:  []*image.Paletted{frame},
		Delay:  []int{0},
		Config: image.Config{Width: 400, Height: 200},
	}))

	n := newNormalizer(t, policy(100, 100, normalize.Pad, normalize.FixedFormat(normalize.PNG, 75)))
	artifact, err := n.Normalize(normalize.SourceImage{Name: "screen.gif", Data: buf.Bytes()})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(artifact.Data))
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 100, 100), img.Bounds())

	at := func(x, y int) color.NRGBA {
		return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
	}

	// 100x50 content letterboxed at y=25
	assert.Equal(t, blue, at(5, 10), "top padding")
	assert.Equal(t, blue, at(5, 90), "bottom padding")
	assert.Equal(t, red, at(5, 30), "first frame")
	assert.Equal(t, uint8(0), at(50, 50).A, "uncovered logical screen")
}

func TestNew(t *testing.T) {
	_, err := normalize.New(normalize.Policy{})
	assert.Error(t, err)
}

func TestFit(t *testing.T) {
	tests := []struct {
		SrcWidth, SrcHeight, Width, Height int
		ExpectedWidth, ExpectedHeight      int
	}{
		{500, 300, 300, 300, 300, 180},
		{300, 500, 300, 300, 180, 300},
		{100, 100, 100, 100, 100, 100},
		{3, 2, 100, 100, 100, 67},
		{10000, 1, 100, 100, 100, 1},
		{1, 10000, 100, 100, 1, 100},
		{200, 200, 160, 90, 90, 90},
	}

	for _, test := range tests {
		width, height := normalize.Fit(test.SrcWidth, test.SrcHeight, test.Width, test.Height)
		if width != test.ExpectedWidth || height != test.ExpectedHeight {
			t.Errorf("Fit(%d, %d, %d, %d) = %dx%d, expected %dx%d", test.SrcWidth, test.SrcHeight, test.Width, test.Height, width, height, test.ExpectedWidth, test.ExpectedHeight)
		}
	}
}
