package normalize

import (
	"encoding/hex"
	"fmt"
	"image/color"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/nfnt/resize"
	"gopkg.in/yaml.v3"
)

// Mode is how an image is fitted into the target box
type Mode int

const (
	// Pad scales the image to fit inside the box and letterboxes the surplus with the background
	Pad Mode = iota
	// Stretch resizes the image to exactly the box, ignoring the aspect ratio
	Stretch
)

func (m Mode) String() string {
	if m == Stretch {
		return "stretch"
	}

	return "pad"
}

// ParseMode parses a resize mode name
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "pad":
		return Pad, nil
	case "stretch":
		return Stretch, nil
	}

	return Pad, fmt.Errorf("invalid resize mode %q", s)
}

// Filter is the resampling filter used when resizing
type Filter int

const (
	// Nearest is nearest-neighbor sampling
	Nearest Filter = iota
	// Bilinear is bilinear interpolation
	Bilinear
	// Bicubic is bicubic interpolation
	Bicubic
	// Lanczos is Lanczos resampling with a=3
	Lanczos
)

var filterNames = []string{"nearest", "bilinear", "bicubic", "lanczos"}

func (f Filter) String() string {
	if int(f) < len(filterNames) {
		return filterNames[f]
	}

	return "unknown"
}

func (f Filter) interpolation() resize.InterpolationFunction {
	switch f {
	case Nearest:
		return resize.NearestNeighbor
	case Bilinear:
		return resize.Bilinear
	case Bicubic:
		return resize.Bicubic
	default:
		return resize.Lanczos3
	}
}

// ParseFilter parses a resampling filter name
func ParseFilter(s string) (Filter, error) {
	for i, name := range filterNames {
		if strings.EqualFold(s, name) {
			return Filter(i), nil
		}
	}

	return Lanczos, fmt.Errorf("invalid filter %q", s)
}

// Transparent is the default pad background
var Transparent = color.NRGBA{}

// ParseColor parses "transparent", "#rrggbb" or "#rrggbbaa"
func ParseColor(s string) (color.NRGBA, error) {
	if strings.EqualFold(s, "transparent") || s == "" {
		return Transparent, nil
	}

	b, err := hex.DecodeString(strings.TrimPrefix(s, "#"))
	if err != nil || (len(b) != 3 && len(b) != 4) {
		return Transparent, fmt.Errorf("invalid color %q", s)
	}

	c := color.NRGBA{R: b[0], G: b[1], B: b[2], A: 0xff}
	if len(b) == 4 {
		c.A = b[3]
	}

	return c, nil
}

func formatColor(c color.NRGBA) string {
	if c == Transparent {
		return "transparent"
	}

	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

// Policy configures a normalization
type Policy struct {
	Width      int
	Height     int
	Mode       Mode
	Filter     Filter
	Background color.NRGBA
	Output     Output
	Naming     Naming
	// MaxPixels rejects sources with more pixels than this before decoding them. Zero means no limit.
	MaxPixels int
}

// Validate checks that the policy can be applied
func (p Policy) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("invalid target size %dx%d", p.Width, p.Height)
	}

	if p.Mode != Pad && p.Mode != Stretch {
		return fmt.Errorf("invalid resize mode %d", p.Mode)
	}

	if p.Filter < Nearest || p.Filter > Lanczos {
		return fmt.Errorf("invalid filter %d", p.Filter)
	}

	if p.Output.Fixed && p.Output.Format.ContentType() == "" {
		return fmt.Errorf("invalid output format %s", p.Output.Format)
	}

	if (!p.Output.Fixed || p.Output.Format == JPEG) && (p.Output.Quality < 1 || p.Output.Quality > 100) {
		return fmt.Errorf("invalid jpeg quality %d", p.Output.Quality)
	}

	if p.MaxPixels < 0 {
		return fmt.Errorf("invalid max pixels %d", p.MaxPixels)
	}

	return nil
}

// DefaultMaxPixels is the decode limit of profiles that do not set one
const DefaultMaxPixels = 50_000_000

// Profile is the textual form of a Policy, as found in profile files and on the command line.
// Empty fields are unset, so a Profile can be merged on top of another.
type Profile struct {
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	Mode        string `yaml:"mode"`
	Filter      string `yaml:"filter"`
	Background  string `yaml:"background"`
	Output      string `yaml:"output"` // "extension" or a format name
	JPEGQuality int    `yaml:"jpeg_quality"`
	Naming      string `yaml:"naming"` // "suffix" or "keep"
	Suffix      string `yaml:"suffix"`
	MaxPixels   int    `yaml:"max_pixels"` // unset means DefaultMaxPixels
}

// Profiles are the built-in profiles
var Profiles = map[string]Profile{
	// Letterboxed thumbnails named <stem>_thumb<ext>, encoded like the source
	"thumbnail": {
		Width:       100,
		Height:      100,
		Mode:        "pad",
		Filter:      "lanczos",
		Background:  "transparent",
		Output:      "extension",
		JPEGQuality: DefaultJPEGQuality,
		Naming:      "suffix",
		Suffix:      "_thumb",
		MaxPixels:   DefaultMaxPixels,
	},
	// Fixed size JPEGs written under the source name
	"stretch": {
		Width:       200,
		Height:      200,
		Mode:        "stretch",
		Filter:      "bilinear",
		Background:  "transparent",
		Output:      "jpeg",
		JPEGQuality: 80,
		Naming:      "keep",
		MaxPixels:   DefaultMaxPixels,
	},
}

// Merge returns p with every set field of override applied on top
func (p Profile) Merge(override Profile) Profile {
	if override.Width != 0 {
		p.Width = override.Width
	}
	if override.Height != 0 {
		p.Height = override.Height
	}
	if override.Mode != "" {
		p.Mode = override.Mode
	}
	if override.Filter != "" {
		p.Filter = override.Filter
	}
	if override.Background != "" {
		p.Background = override.Background
	}
	if override.Output != "" {
		p.Output = override.Output
	}
	if override.JPEGQuality != 0 {
		p.JPEGQuality = override.JPEGQuality
	}
	if override.Naming != "" {
		p.Naming = override.Naming
	}
	if override.Suffix != "" {
		p.Suffix = override.Suffix
	}
	if override.MaxPixels != 0 {
		p.MaxPixels = override.MaxPixels
	}

	return p
}

// Policy parses and validates the profile
func (p Profile) Policy() (Policy, error) {
	policy := Policy{
		Width:     p.Width,
		Height:    p.Height,
		MaxPixels: p.MaxPixels,
	}
	if policy.MaxPixels == 0 {
		policy.MaxPixels = DefaultMaxPixels
	}

	mode := p.Mode
	if mode == "" {
		mode = Pad.String()
	}

	var err error
	if policy.Mode, err = ParseMode(mode); err != nil {
		return Policy{}, err
	}

	filter := p.Filter
	if filter == "" {
		filter = Lanczos.String()
	}
	if policy.Filter, err = ParseFilter(filter); err != nil {
		return Policy{}, err
	}

	if policy.Background, err = ParseColor(p.Background); err != nil {
		return Policy{}, err
	}

	quality := p.JPEGQuality
	if quality == 0 {
		quality = DefaultJPEGQuality
	}

	switch strings.ToLower(p.Output) {
	case "", "extension":
		policy.Output = ByExtension(quality)
	default:
		format, err := ParseFormat(p.Output)
		if err != nil {
			return Policy{}, err
		}
		policy.Output = FixedFormat(format, quality)
	}

	switch strings.ToLower(p.Naming) {
	case "", "keep":
		policy.Naming = KeepName()
	case "suffix":
		if p.Suffix == "" {
			return Policy{}, fmt.Errorf("suffix naming requires a suffix")
		}
		policy.Naming = SuffixName(p.Suffix)
	default:
		return Policy{}, fmt.Errorf("invalid naming strategy %q", p.Naming)
	}

	return policy, policy.Validate()
}

// String formats the policy for logging
func (p Policy) String() string {
	output := "extension(jpeg quality " + strconv.Itoa(p.Output.Quality) + ")"
	if p.Output.Fixed {
		output = p.Output.Encoder("").String()
	}

	naming := "keep"
	if p.Naming.Suffix != "" {
		naming = "suffix(" + p.Naming.Suffix + ")"
	}

	return fmt.Sprintf("%dx%d %s %s background=%s output=%s naming=%s", p.Width, p.Height, p.Mode, p.Filter, formatColor(p.Background), output, naming)
}

// LoadProfiles reads a YAML document mapping profile names to profiles.
// Profiles with the name of a built-in profile are merged on top of it.
func LoadProfiles(r io.Reader) (map[string]Profile, error) {
	var loaded map[string]Profile
	if err := yaml.NewDecoder(r).Decode(&loaded); err != nil && err != io.EOF {
		return nil, fmt.Errorf("error decoding profiles: %w", err)
	}

	profiles := make(map[string]Profile, len(Profiles)+len(loaded))
	for name, profile := range Profiles {
		profiles[name] = profile
	}

	for name, profile := range loaded {
		profiles[name] = profiles[name].Merge(profile)
	}

	return profiles, nil
}

// ProfileNames returns the sorted names of the given profiles
func ProfileNames(profiles map[string]Profile) []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
