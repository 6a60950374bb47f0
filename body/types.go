package body

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"orrery.space/orbit"
	"orrery.space/scene"
)

// Kind classifies how a body's position is derived
type Kind int

const (
	// KindPlanet orbits the anchor
	KindPlanet Kind = iota
	// KindAnchor sits at the origin and never orbits
	KindAnchor
	// KindSatellite orbits its primary's current position
	KindSatellite
	// KindCustom is a planet added interactively
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindPlanet:
		return "planet"
	case KindAnchor:
		return "anchor"
	case KindSatellite:
		return "satellite"
	case KindCustom:
		return "custom"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Mass is value × 10^exponent kilograms
type Mass struct {
	Value    float64 `json:"massValue" yaml:"massValue"`
	Exponent float64 `json:"massExponent" yaml:"massExponent"`
}

// Log10 returns log10(value × 10^exponent) without materialising the product.
// Absent or non-positive masses report zero.
func (m Mass) Log10() float64 {
	if m.Value <= 0 || math.IsNaN(m.Value) || math.IsInf(m.Value, 0) ||
		math.IsNaN(m.Exponent) || math.IsInf(m.Exponent, 0) {
		return 0
	}
	return math.Log10(m.Value) + m.Exponent
}

// Color is a 0xRRGGBB display colour. It decodes from either a number or a
// "#rrggbb" string, matching both shapes seen in planet records.
type Color uint32

// DefaultColor is used when a record carries no usable colour
const DefaultColor Color = 0xffffff

// Hex formats the colour as #rrggbb
func (c Color) Hex() string {
	return fmt.Sprintf("#%06x", uint32(c)&0xffffff)
}

func parseColor(s string) (Color, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "#")
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return Color(v & 0xffffff), nil
}

// UnmarshalJSON accepts numbers and colour strings. Unparseable values fall
// back to DefaultColor rather than failing the whole record.
func (c *Color) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*c = Color(uint32(n) & 0xffffff)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if parsed, err := parseColor(s); err == nil {
			*c = parsed
			return nil
		}
	}
	*c = DefaultColor
	return nil
}

// MarshalJSON encodes the colour as a number, the shape the renderer consumes
func (c Color) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatUint(uint64(c), 10)), nil
}

// UnmarshalYAML accepts ints (including 0x literals) and "#rrggbb" strings
func (c *Color) UnmarshalYAML(node *yaml.Node) error {
	var n uint32
	if err := node.Decode(&n); err == nil {
		*c = Color(n & 0xffffff)
		return nil
	}
	parsed, err := parseColor(node.Value)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Input is one planet record as delivered by the data source or a client
// message. Every field is optional; Register fills defaults.
type Input struct {
	Name          string  `json:"name,omitempty" yaml:"name"`
	EnglishName   string  `json:"englishName,omitempty" yaml:"englishName"`
	Primary       string  `json:"primary,omitempty" yaml:"primary"`
	SemimajorAxis float64 `json:"semimajorAxis,omitempty" yaml:"semimajorAxis"`
	Perihelion    float64 `json:"perihelion,omitempty" yaml:"perihelion"`
	Aphelion      float64 `json:"aphelion,omitempty" yaml:"aphelion"`
	Eccentricity  float64 `json:"eccentricity,omitempty" yaml:"eccentricity"`
	AxialTilt     float64 `json:"axialTilt,omitempty" yaml:"axialTilt"`
	Size          float64 `json:"size,omitempty" yaml:"size"`
	Color         *Color  `json:"color,omitempty" yaml:"color"`
	SideralOrbit  float64 `json:"sideralOrbit,omitempty" yaml:"sideralOrbit"`
	Mass          *Mass   `json:"mass,omitempty" yaml:"mass"`
}

// ID derives the registry identifier for the record
func (in Input) ID() string {
	if id := normalizeID(in.Name); id != "" {
		return id
	}
	return normalizeID(in.EnglishName)
}

func normalizeID(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Body is one simulated object. Orbital state lives here; rendering state is
// only referenced through Handle.
type Body struct {
	ID      string
	Name    string
	Kind    Kind
	Primary string

	SemimajorAxis float64 // raw distance unit, see orbit.DistanceDivider
	Eccentricity  float64
	AxialTilt     float64 // degrees
	Size          float64
	Color         Color
	Mass          Mass
	Period        float64 // days, zero when unknown

	Angle        float64 // radians, decreases every tick
	AngularSpeed float64 // radians per tick
	Spin         float64 // self-rotation, radians
	Position     orbit.Vector3

	Handle scene.Handle
}

// TiltRadians returns the axial tilt in radians
func (b *Body) TiltRadians() float64 {
	return b.AxialTilt * math.Pi / 180
}

// IsSatellite reports whether the body orbits another body
func (b *Body) IsSatellite() bool {
	return b.Kind == KindSatellite
}
