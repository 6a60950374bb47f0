package body

import "math"

// Registry defaults
const (
	DefaultBaseSpeed       = 0.005 // radians per tick before volatility scaling
	DefaultSatelliteSpread = 12.0  // satellites orbit this many times farther out than scale
	DefaultMinSize         = 0.5   // smallest visible radius in scene units
	MaxEccentricity        = 0.99  // orbits stay closed
	AnchorID               = "sun"
)

// NormalizedMass maps a mass onto a small positive scalar, log10(m)/30.
// Masses below one kilogram clamp to zero so the speed never stalls.
func NormalizedMass(m Mass) float64 {
	return math.Max(0, m.Log10()) / 30
}

// Volatility combines mass and eccentricity into the visual speed factor
func Volatility(m Mass, eccentricity float64) float64 {
	return NormalizedMass(m) + eccentricity
}

// AngularSpeed returns radians advanced per tick:
// baseSpeed · (0.5 + volatility · 1.5). Heavier or more eccentric bodies animate
// faster; this is visual variety, not orbital mechanics.
func AngularSpeed(baseSpeed float64, m Mass, eccentricity float64) float64 {
	return baseSpeed * (0.5 + Volatility(m, eccentricity)*1.5)
}
