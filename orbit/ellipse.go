package orbit

import "math"

// SceneAxis converts a raw semimajor axis into scene units
func SceneAxis(semimajorAxis float64) float64 {
	return semimajorAxis / DistanceDivider
}

// FocalDistance is the offset between the ellipse centre and its focus
func FocalDistance(a, e float64) float64 {
	return a * e
}

// Radius returns the focus-to-body distance at angle on an ellipse with
// semimajor axis a (scene units) and eccentricity e
func Radius(a, e, angle float64) float64 {
	return a * (1 - e*e) / (1 + e*math.Cos(angle))
}

// Position returns the orbital-plane position at angle. The result is shifted
// by the focal distance so that the anchor stays on a fixed scene point for any
// eccentricity. Y is always zero.
func Position(a, e, angle float64) Vector3 {
	r := Radius(a, e, angle)
	return Vector3{
		X: r*math.Cos(angle) - FocalDistance(a, e),
		Z: r * math.Sin(angle),
	}
}

// Perihelion is the closest approach to the focus, a(1-e)
func Perihelion(a, e float64) float64 {
	return a * (1 - e)
}

// Aphelion is the farthest distance from the focus, a(1+e)
func Aphelion(a, e float64) float64 {
	return a * (1 + e)
}

// Path samples a closed orbit line with the given number of segments.
// The returned slice has segments+1 points; the last repeats the first.
func Path(a, e float64, segments int) []Vector3 {
	if segments < 3 {
		segments = PathSegments
	}
	points := make([]Vector3, 0, segments+1)
	step := 2 * math.Pi / float64(segments)
	for i := 0; i <= segments; i++ {
		angle := float64(i%segments) * step
		points = append(points, Position(a, e, angle))
	}
	return points
}

// Focus returns the scene point that Position measures its radius from
func Focus(a, e float64) Vector3 {
	return Vector3{X: -FocalDistance(a, e)}
}
