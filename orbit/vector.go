package orbit

import "math"

// Vector3 represents a point or direction in scene space.
// The orbital plane is X/Z with Y pointing up.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Zero is the origin, where the anchor body sits
var Zero = Vector3{}

// Up is the world up axis
var Up = Vector3{Y: 1}

// Add returns the sum of two vectors
func (v Vector3) Add(other Vector3) Vector3 {
	return Vector3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}

// Subtract returns the difference of two vectors
func (v Vector3) Subtract(other Vector3) Vector3 {
	return Vector3{
		X: v.X - other.X,
		Y: v.Y - other.Y,
		Z: v.Z - other.Z,
	}
}

// Scale returns the vector multiplied by a scalar
func (v Vector3) Scale(factor float64) Vector3 {
	return Vector3{
		X: v.X * factor,
		Y: v.Y * factor,
		Z: v.Z * factor,
	}
}

// Magnitude returns the length of the vector
func (v Vector3) Magnitude() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Distance returns the length of the segment between v and other
func (v Vector3) Distance(other Vector3) float64 {
	return other.Subtract(v).Magnitude()
}

// DotProduct returns the dot product of two vectors
func (v Vector3) DotProduct(other Vector3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// CrossProduct returns the cross product of two vectors
func (v Vector3) CrossProduct(other Vector3) Vector3 {
	return Vector3{
		X: v.Y*other.Z - v.Z*other.Y,
		Y: v.Z*other.X - v.X*other.Z,
		Z: v.X*other.Y - v.Y*other.X,
	}
}

// Normalize returns the vector scaled to unit length, or the zero vector
// when the input is too short to have a direction.
func (v Vector3) Normalize() Vector3 {
	mag := v.Magnitude()
	if mag < 1e-10 {
		return Vector3{}
	}
	return v.Scale(1 / mag)
}

// Lerp moves v toward target by fraction t in [0, 1]
func (v Vector3) Lerp(target Vector3, t float64) Vector3 {
	return v.Add(target.Subtract(v).Scale(t))
}
