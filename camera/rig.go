// Package camera implements the orbit-and-follow camera rig. The rig tracks a
// target body by id and eases the real camera toward a desired pose, so input
// handling never moves the rendered camera directly.
package camera

import (
	"math"

	"orrery.space/orbit"
)

// Locator resolves body ids to their current position
type Locator interface {
	Locate(id string) (orbit.Vector3, bool)
}

// Direction selects the axis a keyboard nudge moves along
type Direction int

const (
	Forward Direction = iota
	Right
)

// Defaults
const (
	DefaultSmoothing   = 0.05
	DefaultSensitivity = 0.01
	DefaultNudgeStep   = 10.0
	DefaultMinDistance = 5.0
	DefaultFOV         = 75.0 // vertical, degrees
	DefaultDistance    = 400.0
	DefaultPitch       = 0.6
)

// Options tunes a Rig. Zero fields take the defaults above.
type Options struct {
	Smoothing   float64
	Sensitivity float64
	NudgeStep   float64
	MinDistance float64
	FOV         float64
	Distance    float64
	Pitch       float64
	Yaw         float64
}

func (o Options) withDefaults() Options {
	if o.Smoothing <= 0 || o.Smoothing > 1 {
		o.Smoothing = DefaultSmoothing
	}
	if o.Sensitivity <= 0 {
		o.Sensitivity = DefaultSensitivity
	}
	if o.NudgeStep <= 0 {
		o.NudgeStep = DefaultNudgeStep
	}
	if o.MinDistance <= 0 {
		o.MinDistance = DefaultMinDistance
	}
	if o.FOV <= 0 || o.FOV >= 180 {
		o.FOV = DefaultFOV
	}
	if o.Distance <= 0 {
		o.Distance = DefaultDistance
	}
	if o.Distance < o.MinDistance {
		o.Distance = o.MinDistance
	}
	if o.Pitch == 0 {
		o.Pitch = DefaultPitch
	}
	o.Pitch = clampPitch(o.Pitch)
	return o
}

// Rig is the single camera of a simulation
type Rig struct {
	opts   Options
	anchor string

	targetID string
	yaw      float64
	pitch    float64
	offset   orbit.Vector3 // desired position relative to the target

	position orbit.Vector3
	lookAt   orbit.Vector3

	dragging     bool
	lastX, lastY float64
}

// NewRig creates a rig orbiting anchor, which is assumed to sit at the origin
func NewRig(anchor string, opts Options) *Rig {
	r := &Rig{opts: opts.withDefaults(), anchor: anchor}
	r.Reset()
	return r
}

// Reset restores the initial pose around the anchor
func (r *Rig) Reset() {
	r.targetID = r.anchor
	r.yaw = r.opts.Yaw
	r.pitch = r.opts.Pitch
	r.offset = spherical(r.yaw, r.pitch, r.opts.Distance)
	r.position = r.offset
	r.lookAt = orbit.Zero
	r.dragging = false
}

// Target returns the id being followed
func (r *Rig) Target() string { return r.targetID }

// Anchor returns the fallback target id
func (r *Rig) Anchor() string { return r.anchor }

// Position returns the actual camera position
func (r *Rig) Position() orbit.Vector3 { return r.position }

// LookAt returns the point the camera is aimed at
func (r *Rig) LookAt() orbit.Vector3 { return r.lookAt }

// Angles returns yaw and pitch in radians
func (r *Rig) Angles() (yaw, pitch float64) { return r.yaw, r.pitch }

// Dragging reports whether a drag is in progress
func (r *Rig) Dragging() bool { return r.dragging }

// Options returns the effective options
func (r *Rig) Options() Options { return r.opts }

// Desired returns where the camera is easing toward
func (r *Rig) Desired(loc Locator) orbit.Vector3 {
	return r.targetPosition(loc).Add(r.offset)
}

// StartDrag begins an orbit drag at pointer coordinates x, y
func (r *Rig) StartDrag(x, y float64) {
	r.dragging = true
	r.lastX, r.lastY = x, y
}

// Drag orbits the desired position around the target by the pointer delta
// since the previous call. The radius is the camera's current distance from
// the target.
func (r *Rig) Drag(x, y float64, loc Locator) {
	if !r.dragging {
		return
	}
	dx, dy := x-r.lastX, y-r.lastY
	r.lastX, r.lastY = x, y

	r.yaw -= dx * r.opts.Sensitivity
	r.pitch = clampPitch(r.pitch - dy*r.opts.Sensitivity)
	r.offset = spherical(r.yaw, r.pitch, r.distanceFrom(r.targetPosition(loc)))
}

// EndDrag finishes a drag
func (r *Rig) EndDrag() {
	r.dragging = false
}

// SetTarget switches the followed body. The camera keeps its current distance
// to the old target, so only the look direction changes. Unknown ids are
// ignored and reported as false.
func (r *Rig) SetTarget(id string, loc Locator) bool {
	if _, ok := loc.Locate(id); !ok {
		return false
	}
	dist := r.distanceFrom(r.targetPosition(loc))
	r.targetID = id
	r.offset = spherical(r.yaw, r.pitch, dist)
	return true
}

// Step eases the camera toward the desired position and re-aims it at the
// target's current position. Called once per frame.
func (r *Rig) Step(loc Locator) {
	target := r.targetPosition(loc)
	desired := target.Add(r.offset)
	r.position = r.position.Lerp(desired, r.opts.Smoothing)
	r.lookAt = target
}

// Nudge moves the desired position by one step along the camera's forward
// (toward the target) or right axis; sign picks the direction. The desired
// position never gets closer to the target than MinDistance.
func (r *Rig) Nudge(dir Direction, sign float64, loc Locator) {
	if sign == 0 {
		return
	}
	sign = math.Copysign(1, sign)
	forward, right, _ := r.basis()

	var delta orbit.Vector3
	switch dir {
	case Forward:
		delta = forward.Scale(r.opts.NudgeStep * sign)
	case Right:
		delta = right.Scale(r.opts.NudgeStep * sign)
	default:
		return
	}

	next := r.offset.Add(delta)
	if next.Magnitude() < r.opts.MinDistance || next.DotProduct(r.offset) <= 0 {
		next = r.offset.Normalize().Scale(r.opts.MinDistance)
	}
	r.offset = next
	r.syncAngles()
}

// GroundPoint casts a ray from the camera through normalised device
// coordinates (x right, y up, both in [-1, 1]) and intersects it with the
// orbital plane y = 0. ok is false when the ray never reaches the plane.
func (r *Rig) GroundPoint(ndcX, ndcY, aspect float64) (orbit.Vector3, bool) {
	if aspect <= 0 {
		aspect = 1
	}
	forward, right, up := r.basis()
	tanHalf := math.Tan(r.opts.FOV * math.Pi / 360)

	dir := forward.
		Add(right.Scale(ndcX * tanHalf * aspect)).
		Add(up.Scale(ndcY * tanHalf))
	if math.Abs(dir.Y) < 1e-9 {
		return orbit.Vector3{}, false
	}
	t := -r.position.Y / dir.Y
	if t <= 0 {
		return orbit.Vector3{}, false
	}
	p := r.position.Add(dir.Scale(t))
	p.Y = 0
	return p, true
}

// Project maps a scene point to normalised device coordinates. ok is false for
// points behind the camera.
func (r *Rig) Project(p orbit.Vector3, aspect float64) (ndcX, ndcY float64, ok bool) {
	if aspect <= 0 {
		aspect = 1
	}
	forward, right, up := r.basis()
	rel := p.Subtract(r.position)
	depth := rel.DotProduct(forward)
	if depth <= 1e-9 {
		return 0, 0, false
	}
	tanHalf := math.Tan(r.opts.FOV * math.Pi / 360)
	ndcX = rel.DotProduct(right) / (depth * tanHalf * aspect)
	ndcY = rel.DotProduct(up) / (depth * tanHalf)
	return ndcX, ndcY, true
}

func (r *Rig) targetPosition(loc Locator) orbit.Vector3 {
	if loc != nil {
		if p, ok := loc.Locate(r.targetID); ok {
			return p
		}
	}
	// target vanished mid-frame, hold the last aim point
	return r.lookAt
}

func (r *Rig) distanceFrom(target orbit.Vector3) float64 {
	d := r.position.Distance(target)
	if d < r.opts.MinDistance {
		d = math.Max(r.offset.Magnitude(), r.opts.MinDistance)
	}
	return d
}

// basis returns the camera's forward, right and up unit vectors
func (r *Rig) basis() (forward, right, up orbit.Vector3) {
	forward = r.lookAt.Subtract(r.position).Normalize()
	if forward == (orbit.Vector3{}) {
		forward = r.offset.Scale(-1).Normalize()
	}
	right = forward.CrossProduct(orbit.Up).Normalize()
	if right == (orbit.Vector3{}) {
		// looking straight up or down
		right = orbit.Vector3{X: math.Cos(r.yaw), Z: -math.Sin(r.yaw)}
	}
	up = right.CrossProduct(forward)
	return forward, right, up
}

func (r *Rig) syncAngles() {
	d := r.offset.Magnitude()
	if d == 0 {
		return
	}
	r.yaw = math.Atan2(r.offset.X, r.offset.Z)
	r.pitch = clampPitch(math.Asin(r.offset.Y / d))
}

func spherical(yaw, pitch, dist float64) orbit.Vector3 {
	return orbit.Vector3{
		X: dist * math.Cos(pitch) * math.Sin(yaw),
		Y: dist * math.Sin(pitch),
		Z: dist * math.Cos(pitch) * math.Cos(yaw),
	}
}

func clampPitch(p float64) float64 {
	return math.Max(-math.Pi/2, math.Min(math.Pi/2, p))
}
