// Package scene is the boundary between the simulation and whatever draws it.
// The simulation only ever holds opaque Handles; meshes, orbit lines and lights
// belong to the Scene implementation.
package scene

import "orrery.space/orbit"

// Handle is an opaque reference to a mounted body. The zero Handle means
// nothing is attached yet.
type Handle uint32

// Valid reports whether h refers to a mounted object
func (h Handle) Valid() bool {
	return h != 0
}

// BodySpec describes what to build for a body
type BodySpec struct {
	ID      string  `json:"id"`
	Kind    string  `json:"kind"`
	Size    float64 `json:"size"`
	Color   uint32  `json:"color"`
	Preview bool    `json:"preview,omitempty"`
}

// Transform is the per-frame state pushed for a body
type Transform struct {
	Position orbit.Vector3
	Spin     float64 // radians around the body's own axis
	Tilt     float64 // axial tilt, radians
}

// Scene is the render collaborator. Implementations must not call back into
// the simulation.
type Scene interface {
	// Mount builds the render objects for a body. ok is false while assets
	// are still loading; the handle is then delivered later out of band.
	Mount(spec BodySpec) (h Handle, ok bool)
	Unmount(h Handle)
	Place(h Handle, t Transform)

	SetOrbitLine(id string, path []orbit.Vector3)
	ClearOrbitLine(id string)
	ClearOrbitLines()

	SetCamera(position, target orbit.Vector3)
	Present()
}

// Snapshotter is implemented by scenes that can describe their current state,
// which is what gets shipped to remote renderers
type Snapshotter interface {
	Snapshot() Frame
	// LinesVersion changes whenever the set of orbit lines changes
	LinesVersion() uint64
	// OrbitLines returns the current lines along with their version
	OrbitLines() (version uint64, lines map[string][]orbit.Vector3)
}

// NodeState is one mounted body in a Frame
type NodeState struct {
	BodySpec
	Handle   Handle        `json:"handle"`
	Position orbit.Vector3 `json:"position"`
	Spin     float64       `json:"spin"`
	Tilt     float64       `json:"tilt"`
}

// CameraState is the camera pose in a Frame
type CameraState struct {
	Position orbit.Vector3 `json:"position"`
	Target   orbit.Vector3 `json:"target"`
}

// Frame is a presented scene
type Frame struct {
	Seq    uint64      `json:"seq"`
	Bodies []NodeState `json:"bodies"`
	Camera CameraState `json:"camera"`
}
