// Package protocol defines the messages exchanged between a client surface and
// the simulation worker. Every message is a JSON object with a "type" field;
// the type strings and field names are fixed by the browser client.
package protocol

import (
	"orrery.space/body"
	"orrery.space/orbit"
	"orrery.space/scene"
)

// Inbound message types
const (
	TypeCanvas            = "canvas"
	TypeMouseDown         = "mousedown"
	TypeMouseUp           = "mouseup"
	TypeMouseMove         = "mousemove"
	TypeKeyDown           = "keydown"
	TypeToggleLines       = "toggleLines"
	TypeStartAddingPlanet = "startAddingPlanet"
	TypeDeletePlanet      = "deletePlanet"
	TypeFollowPlanet      = "followPlanet"
	TypeResize            = "resize"
)

// Outbound message types
const (
	TypeFPS        = "fps"
	TypeFrame      = "frame"
	TypeOrbitLines = "orbitLines"
)

// Keys understood by keydown
const (
	KeyArrowUp    = "ArrowUp"
	KeyArrowDown  = "ArrowDown"
	KeyArrowLeft  = "ArrowLeft"
	KeyArrowRight = "ArrowRight"
	KeyEscape     = "Escape"
)

// Message is one protocol message. The set of implementations is closed; use a
// type switch over the variants below.
type Message interface {
	Type() string
	message()
}

// Canvas hands the render surface to the worker. It must be the first message.
type Canvas struct {
	Width  float64
	Height float64
}

// Pointer carries the fields shared by the three mouse messages
type Pointer struct {
	X            float64
	Y            float64
	CanvasWidth  float64
	CanvasHeight float64
	PlanetData   *body.Input
}

// MouseDown starts a drag, or confirms a placement
type MouseDown struct{ Pointer }

// MouseUp ends a drag
type MouseUp struct{ Pointer }

// MouseMove drags the camera or moves the placement preview
type MouseMove struct{ Pointer }

// KeyDown nudges the camera or cancels a placement
type KeyDown struct {
	Key string
}

// ToggleLines shows or hides orbit lines
type ToggleLines struct {
	Show bool
}

// StartAddingPlanet enters placement mode with the given template
type StartAddingPlanet struct {
	PlanetData body.Input
}

// BodyData ingests one of the fixed planets, e.g. type "earthData" with the
// record under the "earthData" key
type BodyData struct {
	Body string
	Data body.Input
}

// DeletePlanet removes a body and its satellites
type DeletePlanet struct {
	Name string
}

// FollowPlanet retargets the camera
type FollowPlanet struct {
	Name string
}

// Resize records a new surface size
type Resize struct {
	Width  float64
	Height float64
}

// Unknown is any message whose type is not recognised. It is decoded rather
// than rejected so callers can count it before dropping it.
type Unknown struct {
	Kind string
}

// FPS reports the measured frame rate
type FPS struct {
	FPS int
}

// Frame is a presented scene snapshot
type Frame struct {
	scene.Frame
}

// OrbitLines is the full set of orbit lines, sent whenever it changes
type OrbitLines struct {
	Version uint64
	Lines   map[string][]orbit.Vector3
}

func (Canvas) Type() string            { return TypeCanvas }
func (MouseDown) Type() string         { return TypeMouseDown }
func (MouseUp) Type() string           { return TypeMouseUp }
func (MouseMove) Type() string         { return TypeMouseMove }
func (KeyDown) Type() string           { return TypeKeyDown }
func (ToggleLines) Type() string       { return TypeToggleLines }
func (StartAddingPlanet) Type() string { return TypeStartAddingPlanet }
func (m BodyData) Type() string        { return body.DataMessageType(m.Body) }
func (DeletePlanet) Type() string      { return TypeDeletePlanet }
func (FollowPlanet) Type() string      { return TypeFollowPlanet }
func (Resize) Type() string            { return TypeResize }
func (m Unknown) Type() string         { return m.Kind }
func (FPS) Type() string               { return TypeFPS }
func (Frame) Type() string             { return TypeFrame }
func (OrbitLines) Type() string        { return TypeOrbitLines }

func (Canvas) message()            {}
func (MouseDown) message()         {}
func (MouseUp) message()           {}
func (MouseMove) message()         {}
func (KeyDown) message()           {}
func (ToggleLines) message()       {}
func (StartAddingPlanet) message() {}
func (BodyData) message()          {}
func (DeletePlanet) message()      {}
func (FollowPlanet) message()      {}
func (Resize) message()            {}
func (Unknown) message()           {}
func (FPS) message()               {}
func (Frame) message()             {}
func (OrbitLines) message()        {}
