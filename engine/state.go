// Package engine owns a running simulation: the body registry, the camera rig
// and the interaction mode, advanced by frame ticks and mutated only by
// inbound protocol messages. A SimulationState belongs to exactly one
// goroutine, normally a Worker's.
package engine

import (
	"log/slog"
	"strings"

	"orrery.space/body"
	"orrery.space/camera"
	"orrery.space/orbit"
	"orrery.space/scene"
)

// Mode is the dispatcher's interaction state
type Mode int

const (
	Idle Mode = iota
	Dragging
	PlacingBody
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case PlacingBody:
		return "placing"
	default:
		return "mode?"
	}
}

// PreviewID names the placement preview in the scene's orbit lines
const PreviewID = ":preview"

// DefaultSpinIncrement is the per-frame self rotation of every body, radians
const DefaultSpinIncrement = 0.01

// Options configures a SimulationState
type Options struct {
	Registry      body.Options
	Camera        camera.Options
	Catalog       body.Catalog
	SpinIncrement float64
	PathSegments  int
	// Preload registers every catalog body up front instead of waiting for
	// the client's `<body>Data` messages
	Preload bool
	// ShowLines is the initial orbit line visibility
	ShowLines bool
}

// preview is the uncommitted body shown while placing. It never enters the
// registry.
type preview struct {
	input  body.Input
	body   *body.Body
	handle scene.Handle
	placed bool
}

// SimulationState is everything a worker mutates
type SimulationState struct {
	Registry *body.Registry
	Camera   *camera.Rig
	Scene    scene.Scene
	Catalog  body.Catalog

	log  *slog.Logger
	opts Options

	mode      Mode
	preview   *preview
	showLines bool

	ready          bool
	canvasW        float64
	canvasH        float64
	ticks          uint64
	customSequence int

	// handles delivered before their body was registered
	pending map[string]scene.Handle
}

// NewState builds a simulation around sc. The catalog's anchor is always
// registered; the rest of the catalog only when Options.Preload is set.
func NewState(sc scene.Scene, opts Options, log *slog.Logger) (*SimulationState, error) {
	if log == nil {
		log = slog.Default()
	}
	if opts.Catalog.Anchor.ID() == "" {
		opts.Catalog = body.DefaultCatalog()
	}
	if opts.SpinIncrement == 0 {
		opts.SpinIncrement = DefaultSpinIncrement
	}
	if opts.PathSegments <= 0 {
		opts.PathSegments = orbit.PathSegments
	}

	s := &SimulationState{
		Registry:  body.NewRegistry(opts.Registry),
		Camera:    camera.NewRig(body.AnchorID, opts.Camera),
		Scene:     sc,
		Catalog:   opts.Catalog,
		log:       log,
		opts:      opts,
		showLines: opts.ShowLines,
		pending:   make(map[string]scene.Handle),
	}

	if opts.Preload {
		if err := s.Registry.Populate(opts.Catalog); err != nil {
			return nil, err
		}
	} else if _, err := s.Registry.RegisterKind(opts.Catalog.Anchor, body.KindAnchor); err != nil {
		return nil, err
	}
	for _, b := range s.Registry.All() {
		s.mount(b)
		s.drawLine(b)
	}
	return s, nil
}

// Mode returns the current interaction state
func (s *SimulationState) Mode() Mode { return s.mode }

// Ready reports whether the render surface has been handed over
func (s *SimulationState) Ready() bool { return s.ready }

// Ticks returns the number of simulation steps taken
func (s *SimulationState) Ticks() uint64 { return s.ticks }

// ShowLines reports whether orbit lines are visible
func (s *SimulationState) ShowLines() bool { return s.showLines }

// Canvas returns the last known surface size
func (s *SimulationState) Canvas() (w, h float64) { return s.canvasW, s.canvasH }

// Preview returns the placement preview body, if placing
func (s *SimulationState) Preview() (*body.Body, bool) {
	if s.preview == nil {
		return nil, false
	}
	return s.preview.body, s.preview.placed
}

// Frame runs one rendered frame: step the simulation, ease the camera, push
// state to the scene and present it
func (s *SimulationState) Frame() {
	Tick(s)
	s.Camera.Step(s.Registry)
	Sync(s)
	s.Scene.Present()
}

// Attach delivers a render handle that was not ready at mount time. Handles
// for bodies not registered yet are held until they are.
func (s *SimulationState) Attach(id string, h scene.Handle) {
	id = normalizeID(id)
	if !h.Valid() {
		return
	}
	if b, ok := s.Registry.Get(id); ok {
		if b.Handle.Valid() && b.Handle != h {
			s.Scene.Unmount(b.Handle)
		}
		b.Handle = h
		return
	}
	s.pending[id] = h
}

func (s *SimulationState) mount(b *body.Body) {
	if h, ok := s.pending[b.ID]; ok {
		delete(s.pending, b.ID)
		b.Handle = h
		return
	}
	if h, ok := s.Scene.Mount(specFor(b, false)); ok {
		b.Handle = h
	}
}

func (s *SimulationState) unmount(b *body.Body) {
	if b.Handle.Valid() {
		s.Scene.Unmount(b.Handle)
		b.Handle = 0
	}
	delete(s.pending, b.ID)
	s.Scene.ClearOrbitLine(b.ID)
}

// drawLine refreshes b's orbit line if lines are visible
func (s *SimulationState) drawLine(b *body.Body) {
	if !s.showLines {
		return
	}
	if path := s.Registry.Path(b, s.opts.PathSegments); path != nil {
		s.Scene.SetOrbitLine(b.ID, path)
	}
}

func (s *SimulationState) rebuildLines() {
	s.Scene.ClearOrbitLines()
	for _, b := range s.Registry.All() {
		s.drawLine(b)
	}
	if s.preview != nil && s.preview.placed {
		s.drawPreviewLine()
	}
}

func specFor(b *body.Body, preview bool) scene.BodySpec {
	return scene.BodySpec{
		ID:      b.ID,
		Kind:    b.Kind.String(),
		Size:    b.Size,
		Color:   uint32(b.Color),
		Preview: preview,
	}
}

func normalizeID(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
