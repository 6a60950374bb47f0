package engine

import (
	"fmt"
	"math"

	"orrery.space/body"
	"orrery.space/camera"
	"orrery.space/orbit"
	"orrery.space/protocol"
)

// Apply dispatches one inbound message. Nothing here fails: bad input is
// defaulted, unknown ids and types are logged and dropped.
func (s *SimulationState) Apply(msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.Canvas:
		s.resize(m.Width, m.Height)
		s.ready = true
	case protocol.Resize:
		s.resize(m.Width, m.Height)
	case protocol.MouseDown:
		s.mouseDown(m.Pointer)
	case protocol.MouseUp:
		s.mouseUp()
	case protocol.MouseMove:
		s.mouseMove(m.Pointer)
	case protocol.KeyDown:
		s.keyDown(m.Key)
	case protocol.ToggleLines:
		s.showLines = m.Show
		s.rebuildLines()
	case protocol.StartAddingPlanet:
		s.startPlacing(m.PlanetData)
	case protocol.BodyData:
		s.ingest(m.Body, m.Data)
	case protocol.DeletePlanet:
		s.deleteBody(m.Name)
	case protocol.FollowPlanet:
		if !s.Camera.SetTarget(normalizeID(m.Name), s.Registry) {
			s.log.Debug("follow unknown body", "body", m.Name)
		}
	case protocol.Unknown:
		s.log.Debug("ignoring message", "type", m.Kind)
	default:
		s.log.Debug("ignoring outbound message", "type", fmt.Sprintf("%T", msg))
	}
}

func (s *SimulationState) resize(w, h float64) {
	if w > 0 && h > 0 {
		s.canvasW, s.canvasH = w, h
	}
}

func (s *SimulationState) mouseDown(p protocol.Pointer) {
	switch s.mode {
	case PlacingBody:
		// the confirming click may carry a final template
		if p.PlanetData != nil && s.preview != nil {
			s.preview.input = *p.PlanetData
		}
		s.movePreview(p)
		s.confirmPlacement()
	default:
		s.Camera.StartDrag(p.X, p.Y)
		s.mode = Dragging
	}
}

func (s *SimulationState) mouseUp() {
	if s.mode == Dragging {
		s.Camera.EndDrag()
		s.mode = Idle
	}
}

func (s *SimulationState) mouseMove(p protocol.Pointer) {
	switch s.mode {
	case Dragging:
		s.Camera.Drag(p.X, p.Y, s.Registry)
	case PlacingBody:
		s.movePreview(p)
	}
}

func (s *SimulationState) keyDown(key string) {
	switch key {
	case protocol.KeyArrowUp:
		s.Camera.Nudge(camera.Forward, 1, s.Registry)
	case protocol.KeyArrowDown:
		s.Camera.Nudge(camera.Forward, -1, s.Registry)
	case protocol.KeyArrowLeft:
		s.Camera.Nudge(camera.Right, -1, s.Registry)
	case protocol.KeyArrowRight:
		s.Camera.Nudge(camera.Right, 1, s.Registry)
	case protocol.KeyEscape:
		if s.mode == PlacingBody {
			s.cancelPlacement()
		}
	}
}

func (s *SimulationState) startPlacing(tmpl body.Input) {
	switch s.mode {
	case PlacingBody:
		s.cancelPlacement()
	case Dragging:
		s.Camera.EndDrag()
	}

	b := s.Registry.Draft(tmpl, body.KindCustom)
	b.ID = PreviewID
	p := &preview{input: tmpl, body: b}
	if h, ok := s.Scene.Mount(specFor(b, true)); ok {
		p.handle = h
	}
	s.preview = p
	s.mode = PlacingBody
}

// movePreview puts the preview where the pointer ray meets the orbital plane
func (s *SimulationState) movePreview(ptr protocol.Pointer) {
	p := s.preview
	if p == nil {
		return
	}
	s.resize(ptr.CanvasWidth, ptr.CanvasHeight)
	w, h := s.canvasW, s.canvasH
	if w <= 0 || h <= 0 {
		return
	}

	ndcX := (ptr.X/w)*2 - 1
	ndcY := -(ptr.Y/h)*2 + 1
	point, ok := s.Camera.GroundPoint(ndcX, ndcY, w/h)
	if !ok {
		return
	}
	p.body.Position = point
	p.placed = true
	s.drawPreviewLine()
}

func (s *SimulationState) drawPreviewLine() {
	radius := s.preview.body.Position.Magnitude()
	s.Scene.SetOrbitLine(PreviewID, orbit.Path(radius, 0, s.opts.PathSegments))
}

func (s *SimulationState) cancelPlacement() {
	if p := s.preview; p != nil {
		if p.handle.Valid() {
			s.Scene.Unmount(p.handle)
		}
		s.Scene.ClearOrbitLine(PreviewID)
	}
	s.preview = nil
	s.mode = Idle
}

// confirmPlacement registers the previewed body on a circular orbit through
// the confirmed point. A preview that never reached the plane is discarded.
func (s *SimulationState) confirmPlacement() {
	p := s.preview
	if p == nil || !p.placed {
		s.log.Debug("placement cancelled, no ground point")
		s.cancelPlacement()
		return
	}

	anchor := orbit.Zero
	if a, ok := s.Registry.Anchor(); ok {
		anchor = a.Position
	}
	pos := p.body.Position
	rel := pos.Subtract(anchor)

	in := p.input
	in.Name = s.customID(in.ID())
	in.EnglishName = ""
	in.Primary = ""
	in.SemimajorAxis = rel.Magnitude() * orbit.DistanceDivider
	in.Perihelion, in.Aphelion = 0, 0
	in.Eccentricity = 0
	in.SideralOrbit = 0

	s.cancelPlacement()

	b, err := s.Registry.RegisterKind(in, body.KindCustom)
	if err != nil {
		s.log.Warn("register placed body", "body", in.Name, "error", err)
		return
	}
	b.Angle = math.Atan2(rel.Z, rel.X)
	b.Position = s.Registry.Place(b)
	s.mount(b)
	s.drawLine(b)
	s.log.Debug("placed body", "body", b.ID, "semimajorAxis", b.SemimajorAxis)
}

func (s *SimulationState) customID(want string) string {
	if want != "" && want != PreviewID {
		if _, taken := s.Registry.Get(want); !taken {
			return want
		}
	}
	for {
		s.customSequence++
		id := fmt.Sprintf("body-%d", s.customSequence)
		if _, taken := s.Registry.Get(id); !taken {
			return id
		}
	}
}

// ingest creates or updates one of the fixed planets. A first ingestion also
// brings in the catalog satellites orbiting it.
func (s *SimulationState) ingest(id string, in body.Input) {
	id = normalizeID(id)
	if in.ID() != id {
		in.Name = id
	}
	in.Primary = ""

	var before *body.Body
	if b, ok := s.Registry.Get(id); ok {
		snapshot := *b
		before = &snapshot
	}

	b, created, err := s.Registry.Ingest(in)
	if err != nil {
		s.log.Warn("ingest body", "body", id, "error", err)
		return
	}

	switch {
	case created:
		s.mount(b)
		s.addSatellites(id)
	case before != nil && (before.Size != b.Size || before.Color != b.Color):
		// mesh dimensions changed, rebuild it
		if b.Handle.Valid() {
			s.Scene.Unmount(b.Handle)
			b.Handle = 0
		}
		s.mount(b)
	}
	s.drawLine(b)
}

func (s *SimulationState) addSatellites(primary string) {
	for _, in := range s.Catalog.Bodies {
		if normalizeID(in.Primary) != primary {
			continue
		}
		if _, exists := s.Registry.Get(in.ID()); exists {
			continue
		}
		sat, err := s.Registry.Register(in)
		if err != nil {
			s.log.Warn("register satellite", "body", in.ID(), "primary", primary, "error", err)
			continue
		}
		s.mount(sat)
	}
}

// deleteBody removes a body and its satellites. Deleting an unknown id is a
// no-op; deleting the anchor is refused.
func (s *SimulationState) deleteBody(name string) {
	id := normalizeID(name)
	victims := make(map[string]*body.Body)
	if b, ok := s.Registry.Get(id); ok {
		victims[id] = b
		for _, sid := range s.Registry.Satellites(id) {
			if sb, ok := s.Registry.Get(sid); ok {
				victims[sid] = sb
			}
		}
	}

	removed, err := s.Registry.Unregister(id)
	if err != nil {
		s.log.Debug("delete refused", "body", id, "error", err)
		return
	}
	if len(removed) == 0 {
		s.log.Debug("delete unknown body", "body", id)
		return
	}

	target := s.Camera.Target()
	for _, rid := range removed {
		if b, ok := victims[rid]; ok {
			s.unmount(b)
		}
		if rid == target {
			s.Camera.SetTarget(s.Camera.Anchor(), s.Registry)
		}
	}
}
