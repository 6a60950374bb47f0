package engine

import "orrery.space/scene"

// Sync pushes simulation state into the scene. Bodies without a handle are
// skipped; they are still simulated and show up once Attach delivers one.
func Sync(s *SimulationState) {
	for _, b := range s.Registry.All() {
		if !b.Handle.Valid() {
			continue
		}
		s.Scene.Place(b.Handle, scene.Transform{
			Position: b.Position,
			Spin:     b.Spin,
			Tilt:     b.TiltRadians(),
		})
	}

	if p := s.preview; p != nil && p.placed && p.handle.Valid() {
		s.Scene.Place(p.handle, scene.Transform{
			Position: p.body.Position,
			Tilt:     p.body.TiltRadians(),
		})
	}

	s.Scene.SetCamera(s.Camera.Position(), s.Camera.LookAt())
}
