package engine

import "orrery.space/body"

// Tick advances the simulation by one frame. Every orbiting body moves by
// angle -= angularSpeed; satellites are placed after all primaries so they
// follow their primary's new position within the same tick. The anchor never
// moves but still spins.
func Tick(s *SimulationState) {
	bodies := s.Registry.All()
	for _, b := range bodies {
		if !b.IsSatellite() {
			advance(s, b)
		}
	}
	for _, b := range bodies {
		if b.IsSatellite() {
			advance(s, b)
		}
	}
	s.ticks++
}

func advance(s *SimulationState, b *body.Body) {
	if b.Kind != body.KindAnchor {
		b.Angle -= b.AngularSpeed
		b.Position = s.Registry.Place(b)
	}
	b.Spin += s.opts.SpinIncrement
}
