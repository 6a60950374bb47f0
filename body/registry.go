package body

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"orrery.space/orbit"
)

var (
	ErrEmptyID         = errors.New("body id is empty")
	ErrExists          = errors.New("body already registered")
	ErrUnknownPrimary  = errors.New("primary body not registered")
	ErrAnchorProtected = errors.New("anchor body cannot be removed")
	ErrNotFound        = errors.New("body not registered")
)

// Options tunes a Registry. Zero fields take package defaults.
type Options struct {
	BaseSpeed       float64
	SatelliteSpread float64
	MinSize         float64
	// Clock seeds initial orbital phases; defaults to time.Now
	Clock func() time.Time
}

func (o Options) withDefaults() Options {
	if o.BaseSpeed <= 0 {
		o.BaseSpeed = DefaultBaseSpeed
	}
	if o.SatelliteSpread <= 0 {
		o.SatelliteSpread = DefaultSatelliteSpread
	}
	if o.MinSize <= 0 {
		o.MinSize = DefaultMinSize
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// Registry maps body ids to bodies and remembers insertion order.
// It is owned by a single goroutine and does no locking.
type Registry struct {
	opts   Options
	bodies map[string]*Body
	order  []string
}

// NewRegistry creates an empty registry
func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:   opts.withDefaults(),
		bodies: make(map[string]*Body),
	}
}

// Options returns the effective options
func (r *Registry) Options() Options {
	return r.opts
}

// Len returns the number of registered bodies
func (r *Registry) Len() int {
	return len(r.order)
}

// Get returns the body with the given id
func (r *Registry) Get(id string) (*Body, bool) {
	b, ok := r.bodies[normalizeID(id)]
	return b, ok
}

// Anchor returns the anchor body if one is registered
func (r *Registry) Anchor() (*Body, bool) {
	return r.Get(AnchorID)
}

// Locate returns the current position of a body
func (r *Registry) Locate(id string) (orbit.Vector3, bool) {
	b, ok := r.Get(id)
	if !ok {
		return orbit.Vector3{}, false
	}
	return b.Position, true
}

// All returns bodies in insertion order
func (r *Registry) All() []*Body {
	out := make([]*Body, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.bodies[id])
	}
	return out
}

// ByDistance returns bodies sorted by orbital distance from the anchor.
// Satellites sort with their primary. The registry order is unchanged.
func (r *Registry) ByDistance() []*Body {
	out := r.All()
	key := func(b *Body) float64 {
		if b.Kind == KindAnchor {
			return -1
		}
		if b.IsSatellite() {
			if p, ok := r.bodies[b.Primary]; ok {
				return p.SemimajorAxis
			}
		}
		return b.SemimajorAxis
	}
	sort.SliceStable(out, func(i, j int) bool {
		return key(out[i]) < key(out[j])
	})
	return out
}

// Satellites returns the ids of bodies orbiting primary, in insertion order
func (r *Registry) Satellites(primary string) []string {
	primary = normalizeID(primary)
	var ids []string
	for _, id := range r.order {
		if b := r.bodies[id]; b.IsSatellite() && b.Primary == primary {
			ids = append(ids, id)
		}
	}
	return ids
}

// Register creates a body from input. kind is inferred: the anchor id makes an
// anchor, a primary makes a satellite, otherwise a planet.
func (r *Registry) Register(in Input) (*Body, error) {
	kind := KindPlanet
	switch {
	case in.ID() == AnchorID:
		kind = KindAnchor
	case in.Primary != "":
		kind = KindSatellite
	}
	return r.RegisterKind(in, kind)
}

// RegisterKind creates a body of an explicit kind
func (r *Registry) RegisterKind(in Input, kind Kind) (*Body, error) {
	id := in.ID()
	if id == "" {
		return nil, ErrEmptyID
	}
	if _, exists := r.bodies[id]; exists {
		return nil, fmt.Errorf("register %s: %w", id, ErrExists)
	}

	b := &Body{
		ID:   id,
		Name: in.Name,
		Kind: kind,
	}
	if b.Name == "" {
		b.Name = in.EnglishName
	}

	if kind == KindSatellite {
		primary := normalizeID(in.Primary)
		p, ok := r.bodies[primary]
		if !ok || p.IsSatellite() {
			return nil, fmt.Errorf("register %s around %q: %w", id, in.Primary, ErrUnknownPrimary)
		}
		b.Primary = primary
	}

	r.apply(b, in)
	if in.SideralOrbit > 0 {
		b.Angle = orbit.InitialAngle(in.SideralOrbit, r.opts.Clock())
	}
	b.Position = r.Place(b)

	r.bodies[id] = b
	r.order = append(r.order, id)
	return b, nil
}

// Draft builds a body from input with defaults applied, without registering
// it. Satellite drafts are placed as if their primary sat at the origin.
func (r *Registry) Draft(in Input, kind Kind) *Body {
	b := &Body{
		ID:      in.ID(),
		Name:    in.Name,
		Kind:    kind,
		Primary: normalizeID(in.Primary),
	}
	r.apply(b, in)
	b.Position = r.Place(b)
	return b
}

// Update overwrites the parameters of a registered body and recomputes its
// angular speed. The current phase is kept so the body does not jump.
func (r *Registry) Update(in Input) (*Body, error) {
	id := in.ID()
	b, ok := r.bodies[id]
	if !ok {
		return nil, fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	if b.IsSatellite() && in.Primary != "" {
		primary := normalizeID(in.Primary)
		if p, ok := r.bodies[primary]; ok && !p.IsSatellite() && primary != id {
			b.Primary = primary
		}
	}
	if in.Name != "" {
		b.Name = in.Name
	}
	r.apply(b, in)
	b.Position = r.Place(b)
	return b, nil
}

// Ingest registers a new body or updates an existing one
func (r *Registry) Ingest(in Input) (b *Body, created bool, err error) {
	if _, exists := r.bodies[in.ID()]; exists {
		b, err = r.Update(in)
		return b, false, err
	}
	b, err = r.Register(in)
	return b, err == nil, err
}

// Unregister removes a body and every satellite orbiting it. It returns the
// removed ids, primary first. Unknown ids remove nothing.
func (r *Registry) Unregister(id string) ([]string, error) {
	id = normalizeID(id)
	b, ok := r.bodies[id]
	if !ok {
		return nil, nil
	}
	if b.Kind == KindAnchor {
		return nil, ErrAnchorProtected
	}

	removed := append([]string{id}, r.Satellites(id)...)
	for _, rid := range removed {
		delete(r.bodies, rid)
	}

	kept := r.order[:0]
	for _, oid := range r.order {
		if _, ok := r.bodies[oid]; ok {
			kept = append(kept, oid)
		}
	}
	r.order = kept
	return removed, nil
}

// apply copies input parameters onto b, filling defaults for anything absent
// or not finite
func (r *Registry) apply(b *Body, in Input) {
	a := finite(in.SemimajorAxis)
	if peri, aph := finite(in.Perihelion), finite(in.Aphelion); a <= 0 && peri > 0 && aph > 0 {
		a = (peri + aph) / 2
	}
	b.SemimajorAxis = math.Max(a, 0)

	b.Eccentricity = math.Min(math.Max(finite(in.Eccentricity), 0), MaxEccentricity)
	b.AxialTilt = finite(in.AxialTilt)
	b.Size = math.Max(finite(in.Size), r.opts.MinSize)

	b.Color = DefaultColor
	if in.Color != nil {
		b.Color = *in.Color
	}
	b.Mass = Mass{}
	if in.Mass != nil {
		b.Mass = Mass{Value: finite(in.Mass.Value), Exponent: finite(in.Mass.Exponent)}
	}
	if p := finite(in.SideralOrbit); p > 0 {
		b.Period = p
	}

	b.AngularSpeed = AngularSpeed(r.opts.BaseSpeed, b.Mass, b.Eccentricity)
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Axis returns the body's semimajor axis in scene units, including the
// satellite spread for bodies orbiting a primary
func (r *Registry) Axis(b *Body) float64 {
	a := orbit.SceneAxis(b.SemimajorAxis)
	if b.IsSatellite() {
		a *= r.opts.SatelliteSpread
	}
	return a
}

// Place computes where b sits for its current angle. Satellites are placed
// relative to their primary's current position.
func (r *Registry) Place(b *Body) orbit.Vector3 {
	switch b.Kind {
	case KindAnchor:
		return orbit.Zero
	case KindSatellite:
		local := orbit.Position(r.Axis(b), b.Eccentricity, b.Angle)
		if p, ok := r.bodies[b.Primary]; ok {
			return p.Position.Add(local)
		}
		return local
	default:
		return orbit.Position(r.Axis(b), b.Eccentricity, b.Angle)
	}
}

// Path returns the orbit line for a body in scene space, or nil for bodies
// without a fixed orbit (the anchor and satellites)
func (r *Registry) Path(b *Body, segments int) []orbit.Vector3 {
	if b.Kind == KindAnchor || b.IsSatellite() {
		return nil
	}
	return orbit.Path(r.Axis(b), b.Eccentricity, segments)
}
