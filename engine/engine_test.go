package engine

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orrery.space/body"
	"orrery.space/orbit"
	"orrery.space/protocol"
	"orrery.space/scene"
)

var j2000 = time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestState(t *testing.T, sc scene.Scene, opts Options) *SimulationState {
	t.Helper()
	opts.Registry.Clock = func() time.Time { return j2000 }
	s, err := NewState(sc, opts, discardLogger())
	require.NoError(t, err)
	return s
}

func earthData() protocol.BodyData {
	return protocol.BodyData{Body: "earth", Data: body.Input{
		Name:          "Earth",
		SemimajorAxis: 149598023000,
		Eccentricity:  0.0167,
		Size:          4,
		Mass:          &body.Mass{Value: 5.97237, Exponent: 24},
	}}
}

func TestNewStateRegistersAnchor(t *testing.T) {
	g := scene.NewGraph()
	s := newTestState(t, g, Options{})

	assert.Equal(t, 1, s.Registry.Len())
	sun, ok := s.Registry.Anchor()
	require.True(t, ok)
	assert.True(t, sun.Handle.Valid())
	assert.Equal(t, body.AnchorID, s.Camera.Target())
	assert.Equal(t, Idle, s.Mode())
	assert.False(t, s.Ready())

	preloaded := newTestState(t, scene.NewGraph(), Options{Preload: true})
	assert.Equal(t, len(body.DefaultCatalog().Bodies)+1, preloaded.Registry.Len())
}

func TestTickAdvancesEarth(t *testing.T) {
	s := newTestState(t, scene.NewGraph(), Options{})
	s.Apply(earthData())

	earth, ok := s.Registry.Get("earth")
	require.True(t, ok)
	angle := earth.Angle
	speed := earth.AngularSpeed
	require.Greater(t, speed, 0.0)

	Tick(s)

	assert.Equal(t, angle-speed, earth.Angle)
	want := orbit.Position(149598023000/orbit.DistanceDivider, 0.0167, earth.Angle)
	assert.InDelta(t, want.X, earth.Position.X, 1e-9)
	assert.InDelta(t, want.Z, earth.Position.Z, 1e-9)
	assert.Equal(t, DefaultSpinIncrement, earth.Spin)
	assert.Equal(t, uint64(1), s.Ticks())
}

func TestTickPlacesSatellitesAfterPrimaries(t *testing.T) {
	s := newTestState(t, scene.NewGraph(), Options{})
	s.Apply(earthData())

	moon, ok := s.Registry.Get("moon")
	require.True(t, ok, "first ingest brings in catalog satellites")
	earth, _ := s.Registry.Get("earth")

	for i := 0; i < 3; i++ {
		Tick(s)
	}

	local := orbit.Position(s.Registry.Axis(moon), moon.Eccentricity, moon.Angle)
	want := earth.Position.Add(local)
	assert.InDelta(t, 0, want.Distance(moon.Position), 1e-9)

	sun, _ := s.Registry.Anchor()
	assert.Equal(t, orbit.Zero, sun.Position)
	assert.InDelta(t, 3*DefaultSpinIncrement, sun.Spin, 1e-12)
}

func TestSyncPushesTransforms(t *testing.T) {
	g := scene.NewGraph()
	s := newTestState(t, g, Options{})
	s.Apply(earthData())

	s.Frame()

	earth, _ := s.Registry.Get("earth")
	spec, tr, ok := g.Node(earth.Handle)
	require.True(t, ok)
	assert.Equal(t, "earth", spec.ID)
	assert.Equal(t, earth.Position, tr.Position)
	assert.Equal(t, earth.TiltRadians(), tr.Tilt)
	assert.Equal(t, s.Camera.Position(), g.Camera().Position)
	assert.Equal(t, uint64(1), g.Snapshot().Seq)
}

func TestPlacementScenario(t *testing.T) {
	g := scene.NewGraph()
	s := newTestState(t, g, Options{})
	s.Apply(protocol.Canvas{Width: 800, Height: 600})
	before := s.Registry.Len()

	s.Apply(protocol.StartAddingPlanet{PlanetData: body.Input{Name: "Vulcan", Size: 3}})
	require.Equal(t, PlacingBody, s.Mode())

	for _, xy := range [][2]float64{{500, 400}, {550, 420}, {600, 450}} {
		s.Apply(protocol.MouseMove{Pointer: protocol.Pointer{X: xy[0], Y: xy[1]}})
	}
	_, placed := s.Preview()
	require.True(t, placed)
	lines := g.LinesVersion()
	assert.NotZero(t, lines, "preview orbit line is drawn while moving")

	s.Apply(protocol.MouseDown{Pointer: protocol.Pointer{X: 600, Y: 450}})

	assert.Equal(t, Idle, s.Mode())
	assert.Equal(t, before+1, s.Registry.Len())

	point, ok := s.Camera.GroundPoint((600.0/800)*2-1, -(450.0/600)*2+1, 800.0/600)
	require.True(t, ok)

	b, ok := s.Registry.Get("vulcan")
	require.True(t, ok)
	assert.Equal(t, body.KindCustom, b.Kind)
	assert.InDelta(t, point.Magnitude()*orbit.DistanceDivider, b.SemimajorAxis, 1e-3)
	assert.InDelta(t, 0, point.Distance(b.Position), 1e-9)
	assert.Equal(t, 3.0, b.Size)

	_, lineMap := g.OrbitLines()
	assert.NotContains(t, lineMap, PreviewID)
	assert.Equal(t, s.Registry.Len(), g.Len(), "preview mesh is gone")

	// a second placement with the same name gets a generated id
	s.Apply(protocol.StartAddingPlanet{PlanetData: body.Input{Name: "Vulcan"}})
	s.Apply(protocol.MouseDown{Pointer: protocol.Pointer{X: 200, Y: 500}})
	_, ok = s.Registry.Get("body-1")
	assert.True(t, ok)
}

func TestPlacementClickCarriesTemplate(t *testing.T) {
	s := newTestState(t, scene.NewGraph(), Options{})
	s.Apply(protocol.Canvas{Width: 800, Height: 600})

	s.Apply(protocol.StartAddingPlanet{PlanetData: body.Input{Name: "Vulcan", Size: 3}})
	s.Apply(protocol.MouseMove{Pointer: protocol.Pointer{X: 600, Y: 450}})

	c := body.Color(0x00ff00)
	s.Apply(protocol.MouseDown{Pointer: protocol.Pointer{
		X: 600, Y: 450,
		PlanetData: &body.Input{Name: "Pluto", Size: 7, Color: &c},
	}})

	assert.Equal(t, Idle, s.Mode())
	_, ok := s.Registry.Get("vulcan")
	assert.False(t, ok)
	b, ok := s.Registry.Get("pluto")
	require.True(t, ok)
	assert.Equal(t, 7.0, b.Size)
	assert.Equal(t, c, b.Color)
	assert.Greater(t, b.SemimajorAxis, 0.0)
}

func TestPlacementCancelled(t *testing.T) {
	g := scene.NewGraph()
	s := newTestState(t, g, Options{})
	before := s.Registry.Len()

	// no canvas size yet, so the click cannot be projected
	s.Apply(protocol.StartAddingPlanet{})
	s.Apply(protocol.MouseDown{})
	assert.Equal(t, Idle, s.Mode())
	assert.Equal(t, before, s.Registry.Len())

	s.Apply(protocol.Resize{Width: 800, Height: 600})
	s.Apply(protocol.StartAddingPlanet{})
	s.Apply(protocol.MouseMove{Pointer: protocol.Pointer{X: 600, Y: 450}})
	s.Apply(protocol.KeyDown{Key: protocol.KeyEscape})
	assert.Equal(t, Idle, s.Mode())
	assert.Equal(t, before, s.Registry.Len())
	assert.Equal(t, before, g.Len())
	_, lines := g.OrbitLines()
	assert.Empty(t, lines)
}

func TestDragTransitions(t *testing.T) {
	s := newTestState(t, scene.NewGraph(), Options{})
	yaw0, _ := s.Camera.Angles()

	s.Apply(protocol.MouseMove{Pointer: protocol.Pointer{X: 50}})
	yaw, _ := s.Camera.Angles()
	assert.Equal(t, yaw0, yaw, "moves while idle do nothing")

	s.Apply(protocol.MouseDown{Pointer: protocol.Pointer{X: 100, Y: 100}})
	assert.Equal(t, Dragging, s.Mode())

	s.Apply(protocol.MouseMove{Pointer: protocol.Pointer{X: 120, Y: 100}})
	yaw, _ = s.Camera.Angles()
	assert.NotEqual(t, yaw0, yaw)

	s.Apply(protocol.MouseUp{})
	assert.Equal(t, Idle, s.Mode())
	assert.False(t, s.Camera.Dragging())
}

func TestDeleteTwiceAndTargetFallback(t *testing.T) {
	g := scene.NewGraph()
	s := newTestState(t, g, Options{})
	s.Apply(earthData())
	s.Apply(protocol.BodyData{Body: "mars", Data: body.Input{SemimajorAxis: 227.9e9}})
	s.Apply(protocol.FollowPlanet{Name: "Earth"})
	require.Equal(t, "earth", s.Camera.Target())

	s.Apply(protocol.DeletePlanet{Name: "earth"})
	s.Apply(protocol.DeletePlanet{Name: "earth"})

	_, ok := s.Registry.Get("earth")
	assert.False(t, ok)
	_, ok = s.Registry.Get("moon")
	assert.False(t, ok, "satellites go with their primary")
	assert.Equal(t, body.AnchorID, s.Camera.Target())

	ids := []string{}
	for _, b := range s.Registry.All() {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []string{"sun", "mars"}, ids)
	assert.Equal(t, 2, g.Len())
}

func TestDeleteAnchorRefused(t *testing.T) {
	s := newTestState(t, scene.NewGraph(), Options{})
	s.Apply(protocol.DeletePlanet{Name: "sun"})
	_, ok := s.Registry.Anchor()
	assert.True(t, ok)

	s.Apply(protocol.FollowPlanet{Name: "nowhere"})
	assert.Equal(t, body.AnchorID, s.Camera.Target())
}

func TestToggleLines(t *testing.T) {
	g := scene.NewGraph()
	s := newTestState(t, g, Options{PathSegments: 32})
	s.Apply(earthData())

	_, lines := g.OrbitLines()
	assert.Empty(t, lines)

	s.Apply(protocol.ToggleLines{Show: true})
	_, lines = g.OrbitLines()
	assert.Len(t, lines, 1, "only planets have fixed orbit lines")
	assert.Len(t, lines["earth"], 33)

	s.Apply(protocol.BodyData{Body: "mars", Data: body.Input{SemimajorAxis: 227.9e9}})
	_, lines = g.OrbitLines()
	assert.Contains(t, lines, "mars")

	s.Apply(protocol.ToggleLines{Show: false})
	_, lines = g.OrbitLines()
	assert.Empty(t, lines)
}

func TestIngestUpdate(t *testing.T) {
	g := scene.NewGraph()
	s := newTestState(t, g, Options{ShowLines: true})
	s.Apply(earthData())

	earth, _ := s.Registry.Get("earth")
	Tick(s)
	angle, speed, handle := earth.Angle, earth.AngularSpeed, earth.Handle
	n := s.Registry.Len()
	v := g.LinesVersion()

	update := earthData()
	update.Data.Eccentricity = 0.2
	s.Apply(update)

	again, _ := s.Registry.Get("earth")
	assert.Same(t, earth, again)
	assert.Equal(t, n, s.Registry.Len())
	assert.Equal(t, angle, earth.Angle)
	assert.Greater(t, earth.AngularSpeed, speed)
	assert.Equal(t, handle, earth.Handle)
	assert.Greater(t, g.LinesVersion(), v)

	update.Data.Size = 9
	s.Apply(update)
	assert.NotEqual(t, handle, earth.Handle, "a resized body is remounted")
	spec, _, ok := g.Node(earth.Handle)
	require.True(t, ok)
	assert.Equal(t, 9.0, spec.Size)
}

func finiteVector(v orbit.Vector3) bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

func TestNonFiniteIngestKeepsSceneFinite(t *testing.T) {
	g := scene.NewGraph()
	s := newTestState(t, g, Options{ShowLines: true})
	s.Apply(protocol.Canvas{Width: 800, Height: 600})

	for _, raw := range []string{
		`{"type":"earthData","earthData":{"name":"Earth","semimajorAxis":149598023000,"size":"NaN","mass":{"massValue":5.97,"massExponent":"NaN"}}}`,
		`{"type":"marsData","marsData":{"name":"Mars","semimajorAxis":"Infinity","eccentricity":"-Inf","axialTilt":"NaN"}}`,
	} {
		msg, err := protocol.Decode([]byte(raw))
		require.NoError(t, err)
		s.Apply(msg)
	}

	earth, ok := s.Registry.Get("earth")
	require.True(t, ok)
	assert.Greater(t, earth.AngularSpeed, 0.0)
	assert.Equal(t, body.DefaultMinSize, earth.Size)

	s.Apply(protocol.FollowPlanet{Name: "earth"})
	for range 3 {
		s.Frame()
	}
	s.Apply(protocol.FollowPlanet{Name: "mars"})
	for range 3 {
		s.Frame()
	}
	s.Apply(protocol.FollowPlanet{Name: "sun"})
	for range 10 {
		s.Frame()
	}

	assert.True(t, finiteVector(s.Camera.Position()), "camera %v", s.Camera.Position())
	for _, b := range s.Registry.All() {
		assert.True(t, finiteVector(b.Position), "%s at %v", b.ID, b.Position)
	}
	_, err := protocol.Encode(protocol.Frame{Frame: g.Snapshot()})
	assert.NoError(t, err)
	_, lines := g.OrbitLines()
	_, err = protocol.Encode(protocol.OrbitLines{Lines: lines})
	assert.NoError(t, err)
}

func TestUnknownMessageIgnored(t *testing.T) {
	s := newTestState(t, scene.NewGraph(), Options{})
	s.Apply(protocol.Unknown{Kind: "plutoData"})
	s.Apply(protocol.FPS{FPS: 3})
	assert.Equal(t, 1, s.Registry.Len())
	assert.Equal(t, Idle, s.Mode())
}

// lazyScene mounts nothing synchronously, like a renderer still loading assets
type lazyScene struct {
	*scene.Graph
}

func (lazyScene) Mount(scene.BodySpec) (scene.Handle, bool) {
	return 0, false
}

func TestLateHandleAttach(t *testing.T) {
	g := scene.NewGraph()
	s := newTestState(t, lazyScene{g}, Options{})
	s.Apply(earthData())

	earth, _ := s.Registry.Get("earth")
	assert.False(t, earth.Handle.Valid())
	s.Frame()
	assert.Zero(t, g.Len(), "bodies without handles are simulated but not drawn")

	h, _ := g.Mount(scene.BodySpec{ID: "earth"})
	s.Attach("earth", h)
	assert.Equal(t, h, earth.Handle)

	// rendering ready before the body is registered
	hm, _ := g.Mount(scene.BodySpec{ID: "mars"})
	s.Attach("Mars", hm)
	s.Apply(protocol.BodyData{Body: "mars", Data: body.Input{SemimajorAxis: 227.9e9}})
	mars, _ := s.Registry.Get("mars")
	assert.Equal(t, hm, mars.Handle)

	s.Frame()
	_, tr, ok := g.Node(h)
	require.True(t, ok)
	assert.Equal(t, earth.Position, tr.Position)
	_, tr, _ = g.Node(hm)
	assert.Equal(t, mars.Position, tr.Position)
}

func TestFPSMeter(t *testing.T) {
	start := time.Unix(1000, 0)
	m := NewFPSMeter(start)

	for i := 1; i < 100; i++ {
		_, due := m.Frame(start.Add(time.Duration(i) * 10 * time.Millisecond))
		require.False(t, due, "frame %d", i)
	}
	fps, due := m.Frame(start.Add(time.Second))
	require.True(t, due)
	assert.Equal(t, 100, fps)

	_, due = m.Frame(start.Add(time.Second + 500*time.Millisecond))
	assert.False(t, due, "never more than once per second")
	fps, due = m.Frame(start.Add(2 * time.Second))
	require.True(t, due)
	assert.Equal(t, 2, fps)
}
