package main

import (
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orrery.space/orbit"
	"orrery.space/protocol"
	"orrery.space/scene"
)

func newTestView(t *testing.T) *View {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	require.NoError(t, screen.Init())
	screen.SetSize(80, 24)
	t.Cleanup(screen.Fini)
	return NewView(screen, 75)
}

func TestCanvasUsesSquarePixels(t *testing.T) {
	v := newTestView(t)
	w, h := v.Canvas()
	assert.Equal(t, 80.0, w)
	assert.Equal(t, 48.0, h)
}

func TestMouseTranslation(t *testing.T) {
	v := newTestView(t)

	msgs := v.translateMouse(tcell.NewEventMouse(10, 5, tcell.Button1, tcell.ModNone))
	require.Len(t, msgs, 1)
	down, ok := msgs[0].(protocol.MouseDown)
	require.True(t, ok)
	assert.Equal(t, 10.0, down.X)
	assert.Equal(t, 10.0, down.Y)
	assert.Equal(t, 48.0, down.CanvasHeight)

	msgs = v.translateMouse(tcell.NewEventMouse(12, 5, tcell.Button1, tcell.ModNone))
	assert.IsType(t, protocol.MouseMove{}, msgs[0])

	msgs = v.translateMouse(tcell.NewEventMouse(12, 5, tcell.ButtonNone, tcell.ModNone))
	assert.IsType(t, protocol.MouseUp{}, msgs[0])

	msgs = v.translateMouse(tcell.NewEventMouse(13, 6, tcell.ButtonNone, tcell.ModNone))
	assert.IsType(t, protocol.MouseMove{}, msgs[0])
}

func TestKeyCommands(t *testing.T) {
	v := newTestView(t)

	msgs, quit := v.command(tcell.KeyRune, 'l')
	assert.False(t, quit)
	assert.Equal(t, []protocol.Message{protocol.ToggleLines{Show: true}}, msgs)

	msgs, _ = v.command(tcell.KeyRune, '3')
	assert.Equal(t, []protocol.Message{protocol.FollowPlanet{Name: "earth"}}, msgs)

	msgs, _ = v.command(tcell.KeyRune, 'd')
	assert.Equal(t, []protocol.Message{protocol.DeletePlanet{Name: "earth"}}, msgs)
	assert.Equal(t, "sun", v.follow)

	msgs, _ = v.command(tcell.KeyUp, 0)
	assert.Equal(t, []protocol.Message{protocol.KeyDown{Key: protocol.KeyArrowUp}}, msgs)

	msgs, _ = v.command(tcell.KeyRune, 'a')
	require.Len(t, msgs, 1)
	assert.IsType(t, protocol.StartAddingPlanet{}, msgs[0])

	msgs, _ = v.command(tcell.KeyEscape, 0)
	assert.Equal(t, []protocol.Message{protocol.KeyDown{Key: protocol.KeyEscape}}, msgs)

	_, quit = v.command(tcell.KeyRune, 'q')
	assert.True(t, quit)
	_, quit = v.command(tcell.KeyCtrlC, 0)
	assert.True(t, quit)
}

func TestProject(t *testing.T) {
	eye := orbit.Vector3{Z: 10}
	x, y, ok := project(eye, orbit.Zero, 90, orbit.Zero, 1)
	require.True(t, ok)
	assert.InDelta(t, 0, x, 1e-12)
	assert.InDelta(t, 0, y, 1e-12)

	// tan(45°) = 1, so a point as far right as it is deep lands on the edge
	x, _, ok = project(eye, orbit.Zero, 90, orbit.Vector3{X: 10}, 1)
	require.True(t, ok)
	assert.InDelta(t, 1, x, 1e-12)

	_, _, ok = project(eye, orbit.Zero, 90, orbit.Vector3{Z: 20}, 1)
	assert.False(t, ok, "behind the camera")
}

func TestDrawFrame(t *testing.T) {
	v := newTestView(t)
	v.Update(protocol.Frame{Frame: scene.Frame{
		Bodies: []scene.NodeState{
			{BodySpec: scene.BodySpec{ID: "sun", Kind: "anchor", Color: 0xfdb813}},
		},
		Camera: scene.CameraState{Position: orbit.Vector3{Z: 100}},
	}})
	v.Update(protocol.FPS{FPS: 42})
	v.Draw()

	screen := v.screen
	mainc, _, _, _ := screen.GetContent(40, 12)
	assert.Equal(t, '@', mainc)

	status := make([]rune, 0, 10)
	for x := 0; x < 10; x++ {
		r, _, _, _ := screen.GetContent(x, 23)
		status = append(status, r)
	}
	assert.Equal(t, " fps 42 | ", string(status))
}
