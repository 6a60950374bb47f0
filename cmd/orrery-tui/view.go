package main

import (
	"fmt"
	"math"

	"github.com/gdamore/tcell/v2"

	"orrery.space/body"
	"orrery.space/camera"
	"orrery.space/orbit"
	"orrery.space/protocol"
	"orrery.space/scene"
)

// cellAspect is how much taller a terminal cell is than it is wide. The
// canvas reported to the simulation is measured in half rows so that pixels
// come out roughly square.
const cellAspect = 2

// View draws simulation frames on a terminal and turns terminal events into
// protocol messages
type View struct {
	screen tcell.Screen
	fov    float64

	frame    scene.Frame
	lines    map[string][]orbit.Vector3
	fps      int
	showLine bool
	follow   string
	buttons  tcell.ButtonMask
	status   string
}

func NewView(screen tcell.Screen, fov float64) *View {
	if fov <= 0 {
		fov = camera.DefaultFOV
	}
	return &View{screen: screen, fov: fov, follow: body.AnchorID}
}

// Canvas returns the simulation canvas size for the current terminal
func (v *View) Canvas() (w, h float64) {
	cols, rows := v.screen.Size()
	return float64(cols), float64(rows * cellAspect)
}

// Update records an outbound message from the worker
func (v *View) Update(msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.Frame:
		v.frame = m.Frame
	case protocol.OrbitLines:
		v.lines = m.Lines
	case protocol.FPS:
		v.fps = m.FPS
	}
}

// Translate maps a terminal event onto protocol messages. quit is true when
// the user asked to leave.
func (v *View) Translate(ev tcell.Event) (msgs []protocol.Message, quit bool) {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		w, h := v.Canvas()
		return []protocol.Message{protocol.Resize{Width: w, Height: h}}, false
	case *tcell.EventMouse:
		return v.translateMouse(ev), false
	case *tcell.EventKey:
		return v.translateKey(ev)
	}
	return nil, false
}

func (v *View) translateMouse(ev *tcell.EventMouse) []protocol.Message {
	col, row := ev.Position()
	w, h := v.Canvas()
	p := protocol.Pointer{
		X:            float64(col),
		Y:            float64(row * cellAspect),
		CanvasWidth:  w,
		CanvasHeight: h,
	}

	pressed := ev.Buttons()&tcell.Button1 != 0
	wasPressed := v.buttons&tcell.Button1 != 0
	v.buttons = ev.Buttons()

	switch {
	case pressed && !wasPressed:
		v.status = ""
		return []protocol.Message{protocol.MouseDown{Pointer: p}}
	case !pressed && wasPressed:
		return []protocol.Message{protocol.MouseUp{Pointer: p}}
	default:
		return []protocol.Message{protocol.MouseMove{Pointer: p}}
	}
}

func (v *View) translateKey(ev *tcell.EventKey) ([]protocol.Message, bool) {
	return v.command(ev.Key(), ev.Rune())
}

func (v *View) command(key tcell.Key, r rune) ([]protocol.Message, bool) {
	switch key {
	case tcell.KeyCtrlC:
		return nil, true
	case tcell.KeyUp:
		return keyDown(protocol.KeyArrowUp), false
	case tcell.KeyDown:
		return keyDown(protocol.KeyArrowDown), false
	case tcell.KeyLeft:
		return keyDown(protocol.KeyArrowLeft), false
	case tcell.KeyRight:
		return keyDown(protocol.KeyArrowRight), false
	case tcell.KeyEscape:
		v.status = ""
		return keyDown(protocol.KeyEscape), false
	case tcell.KeyRune:
	default:
		return nil, false
	}

	switch {
	case r == 'q':
		return nil, true
	case r == 'l':
		v.showLine = !v.showLine
		return []protocol.Message{protocol.ToggleLines{Show: v.showLine}}, false
	case r == 'a':
		v.status = "click to place a planet, esc to cancel"
		return []protocol.Message{protocol.StartAddingPlanet{PlanetData: newPlanet()}}, false
	case r == 'd':
		target := v.follow
		v.follow = body.AnchorID
		return []protocol.Message{protocol.DeletePlanet{Name: target}}, false
	case r == '0':
		v.follow = body.AnchorID
		return []protocol.Message{protocol.FollowPlanet{Name: v.follow}}, false
	case r >= '1' && r <= '8':
		v.follow = body.FixedBodies[r-'1']
		return []protocol.Message{protocol.FollowPlanet{Name: v.follow}}, false
	}
	return nil, false
}

func keyDown(key string) []protocol.Message {
	return []protocol.Message{protocol.KeyDown{Key: key}}
}

func newPlanet() body.Input {
	c := body.Color(0x9b5de5)
	return body.Input{
		Name:  "planet",
		Size:  2,
		Color: &c,
		Mass:  &body.Mass{Value: 1, Exponent: 24},
	}
}

// Draw renders the latest frame
func (v *View) Draw() {
	v.screen.Clear()
	cols, rows := v.screen.Size()
	w, h := v.Canvas()
	aspect := w / h

	eye, target := v.frame.Camera.Position, v.frame.Camera.Target
	dotStyle := tcell.StyleDefault.Foreground(tcell.ColorGray)
	for _, path := range v.lines {
		for _, p := range path {
			if x, y, ok := v.cell(eye, target, p, aspect, cols, rows); ok {
				v.screen.SetContent(x, y, '·', nil, dotStyle)
			}
		}
	}

	for _, n := range v.frame.Bodies {
		x, y, ok := v.cell(eye, target, n.Position, aspect, cols, rows)
		if !ok {
			continue
		}
		style := tcell.StyleDefault.Foreground(tcell.NewHexColor(int32(n.Color & 0xffffff)))
		v.screen.SetContent(x, y, glyph(n), nil, style.Bold(n.ID == v.follow))
	}

	status := fmt.Sprintf(" fps %d | following %s | l lines  a add  d delete  0-8 follow  arrows move  q quit ", v.fps, v.follow)
	if v.status != "" {
		status = " " + v.status + " "
	}
	bar := tcell.StyleDefault.Reverse(true)
	for i, r := range []rune(status) {
		if i >= cols {
			break
		}
		v.screen.SetContent(i, rows-1, r, nil, bar)
	}
	v.screen.Show()
}

func (v *View) cell(eye, target, p orbit.Vector3, aspect float64, cols, rows int) (int, int, bool) {
	ndcX, ndcY, ok := project(eye, target, v.fov, p, aspect)
	if !ok || math.Abs(ndcX) > 1 || math.Abs(ndcY) > 1 {
		return 0, 0, false
	}
	x := int((ndcX + 1) / 2 * float64(cols))
	y := int((1 - ndcY) / 2 * float64(rows))
	if x < 0 || x >= cols || y < 0 || y >= rows-1 {
		return 0, 0, false
	}
	return x, y, true
}

func glyph(n scene.NodeState) rune {
	switch {
	case n.Preview:
		return '+'
	case n.Kind == body.KindAnchor.String():
		return '@'
	case n.Kind == body.KindSatellite.String():
		return '.'
	case n.ID == "":
		return 'o'
	}
	return []rune(n.ID)[0]
}

// project maps p to normalised device coordinates for a camera at eye
// looking at target with a vertical field of view in degrees
func project(eye, target orbit.Vector3, fov float64, p orbit.Vector3, aspect float64) (float64, float64, bool) {
	forward := target.Subtract(eye).Normalize()
	if forward == (orbit.Vector3{}) {
		return 0, 0, false
	}
	right := forward.CrossProduct(orbit.Up).Normalize()
	if right == (orbit.Vector3{}) {
		right = orbit.Vector3{X: 1}
	}
	up := right.CrossProduct(forward)

	rel := p.Subtract(eye)
	depth := rel.DotProduct(forward)
	if depth <= 1e-9 {
		return 0, 0, false
	}
	tanHalf := math.Tan(fov * math.Pi / 360)
	return rel.DotProduct(right) / (depth * tanHalf * aspect),
		rel.DotProduct(up) / (depth * tanHalf), true
}
