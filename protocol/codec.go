package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"orrery.space/body"
	"orrery.space/orbit"
	"orrery.space/scene"
)

// ErrNoType is returned for objects without a "type" field
var ErrNoType = errors.New("message has no type")

// fields is the union of every inbound field. Ingest payloads live under a
// key named after the type and are read separately.
type fields struct {
	Type         string          `json:"type"`
	Surface      json.RawMessage `json:"canvas,omitempty"`
	MouseX       float64         `json:"mouseX"`
	MouseY       float64         `json:"mouseY"`
	CanvasWidth  float64         `json:"canvasWidth,omitempty"`
	CanvasHeight float64         `json:"canvasHeight,omitempty"`
	PlanetData   *body.Input     `json:"planetData,omitempty"`
	Key          string          `json:"key,omitempty"`
	ShowLines    bool            `json:"showLines"`
	PlanetName   string          `json:"planetName,omitempty"`
}

type surfaceSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func hasSurface(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

func decodeCanvas(f fields) Canvas {
	c := Canvas{Width: f.CanvasWidth, Height: f.CanvasHeight}
	// a transferred surface may carry its own size
	var s surfaceSize
	if hasSurface(f.Surface) && json.Unmarshal(f.Surface, &s) == nil {
		if c.Width == 0 {
			c.Width = s.Width
		}
		if c.Height == 0 {
			c.Height = s.Height
		}
	}
	return c
}

// Decode parses one inbound message. Unrecognised types decode to Unknown;
// only malformed JSON and a missing type are errors. A message without a type
// that carries a canvas is the surface handoff.
func Decode(data []byte) (Message, error) {
	var f fields
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	p := Pointer{
		X:            f.MouseX,
		Y:            f.MouseY,
		CanvasWidth:  f.CanvasWidth,
		CanvasHeight: f.CanvasHeight,
		PlanetData:   f.PlanetData,
	}

	switch f.Type {
	case "":
		// older clients hand over the surface without naming the message
		if !hasSurface(f.Surface) {
			return nil, ErrNoType
		}
		return decodeCanvas(f), nil
	case TypeCanvas:
		return decodeCanvas(f), nil
	case TypeMouseDown:
		return MouseDown{p}, nil
	case TypeMouseUp:
		return MouseUp{p}, nil
	case TypeMouseMove:
		return MouseMove{p}, nil
	case TypeKeyDown:
		return KeyDown{Key: f.Key}, nil
	case TypeToggleLines:
		return ToggleLines{Show: f.ShowLines}, nil
	case TypeStartAddingPlanet:
		m := StartAddingPlanet{}
		if f.PlanetData != nil {
			m.PlanetData = *f.PlanetData
		}
		return m, nil
	case TypeDeletePlanet:
		return DeletePlanet{Name: f.PlanetName}, nil
	case TypeFollowPlanet:
		return FollowPlanet{Name: f.PlanetName}, nil
	case TypeResize:
		return Resize{Width: f.CanvasWidth, Height: f.CanvasHeight}, nil
	}

	if id, ok := body.FixedBodyForType(f.Type); ok {
		return decodeBodyData(data, f.Type, id)
	}
	return Unknown{Kind: f.Type}, nil
}

func decodeBodyData(data []byte, key, id string) (Message, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	m := BodyData{Body: id}
	if payload, ok := raw[key]; ok && string(payload) != "null" {
		if err := json.Unmarshal(payload, &m.Data); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
	}
	return m, nil
}

type pointerWire struct {
	Type         string      `json:"type"`
	MouseX       float64     `json:"mouseX"`
	MouseY       float64     `json:"mouseY"`
	CanvasWidth  float64     `json:"canvasWidth,omitempty"`
	CanvasHeight float64     `json:"canvasHeight,omitempty"`
	PlanetData   *body.Input `json:"planetData,omitempty"`
}

type sizeWire struct {
	Type         string  `json:"type"`
	CanvasWidth  float64 `json:"canvasWidth"`
	CanvasHeight float64 `json:"canvasHeight"`
}

type frameWire struct {
	Type string `json:"type"`
	scene.Frame
}

type linesWire struct {
	Type    string                     `json:"type"`
	Version uint64                     `json:"version"`
	Lines   map[string][]orbit.Vector3 `json:"lines"`
}

// Encode renders any message in its wire form
func Encode(m Message) ([]byte, error) {
	switch m := m.(type) {
	case Canvas:
		return json.Marshal(sizeWire{TypeCanvas, m.Width, m.Height})
	case MouseDown:
		return encodePointer(TypeMouseDown, m.Pointer)
	case MouseUp:
		return encodePointer(TypeMouseUp, m.Pointer)
	case MouseMove:
		return encodePointer(TypeMouseMove, m.Pointer)
	case KeyDown:
		return json.Marshal(struct {
			Type string `json:"type"`
			Key  string `json:"key"`
		}{TypeKeyDown, m.Key})
	case ToggleLines:
		return json.Marshal(struct {
			Type      string `json:"type"`
			ShowLines bool   `json:"showLines"`
		}{TypeToggleLines, m.Show})
	case StartAddingPlanet:
		return json.Marshal(struct {
			Type       string     `json:"type"`
			PlanetData body.Input `json:"planetData"`
		}{TypeStartAddingPlanet, m.PlanetData})
	case BodyData:
		return json.Marshal(map[string]any{"type": m.Type(), m.Type(): m.Data})
	case DeletePlanet:
		return encodeName(TypeDeletePlanet, m.Name)
	case FollowPlanet:
		return encodeName(TypeFollowPlanet, m.Name)
	case Resize:
		return json.Marshal(sizeWire{TypeResize, m.Width, m.Height})
	case Unknown:
		return json.Marshal(map[string]string{"type": m.Kind})
	case FPS:
		return json.Marshal(struct {
			Type string `json:"type"`
			FPS  int    `json:"fps"`
		}{TypeFPS, m.FPS})
	case Frame:
		if m.Bodies == nil {
			m.Bodies = []scene.NodeState{}
		}
		return json.Marshal(frameWire{TypeFrame, m.Frame})
	case OrbitLines:
		lines := m.Lines
		if lines == nil {
			lines = map[string][]orbit.Vector3{}
		}
		return json.Marshal(linesWire{TypeOrbitLines, m.Version, lines})
	case nil:
		return nil, ErrNoType
	default:
		return nil, fmt.Errorf("encode %T: unsupported message", m)
	}
}

func encodePointer(kind string, p Pointer) ([]byte, error) {
	return json.Marshal(pointerWire{
		Type:         kind,
		MouseX:       p.X,
		MouseY:       p.Y,
		CanvasWidth:  p.CanvasWidth,
		CanvasHeight: p.CanvasHeight,
		PlanetData:   p.PlanetData,
	})
}

func encodeName(kind, name string) ([]byte, error) {
	return json.Marshal(struct {
		Type       string `json:"type"`
		PlanetName string `json:"planetName"`
	}{kind, name})
}
