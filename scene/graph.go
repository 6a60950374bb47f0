package scene

import (
	"maps"
	"slices"

	"orrery.space/orbit"
)

type node struct {
	spec      BodySpec
	transform Transform
}

// Graph is an in-memory scene graph. It is what the server mirrors to remote
// clients, what the terminal viewer draws from and what tests inspect.
// Like the simulation it belongs to a single goroutine.
type Graph struct {
	next   Handle
	nodes  map[Handle]*node
	order  []Handle
	lines  map[string][]orbit.Vector3
	linesV uint64
	camera CameraState
	seq    uint64
}

// NewGraph creates an empty scene graph
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[Handle]*node),
		lines: make(map[string][]orbit.Vector3),
	}
}

// Mount implements Scene. Graph has no assets to wait for.
func (g *Graph) Mount(spec BodySpec) (Handle, bool) {
	g.next++
	h := g.next
	g.nodes[h] = &node{spec: spec}
	g.order = append(g.order, h)
	return h, true
}

// Unmount implements Scene
func (g *Graph) Unmount(h Handle) {
	if _, ok := g.nodes[h]; !ok {
		return
	}
	delete(g.nodes, h)
	g.order = slices.DeleteFunc(g.order, func(o Handle) bool { return o == h })
}

// Place implements Scene. Unknown handles are ignored.
func (g *Graph) Place(h Handle, t Transform) {
	if n, ok := g.nodes[h]; ok {
		n.transform = t
	}
}

// SetOrbitLine implements Scene
func (g *Graph) SetOrbitLine(id string, path []orbit.Vector3) {
	g.lines[id] = slices.Clone(path)
	g.linesV++
}

// ClearOrbitLine implements Scene
func (g *Graph) ClearOrbitLine(id string) {
	if _, ok := g.lines[id]; !ok {
		return
	}
	delete(g.lines, id)
	g.linesV++
}

// ClearOrbitLines implements Scene
func (g *Graph) ClearOrbitLines() {
	if len(g.lines) == 0 {
		return
	}
	clear(g.lines)
	g.linesV++
}

// SetCamera implements Scene
func (g *Graph) SetCamera(position, target orbit.Vector3) {
	g.camera = CameraState{Position: position, Target: target}
}

// Present implements Scene
func (g *Graph) Present() {
	g.seq++
}

// Len returns the number of mounted objects
func (g *Graph) Len() int {
	return len(g.order)
}

// Node returns the spec and last transform for a handle
func (g *Graph) Node(h Handle) (BodySpec, Transform, bool) {
	n, ok := g.nodes[h]
	if !ok {
		return BodySpec{}, Transform{}, false
	}
	return n.spec, n.transform, true
}

// Camera returns the last camera pose
func (g *Graph) Camera() CameraState {
	return g.camera
}

// Snapshot implements Snapshotter
func (g *Graph) Snapshot() Frame {
	f := Frame{
		Seq:    g.seq,
		Bodies: make([]NodeState, 0, len(g.order)),
		Camera: g.camera,
	}
	for _, h := range g.order {
		n := g.nodes[h]
		f.Bodies = append(f.Bodies, NodeState{
			BodySpec: n.spec,
			Handle:   h,
			Position: n.transform.Position,
			Spin:     n.transform.Spin,
			Tilt:     n.transform.Tilt,
		})
	}
	return f
}

// LinesVersion implements Snapshotter
func (g *Graph) LinesVersion() uint64 {
	return g.linesV
}

// OrbitLines implements Snapshotter. The map is a copy.
func (g *Graph) OrbitLines() (uint64, map[string][]orbit.Vector3) {
	return g.linesV, maps.Clone(g.lines)
}
