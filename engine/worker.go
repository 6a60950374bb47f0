package engine

import (
	"context"
	"log/slog"
	"time"

	"orrery.space/protocol"
	"orrery.space/scene"
)

// Worker defaults
const (
	DefaultFrameRate  = 60
	DefaultFrameEvery = 2
	DefaultInboxSize  = 256
	DefaultOutboxSize = 64
)

// Observer receives worker events, typically to feed metrics. All methods are
// called from the worker goroutine.
type Observer interface {
	ObserveMessage(kind string)
	ObserveTick(d time.Duration)
	ObserveFPS(fps int)
	ObserveDrop(kind string)
}

type nopObserver struct{}

func (nopObserver) ObserveMessage(string)     {}
func (nopObserver) ObserveTick(time.Duration) {}
func (nopObserver) ObserveFPS(int)            {}
func (nopObserver) ObserveDrop(string)        {}

// WorkerOptions configures a Worker. Zero fields take the defaults above.
type WorkerOptions struct {
	FrameRate int
	// FrameEvery sends a frame snapshot every N ticks; negative disables
	FrameEvery int
	InboxSize  int
	OutboxSize int
	Observer   Observer
	Clock      func() time.Time
}

func (o WorkerOptions) withDefaults() WorkerOptions {
	if o.FrameRate <= 0 {
		o.FrameRate = DefaultFrameRate
	}
	if o.FrameEvery == 0 {
		o.FrameEvery = DefaultFrameEvery
	}
	if o.InboxSize <= 0 {
		o.InboxSize = DefaultInboxSize
	}
	if o.OutboxSize <= 0 {
		o.OutboxSize = DefaultOutboxSize
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

type attachment struct {
	id     string
	handle scene.Handle
}

// Worker runs a SimulationState on its own goroutine. Commands and frame
// ticks are serialised through one select, so the state needs no locking.
type Worker struct {
	state *SimulationState
	opts  WorkerOptions
	log   *slog.Logger

	in     chan protocol.Message
	attach chan attachment
	out    chan protocol.Message

	snap      scene.Snapshotter
	fps       *FPSMeter
	linesSent uint64
	sinceSnap int
}

// NewWorker wraps state. Frames and orbit lines are only published when the
// state's scene implements scene.Snapshotter.
func NewWorker(state *SimulationState, opts WorkerOptions, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	opts = opts.withDefaults()
	w := &Worker{
		state:  state,
		opts:   opts,
		log:    log,
		in:     make(chan protocol.Message, opts.InboxSize),
		attach: make(chan attachment, opts.InboxSize),
		out:    make(chan protocol.Message, opts.OutboxSize),
	}
	w.snap, _ = state.Scene.(scene.Snapshotter)
	return w
}

// Send queues an inbound message. It blocks while the inbox is full.
func (w *Worker) Send(ctx context.Context, msg protocol.Message) error {
	select {
	case w.in <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Attach hands a late render handle to the worker goroutine
func (w *Worker) Attach(ctx context.Context, id string, h scene.Handle) error {
	select {
	case w.attach <- attachment{id: id, handle: h}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Outbound carries fps reports, frames and orbit lines. It is closed when Run
// returns.
func (w *Worker) Outbound() <-chan protocol.Message {
	return w.out
}

// Run processes messages and ticks until ctx is done. Ticks only start once
// the canvas message has arrived; earlier commands are still applied.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.out)

	ticker := time.NewTicker(time.Second / time.Duration(w.opts.FrameRate))
	defer ticker.Stop()

	w.log.Debug("worker started", "frameRate", w.opts.FrameRate)
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("worker stopped", "ticks", w.state.Ticks())
			return ctx.Err()
		case msg := <-w.in:
			w.apply(msg)
		case a := <-w.attach:
			w.state.Attach(a.id, a.handle)
		case <-ticker.C:
			if w.state.Ready() {
				w.frame()
			}
		}
	}
}

func (w *Worker) apply(msg protocol.Message) {
	kind := msg.Type()
	if _, unknown := msg.(protocol.Unknown); unknown {
		kind = "unknown"
	}
	w.opts.Observer.ObserveMessage(kind)

	wasReady := w.state.Ready()
	w.state.Apply(msg)
	if !wasReady && w.state.Ready() {
		w.fps = NewFPSMeter(w.opts.Clock())
	}
}

func (w *Worker) frame() {
	start := w.opts.Clock()
	w.state.Frame()
	now := w.opts.Clock()
	w.opts.Observer.ObserveTick(now.Sub(start))

	if w.fps == nil {
		w.fps = NewFPSMeter(start)
	}
	if fps, due := w.fps.Frame(now); due {
		w.opts.Observer.ObserveFPS(fps)
		w.emit(protocol.FPS{FPS: fps})
	}

	if w.snap == nil {
		return
	}
	if v := w.snap.LinesVersion(); v != w.linesSent {
		version, lines := w.snap.OrbitLines()
		if w.emit(protocol.OrbitLines{Version: version, Lines: lines}) {
			w.linesSent = version
		}
	}
	if w.opts.FrameEvery > 0 {
		w.sinceSnap++
		if w.sinceSnap >= w.opts.FrameEvery {
			w.sinceSnap = 0
			w.emit(protocol.Frame{Frame: w.snap.Snapshot()})
		}
	}
}

// emit never blocks; a full outbox drops the message
func (w *Worker) emit(msg protocol.Message) bool {
	select {
	case w.out <- msg:
		return true
	default:
		w.opts.Observer.ObserveDrop(msg.Type())
		return false
	}
}
