package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orrery.space/protocol"
	"orrery.space/scene"
)

type countingObserver struct {
	mu       sync.Mutex
	messages map[string]int
	ticks    int
}

func (o *countingObserver) ObserveMessage(kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages[kind]++
}

func (o *countingObserver) ObserveTick(time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ticks++
}

func (o *countingObserver) ObserveFPS(int)     {}
func (o *countingObserver) ObserveDrop(string) {}

func (o *countingObserver) snapshot() (map[string]int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]int, len(o.messages))
	for k, v := range o.messages {
		out[k] = v
	}
	return out, o.ticks
}

func startWorker(t *testing.T, opts WorkerOptions) (*Worker, context.CancelFunc, chan error) {
	t.Helper()
	s := newTestState(t, scene.NewGraph(), Options{})
	if opts.FrameRate == 0 {
		opts.FrameRate = 200
	}
	w := NewWorker(s, opts, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(cancel)
	return w, cancel, done
}

func TestWorkerPublishesFramesAndLines(t *testing.T) {
	obs := &countingObserver{messages: map[string]int{}}
	w, cancel, done := startWorker(t, WorkerOptions{FrameEvery: 1, Observer: obs})
	ctx := context.Background()

	require.NoError(t, w.Send(ctx, protocol.Canvas{Width: 800, Height: 600}))
	require.NoError(t, w.Send(ctx, earthData()))
	require.NoError(t, w.Send(ctx, protocol.ToggleLines{Show: true}))
	require.NoError(t, w.Send(ctx, protocol.Unknown{Kind: "bogus"}))

	var sawLines, sawEarth bool
	deadline := time.After(3 * time.Second)
	for !(sawLines && sawEarth) {
		select {
		case msg := <-w.Outbound():
			switch m := msg.(type) {
			case protocol.OrbitLines:
				if _, ok := m.Lines["earth"]; ok {
					sawLines = true
				}
			case protocol.Frame:
				for _, b := range m.Bodies {
					if b.ID == "earth" {
						sawEarth = true
					}
				}
			}
		case <-deadline:
			t.Fatalf("timed out: lines=%v earth=%v", sawLines, sawEarth)
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}

	// outbound is closed once Run returns
	for range w.Outbound() {
	}

	msgs, ticks := obs.snapshot()
	assert.Equal(t, 1, msgs[protocol.TypeCanvas])
	assert.Equal(t, 1, msgs["earthData"])
	assert.Equal(t, 1, msgs["unknown"])
	assert.Positive(t, ticks)
}

func TestWorkerWaitsForCanvas(t *testing.T) {
	w, _, _ := startWorker(t, WorkerOptions{FrameEvery: 1})
	require.NoError(t, w.Send(context.Background(), earthData()))

	select {
	case msg := <-w.Outbound():
		t.Fatalf("unexpected %s before canvas", msg.Type())
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWorkerSendRespectsContext(t *testing.T) {
	s := newTestState(t, scene.NewGraph(), Options{})
	w := NewWorker(s, WorkerOptions{InboxSize: 1}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Send(ctx, protocol.MouseUp{}))
	cancel()
	assert.ErrorIs(t, w.Send(ctx, protocol.MouseUp{}), context.Canceled)
}
