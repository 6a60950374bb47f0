package engine

import (
	"math"
	"time"

	"golang.org/x/time/rate"
)

// FPSMeter counts presented frames and reports the rate at most once per
// second
type FPSMeter struct {
	gate   *rate.Limiter
	frames int
	since  time.Time
}

// NewFPSMeter starts measuring at start. The first report is due one second
// later.
func NewFPSMeter(start time.Time) *FPSMeter {
	m := &FPSMeter{
		gate:  rate.NewLimiter(rate.Every(time.Second), 1),
		since: start,
	}
	m.gate.AllowN(start, 1)
	return m
}

// Frame records one frame presented at now. It returns the frame rate since
// the previous report when a new report is due.
func (m *FPSMeter) Frame(now time.Time) (int, bool) {
	m.frames++
	if !m.gate.AllowN(now, 1) {
		return 0, false
	}
	elapsed := now.Sub(m.since).Seconds()
	fps := m.frames
	if elapsed > 0 {
		fps = int(math.Round(float64(m.frames) / elapsed))
	}
	m.frames = 0
	m.since = now
	return fps, true
}
