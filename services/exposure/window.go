// Package exposure holds the measurement state: the direct-sunlight
// classifier and the finite window that accumulates exposure.
package exposure

import (
	"strconv"
	"time"

	"luxmon-go/x/timex"
)

// State of a measurement window.
type State uint8

const (
	Running State = iota
	Complete
)

func (s State) String() string {
	if s == Complete {
		return "complete"
	}
	return "running"
}

// Window tracks one fixed-duration observation period. It is owned by the
// agent loop and mutated once per tick; it is not safe for concurrent use.
type Window struct {
	device string
	start  time.Time
	end    time.Time

	direct time.Duration
	state  State
}

// NewWindow starts a Running window at start lasting total.
func NewWindow(device string, start time.Time, total time.Duration) *Window {
	return &Window{
		device: device,
		start:  start,
		end:    start.Add(total),
	}
}

func (w *Window) State() State          { return w.state }
func (w *Window) Start() time.Time      { return w.start }
func (w *Window) End() time.Time        { return w.end }
func (w *Window) Direct() time.Duration { return w.direct }

// AccumulatedSeconds is the direct-sunlight exposure in whole seconds.
func (w *Window) AccumulatedSeconds() uint64 { return uint64(w.direct / time.Second) }

// Observe checks now against the window end. The first observation at or
// past the end moves the window to Complete and returns its summary; every
// other call returns false.
func (w *Window) Observe(now time.Time) (Summary, bool) {
	if w.state == Complete || now.Before(w.end) {
		return Summary{}, false
	}
	w.state = Complete
	return w.summary(), true
}

// Credit adds d of direct-sunlight exposure. Ignored once Complete and for
// non-positive d.
func (w *Window) Credit(d time.Duration) {
	if w.state != Running || d <= 0 {
		return
	}
	w.direct += d
}

// Remaining is the time left until the window end as seen from now.
func (w *Window) Remaining(now time.Time) time.Duration {
	if w.state == Complete || !now.Before(w.end) {
		return 0
	}
	return w.end.Sub(now)
}

func (w *Window) summary() Summary {
	return Summary{Device: w.device, Start: w.start, End: w.end, Direct: w.direct}
}

// Snapshot is a read-only copy of the window for telemetry.
type Snapshot struct {
	Device           string    `json:"device"`
	State            string    `json:"state"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	DirectSeconds    uint64    `json:"direct_seconds"`
	RemainingSeconds float64   `json:"remaining_seconds"`
}

// Snapshot copies the window as seen at now, which must come from the same
// clock that opened it.
func (w *Window) Snapshot(now time.Time) Snapshot {
	return Snapshot{
		Device:           w.device,
		State:            w.state.String(),
		Start:            w.start,
		End:              w.end,
		DirectSeconds:    w.AccumulatedSeconds(),
		RemainingSeconds: w.Remaining(now).Seconds(),
	}
}

// Summary is emitted once when a window completes.
type Summary struct {
	Device string        `json:"device"`
	Start  time.Time     `json:"start"`
	End    time.Time     `json:"end"`
	Direct time.Duration `json:"direct"`
}

// Exposure renders the total as "<H> hours, <M> minutes, and <S> seconds".
func (s Summary) Exposure() string {
	h, m, sec := timex.SplitHMS(s.Direct)
	return strconv.Itoa(h) + " hours, " + strconv.Itoa(m) + " minutes, and " + strconv.Itoa(sec) + " seconds"
}

// Lines returns the summary as log lines.
func (s Summary) Lines() []string {
	return []string{
		s.Device + ": Test Complete",
		"Total direct sunlight: " + s.Exposure() + ".",
	}
}
