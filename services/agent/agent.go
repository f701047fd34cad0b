// Package agent runs the measurement loop: once per tick it checks the
// link, samples and classifies light while the window is running, and
// services the remote session.
package agent

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"luxmon-go/bus"
	"luxmon-go/errcode"
	"luxmon-go/services/exposure"
	"luxmon-go/services/mirror"
	"luxmon-go/types"
	"luxmon-go/x/timex"
)

// Sensor is the light sensor driver.
type Sensor interface {
	Initialize() bool
	ReadLux() (float64, error)
}

// Timekeeper is the time synchronizer as seen by the loop.
type Timekeeper interface {
	EnsureSynchronized(ctx context.Context) error
	LinkUp() bool
	ConnectLink(ctx context.Context, maxWait time.Duration) bool
	Resynchronize(ctx context.Context) bool
	Now() (time.Time, bool)
}

type Options struct {
	DeviceID      string
	Window        time.Duration // default 12 h
	Period        time.Duration // default 2 s
	ReconnectWait time.Duration // default 60 s
	Classifier    exposure.Classifier

	Sensor Sensor
	Time   Timekeeper
	Mirror *mirror.Mirror
	Clock  timex.Clock

	// Events is optional; nil disables telemetry publishing.
	Events *bus.Connection
	Log    zerolog.Logger
}

type Agent struct {
	opts   Options
	clock  timex.Clock
	log    zerolog.Logger
	window *exposure.Window

	linkUp     bool
	reconnects int
}

func New(o Options) *Agent {
	if o.Window <= 0 {
		o.Window = 12 * time.Hour
	}
	if o.Period <= 0 {
		o.Period = exposure.TickIncrement
	}
	if o.ReconnectWait <= 0 {
		o.ReconnectWait = 60 * time.Second
	}
	if o.Classifier.Threshold <= 0 {
		o.Classifier = exposure.Default()
		o.Classifier.Step = o.Period
	}
	if o.Classifier.Step <= 0 {
		o.Classifier.Step = o.Period
	}
	if o.Clock == nil {
		o.Clock = timex.System()
	}
	a := &Agent{
		opts:  o,
		clock: o.Clock,
		log:   o.Log.With().Str("component", "agent").Str("device", o.DeviceID).Logger(),
	}
	o.Mirror.OnSession = a.sessionChanged
	return a
}

// Window is nil until Start has synchronized time.
func (a *Agent) Window() *exposure.Window { return a.window }

// Start brings up the sensor, synchronizes time and opens the measurement
// window. A sensor that fails to initialize parks the agent until ctx ends.
func (a *Agent) Start(ctx context.Context) error {
	if !a.opts.Sensor.Initialize() {
		a.say("Sensor initialization failed. Halting; check wiring and power-cycle.")
		a.log.Error().Msg("sensor init failed, parking")
		<-ctx.Done()
		return errcode.SensorInit
	}
	a.say("Light sensor initialized.")

	if err := a.opts.Time.EnsureSynchronized(ctx); err != nil {
		return err
	}
	a.linkUp = true
	a.publish(bus.TopicSync, types.SyncResult{OK: true, Initial: true, TS: a.clock.Now()}, false)
	a.publishLink()

	start, ok := a.opts.Time.Now()
	for !ok {
		if err := ctx.Err(); err != nil {
			return err
		}
		a.clock.Sleep(a.opts.Period)
		start, ok = a.opts.Time.Now()
	}
	a.window = exposure.NewWindow(a.opts.DeviceID, start, a.opts.Window)
	a.opts.Mirror.Broadcastf("Measurement started at %s for %s.", timex.HMS(start), a.opts.Window)
	a.publish(bus.TopicWindow, a.window.Snapshot(start), true)
	return nil
}

// Run starts the agent and ticks every Period until ctx is cancelled. Tick
// latency is not compensated; the window boundary uses wall-clock time.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	for {
		a.Tick(ctx)
		if ctx.Err() != nil {
			return nil
		}
		a.clock.Sleep(a.opts.Period)
	}
}

// Tick runs one loop iteration. Start must have succeeded.
func (a *Agent) Tick(ctx context.Context) {
	a.checkLink(ctx)

	if a.window.State() == exposure.Running {
		a.sample()
	}

	a.opts.Mirror.AcceptIfIdle()
	a.publish(bus.TopicTick, nil, false)
}

// checkLink handles a down link: one bounded reconnect per tick, and a
// single resync for each down-to-up transition, whether the reconnect
// succeeded or the link came back on its own.
func (a *Agent) checkLink(ctx context.Context) {
	if a.opts.Time.LinkUp() {
		if !a.linkUp {
			a.linkRestored(ctx)
		}
		return
	}
	if a.linkUp {
		a.linkUp = false
		a.publishLink()
	}

	a.say("WiFi connection lost. Reconnecting...")
	if !a.opts.Time.ConnectLink(ctx, a.opts.ReconnectWait) {
		a.say("Reconnect failed; will retry next loop.")
		return
	}
	a.linkRestored(ctx)
}

func (a *Agent) linkRestored(ctx context.Context) {
	a.linkUp = true
	a.reconnects++
	a.publishLink()
	a.say("Reconnected to WiFi.")

	ok := a.opts.Time.Resynchronize(ctx)
	a.publish(bus.TopicSync, types.SyncResult{OK: ok, TS: a.clock.Now()}, false)
	if ok {
		a.say("Time resynchronized.")
	} else {
		a.say("Time resync failed; keeping local clock.")
	}
}

func (a *Agent) sample() {
	now, ok := a.opts.Time.Now()
	if !ok {
		a.say("Failed to obtain time; sample skipped.")
		a.publish(bus.TopicSkipped, types.Skip{Reason: types.SkipNotSynced, TS: a.clock.Now()}, false)
		return
	}

	if sum, done := a.window.Observe(now); done {
		for _, line := range sum.Lines() {
			a.say(line)
		}
		a.log.Info().Uint64("direct_seconds", a.window.AccumulatedSeconds()).Msg("window complete")
		a.publish(bus.TopicSummary, sum, true)
		a.publish(bus.TopicWindow, a.window.Snapshot(now), true)
		return
	}

	lux, err := a.opts.Sensor.ReadLux()
	if err != nil {
		a.opts.Mirror.Broadcastf("[%s] Sensor read failed; sample skipped.", timex.HMS(now))
		a.log.Debug().Err(err).Msg("sensor read")
		a.publish(bus.TopicSkipped, types.Skip{Reason: types.SkipSensorRead, TS: now}, false)
		return
	}

	direct := a.opts.Classifier.Classify(lux)
	if direct {
		a.window.Credit(a.opts.Classifier.Increment())
	}
	high := a.opts.Classifier.High(lux)
	a.say(FormatReading(now, lux))
	if high {
		a.say("High lux!")
	}
	a.publish(bus.TopicReading, types.Reading{TS: now, Lux: lux, Direct: direct, High: high}, false)
	a.publish(bus.TopicWindow, a.window.Snapshot(now), true)
}

// FormatReading renders the per-sample log line "[HH:MM:SS] lux: <v>".
func FormatReading(t time.Time, lux float64) string {
	return "[" + timex.HMS(t) + "] lux: " + strconv.FormatFloat(lux, 'f', 2, 64)
}

func (a *Agent) say(line string) { a.opts.Mirror.Broadcast(line) }

func (a *Agent) sessionChanged(connected bool, p mirror.Peer) {
	st := types.SessionState{Connected: connected, TS: a.clock.Now()}
	if s, ok := p.(fmt.Stringer); ok {
		st.Peer = s.String()
	}
	a.log.Debug().Bool("connected", connected).Str("peer", st.Peer).Msg("session")
	a.publish(bus.TopicSession, st, true)
}

func (a *Agent) publishLink() {
	st := types.LinkState{Link: types.LinkDown, Reconnects: a.reconnects, TS: a.clock.Now()}
	if a.linkUp {
		st.Link = types.LinkUp
	}
	a.publish(bus.TopicLink, st, true)
}

func (a *Agent) publish(topic bus.Topic, payload any, retained bool) {
	if a.opts.Events == nil {
		return
	}
	msg := a.opts.Events.NewMessage(topic, payload, retained)
	msg.At = a.clock.Now()
	a.opts.Events.Publish(msg)
}
