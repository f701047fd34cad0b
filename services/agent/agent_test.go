package agent

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luxmon-go/bus"
	"luxmon-go/errcode"
	"luxmon-go/services/exposure"
	"luxmon-go/services/mirror"
	"luxmon-go/services/timesync"
	"luxmon-go/types"
)

// ---- fakes ----

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time        { return c.now }
func (c *fakeClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

type fakeSensor struct {
	initOK bool
	lux    []float64
	errs   map[int]error
	reads  int
}

func (s *fakeSensor) Initialize() bool { return s.initOK }
func (s *fakeSensor) ReadLux() (float64, error) {
	i := s.reads
	s.reads++
	if err := s.errs[i]; err != nil {
		return 0, err
	}
	if i < len(s.lux) {
		return s.lux[i], nil
	}
	return 0, nil
}

// fakeTime follows the fake clock once synced; linkScript, when set, gives
// the LinkUp answer per call.
type fakeTime struct {
	clock      *fakeClock
	synced     bool
	unsynced   map[int]bool // Now() call index -> absent
	nowCalls   int
	linkScript []bool
	linkCalls  int
	reconnect  bool
	connects   int
	resyncs    int
	resyncOK   bool
}

func (f *fakeTime) EnsureSynchronized(context.Context) error { f.synced = true; return nil }
func (f *fakeTime) LinkUp() bool {
	i := f.linkCalls
	f.linkCalls++
	if i < len(f.linkScript) {
		return f.linkScript[i]
	}
	return true
}
func (f *fakeTime) ConnectLink(context.Context, time.Duration) bool {
	f.connects++
	return f.reconnect
}
func (f *fakeTime) Resynchronize(context.Context) bool { f.resyncs++; return f.resyncOK }
func (f *fakeTime) Now() (time.Time, bool) {
	i := f.nowCalls
	f.nowCalls++
	if !f.synced || f.unsynced[i] {
		return time.Time{}, false
	}
	return f.clock.now, true
}

type fakePeer struct {
	buf   bytes.Buffer
	alive bool
}

func (p *fakePeer) Write(b []byte) (int, error) { return p.buf.Write(b) }
func (p *fakePeer) Connected() bool             { return p.alive }
func (p *fakePeer) Close() error                { p.alive = false; return nil }

type oneShotListener struct{ peer mirror.Peer }

func (l *oneShotListener) Poll() (mirror.Peer, bool) {
	if l.peer == nil {
		return nil, false
	}
	p := l.peer
	l.peer = nil
	return p, true
}

type harness struct {
	agent   *Agent
	clock   *fakeClock
	time    *fakeTime
	sensor  *fakeSensor
	console *bytes.Buffer
	events  *bus.Connection
}

func newHarness(t *testing.T, window time.Duration, l mirror.Listener) *harness {
	t.Helper()
	clk := &fakeClock{now: time.Unix(0, 0).UTC()}
	ft := &fakeTime{clock: clk, resyncOK: true, reconnect: true}
	sensor := &fakeSensor{initOK: true}
	var console bytes.Buffer
	m := mirror.New(mirror.NewWriterConsole(&console), l, zerolog.Nop())
	events := bus.NewBus(64).NewConnection("test")
	a := New(Options{
		DeviceID: "lux-01",
		Window:   window,
		Period:   2 * time.Second,
		Sensor:   sensor,
		Time:     ft,
		Mirror:   m,
		Clock:    clk,
		Events:   events,
		Log:      zerolog.Nop(),
	})
	return &harness{agent: a, clock: clk, time: ft, sensor: sensor, console: &console, events: events}
}

func (h *harness) lines() []string {
	return strings.Split(strings.TrimRight(h.console.String(), "\n"), "\n")
}

func (h *harness) tick(ctx context.Context) {
	h.agent.Tick(ctx)
	h.clock.Sleep(2 * time.Second)
}

// ---- tests ----

func TestFormatReading(t *testing.T) {
	ts := time.Date(2024, 6, 21, 13, 4, 5, 0, time.UTC)
	assert.Equal(t, "[13:04:05] lux: 25000.00", FormatReading(ts, 25000))
	assert.Equal(t, "[13:04:05] lux: 0.83", FormatReading(ts, 0.8333))
}

func TestScenarioTenSecondWindow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 10*time.Second, nil)
	h.sensor.lux = []float64{100, 25000, 100, 20000, 5000}
	summary := h.events.Subscribe(bus.TopicSummary)

	require.NoError(t, h.agent.Start(ctx))
	for i := 0; i < 5; i++ { // t = 0, 2, 4, 6, 8
		h.tick(ctx)
		assert.Equal(t, exposure.Running, h.agent.Window().State(), "tick %d", i)
	}
	h.tick(ctx) // t = 10

	w := h.agent.Window()
	assert.Equal(t, exposure.Complete, w.State())
	assert.Equal(t, uint64(4), w.AccumulatedSeconds())
	assert.Equal(t, 5, h.sensor.reads, "no read on the completing tick")

	out := h.console.String()
	for _, want := range []string{
		"Measurement started at 00:00:00 for 10s.",
		"[00:00:00] lux: 100.00",
		"[00:00:02] lux: 25000.00",
		"[00:00:06] lux: 20000.00",
		"[00:00:08] lux: 5000.00",
		"lux-01: Test Complete",
		"Total direct sunlight: 0 hours, 0 minutes, and 4 seconds.",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "[00:00:10] lux")

	select {
	case m := <-summary.Channel():
		assert.Equal(t, 4*time.Second, m.Payload.(exposure.Summary).Direct)
	default:
		t.Fatal("summary not published")
	}
}

func TestCompletionIsSingleFire(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 4*time.Second, nil)
	h.sensor.lux = []float64{30000, 30000, 30000, 30000, 30000}
	require.NoError(t, h.agent.Start(ctx))

	for i := 0; i < 8; i++ {
		h.tick(ctx)
	}
	assert.Equal(t, 1, strings.Count(h.console.String(), "Test Complete"))
	assert.Equal(t, uint64(4), h.agent.Window().AccumulatedSeconds())
	assert.Equal(t, 2, h.sensor.reads)
}

func TestUnsyncedTickSkips(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Hour, nil)
	h.sensor.lux = []float64{50000, 50000}
	require.NoError(t, h.agent.Start(ctx))
	skipped := h.events.Subscribe(bus.TopicSkipped)

	// Start consumed Now() call 0; the first tick's call is index 1.
	h.time.unsynced = map[int]bool{1: true}
	h.tick(ctx)

	assert.Equal(t, uint64(0), h.agent.Window().AccumulatedSeconds())
	assert.Equal(t, exposure.Running, h.agent.Window().State())
	assert.Equal(t, 0, h.sensor.reads)
	assert.Contains(t, h.console.String(), "Failed to obtain time; sample skipped.")
	m := <-skipped.Channel()
	assert.Equal(t, types.SkipNotSynced, m.Payload.(types.Skip).Reason)

	h.tick(ctx)
	assert.Equal(t, uint64(2), h.agent.Window().AccumulatedSeconds())
}

func TestSensorReadErrorSkips(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Hour, nil)
	h.sensor.lux = []float64{50000, 50000}
	h.sensor.errs = map[int]error{0: errcode.SensorRead}
	require.NoError(t, h.agent.Start(ctx))

	h.tick(ctx)
	assert.Equal(t, uint64(0), h.agent.Window().AccumulatedSeconds())
	assert.Contains(t, h.console.String(), "[00:00:00] Sensor read failed; sample skipped.")
	h.tick(ctx)
	assert.Equal(t, uint64(2), h.agent.Window().AccumulatedSeconds())
}

func TestReconnectResyncsOncePerTransition(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Hour, nil)
	require.NoError(t, h.agent.Start(ctx))
	links := h.events.Subscribe(bus.TopicLink)
	<-links.Channel() // retained "up" from Start

	// up, down (reconnect ok), up, up, down (reconnect fails), down (ok)
	h.time.linkScript = []bool{true, false, true, true, false, false}
	h.time.reconnect = true
	h.tick(ctx)
	h.tick(ctx)
	assert.Equal(t, 1, h.time.resyncs)
	h.tick(ctx)
	h.tick(ctx)
	assert.Equal(t, 1, h.time.resyncs, "no resync while link stays up")

	h.time.reconnect = false
	h.tick(ctx)
	assert.Equal(t, 1, h.time.resyncs, "no resync on failed reconnect")
	assert.Contains(t, h.console.String(), "Reconnect failed; will retry next loop.")

	h.time.reconnect = true
	h.tick(ctx)
	assert.Equal(t, 2, h.time.resyncs)
	assert.Equal(t, 3, h.time.connects)
	assert.Equal(t, 6, h.sensor.reads, "sampling continues through link loss")

	out := h.console.String()
	assert.Equal(t, 3, strings.Count(out, "WiFi connection lost. Reconnecting..."))
	assert.Equal(t, 2, strings.Count(out, "Time resynchronized."))

	var last types.LinkState
	for {
		select {
		case m := <-links.Channel():
			last = m.Payload.(types.LinkState)
			continue
		default:
		}
		break
	}
	assert.Equal(t, types.LinkUp, last.Link)
	assert.Equal(t, 2, last.Reconnects)
}

func TestResyncFailureTolerated(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Hour, nil)
	h.sensor.lux = []float64{1, 2}
	require.NoError(t, h.agent.Start(ctx))
	h.time.linkScript = []bool{false}
	h.time.resyncOK = false

	h.tick(ctx)
	assert.Contains(t, h.console.String(), "Time resync failed; keeping local clock.")
	assert.Equal(t, 1, h.sensor.reads)
}

func TestSessionMirroring(t *testing.T) {
	ctx := context.Background()
	peer := &fakePeer{alive: true}
	h := newHarness(t, time.Hour, &oneShotListener{peer: peer})
	h.sensor.lux = []float64{10, 20, 30}
	sessions := h.events.Subscribe(bus.TopicSession)
	require.NoError(t, h.agent.Start(ctx))

	h.tick(ctx) // sample at t=0, then accept
	assert.NotContains(t, peer.buf.String(), "lux: 10.00")
	assert.Contains(t, peer.buf.String(), "New telnet client connected.")

	h.tick(ctx)
	assert.Contains(t, peer.buf.String(), "[00:00:02] lux: 20.00\r\n")

	peer.alive = false
	h.tick(ctx)
	assert.NotContains(t, peer.buf.String(), "lux: 30.00")
	assert.Contains(t, h.console.String(), "[00:00:04] lux: 30.00")

	m := <-sessions.Channel()
	assert.True(t, m.Payload.(types.SessionState).Connected)
}

func TestNoPeerStillLogsToConsole(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Hour, &oneShotListener{})
	h.sensor.lux = []float64{7}
	require.NoError(t, h.agent.Start(ctx))
	h.tick(ctx)
	assert.Contains(t, h.lines(), "[00:00:00] lux: 7.00")
}

func TestSensorInitFailureParks(t *testing.T) {
	h := newHarness(t, time.Hour, nil)
	h.sensor.initOK = false

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.agent.Run(ctx) }()

	select {
	case <-done:
		t.Fatal("agent returned while parked")
	case <-time.After(30 * time.Millisecond):
	}
	cancel()
	select {
	case err := <-done:
		assert.Equal(t, errcode.SensorInit, errcode.Of(err))
	case <-time.After(time.Second):
		t.Fatal("parked agent ignored cancellation")
	}
	assert.False(t, h.time.synced, "no time sync after fatal sensor failure")
}

// Wires the real synchronizer to exercise the startup sequence end to end.
func TestStartWithSynchronizer(t *testing.T) {
	clk := &fakeClock{now: time.Date(2024, 6, 21, 5, 59, 58, 0, time.UTC)}
	link := &stubLink{upAfter: 3}
	svc := &stubService{clock: clk}
	var console bytes.Buffer
	m := mirror.New(mirror.NewWriterConsole(&console), nil, zerolog.Nop())
	sync := timesync.New(link, svc, m, clk, zerolog.Nop(), timesync.Options{SSID: "greenhouse", Pool: "pool.ntp.org"})

	a := New(Options{
		DeviceID: "lux-01",
		Window:   time.Minute,
		Sensor:   &fakeSensor{initOK: true, lux: []float64{21000}},
		Time:     sync,
		Mirror:   m,
		Clock:    clk,
	})
	require.NoError(t, a.Start(context.Background()))
	assert.Equal(t, clk.now, a.Window().Start())
	a.Tick(context.Background())
	assert.Equal(t, uint64(2), a.Window().AccumulatedSeconds())
	assert.Contains(t, console.String(), "Time synchronized: 2024-06-21 05:59:59 UTC")
	assert.Contains(t, console.String(), "[05:59:59] lux: 21000.00")
}

type stubLink struct{ upAfter, checks int }

func (l *stubLink) Connect(string, string) error { return nil }
func (l *stubLink) Connected() bool              { l.checks++; return l.checks > l.upAfter }

type stubService struct {
	clock  *fakeClock
	synced bool
}

func (s *stubService) Configure(string, string) error { return nil }
func (s *stubService) Sync(context.Context) error {
	if s.clock.now.IsZero() {
		return errors.New("no clock")
	}
	s.synced = true
	return nil
}
func (s *stubService) LocalTime() (time.Time, bool) { return s.clock.now, s.synced }

func TestLinkRecoveringAfterFailedReconnectResyncs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Hour, nil)
	require.NoError(t, h.agent.Start(ctx))
	links := h.events.Subscribe(bus.TopicLink)
	<-links.Channel()

	h.time.reconnect = false
	h.time.linkScript = []bool{false, true, true}
	h.tick(ctx) // down, bounded reconnect fails
	h.tick(ctx) // link is back without our help
	h.tick(ctx)

	assert.Equal(t, 1, h.time.connects)
	assert.Equal(t, 1, h.time.resyncs)
	out := h.console.String()
	assert.Contains(t, out, "Reconnect failed; will retry next loop.")
	assert.Equal(t, 1, strings.Count(out, "Reconnected to WiFi."))
	assert.Equal(t, 1, strings.Count(out, "Time resynchronized."))

	<-links.Channel() // down
	up := (<-links.Channel()).Payload.(types.LinkState)
	assert.Equal(t, types.LinkUp, up.Link)
	assert.Equal(t, 1, up.Reconnects)
}

func TestHighLuxNotice(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Hour, nil)
	h.sensor.lux = []float64{1000, 1000.5, 999}
	require.NoError(t, h.agent.Start(ctx))
	readings := h.events.Subscribe(bus.TopicReading)

	for i := 0; i < 3; i++ {
		h.tick(ctx)
	}

	lines := h.lines()
	assert.Equal(t, 1, strings.Count(h.console.String(), "High lux!"))
	for i, l := range lines {
		if l == "[00:00:02] lux: 1000.50" {
			require.Less(t, i+1, len(lines))
			assert.Equal(t, "High lux!", lines[i+1])
		}
	}

	var high []bool
	for i := 0; i < 3; i++ {
		high = append(high, (<-readings.Channel()).Payload.(types.Reading).High)
	}
	assert.Equal(t, []bool{false, true, false}, high)
}

func TestDefaultClassifierCreditsPeriod(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0).UTC()}
	var console bytes.Buffer
	a := New(Options{
		DeviceID: "lux-01",
		Window:   time.Minute,
		Period:   5 * time.Second,
		Sensor:   &fakeSensor{initOK: true, lux: []float64{30000}},
		Time:     &fakeTime{clock: clk},
		Mirror:   mirror.New(mirror.NewWriterConsole(&console), nil, zerolog.Nop()),
		Clock:    clk,
	})
	require.NoError(t, a.Start(context.Background()))
	a.Tick(context.Background())
	assert.Equal(t, uint64(5), a.Window().AccumulatedSeconds())
}
