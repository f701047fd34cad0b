package timesync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luxmon-go/errcode"
)

type fakeClock struct {
	now   time.Time
	slept time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) Sleep(d time.Duration) {
	c.now = c.now.Add(d)
	c.slept += d
}

// fakeLink comes up after upAfter status checks.
type fakeLink struct {
	upAfter  int
	checks   int
	connects int
	ssid     string
}

func (l *fakeLink) Connect(ssid, _ string) error { l.connects++; l.ssid = ssid; return nil }
func (l *fakeLink) Connected() bool {
	l.checks++
	return l.upAfter >= 0 && l.checks > l.upAfter
}

type fakeService struct {
	failures  int
	syncs     int
	synced    bool
	zone      string
	deadlines []time.Duration
	now       time.Time
}

func (s *fakeService) Configure(tz, _ string) error {
	if tz == "bad" {
		return errors.New("unknown zone")
	}
	s.zone = tz
	return nil
}

func (s *fakeService) Sync(ctx context.Context) error {
	s.syncs++
	if dl, ok := ctx.Deadline(); ok {
		s.deadlines = append(s.deadlines, time.Until(dl))
	}
	if s.failures > 0 {
		s.failures--
		return errors.New("no response")
	}
	s.synced = true
	return nil
}

func (s *fakeService) LocalTime() (time.Time, bool) { return s.now, s.synced }

type lines []string

func (l *lines) Broadcast(s string) { *l = append(*l, s) }

func newSync(link *fakeLink, svc *fakeService, opts Options) (*Synchronizer, *fakeClock, *lines) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	out := &lines{}
	if opts.SSID == "" {
		opts.SSID = "greenhouse"
	}
	if opts.Pool == "" {
		opts.Pool = "pool.ntp.org"
	}
	return New(link, svc, out, clk, zerolog.Nop(), opts), clk, out
}

func TestEnsureSynchronizedRetriesUntilValid(t *testing.T) {
	link := &fakeLink{upAfter: 3}
	svc := &fakeService{failures: 2, now: time.Date(2024, 6, 21, 6, 0, 0, 0, time.UTC)}
	s, clk, out := newSync(link, svc, Options{Zone: "UTC"})

	require.NoError(t, s.EnsureSynchronized(context.Background()))
	assert.Equal(t, 1, link.connects)
	assert.Equal(t, "greenhouse", link.ssid)
	assert.Equal(t, 3, svc.syncs)
	assert.Equal(t, "UTC", svc.zone)
	// Two failed link polls at 500 ms plus two sync retries at 1 s.
	assert.Equal(t, 3*time.Second, clk.slept)
	assert.Contains(t, *out, "WiFi connected.")
	assert.Contains(t, *out, "Time synchronized: 2024-06-21 06:00:00 UTC")

	for _, d := range svc.deadlines {
		assert.LessOrEqual(t, d, 10*time.Second)
	}
	now, ok := s.Now()
	assert.True(t, ok)
	assert.Equal(t, svc.now, now)
}

func TestEnsureSynchronizedBoundedNeverConnects(t *testing.T) {
	link := &fakeLink{upAfter: -1}
	s, clk, _ := newSync(link, &fakeService{}, Options{MaxLinkPolls: 20, PollInterval: time.Second})

	err := s.EnsureSynchronized(context.Background())
	assert.Equal(t, errcode.LinkTimeout, errcode.Of(err))
	assert.Equal(t, 20*time.Second, clk.slept)
}

func TestEnsureSynchronizedBoundedSync(t *testing.T) {
	svc := &fakeService{failures: 100}
	s, _, _ := newSync(&fakeLink{}, svc, Options{MaxSyncAttempts: 4})

	err := s.EnsureSynchronized(context.Background())
	assert.Equal(t, errcode.SyncTimeout, errcode.Of(err))
	assert.Equal(t, 4, svc.syncs)
}

func TestEnsureSynchronizedHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, _, _ := newSync(&fakeLink{upAfter: -1}, &fakeService{}, Options{})
	assert.ErrorIs(t, s.EnsureSynchronized(ctx), context.Canceled)
}

func TestBadZoneIsInvalidConfig(t *testing.T) {
	s, _, out := newSync(&fakeLink{}, &fakeService{}, Options{Zone: "bad"})
	err := s.EnsureSynchronized(context.Background())
	assert.Equal(t, errcode.InvalidConfig, errcode.Of(err))
	assert.Contains(t, *out, "Time configuration rejected: unknown zone")
}

func TestResynchronizeSingleAttempt(t *testing.T) {
	svc := &fakeService{failures: 1}
	s, clk, _ := newSync(&fakeLink{}, svc, Options{})

	assert.False(t, s.Resynchronize(context.Background()))
	assert.Equal(t, 1, svc.syncs)
	assert.Zero(t, clk.slept)

	assert.True(t, s.Resynchronize(context.Background()))
	assert.Equal(t, 2, svc.syncs)
}

func TestConnectLinkBounded(t *testing.T) {
	link := &fakeLink{upAfter: -1}
	s, clk, _ := newSync(link, &fakeService{}, Options{})
	assert.False(t, s.ConnectLink(context.Background(), 60*time.Second))
	assert.Equal(t, 60*time.Second, clk.slept)

	link = &fakeLink{upAfter: 4}
	s, clk, _ = newSync(link, &fakeService{}, Options{})
	assert.True(t, s.ConnectLink(context.Background(), 60*time.Second))
	assert.Equal(t, 1500*time.Millisecond, clk.slept)
}

func TestProgressThrottledOnClock(t *testing.T) {
	// 24 failed polls at 500 ms: 12 s of clock time.
	link := &fakeLink{upAfter: 25}
	s, clk, out := newSync(link, &fakeService{}, Options{})

	require.NoError(t, s.EnsureSynchronized(context.Background()))
	assert.Equal(t, 12*time.Second, clk.slept)

	waiting := 0
	for _, l := range *out {
		if l == "Waiting for WiFi..." {
			waiting++
		}
	}
	assert.Equal(t, 3, waiting, "about one line per 5 s of clock time")
}
