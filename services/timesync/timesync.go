// Package timesync brings the network link up and keeps the wall clock
// synchronized. Initial synchronization retries until it succeeds;
// resynchronization after a reconnect is a single bounded attempt.
package timesync

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"luxmon-go/errcode"
	"luxmon-go/x/timex"
)

// Link is the network stack's station interface.
type Link interface {
	// Connect requests association. It may return before the link is up.
	Connect(ssid, password string) error
	Connected() bool
}

// Service is the wall-clock/time-sync collaborator.
type Service interface {
	Configure(tz, pool string) error
	// Sync fetches network time; ctx carries the per-attempt deadline.
	Sync(ctx context.Context) error
	// LocalTime succeeds only once a sync has succeeded.
	LocalTime() (time.Time, bool)
}

// Announcer receives the user-visible progress lines.
type Announcer interface {
	Broadcast(line string)
}

type Options struct {
	SSID     string
	Password string
	Zone     string
	Pool     string

	// PollInterval between link status checks. Default 500 ms.
	PollInterval time.Duration
	// SyncTimeout bounds each time fetch. Default 10 s.
	SyncTimeout time.Duration
	// SyncRetryDelay separates failed initial fetches. Default 1 s.
	SyncRetryDelay time.Duration

	// MaxLinkPolls and MaxSyncAttempts bound the initial loops; zero
	// retries forever.
	MaxLinkPolls    int
	MaxSyncAttempts int

	// ProgressEvery throttles "still waiting" lines. Default 5 s.
	ProgressEvery time.Duration
}

type Synchronizer struct {
	link  Link
	svc   Service
	out   Announcer
	clock timex.Clock
	log   zerolog.Logger
	opts  Options

	configured bool
	progress   *rate.Limiter
}

// New builds a Synchronizer. A nil clock means the system clock.
func New(link Link, svc Service, out Announcer, clock timex.Clock, log zerolog.Logger, opts Options) *Synchronizer {
	if clock == nil {
		clock = timex.System()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = 10 * time.Second
	}
	if opts.SyncRetryDelay <= 0 {
		opts.SyncRetryDelay = time.Second
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = 5 * time.Second
	}
	return &Synchronizer{
		link:     link,
		svc:      svc,
		out:      out,
		clock:    clock,
		log:      log.With().Str("component", "timesync").Logger(),
		opts:     opts,
		progress: rate.NewLimiter(rate.Every(opts.ProgressEvery), 1),
	}
}

// LinkUp reports the link status as seen by the network stack.
func (s *Synchronizer) LinkUp() bool { return s.link.Connected() }

// EnsureSynchronized brings the link up, configures zone and time source,
// and fetches time until it is valid. With zero bounds it only returns once
// time is valid or ctx is cancelled.
func (s *Synchronizer) EnsureSynchronized(ctx context.Context) error {
	s.out.Broadcast("Connecting to WiFi " + s.opts.SSID + "...")
	if !s.waitLink(ctx, s.opts.MaxLinkPolls) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return errcode.LinkTimeout
	}
	s.out.Broadcast("WiFi connected.")

	if err := s.configure(); err != nil {
		return err
	}

	s.out.Broadcast("Synchronizing time with " + s.opts.Pool + "...")
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.fetch(ctx) {
			s.out.Broadcast("Time synchronized: " + s.stamp())
			return nil
		}
		s.log.Debug().Int("attempt", attempt).Msg("time sync attempt failed")
		if s.opts.MaxSyncAttempts > 0 && attempt >= s.opts.MaxSyncAttempts {
			return errcode.SyncTimeout
		}
		s.note("Waiting for time sync...")
		s.clock.Sleep(s.opts.SyncRetryDelay)
	}
}

// ConnectLink retries the link for at most maxWait (zero waits forever).
func (s *Synchronizer) ConnectLink(ctx context.Context, maxWait time.Duration) bool {
	polls := 0
	if maxWait > 0 {
		polls = int(maxWait / s.opts.PollInterval)
		if polls < 1 {
			polls = 1
		}
	}
	return s.waitLink(ctx, polls)
}

// Resynchronize makes one bounded time fetch. Failure leaves the previous
// clock in place.
func (s *Synchronizer) Resynchronize(ctx context.Context) bool {
	if err := s.configure(); err != nil {
		return false
	}
	ok := s.fetch(ctx)
	s.log.Debug().Bool("ok", ok).Msg("resynchronize")
	return ok
}

// Now returns the current local time, or false when the clock has not
// produced a valid reading.
func (s *Synchronizer) Now() (time.Time, bool) { return s.svc.LocalTime() }

// waitLink requests association and polls status at a fixed interval.
// maxPolls <= 0 polls until connected or ctx ends.
func (s *Synchronizer) waitLink(ctx context.Context, maxPolls int) bool {
	if s.link.Connected() {
		return true
	}
	if err := s.link.Connect(s.opts.SSID, s.opts.Password); err != nil {
		s.log.Debug().Err(err).Msg("link connect request failed")
	}
	for polls := 0; maxPolls <= 0 || polls < maxPolls; polls++ {
		if s.link.Connected() {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		s.note("Waiting for WiFi...")
		s.clock.Sleep(s.opts.PollInterval)
	}
	return s.link.Connected()
}

// note broadcasts a progress line at most once per ProgressEvery of clock
// time.
func (s *Synchronizer) note(line string) {
	if s.progress.AllowN(s.clock.Now(), 1) {
		s.out.Broadcast(line)
	}
}

func (s *Synchronizer) configure() error {
	if s.configured {
		return nil
	}
	if err := s.svc.Configure(s.opts.Zone, s.opts.Pool); err != nil {
		s.out.Broadcast("Time configuration rejected: " + err.Error())
		return errcode.Wrap(errcode.InvalidConfig, "timesync.configure", err)
	}
	s.configured = true
	return nil
}

func (s *Synchronizer) fetch(ctx context.Context) bool {
	tctx, cancel := context.WithTimeout(ctx, s.opts.SyncTimeout)
	defer cancel()
	if err := s.svc.Sync(tctx); err != nil {
		s.log.Debug().Err(err).Msg("time fetch failed")
		return false
	}
	_, ok := s.svc.LocalTime()
	return ok
}

func (s *Synchronizer) stamp() string {
	now, ok := s.svc.LocalTime()
	if !ok {
		return "?"
	}
	return now.Format("2006-01-02 15:04:05 MST")
}
