// Package platform opens the hardware and network collaborators the agent
// needs. Build tags select the host (Linux) or RP2 implementation of Open.
package platform

import (
	"errors"
	"net"
	"sync"
	"time"

	"tinygo.org/x/drivers"

	"luxmon-go/services/mirror"
	"luxmon-go/services/timesync"
	"luxmon-go/x/timex"
)

// Resources is everything Open produced. Close releases it.
type Resources struct {
	I2C      drivers.I2C
	Link     timesync.Link
	Time     timesync.Service
	Console  mirror.Console
	Listener mirror.Listener // nil when sessions are disabled

	// Metrics is a pre-bound listener for the HTTP server, if the service
	// manager handed us one.
	Metrics net.Listener

	closers []func() error
}

func (r *Resources) onClose(fn func() error) { r.closers = append(r.closers, fn) }

func (r *Resources) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// offsetClock is local time as the system clock plus the last measured
// network offset, presented in the configured zone.
type offsetClock struct {
	mu     sync.Mutex
	now    func() time.Time
	loc    *time.Location
	offset time.Duration
	synced bool
}

func (c *offsetClock) setZone(tz string) error {
	loc, err := timex.ParseZone(tz)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.loc = loc
	c.mu.Unlock()
	return nil
}

func (c *offsetClock) setOffset(d time.Duration) {
	c.mu.Lock()
	c.offset = d
	c.synced = true
	c.mu.Unlock()
}

// LocalTime is absent until the first successful sync.
func (c *offsetClock) LocalTime() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.synced {
		return time.Time{}, false
	}
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	loc := c.loc
	if loc == nil {
		loc = time.UTC
	}
	return now().Add(c.offset).In(loc), true
}
