//go:build !rp2040 && !rp2350

package platform

import (
	"context"
	"errors"
	"time"

	"github.com/beevik/ntp"

	"luxmon-go/errcode"
)

// NTPService measures the clock offset against an NTP pool. The host clock
// itself is left alone; the OS usually runs its own daemon.
type NTPService struct {
	offsetClock
	pool string

	// query returns the validated clock offset. Tests replace it.
	query func(host string, timeout time.Duration) (time.Duration, error)
}

func NewNTPService() *NTPService {
	return &NTPService{query: queryNTP}
}

func queryNTP(host string, timeout time.Duration) (time.Duration, error) {
	resp, err := ntp.QueryWithOptions(host, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return 0, err
	}
	if err := resp.Validate(); err != nil {
		return 0, err
	}
	return resp.ClockOffset, nil
}

func (s *NTPService) Configure(tz, pool string) error {
	if pool == "" {
		return errors.New("empty time pool")
	}
	if err := s.setZone(tz); err != nil {
		return err
	}
	s.pool = pool
	return nil
}

func (s *NTPService) Sync(ctx context.Context) error {
	timeout := 5 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}
	off, err := s.query(s.pool, timeout)
	if err != nil {
		return errcode.Wrap(errcode.SyncTimeout, "ntp.query", err)
	}
	s.setOffset(off)
	return nil
}
