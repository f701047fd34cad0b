package timex

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// Clock is the time source used by every blocking wait in the agent.
// Tests substitute a fake so that hours of waiting cost nothing.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// System returns the wall clock backed by the runtime.
func System() Clock { return systemClock{} }

// HMS formats t as HH:MM:SS in its own location.
func HMS(t time.Time) string { return t.Format("15:04:05") }

// SplitHMS decomposes d into whole hours, minutes and seconds.
// Negative durations are treated as zero.
func SplitHMS(d time.Duration) (h, m, s int) {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return total / 3600, (total % 3600) / 60, total % 60
}

var errBadZone = errors.New("timex: bad zone")

// ParseZone resolves a zone descriptor. Accepted forms are "UTC", a fixed
// offset such as "UTC+2" or "UTC-05:30", or an IANA name ("Europe/London").
func ParseZone(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" || tz == "UTC" || tz == "Z" {
		return time.UTC, nil
	}
	if strings.HasPrefix(tz, "UTC") && len(tz) > 3 {
		off, err := parseOffset(tz[3:])
		if err != nil {
			return nil, err
		}
		return time.FixedZone(tz, off), nil
	}
	return time.LoadLocation(tz)
}

// parseOffset reads "+H", "-HH", "+HH:MM" into seconds east of UTC.
func parseOffset(s string) (int, error) {
	if len(s) < 2 || (s[0] != '+' && s[0] != '-') {
		return 0, errBadZone
	}
	sign := 1
	if s[0] == '-' {
		sign = -1
	}
	hh, mm, _ := strings.Cut(s[1:], ":")
	h, err := strconv.Atoi(hh)
	if err != nil || h > 14 {
		return 0, errBadZone
	}
	m := 0
	if mm != "" {
		if m, err = strconv.Atoi(mm); err != nil || m > 59 {
			return 0, errBadZone
		}
	}
	return sign * (h*3600 + m*60), nil
}
