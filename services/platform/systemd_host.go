//go:build !rp2040 && !rp2350

package platform

import (
	"fmt"
	"net"
	"time"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/coreos/go-systemd/v22/daemon"
)

// Socket names expected in the unit's FileDescriptorName= directives.
const (
	SocketTelnet  = "telnet"
	SocketMetrics = "metrics"
)

// ActivatedListeners returns the socket-activated listeners by name, or an
// empty map when not started by systemd.
func ActivatedListeners() (map[string]net.Listener, error) {
	if len(activation.Files(false)) == 0 {
		return map[string]net.Listener{}, nil
	}
	byName, err := activation.ListenersWithNames()
	if err != nil {
		return nil, fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	out := make(map[string]net.Listener, len(byName))
	for name, lns := range byName {
		if len(lns) > 0 && lns[0] != nil {
			out[name] = lns[0]
		}
	}
	return out, nil
}

// NotifyReady sends READY=1. Outside systemd it is a no-op.
func NotifyReady() error {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		return fmt.Errorf("failed to send sd_notify: %w", err)
	}
	return nil
}

// NotifyStopping sends STOPPING=1.
func NotifyStopping() error {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		return fmt.Errorf("failed to send sd_notify stopping: %w", err)
	}
	return nil
}

// NotifyWatchdog sends WATCHDOG=1.
func NotifyWatchdog() error {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
		return fmt.Errorf("failed to send sd_notify watchdog: %w", err)
	}
	return nil
}

// WatchdogInterval is the configured WatchdogSec, or zero when disabled.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return 0
	}
	return d
}
