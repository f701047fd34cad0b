//go:build !rp2040 && !rp2350

package platform

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"luxmon-go/services/config"
	"luxmon-go/services/mirror"
)

// I2CPath maps a bus name such as "i2c1" to its device node. Paths pass
// through unchanged.
func I2CPath(bus string) string {
	if strings.HasPrefix(bus, "/") {
		return bus
	}
	if n, ok := strings.CutPrefix(bus, "i2c"); ok && n != "" {
		return "/dev/i2c-" + n
	}
	return bus
}

// Open prepares host resources from cfg. The diagnostic console is the
// logger.
func Open(cfg *config.Config, log zerolog.Logger) (*Resources, error) {
	res := &Resources{
		Link:    NewIfaceLink(cfg.Network.Interface),
		Time:    NewNTPService(),
		Console: mirror.NewLogConsole(log),
	}

	path := I2CPath(cfg.Sensor.Bus)
	bus, err := OpenI2C(path)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %s: %w", path, err)
	}
	res.I2C = bus
	res.onClose(bus.Close)

	activated, err := ActivatedListeners()
	if err != nil {
		_ = res.Close()
		return nil, err
	}
	if ln, ok := activated[SocketMetrics]; ok {
		res.Metrics = ln
		res.onClose(ln.Close)
	}

	if cfg.Session.Enabled {
		var tl *mirror.TCPListener
		if ln, ok := activated[SocketTelnet]; ok {
			log.Debug().Msg("using systemd socket-activated telnet listener")
			tl = mirror.NewTCPListener(ln)
		} else if tl, err = mirror.Listen(cfg.Session.Listen); err != nil {
			_ = res.Close()
			return nil, fmt.Errorf("listen %s: %w", cfg.Session.Listen, err)
		}
		res.Listener = tl
		res.onClose(tl.Close)
	}
	return res, nil
}
