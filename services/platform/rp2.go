//go:build rp2040 || rp2350

package platform

import (
	"machine"
	"sync/atomic"
	"time"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
	"tinygo.org/x/drivers/netlink"
	"tinygo.org/x/drivers/netlink/probe"

	"luxmon-go/services/config"
	"luxmon-go/services/mirror"
)

// ConsoleBaud matches the serial monitor the device has always used.
const ConsoleBaud = 9600

// Open configures the board: I²C at 100 kHz on default pins, UART0 console,
// the radio via netlink probe, SNTP and a TCP session listener.
func Open(cfg *config.Config) (*Resources, error) {
	res := &Resources{}

	i2c := machine.I2C0
	sda, scl := machine.I2C0_SDA_PIN, machine.I2C0_SCL_PIN
	if cfg.Sensor.Bus == "i2c1" {
		i2c = machine.I2C1
		sda, scl = machine.I2C1_SDA_PIN, machine.I2C1_SCL_PIN
	}
	if err := i2c.Configure(machine.I2CConfig{
		Frequency: 100 * machine.KHz,
		SDA:       sda,
		SCL:       scl,
	}); err != nil {
		return nil, err
	}
	res.I2C = i2c

	_ = uartx.UART0.Configure(uartx.UARTConfig{
		BaudRate: ConsoleBaud,
		TX:       machine.UART0_TX_PIN,
		RX:       machine.UART0_RX_PIN,
	})
	res.Console = mirror.NewWriterConsole(uartx.UART0)

	nl, _ := probe.Probe()
	link := &radioLink{nl: nl}
	nl.NetNotify(link.event)
	res.Link = link
	res.Time = NewSNTPService()

	if cfg.Session.Enabled {
		tl, err := mirror.Listen(cfg.Session.Listen)
		if err != nil {
			println("[platform] session listener:", err.Error())
		} else {
			res.Listener = tl
			res.onClose(tl.Close)
		}
	}
	return res, nil
}

// radioLink tracks link state from netlink events.
type radioLink struct {
	nl netlink.Netlinker
	up atomic.Bool
}

func (l *radioLink) event(e netlink.Event) {
	switch e {
	case netlink.EventNetUp:
		l.up.Store(true)
	case netlink.EventNetDown:
		l.up.Store(false)
	}
}

func (l *radioLink) Connect(ssid, password string) error {
	err := l.nl.NetConnect(&netlink.ConnectParams{
		Ssid:           ssid,
		Passphrase:     password,
		ConnectTimeout: 10 * time.Second,
	})
	if err == nil {
		l.up.Store(true)
	}
	return err
}

func (l *radioLink) Connected() bool { return l.up.Load() }
