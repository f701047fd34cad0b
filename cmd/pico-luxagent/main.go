//go:build rp2040 || rp2350

// Command pico-luxagent is the firmware entry point for a Pico W with a
// BH1750 on I2C0. Configuration comes from the embedded "pico" profile.
package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"luxmon-go/bus"
	"luxmon-go/services/agent"
	"luxmon-go/services/config"
	"luxmon-go/services/exposure"
	"luxmon-go/services/lightsensor"
	"luxmon-go/services/mirror"
	"luxmon-go/services/platform"
	"luxmon-go/services/timesync"
)

func halt(msg string) {
	println("[main]", msg)
	for {
		time.Sleep(time.Hour)
	}
}

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("[main] booting luxmon …")

	cfg, err := config.FromProfile("pico")
	if err != nil {
		halt("config: " + err.Error())
	}

	res, err := platform.Open(&cfg)
	if err != nil {
		halt("platform: " + err.Error())
	}

	b := bus.NewBus(4)
	mon := b.NewConnection("diag").Subscribe(bus.TopicLink)
	go func() {
		for m := range mon.Channel() {
			println("[diag] link/state", m.At.Format("15:04:05"))
		}
	}()

	m := mirror.New(res.Console, res.Listener, zerolog.Nop())
	sync := timesync.New(res.Link, res.Time, m, nil, zerolog.Nop(), timesync.Options{
		SSID:         cfg.Network.SSID,
		Password:     cfg.Network.Password,
		Zone:         cfg.Time.Zone,
		Pool:         cfg.Time.NTPPool,
		PollInterval: cfg.LinkPoll(),
		SyncTimeout:  cfg.SyncTimeout(),
	})

	a := agent.New(agent.Options{
		DeviceID:      cfg.Device.ID,
		Window:        cfg.WindowLength(),
		Period:        cfg.SamplePeriod(),
		ReconnectWait: cfg.ReconnectWait(),
		Classifier:    exposure.Classifier{
			Threshold: cfg.Sampling.DirectLux,
			Step:      cfg.SamplePeriod(),
			HighLux:   cfg.Sampling.HighLux,
		},
		Sensor:        lightsensor.New(res.I2C, uint16(cfg.Sensor.Address)),
		Time:          sync,
		Mirror:        m,
		Events:        b.NewConnection("agent"),
		Log:           zerolog.Nop(),
	})

	println("[main] starting agent …")
	if err := a.Run(context.Background()); err != nil {
		halt("agent: " + err.Error())
	}
	halt("agent returned")
}
