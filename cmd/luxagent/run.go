package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"luxmon-go/bus"
	"luxmon-go/services/agent"
	"luxmon-go/services/config"
	"luxmon-go/services/exposure"
	"luxmon-go/services/lightsensor"
	"luxmon-go/services/mirror"
	"luxmon-go/services/platform"
	"luxmon-go/services/telemetry"
	"luxmon-go/services/timesync"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent",
	Long:  `Bring up the sensor, synchronize time, and measure for one window. The process stays up after the summary so the session and metrics remain available.`,
	RunE:  runAgent,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath, profile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Str("device", cfg.Device.ID).
		Msg("Starting luxagent")

	res, err := platform.Open(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open platform: %w", err)
	}
	defer func() {
		if err := res.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to release platform resources")
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := bus.NewBus(32)

	if cfg.Metrics.Enabled {
		srv := startTelemetry(ctx, cfg, res, events, logger)
		defer func() {
			if err := srv.Stop(); err != nil {
				logger.Error().Err(err).Msg("Error stopping metrics server")
			}
		}()
	}
	go superviseSystemd(ctx, events.NewConnection("systemd"), logger)

	// The OS owns association on a host; name the interface instead.
	ssid := cfg.Network.SSID
	if ssid == "" {
		ssid = cfg.Network.Interface
	}

	m := mirror.New(res.Console, res.Listener, logger)
	sync := timesync.New(res.Link, res.Time, m, nil, logger, timesync.Options{
		SSID:         ssid,
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
		Events:        events.NewConnection("agent"),
		Log:           logger,
	})

	err = a.Run(ctx)
	logger.Info().Msg("Shutdown signal received, stopping")
	if nerr := platform.NotifyStopping(); nerr != nil {
		logger.Warn().Err(nerr).Msg("sd_notify")
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("luxagent stopped")
	return nil
}

func startTelemetry(ctx context.Context, cfg *config.Config, res *platform.Resources, events *bus.Bus, logger zerolog.Logger) *telemetry.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	coll := telemetry.NewCollector(cfg.Device.ID, telemetry.NewMetrics(reg), logger)
	go coll.Run(ctx, events.NewConnection("telemetry"))

	// A sync or reconnect can hold the loop for a while; allow for it.
	stale := 3*cfg.SamplePeriod() + cfg.ReconnectWait() + cfg.SyncTimeout()
	srv := telemetry.NewServer(cfg.Metrics.Listen, reg, coll, stale, logger)
	if res.Metrics != nil {
		srv.SetListener(res.Metrics)
	}
	if err := srv.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to start metrics server")
	}
	logger.Info().
		Str("run_id", coll.Snapshot().RunID).
		Str("addr", cfg.Metrics.Listen).
		Msg("Telemetry enabled")
	return srv
}

// superviseSystemd reports readiness once the window is open and pets the
// watchdog from loop ticks, so a wedged loop gets restarted.
func superviseSystemd(ctx context.Context, conn *bus.Connection, logger zerolog.Logger) {
	windows := conn.Subscribe(bus.TopicWindow)
	ticks := conn.Subscribe(bus.TopicTick)
	defer conn.Disconnect()

	interval := platform.WatchdogInterval() / 2
	if interval <= 0 {
		interval = time.Minute
	}
	pet := rate.Sometimes{Interval: interval}
	ready := false

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-windows.Channel():
			if !ok {
				return
			}
			if !ready {
				ready = true
				if err := platform.NotifyReady(); err != nil {
					logger.Warn().Err(err).Msg("sd_notify")
				}
			}
		case _, ok := <-ticks.Channel():
			if !ok {
				return
			}
			pet.Do(func() {
				if err := platform.NotifyWatchdog(); err != nil {
					logger.Warn().Err(err).Msg("sd_notify")
				}
			})
		}
	}
}
