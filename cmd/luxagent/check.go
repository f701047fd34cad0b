package main

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"luxmon-go/services/config"
	"luxmon-go/services/lightsensor"
	"luxmon-go/services/platform"
	"luxmon-go/x/timex"
)

var checkNTP bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration and probe the hardware",
	Long:  `Load the configuration, read one sample from the light sensor, and report the link state. With --ntp, also query the configured time pool.`,
	Example: `  luxagent -c /etc/luxmon/config.yaml check
  luxagent --profile host check --ntp`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkNTP, "ntp", false, "Query the NTP pool")
	rootCmd.AddCommand(checkCmd)
}

type checkResult struct {
	name   string
	ok     bool
	detail string
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath, profile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	results := []checkResult{{name: "config", ok: true, detail: "device " + cfg.Device.ID}}
	results = append(results, checkZone(cfg))
	results = append(results, checkSensor(cfg))
	results = append(results, checkLink(cfg))
	if checkNTP {
		results = append(results, checkTime(cmd.Context(), cfg))
	}

	if failed := report(cmd.OutOrStdout(), results); failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}

func checkZone(cfg *config.Config) checkResult {
	loc, err := timex.ParseZone(cfg.Time.Zone)
	if err != nil {
		return checkResult{name: "zone", detail: err.Error()}
	}
	return checkResult{name: "zone", ok: true, detail: loc.String()}
}

func checkSensor(cfg *config.Config) checkResult {
	path := platform.I2CPath(cfg.Sensor.Bus)
	bus, err := platform.OpenI2C(path)
	if err != nil {
		return checkResult{name: "sensor", detail: err.Error()}
	}
	defer bus.Close()

	s := lightsensor.New(bus, uint16(cfg.Sensor.Address))
	if !s.Initialize() {
		return checkResult{name: "sensor", detail: fmt.Sprintf("no BH1750 at 0x%02x on %s", cfg.Sensor.Address, path)}
	}
	lux, err := s.ReadLux()
	if err != nil {
		return checkResult{name: "sensor", detail: err.Error()}
	}
	return checkResult{name: "sensor", ok: true, detail: fmt.Sprintf("%.2f lux", lux)}
}

func checkLink(cfg *config.Config) checkResult {
	if platform.NewIfaceLink(cfg.Network.Interface).Connected() {
		return checkResult{name: "link", ok: true, detail: cfg.Network.Interface + " up"}
	}
	return checkResult{name: "link", detail: cfg.Network.Interface + " has no global address"}
}

func checkTime(ctx context.Context, cfg *config.Config) checkResult {
	svc := platform.NewNTPService()
	if err := svc.Configure(cfg.Time.Zone, cfg.Time.NTPPool); err != nil {
		return checkResult{name: "ntp", detail: err.Error()}
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.SyncTimeout())
	defer cancel()
	if err := svc.Sync(ctx); err != nil {
		return checkResult{name: "ntp", detail: err.Error()}
	}
	now, _ := svc.LocalTime()
	return checkResult{name: "ntp", ok: true, detail: now.Format("2006-01-02 15:04:05 MST")}
}

// report prints one line per check and returns the number of failures.
func report(w io.Writer, results []checkResult) int {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	failed := 0
	for _, r := range results {
		status := green.Sprint("PASS")
		if !r.ok {
			status = red.Sprint("FAIL")
			failed++
		}
		fmt.Fprintf(w, "%s %-7s %s\n", status, cyan.Sprint(r.name), r.detail)
	}
	return failed
}
