//go:build !(rp2040 || rp2350)

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from an optional file and LUXMON_* environment
// variables on top of Defaults. A profile name, if set, is applied between
// the defaults and the file.
func Load(path, profile string) (*Config, error) {
	v := viper.New()

	base := Defaults()
	if profile != "" {
		raw, ok := EmbeddedConfigLookup(profile)
		if !ok {
			return nil, fmt.Errorf("unknown profile %q", profile)
		}
		if err := base.overlay(raw); err != nil {
			return nil, fmt.Errorf("failed to decode profile %q: %w", profile, err)
		}
	}
	setDefaults(v, base)

	v.SetEnvPrefix("LUXMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("device.id", d.Device.ID)

	v.SetDefault("network.ssid", d.Network.SSID)
	v.SetDefault("network.password", d.Network.Password)
	v.SetDefault("network.interface", d.Network.Interface)
	v.SetDefault("network.poll_interval", d.Network.PollInterval)
	v.SetDefault("network.reconnect_wait", d.Network.ReconnectWait)

	v.SetDefault("time.zone", d.Time.Zone)
	v.SetDefault("time.ntp_pool", d.Time.NTPPool)
	v.SetDefault("time.sync_timeout", d.Time.SyncTimeout)

	v.SetDefault("sampling.period", d.Sampling.Period)
	v.SetDefault("sampling.window", d.Sampling.Window)
	v.SetDefault("sampling.direct_lux", d.Sampling.DirectLux)
	v.SetDefault("sampling.high_lux", d.Sampling.HighLux)

	v.SetDefault("sensor.bus", d.Sensor.Bus)
	v.SetDefault("sensor.address", d.Sensor.Address)

	v.SetDefault("session.enabled", d.Session.Enabled)
	v.SetDefault("session.listen", d.Session.Listen)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.listen", d.Metrics.Listen)
}
