// Package config holds the agent's startup configuration. MCU builds take
// it from an embedded device profile; host builds load it with viper.
package config

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"luxmon-go/errcode"
	"luxmon-go/x/timex"
)

type Config struct {
	Device   DeviceConfig   `json:"device" mapstructure:"device"`
	Network  NetworkConfig  `json:"network" mapstructure:"network"`
	Time     TimeConfig     `json:"time" mapstructure:"time"`
	Sampling SamplingConfig `json:"sampling" mapstructure:"sampling"`
	Sensor   SensorConfig   `json:"sensor" mapstructure:"sensor"`
	Session  SessionConfig  `json:"session" mapstructure:"session"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
	Metrics  MetricsConfig  `json:"metrics" mapstructure:"metrics"`
}

// DeviceConfig identifies the unit in the completion summary.
type DeviceConfig struct {
	ID string `json:"id" mapstructure:"id"`
}

// NetworkConfig covers the station link.
type NetworkConfig struct {
	SSID          string `json:"ssid" mapstructure:"ssid"`
	Password      string `json:"password" mapstructure:"password"`
	Interface     string `json:"interface" mapstructure:"interface"` // host only
	PollInterval  string `json:"poll_interval" mapstructure:"poll_interval"`
	ReconnectWait string `json:"reconnect_wait" mapstructure:"reconnect_wait"`
}

type TimeConfig struct {
	Zone        string `json:"zone" mapstructure:"zone"`
	NTPPool     string `json:"ntp_pool" mapstructure:"ntp_pool"`
	SyncTimeout string `json:"sync_timeout" mapstructure:"sync_timeout"`
}

type SamplingConfig struct {
	Period    string  `json:"period" mapstructure:"period"`
	Window    string  `json:"window" mapstructure:"window"`
	DirectLux float64 `json:"direct_lux" mapstructure:"direct_lux"`
	HighLux   float64 `json:"high_lux" mapstructure:"high_lux"` // "High lux!" notice; 0 disables
}

type SensorConfig struct {
	Bus     string `json:"bus" mapstructure:"bus"` // "i2c0" on MCU, "/dev/i2c-1" on host
	Address int    `json:"address" mapstructure:"address"`
}

type SessionConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Listen  string `json:"listen" mapstructure:"listen"`
}

type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Listen  string `json:"listen" mapstructure:"listen"`
}

// Defaults returns the reference configuration.
func Defaults() Config {
	return Config{
		Device: DeviceConfig{ID: "luxmon"},
		Network: NetworkConfig{
			Interface:     "wlan0",
			PollInterval:  "500ms",
			ReconnectWait: "60s",
		},
		Time: TimeConfig{
			Zone:        "UTC",
			NTPPool:     "pool.ntp.org",
			SyncTimeout: "10s",
		},
		Sampling: SamplingConfig{
			Period:    "2s",
			Window:    "12h",
			DirectLux: 20000.0,
			HighLux:   1000.0,
		},
		Sensor:  SensorConfig{Bus: "i2c0", Address: 0x23},
		Session: SessionConfig{Enabled: true, Listen: ":23"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Enabled: false, Listen: ":9090"},
	}
}

// Durations parsed from the string fields, with fallbacks to the defaults.
func (c *Config) SamplePeriod() time.Duration  { return parseDuration(c.Sampling.Period, 2*time.Second) }
func (c *Config) WindowLength() time.Duration  { return parseDuration(c.Sampling.Window, 12*time.Hour) }
func (c *Config) LinkPoll() time.Duration      { return parseDuration(c.Network.PollInterval, 500*time.Millisecond) }
func (c *Config) ReconnectWait() time.Duration { return parseDuration(c.Network.ReconnectWait, 60*time.Second) }
func (c *Config) SyncTimeout() time.Duration   { return parseDuration(c.Time.SyncTimeout, 10*time.Second) }

// Validate checks the fields the agent cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Device.ID) == "" {
		errs = append(errs, errors.New("device.id is required"))
	}
	if c.Time.NTPPool == "" {
		errs = append(errs, errors.New("time.ntp_pool is required"))
	}
	if _, err := timex.ParseZone(c.Time.Zone); err != nil {
		errs = append(errs, errors.New("time.zone: "+err.Error()))
	}
	for name, s := range map[string]string{
		"sampling.period":        c.Sampling.Period,
		"sampling.window":        c.Sampling.Window,
		"network.poll_interval":  c.Network.PollInterval,
		"network.reconnect_wait": c.Network.ReconnectWait,
		"time.sync_timeout":      c.Time.SyncTimeout,
	} {
		if d, err := time.ParseDuration(s); err != nil || d <= 0 {
			errs = append(errs, errors.New(name+": invalid duration "+`"`+s+`"`))
		}
	}
	if c.Sampling.DirectLux <= 0 {
		errs = append(errs, errors.New("sampling.direct_lux must be positive"))
	}
	if c.Sampling.HighLux < 0 {
		errs = append(errs, errors.New("sampling.high_lux must not be negative"))
	}
	if c.Sensor.Address < 0 || c.Sensor.Address > 0x7F {
		errs = append(errs, errors.New("sensor.address out of 7-bit range"))
	}
	if c.Session.Enabled && c.Session.Listen == "" {
		errs = append(errs, errors.New("session.listen is required when session is enabled"))
	}
	if len(errs) == 0 {
		return nil
	}
	return &errcode.E{C: errcode.InvalidConfig, Op: "config.validate", Err: errors.Join(errs...)}
}

// overlay decodes a JSON document on top of c; absent keys keep their value.
func (c *Config) overlay(raw []byte) error {
	return json.Unmarshal(raw, c)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
