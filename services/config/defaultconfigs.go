package config

import "errors"

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device profile name. Val: JSON overlaid on Defaults(). MCU builds
// have no filesystem, so credentials and zone are compiled in here.
// -----------------------------------------------------------------------------

const cfgPico = `{
  "device":   { "id": "pico-lux-01" },
  "network":  { "ssid": "greenhouse", "password": "changeme" },
  "time":     { "zone": "UTC-05:00", "ntp_pool": "pool.ntp.org" },
  "sampling": { "period": "2s", "window": "12h", "direct_lux": 20000 },
  "sensor":   { "bus": "i2c0", "address": 35 },
  "session":  { "enabled": true, "listen": ":23" }
}`

const cfgHost = `{
  "device":   { "id": "host-lux-01" },
  "network":  { "interface": "wlan0" },
  "sensor":   { "bus": "/dev/i2c-1", "address": 35 },
  "session":  { "enabled": true, "listen": ":2323" },
  "metrics":  { "enabled": true, "listen": ":9090" }
}`

var embeddedConfigs = map[string][]byte{
	"pico": []byte(cfgPico),
	"host": []byte(cfgHost),
}

// EmbeddedConfigLookup allows overriding how profiles are resolved.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

// FromProfile overlays the named embedded profile on Defaults and validates
// the result.
func FromProfile(device string) (Config, error) {
	cfg := Defaults()
	if device == "" {
		return cfg, errors.New("missing device profile name")
	}
	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return cfg, errors.New("no embedded config for device: " + device)
	}
	if err := cfg.overlay(raw); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}
