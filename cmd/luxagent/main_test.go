package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"luxmon-go/services/config"
)

func TestNewLoggerLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	l.Info().Msg("hidden")
	l.Warn().Msg("shown")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"message":"shown"`)
	assert.Equal(t, zerolog.WarnLevel, l.GetLevel())

	buf.Reset()
	l = newLogger(config.LoggingConfig{Level: "bogus", Format: "text"}, &buf)
	assert.Equal(t, zerolog.InfoLevel, l.GetLevel())
	l.Info().Msg("console")
	assert.False(t, strings.HasPrefix(buf.String(), "{"))
}

func TestReportCountsFailures(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	n := report(&buf, []checkResult{
		{name: "config", ok: true, detail: "device lux-01"},
		{name: "sensor", detail: "no BH1750 at 0x23 on /dev/i2c-1"},
	})
	assert.Equal(t, 1, n)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, "PASS config  device lux-01", lines[0])
	assert.Equal(t, "FAIL sensor  no BH1750 at 0x23 on /dev/i2c-1", lines[1])
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)
	assert.Equal(t, "luxagent version dev\n", buf.String())
}
