package main

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netsniff/internal/config"
	"netsniff/internal/filter"
	"netsniff/internal/refdata"
)

func TestFlagsOverrideConfig(t *testing.T) {
	opts, set, err := parseFlags([]string{
		"-i", "wlan0",
		"-p", "udp",
		"-source", "192.168.1.10",
		"-port", "53",
		"-interval", "5s",
		"-api", "127.0.0.1:9090",
		"-nats", "nats://broker:4222",
		"-detailed",
		"-quiet",
	}, io.Discard)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Filter.DstIP = "10.0.0.1"
	opts.apply(cfg, set)

	assert.Equal(t, "wlan0", cfg.Capture.Interface)
	assert.Equal(t, "udp", cfg.Filter.Protocol)
	assert.Equal(t, "192.168.1.10", cfg.Filter.SrcIP)
	assert.Equal(t, "10.0.0.1", cfg.Filter.DstIP, "unset flags keep config values")
	assert.Equal(t, "53", cfg.Filter.Port)
	assert.Equal(t, 5*time.Second, cfg.Classification.Interval.Duration)
	assert.True(t, cfg.API.Enabled)
	assert.Equal(t, "127.0.0.1:9090", cfg.API.Listen)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.True(t, cfg.Report.Detailed)
	assert.False(t, cfg.Capture.Echo)
	require.NoError(t, cfg.Validate())
}

func TestFlagsRepairEnvironmentBeforeValidate(t *testing.T) {
	t.Setenv(config.EnvLogLevel, "verbose")

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	opts, set, err := parseFlags([]string{"-log-level", "debug"}, io.Discard)
	require.NoError(t, err)
	opts.apply(cfg, set)

	assert.Equal(t, "debug", cfg.Log.Level)
	require.NoError(t, cfg.Validate())
}

func TestUnsetFlagsLeaveDefaults(t *testing.T) {
	opts, set, err := parseFlags(nil, io.Discard)
	require.NoError(t, err)

	cfg := config.Default()
	opts.apply(cfg, set)
	assert.Equal(t, config.Default(), cfg)
}

func TestTUIDisablesEcho(t *testing.T) {
	opts, set, err := parseFlags([]string{"-tui"}, io.Discard)
	require.NoError(t, err)

	cfg := config.Default()
	opts.apply(cfg, set)
	assert.False(t, cfg.Capture.Echo)
}

func TestParseFlagsRejectsArguments(t *testing.T) {
	_, _, err := parseFlags([]string{"eth0"}, io.Discard)
	assert.Error(t, err)

	_, _, err = parseFlags([]string{"-nope"}, io.Discard)
	assert.Error(t, err)
}

func TestOpenRefData(t *testing.T) {
	ctx := t.Context()

	store, closeStore := openRefData(ctx, config.RefDataConfig{}, zerolog.Nop())
	defer closeStore()
	_, ok := store.(*refdata.MemoryStore)
	assert.True(t, ok, "empty path uses built-in data")

	path := filepath.Join(t.TempDir(), "ref.db")
	db, closeDB := openRefData(ctx, config.RefDataConfig{Path: path, Seed: true}, zerolog.Nop())
	defer closeDB()
	_, ok = db.(*refdata.SQLiteStore)
	require.True(t, ok)

	svc, err := db.PortService(ctx, 5353)
	require.NoError(t, err)
	require.NotNil(t, svc)
	assert.Equal(t, "mDNS", svc.Service)
}

func TestPrintBanner(t *testing.T) {
	spec, err := filter.Parse("TCP", "", "", "443")
	require.NoError(t, err)

	var buf bytes.Buffer
	printBanner(&buf, "eth0", spec)
	assert.Contains(t, buf.String(), "Monitoring on: eth0")
	assert.Contains(t, buf.String(), "Active Filters: Protocol: TCP, Port: 443")

	buf.Reset()
	printBanner(&buf, "eth0", filter.Spec{})
	assert.NotContains(t, buf.String(), "Active Filters")
}
