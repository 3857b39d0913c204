// Package config loads the sink's flat .env-style configuration file,
// generalizing the teacher's key=value loader from Google/Cloudflare
// credentials to the WFD sink's network and tuning parameters.
package config

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Config holds every tunable the sink reads at startup.
type Config struct {
	ListenAddr             string // UDP RTP bind address, e.g. ":19000"
	RTSPConnectTimeoutMS   int
	KeepAliveTimeoutS      int // loaded but not read: session.Session takes the keep-alive timeout from the SETUP response
	DispatcherCapacity     int
	DispatcherCapacityStep int
	AVSyncThresholdDropMS  int
	AVSyncThresholdWaitMS  int
	LogLevel               string
	LogFormat              string
	DiagnosticsEnabled     bool
	DiagnosticsListenAddr  string
}

// Defaults returns the built-in configuration used when no .env file
// is present or a field is left blank.
func Defaults() *Config {
	return &Config{
		ListenAddr:             ":19000",
		RTSPConnectTimeoutMS:   10_000,
		KeepAliveTimeoutS:      60,
		DispatcherCapacity:     500,
		DispatcherCapacityStep: 64,
		AVSyncThresholdDropMS:  40,
		AVSyncThresholdWaitMS:  40,
		LogLevel:               "info",
		LogFormat:              "text",
		DiagnosticsEnabled:     false,
		DiagnosticsListenAddr:  ":8099",
	}
}

// Load reads configuration from a .env-style file, overlaying onto
// Defaults(). A missing file is not an error: the sink falls back to
// built-in defaults, since the configuration store is an external
// collaborator and not every deployment will supply one.
func Load(envPath string) (*Config, error) {
	cfg := Defaults()

	file, err := os.Open(envPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: open env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		decoded, err := url.QueryUnescape(value)
		if err != nil {
			decoded = value
		}

		if err := cfg.apply(key, decoded); err != nil {
			return nil, fmt.Errorf("config: %s: %w", key, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: scan env file: %w", err)
	}

	return cfg, nil
}

func (c *Config) apply(key, value string) error {
	switch key {
	case "listen_addr":
		c.ListenAddr = value
	case "rtsp_connect_timeout_ms":
		return setInt(&c.RTSPConnectTimeoutMS, value)
	case "keepalive_timeout_s":
		return setInt(&c.KeepAliveTimeoutS, value)
	case "dispatcher_capacity":
		return setInt(&c.DispatcherCapacity, value)
	case "dispatcher_capacity_increment":
		return setInt(&c.DispatcherCapacityStep, value)
	case "av_sync_threshold_drop_ms":
		return setInt(&c.AVSyncThresholdDropMS, value)
	case "av_sync_threshold_wait_ms":
		return setInt(&c.AVSyncThresholdWaitMS, value)
	case "log_level":
		c.LogLevel = value
	case "log_format":
		c.LogFormat = value
	case "diagnostics_enabled":
		c.DiagnosticsEnabled = value == "true" || value == "1"
	case "diagnostics_listen_addr":
		c.DiagnosticsListenAddr = value
	}
	return nil
}

func setInt(dst *int, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("expected integer, got %q", value)
	}
	*dst = n
	return nil
}
