package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/celltrace/celltrace-go/pkg/bus"
)

// Config holds the monitor configuration. Fields map 1:1 to the YAML
// config file; command-line flags override file values.
type Config struct {
	// Port is the serial device of the slcan adapter.
	Port string `yaml:"port"`

	// Bitrate is the CAN bitrate name ("500k", "250k", ...).
	Bitrate string `yaml:"bitrate"`

	// Channel overrides the channel name shown in captures.
	Channel string `yaml:"channel"`

	// Demo replaces the hardware bus with a synthetic pack simulation.
	Demo bool `yaml:"demo"`

	// Replay plays back a capture file (or candump text log) instead of
	// reading a live bus.
	Replay string `yaml:"replay"`

	// ReplaySpeed scales playback: 2 plays twice as fast; 0 disables
	// pacing entirely (default 1).
	ReplaySpeed float64 `yaml:"replay_speed"`

	// Record writes a capture file for the session.
	Record bool `yaml:"record"`

	// CaptureDir is the directory for capture files and the session
	// index (default "captures").
	CaptureDir string `yaml:"capture_dir"`

	// Description is stored with the recording session.
	Description string `yaml:"description"`

	// LogDecoded additionally records a decoded event per matched frame.
	LogDecoded bool `yaml:"log_decoded"`

	// RefreshMs is the dashboard redraw interval in milliseconds
	// (default 500).
	RefreshMs int `yaml:"refresh_ms"`

	// Signals lists signal names to keep history for. Empty tracks
	// every decoded signal.
	Signals []string `yaml:"signals"`

	// SeriesDepth is the number of samples kept per signal (default 600).
	SeriesDepth int `yaml:"series_depth"`

	// BridgeListen enables the TCP bridge on the given address
	// (e.g. ":7788"). Empty disables the bridge.
	BridgeListen string `yaml:"bridge_listen"`

	// BridgePassphrase is the shared secret bridge clients must prove.
	BridgePassphrase string `yaml:"bridge_passphrase"`

	// BridgeAdvertise announces the bridge via mDNS.
	BridgeAdvertise bool `yaml:"bridge_advertise"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Bitrate:     "500k",
		ReplaySpeed: 1,
		CaptureDir:  "captures",
		RefreshMs:   500,
		SeriesDepth: 600,
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("parse config: %w", err)
	}
	return config, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if !c.Demo && c.Replay == "" && c.Port == "" {
		return fmt.Errorf("port is required unless demo or replay mode is used")
	}
	if c.Demo && c.Replay != "" {
		return fmt.Errorf("demo and replay are mutually exclusive")
	}
	if _, err := bus.ParseBitrate(c.Bitrate); err != nil {
		return err
	}
	if c.RefreshMs <= 0 {
		return fmt.Errorf("refresh_ms must be positive, got %d", c.RefreshMs)
	}
	if c.SeriesDepth <= 0 {
		return fmt.Errorf("series_depth must be positive, got %d", c.SeriesDepth)
	}
	return nil
}

// Refresh returns the dashboard redraw interval.
func (c *Config) Refresh() time.Duration {
	return time.Duration(c.RefreshMs) * time.Millisecond
}
