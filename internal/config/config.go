// Package config loads the YAML configuration file describing the server
// endpoint, admission credentials, and per-receiver startup parameters.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cwsl/ubersdr-ingest/internal/mode"
)

// Config is the top-level configuration document.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Admission AdmissionConfig  `yaml:"admission"`
	Receivers []ReceiverConfig `yaml:"receivers"`
	Ring      RingConfig       `yaml:"ring"`
	Debug     DebugConfig      `yaml:"debug"`
}

// ServerConfig is the UberSDR endpoint this instance ingests from.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	TLS  bool   `yaml:"tls"`
}

// AdmissionConfig carries the credentials sent on the /connection handshake.
type AdmissionConfig struct {
	Password string `yaml:"password,omitempty"`
}

// ReceiverConfig is one entry in the fixed startup receiver list (spec
// Non-goals: "dynamic addition of receivers beyond a fixed ceiling N at
// startup"; the receiver count and initial tuning come only from here).
type ReceiverConfig struct {
	Frequency     uint64 `yaml:"frequency"`
	Mode          string `yaml:"mode"`
	OffsetHz      int32  `yaml:"offset_hz,omitempty"`
	Format        string `yaml:"format,omitempty"`
	BandwidthLow  *int   `yaml:"bandwidth_low,omitempty"`
	BandwidthHigh *int   `yaml:"bandwidth_high,omitempty"`
}

// RingConfig overrides the default ring buffer sizing.
type RingConfig struct {
	SecondsCapacity float64 `yaml:"seconds_capacity,omitempty"`
}

// DebugConfig controls optional debug WAV capture (spec §12 supplement).
type DebugConfig struct {
	WAVDir string `yaml:"wav_dir,omitempty"`
}

// DefaultRingSeconds matches the spec's default ring capacity of 2 seconds.
const DefaultRingSeconds = 2.0

// Load reads and parses the YAML configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.Ring.SecondsCapacity <= 0 {
		cfg.Ring.SecondsCapacity = DefaultRingSeconds
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate enforces the spec invariant that every configured receiver
// shares one sample rate (spec §4.1: "starting a second receiver with a
// different rate is an error").
func (c *Config) validate() error {
	if c.Server.Host == "" {
		return fmt.Errorf("config: server.host is required")
	}
	if c.Server.Port == 0 {
		return fmt.Errorf("config: server.port is required")
	}

	var sharedRate int
	for i, rx := range c.Receivers {
		m := mode.Mode(rx.Mode)
		rate, ok := mode.SampleRate(m)
		if !ok {
			return fmt.Errorf("config: receiver %d has unknown mode %q", i, rx.Mode)
		}
		if sharedRate == 0 {
			sharedRate = rate
		} else if rate != sharedRate {
			return fmt.Errorf("config: receiver %d mode %q (%d Hz) does not match the shared rate %d Hz", i, rx.Mode, rate, sharedRate)
		}
	}
	return nil
}
