// Package config loads the optional YAML configuration file, the same
// shape as coordinator/cfg.go's Config/DefaultConfig/LoadConfig.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration record. CLI flags in
// cmd/aesdsocket override whatever a loaded file sets, the same layering
// several of the corpus's cmd/ packages use.
type Config struct {
	// Listen is the TCP listen configuration.
	Listen ListenConfig `yaml:"listen"`
	// Backend selects "ring" or "file".
	Backend BackendConfig `yaml:"backend"`
	// Assembler tunes the per-connection packet assembler.
	Assembler AssemblerConfig `yaml:"assembler"`
}

// ListenConfig contains the acceptor's network settings.
type ListenConfig struct {
	// Port is the TCP port to listen on.
	Port int `yaml:"port"`
	// Backlog is the listen backlog size.
	Backlog int `yaml:"backlog"`
}

// BackendConfig selects and configures the sink backend.
type BackendConfig struct {
	// Kind is "ring" or "file".
	Kind string `yaml:"kind"`
	// RingCapacity is the maximum number of commands the ring holds.
	RingCapacity int `yaml:"ring_capacity"`
	// FilePath is the backing file path, used when Kind == "file".
	FilePath string `yaml:"file_path"`
	// TimestampInterval controls the periodic timestamp task, file
	// backend only.
	TimestampInterval Duration `yaml:"timestamp_interval"`
}

// AssemblerConfig tunes the packet assembler's buffer growth.
type AssemblerConfig struct {
	// BlockSize is the assembler's starting capacity and growth
	// increment, expressed as a human-readable size (e.g. "64B").
	BlockSize datasize.ByteSize `yaml:"block_size"`
	// MaxSize caps how large a single packet's buffer may grow before
	// the connection is abandoned. Zero means unbounded.
	MaxSize datasize.ByteSize `yaml:"max_size"`
}

// DefaultConfig returns the out-of-the-box configuration: port 9000,
// backlog 100, ring backend capacity 10, BLOCK_SIZE 64, unbounded growth.
func DefaultConfig() *Config {
	return &Config{
		Listen: ListenConfig{
			Port:    9000,
			Backlog: 100,
		},
		Backend: BackendConfig{
			Kind:              "ring",
			RingCapacity:      10,
			FilePath:          "/var/tmp/aesdsocketdata",
			TimestampInterval: Duration{Seconds: 10},
		},
		Assembler: AssemblerConfig{
			BlockSize: 64 * datasize.B,
			MaxSize:   0,
		},
	}
}

// Duration is a YAML-friendly seconds-only duration, avoiding the need to
// pull in a parsing dependency for the single "every T seconds" knob this
// system has.
type Duration struct {
	Seconds int `yaml:"seconds"`
}

// AsDuration converts to a time.Duration.
func (d Duration) AsDuration() time.Duration {
	return time.Duration(d.Seconds) * time.Second
}

// LoadConfig reads and parses a YAML configuration file, starting from
// DefaultConfig so an omitted field keeps its default.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML configuration: %w", err)
	}
	return cfg, nil
}
