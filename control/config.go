// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Host-application configuration for pool deployments: geometry, listener
// ports, debug endpoint. Decoded from JSON over sane defaults.

package control

import (
	"fmt"
	"os"
	"runtime"

	"github.com/sugawarayuuta/sonnet"
)

// Config holds the settings a hosting application feeds into the pools.
type Config struct {
	Workers   int    `json:"workers"`
	Clients   int    `json:"clients"`
	Ports     []int  `json:"ports"`
	Backlog   int    `json:"backlog"`
	MaxEvents int    `json:"max_events"`
	DebugAddr string `json:"debug_addr"`
	LogLevel  string `json:"log_level"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return Config{
		Workers:   runtime.NumCPU(),
		Clients:   1024,
		Ports:     []int{9010},
		Backlog:   128,
		MaxEvents: 128,
		LogLevel:  "info",
	}
}

// LoadConfig reads a JSON file over DefaultConfig. Absent keys keep their
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("control: read config: %w", err)
	}
	if err := sonnet.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("control: decode config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Workers <= 0 || c.Clients <= 0 {
		return fmt.Errorf("control: bad geometry %d workers, %d clients", c.Workers, c.Clients)
	}
	if len(c.Ports) == 0 {
		return fmt.Errorf("control: no listener ports")
	}
	return nil
}
