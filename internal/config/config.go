// Package config loads and validates the settings the core consumes:
// worker count, per-worker connection budget, coroutine stack size, and the
// listen address. Parsing itself is an ambient concern (out of scope per
// the core spec) but the shape and bounds of the struct are not.
package config

import (
	"fmt"
	"runtime"

	"github.com/BurntSushi/toml"
)

const (
	// MaxWorkers mirrors the fixed-capacity WorkerTable ceiling.
	MaxWorkers = 32

	defaultMaxConnections = 256
	defaultStackKiB       = 16
	defaultListenIP       = "0.0.0.0"
	defaultListenPort     = 8080
	defaultPidFile        = "/var/run/forkserve.pid"
	defaultLogPath        = "/var/log/forkserve.log"
	defaultBacklog        = 1000
)

// Config is the set of inputs the prefork core consumes. Everything else
// (TLS, protocol parsing, hot reload) is deliberately absent.
type Config struct {
	Workers        int    `toml:"workers"`
	MaxConnections int    `toml:"max_connections"`
	StackKiB       int    `toml:"stack_kib"`
	ListenIP       string `toml:"listen_ip"`
	ListenPort     int    `toml:"listen_port"`
	PidFile        string `toml:"pid_file"`
	LogPath        string `toml:"log_path"`
	Backlog        int    `toml:"backlog"`
}

// Default returns a single-worker configuration suitable for tests and for
// `-t` style dry-run printing when no file is supplied.
func Default() *Config {
	return &Config{
		Workers:        1,
		MaxConnections: defaultMaxConnections,
		StackKiB:       defaultStackKiB,
		ListenIP:       defaultListenIP,
		ListenPort:     defaultListenPort,
		PidFile:        defaultPidFile,
		LogPath:        defaultLogPath,
		Backlog:        defaultBacklog,
	}
}

// Load reads and validates a TOML config file, filling unset fields with
// defaults before validation.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if cfg.Backlog <= 0 {
		cfg.Backlog = defaultBacklog
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the bounds spec.md §3/§8 rely on: the WorkerTable never
// exceeds 32 slots, and every budget is a positive quantity.
func (c *Config) Validate() error {
	if c.Workers < 1 || c.Workers > MaxWorkers {
		return fmt.Errorf("workers must be between 1 and %d, got %d", MaxWorkers, c.Workers)
	}
	if c.MaxConnections < 1 {
		return fmt.Errorf("max_connections must be positive, got %d", c.MaxConnections)
	}
	if c.StackKiB < 1 {
		return fmt.Errorf("stack_kib must be positive, got %d", c.StackKiB)
	}
	if c.ListenPort < 1 || c.ListenPort > 65535 {
		return fmt.Errorf("listen_port out of range: %d", c.ListenPort)
	}
	if c.PidFile == "" {
		return fmt.Errorf("pid_file must not be empty")
	}
	return nil
}

// CPUAffinity computes the CPU index a given worker slot pins to:
// slot_index mod cpu_count, per spec.md §3. numCPU lets callers override
// runtime.NumCPU() for deterministic tests.
func CPUAffinity(slot int, numCPU int) int {
	if numCPU <= 0 {
		numCPU = runtime.NumCPU()
	}
	return slot % numCPU
}

// String renders the config the way `-t` prints it.
func (c *Config) String() string {
	return fmt.Sprintf(
		"workers=%d max_connections=%d stack_kib=%d listen=%s:%d backlog=%d pid_file=%s log_path=%s",
		c.Workers, c.MaxConnections, c.StackKiB, c.ListenIP, c.ListenPort, c.Backlog, c.PidFile, c.LogPath,
	)
}
