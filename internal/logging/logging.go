// Package logging builds the structured logger shared by the master and
// worker processes. Every process tags its lines with a "role" field in
// place of the rewritten argv[0] process title the C original used.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Role identifies which process a logger belongs to.
type Role string

const (
	RoleMaster Role = "master"
	RoleWorker Role = "worker"
)

// New builds a zap logger writing to logPath (or stderr if empty) tagged
// with role. Callers should defer logger.Sync(), though the master's
// supervisor loop also calls Sync() explicitly at the points shark.c's
// log_scan_write() did.
func New(role Role, logPath string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if logPath != "" {
		cfg.OutputPaths = []string{logPath}
		cfg.ErrorOutputPaths = []string{logPath}
	} else {
		cfg.OutputPaths = []string{"stderr"}
		cfg.ErrorOutputPaths = []string{"stderr"}
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.With(zap.String("role", string(role))), nil
}
