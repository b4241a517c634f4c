package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateRejectsTooManyWorkers(t *testing.T) {
	cfg := Default()
	cfg.Workers = MaxWorkers + 1
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroWorkers(t *testing.T) {
	cfg := Default()
	cfg.Workers = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateAcceptsBoundary(t *testing.T) {
	cfg := Default()
	cfg.Workers = MaxWorkers
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := Default()
	cfg.ListenPort = 70000
	assert.Error(t, cfg.Validate())
}

func TestLoadFillsDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "forkserve.toml")
	contents := "workers = 4\nlisten_port = 9090\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 9090, cfg.ListenPort)
	assert.Equal(t, defaultMaxConnections, cfg.MaxConnections)
}

func TestCPUAffinityWrapsAroundCPUCount(t *testing.T) {
	assert.Equal(t, 0, CPUAffinity(0, 4))
	assert.Equal(t, 1, CPUAffinity(1, 4))
	assert.Equal(t, 0, CPUAffinity(4, 4))
	assert.Equal(t, 3, CPUAffinity(7, 4))
}
