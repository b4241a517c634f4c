// Package pidfile manages the single pidfile a master process owns: created
// at init, holding the master pid as ASCII decimal, deleted on clean exit.
package pidfile

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Create writes pid to path as ASCII decimal, truncating any existing file.
func Create(path string, pid int) error {
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return fmt.Errorf("create pidfile %s: %w", path, err)
	}
	return nil
}

// Read returns the pid recorded at path.
func Read(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read pidfile %s: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("parse pidfile %s: %w", path, err)
	}
	return pid, nil
}

// Delete removes the pidfile. Missing file is not an error — deletion is
// idempotent so a double shutdown path never fails on this step.
func Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete pidfile %s: %w", path, err)
	}
	return nil
}
