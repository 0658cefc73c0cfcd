//go:build !windows

package driver

import (
	"errors"
	"fmt"
	"os/exec"
)

// FindRuntime looks up the runtime binary in PATH
func FindRuntime(runtime string) (string, error) {
	binPath, err := exec.LookPath(runtime)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", NewRuntimeError(runtime, fmt.Errorf("not found in PATH: %w", err))
		}
		return "", NewRuntimeError(runtime, fmt.Errorf("failed to locate binary: %w", err))
	}

	return binPath, nil
}
