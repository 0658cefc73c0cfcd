//go:build windows

package driver

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// FindRuntime looks up the runtime binary in PATH, then under
// bin/*/windows/x64 next to the executable and the working directory
func FindRuntime(runtime string) (string, error) {
	if binPath, err := exec.LookPath(runtime); err == nil {
		return binPath, nil
	}

	var lookup []string

	exePath, err := os.Executable()
	if err != nil {
		return "", NewRuntimeError(runtime, fmt.Errorf("failed to get executable path: %w", err))
	}
	lookup = append(lookup, filepath.Dir(exePath))

	wd, err := os.Getwd()
	if err != nil {
		return "", NewRuntimeError(runtime, fmt.Errorf("failed to get current working directory: %w", err))
	}
	lookup = append(lookup, wd)

	for _, exeDir := range lookup {
		matches, err := filepath.Glob(filepath.Join(exeDir, "bin", "*", "windows", "x64", fmt.Sprintf("%s.exe", runtime)))
		if err != nil || len(matches) == 0 {
			continue // continue to next directory
		}

		binPath := matches[0]
		if _, err = os.Stat(binPath); err != nil {
			continue
		}

		return binPath, nil
	}

	return "", NewRuntimeError(runtime, fmt.Errorf("binary not found"))
}
