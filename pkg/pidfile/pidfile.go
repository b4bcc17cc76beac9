// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package pidfile

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strconv"
)

var (
	ErrPidFileAccess   = errors.New("pid file access failed")
	ErrPidIsNotAlive   = errors.New("process is not alive")
	ErrPidIsStillAlive = errors.New("process is already running")
)

func readPidFile(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Read errors only mean there is no previous instance to worry
		// about, the file gets overwritten.
		return 0, ErrPidFileAccess
	}

	pid := string(bytes.TrimSpace(data))
	if !isPidAlive(pid) {
		return 0, ErrPidIsNotAlive
	}

	return strconv.ParseUint(pid, 10, 32)
}

// Create writes the current pid to path and returns it. If path names a
// process that is still running, its pid is returned with
// ErrPidIsStillAlive.
func Create(path string) (uint64, error) {
	pid, err := readPidFile(path)
	if err == nil && pid != 0 {
		if pid == uint64(os.Getpid()) {
			return pid, nil
		}
		return pid, ErrPidIsStillAlive
	}

	if err != nil && !errors.Is(err, ErrPidFileAccess) && !errors.Is(err, ErrPidIsNotAlive) {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	pid = uint64(os.Getpid())
	return pid, os.WriteFile(path, []byte(strconv.FormatUint(pid, 10)), 0o644)
}

func Delete(path string) error {
	return os.Remove(path)
}
