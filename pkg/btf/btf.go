// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package btf

import (
	"fmt"
	"os"
	"path"

	"github.com/cilium/ebpf/btf"
	"github.com/pidtrace/pidtrace/pkg/defaults"
	"github.com/pidtrace/pidtrace/pkg/logger"
	"golang.org/x/sys/unix"
)

const btfEnv = "PIDTRACE_BTF"

var (
	btfFile string

	// defaultBTFFile is a variable so tests can point it elsewhere
	defaultBTFFile = defaults.DefaultBTFFile
)

func kernelRelease() (string, error) {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return "", fmt.Errorf("kernel version lookup (uname -r) failed: %w", err)
	}
	return unix.ByteSliceToString(uname.Release[:]), nil
}

func findBTF(lib, btf string) (string, error) {
	if btf != "" {
		if _, err := os.Stat(btf); err != nil {
			return btf, fmt.Errorf("user specified BTF does not exist: %w", err)
		}
		logger.GetLogger().WithField("btf-file", btf).Info("BTF file: user specified btf file found")
		return btf, nil
	}

	// Alternative to auto-discovery and/or command line argument we
	// can also set via environment variable.
	if env := os.Getenv(btfEnv); env != "" {
		if _, err := os.Stat(env); err != nil {
			return btf, err
		}
		return env, nil
	}

	// Preference of BTF files, first search for kernel exposed BTF, then
	// check for vmlinux- metadata, and finally if all those are missing
	// search the lib directory for a btf file.
	candidates := []string{defaultBTFFile}
	release, err := kernelRelease()
	if err == nil {
		candidates = append(candidates, path.Join(lib, "metadata", "vmlinux-"+release))
	}
	candidates = append(candidates, path.Join(lib, "btf"))

	for _, file := range candidates {
		if _, err := os.Stat(file); err == nil {
			logger.GetLogger().WithField("btf-file", file).Info("BTF discovery: candidate btf file found")
			return file, nil
		}
		logger.GetLogger().WithField("btf-file", file).Debug("BTF discovery: candidate btf file does not exist")
	}
	return btf, fmt.Errorf("kernel %q BTF search failed, use --btf to specify a BTF file", release)
}

// InitCachedBTF discovers the BTF file used for kernel types.
func InitCachedBTF(lib, btf string) error {
	file, err := findBTF(lib, btf)
	if err != nil {
		return fmt.Errorf("pidtrace, aborting kernel autodiscovery failed: %w", err)
	}
	btfFile = file
	return nil
}

// NewBTF parses the BTF file found by InitCachedBTF.
func NewBTF() (*btf.Spec, error) {
	if btfFile == "" {
		return nil, fmt.Errorf("BTF file not initialized")
	}
	return btf.LoadSpec(btfFile)
}

func GetCachedBTFFile() string {
	return btfFile
}
