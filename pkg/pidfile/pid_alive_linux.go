// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package pidfile

import (
	"os"
	"path/filepath"

	"github.com/pidtrace/pidtrace/pkg/option"
)

func isPidAlive(pid string) bool {
	_, err := os.Stat(filepath.Join(option.Config.ProcFS, pid))
	return err == nil
}
