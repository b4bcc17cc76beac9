// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

// Package procinfo resolves process metadata for the pids seen in events.
package procinfo

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/procfs"
)

// DefaultCacheSize matches the pid allow-list capacity.
const DefaultCacheSize = 1024

// Cache keeps the command name of recently seen pids. Names are read from
// procfs once per pid.
type Cache struct {
	fs    procfs.FS
	comms *lru.Cache[uint32, string]
}

func NewCache(procFS string, size int) (*Cache, error) {
	fs, err := procfs.NewFS(procFS)
	if err != nil {
		return nil, fmt.Errorf("failed to open procfs %s: %w", procFS, err)
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	comms, err := lru.New[uint32, string](size)
	if err != nil {
		return nil, err
	}
	return &Cache{fs: fs, comms: comms}, nil
}

// Comm returns the command name of pid, or an empty string when the
// process is gone. Failed lookups are not cached.
func (c *Cache) Comm(pid uint32) string {
	if comm, ok := c.comms.Get(pid); ok {
		return comm
	}
	p, err := c.fs.Proc(int(pid))
	if err != nil {
		return ""
	}
	comm, err := p.Comm()
	if err != nil {
		return ""
	}
	c.comms.Add(pid, comm)
	return comm
}

// Alive reports whether pid exists.
func (c *Cache) Alive(pid uint32) bool {
	_, err := c.fs.Proc(int(pid))
	return err == nil
}

// Forget drops the cached name of pid.
func (c *Cache) Forget(pid uint32) {
	c.comms.Remove(pid)
}

func (c *Cache) Len() int {
	return c.comms.Len()
}
