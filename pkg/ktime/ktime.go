// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package ktime

import (
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

func clockNow(clk int32) (int64, error) {
	ts := unix.Timespec{}
	if err := unix.ClockGettime(clk, &ts); err != nil {
		return 0, err
	}
	return ts.Nano(), nil
}

// ToTime converts a bpf_ktime_get_ns timestamp to wall clock time,
// falling back to now if the clock cannot be read.
func ToTime(ktime uint64) time.Time {
	t, err := DecodeKtime(int64(ktime), true)
	if err != nil {
		logrus.WithError(err).WithField("ktime", ktime).Warn("Failed to decode ktime")
		return time.Now()
	}
	return t
}

func DiffKtime(start, end uint64) time.Duration {
	return time.Duration(int64(end - start))
}

func NanoTimeSince(ktime int64) (time.Duration, error) {
	now, err := clockNow(int32(unix.CLOCK_MONOTONIC))
	if err != nil {
		return 0, err
	}
	return time.Duration(now - ktime), nil
}

func Monotonic() (time.Duration, error) {
	now, err := clockNow(int32(unix.CLOCK_MONOTONIC))
	if err != nil {
		return 0, err
	}
	return time.Duration(now), nil
}

func DecodeKtime(ktime int64, monotonic bool) (time.Time, error) {
	clk := int32(unix.CLOCK_BOOTTIME)
	if monotonic {
		clk = int32(unix.CLOCK_MONOTONIC)
	}
	now, err := clockNow(clk)
	if err != nil {
		return time.Time{}, err
	}
	return time.Now().Add(time.Duration(ktime - now)), nil
}
