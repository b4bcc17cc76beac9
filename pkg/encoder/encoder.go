// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package encoder

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"strings"
	"time"

	"github.com/pidtrace/pidtrace/pkg/api/tracingapi"
	"github.com/pidtrace/pidtrace/pkg/ktime"
	"golang.org/x/sys/unix"
)

const rfc3339Nano = "2006-01-02T15:04:05.000000000Z07:00"

var (
	ErrInvalidEvent     = errors.New("invalid event")
	ErrUnknownEventType = errors.New("unknown event type")
)

// EventEncoder is an interface for encoding decoded ring buffer events.
type EventEncoder interface {
	Encode(ev tracingapi.Event) error
}

// ColorMode defines color mode flags for compact output.
type ColorMode string

const (
	Always ColorMode = "always" // always enable colored output.
	Never  ColorMode = "never"  // disable colored output.
	Auto   ColorMode = "auto"   // automatically enable / disable colored output based on terminal settings.
)

// CompactEncoder encodes events in a short one line format with emojis
// and colors.
type CompactEncoder struct {
	Writer     io.Writer
	Colorer    *Colorer
	Timestamps bool
	// Time converts an event ktime to wall clock time.
	Time func(ktime uint64) time.Time
	// Comm optionally resolves the command name of a pid.
	Comm func(pid uint32) string
}

// NewCompactEncoder initializes and returns a pointer to CompactEncoder.
func NewCompactEncoder(w io.Writer, colorMode ColorMode, timestamps bool) *CompactEncoder {
	return &CompactEncoder{
		Writer:     w,
		Colorer:    NewColorer(colorMode),
		Timestamps: timestamps,
		Time:       ktime.ToTime,
	}
}

// Encode implements EventEncoder.Encode.
func (p *CompactEncoder) Encode(ev tracingapi.Event) error {
	if ev == nil {
		return ErrInvalidEvent
	}
	str, err := p.EventToString(ev)
	if err != nil {
		return err
	}
	if p.Timestamps {
		ts := p.Time(ev.EventHeader().Ktime).UTC().Format(rfc3339Nano)
		str = fmt.Sprintf("%s %s", ts, str)
	}
	_, err = fmt.Fprintln(p.Writer, str)
	return err
}

func (p *CompactEncoder) EventToString(ev tracingapi.Event) (string, error) {
	hdr := ev.EventHeader()
	pid := p.Colorer.Pid.Sprintf("pid=%d", hdr.Pid)
	if p.Comm != nil {
		if comm := p.Comm(hdr.Pid); comm != "" {
			pid = p.Colorer.Pid.Sprintf("pid=%d(%s)", hdr.Pid, comm)
		}
	}
	switch e := ev.(type) {
	case *tracingapi.MsgSysEnter:
		event := p.Colorer.Syscall.Sprintf("🧬 %-8s", "syscall")
		return fmt.Sprintf("%s %s id=%d", event, pid, e.ID), nil
	case *tracingapi.MsgSysMmap:
		event := p.Colorer.Mmap.Sprintf("📦 %-8s", "mmap")
		a := e.Args
		return fmt.Sprintf("%s %s addr=0x%x len=%d prot=%s flags=%s fd=%d off=%d",
			event, pid, a.Addr, a.Len, ProtString(a.Prot), MapFlagsString(a.Flags), int64(a.Fd), a.Offset), nil
	case *tracingapi.MsgTcpConnect:
		event := p.Colorer.Connect.Sprintf("🔌 %-8s", "connect")
		dst := p.Colorer.Addr.Sprint(AddrPort(e.Args.Daddr, e.Args.Dport))
		return fmt.Sprintf("%s %s %s", event, pid, dst), nil
	}
	return "", ErrUnknownEventType
}

// IPv4 converts a host order IPv4 address.
func IPv4(addr uint32) netip.Addr {
	return netip.AddrFrom4([4]byte{byte(addr >> 24), byte(addr >> 16), byte(addr >> 8), byte(addr)})
}

// AddrPort formats a host order IPv4 address and port.
func AddrPort(addr, port uint32) string {
	return netip.AddrPortFrom(IPv4(addr), uint16(port)).String()
}

type flagName struct {
	flag uint64
	name string
}

var protNames = []flagName{
	{unix.PROT_READ, "PROT_READ"},
	{unix.PROT_WRITE, "PROT_WRITE"},
	{unix.PROT_EXEC, "PROT_EXEC"},
}

var mapFlagNames = []flagName{
	{unix.MAP_SHARED, "MAP_SHARED"},
	{unix.MAP_PRIVATE, "MAP_PRIVATE"},
	{unix.MAP_FIXED, "MAP_FIXED"},
	{unix.MAP_ANONYMOUS, "MAP_ANONYMOUS"},
	{unix.MAP_POPULATE, "MAP_POPULATE"},
	{unix.MAP_NORESERVE, "MAP_NORESERVE"},
	{unix.MAP_STACK, "MAP_STACK"},
	{unix.MAP_HUGETLB, "MAP_HUGETLB"},
}

func flagsString(v uint64, names []flagName, zero string) string {
	if v == 0 {
		return zero
	}
	var parts []string
	for _, f := range names {
		if v&f.flag != 0 {
			parts = append(parts, f.name)
			v &^= f.flag
		}
	}
	if v != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", v))
	}
	return strings.Join(parts, "|")
}

// ProtString renders mmap protection bits, e.g. PROT_READ|PROT_WRITE.
func ProtString(prot uint64) string {
	return flagsString(prot, protNames, "PROT_NONE")
}

// MapFlagsString renders mmap flags, e.g. MAP_PRIVATE|MAP_ANONYMOUS.
func MapFlagsString(flags uint64) string {
	return flagsString(flags, mapFlagNames, "0")
}

// Listener hands every observed event to an encoder.
type Listener struct {
	Encoder EventEncoder
}

func NewListener(enc EventEncoder) *Listener {
	return &Listener{Encoder: enc}
}

func (l *Listener) Notify(ev tracingapi.Event) error {
	return l.Encoder.Encode(ev)
}

func (l *Listener) Close() error { return nil }
