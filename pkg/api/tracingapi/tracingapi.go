// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package tracingapi

import "fmt"

// EventKind values must be in sync with enum event_kind in bpf/lib/bpf_event.h
type EventKind uint16

const (
	EventKindUndef    EventKind = 0
	EventKindSysEnter EventKind = 1
	EventKindSysMmap  EventKind = 2
	EventKindTcpConn  EventKind = 3
)

var eventKindStrings = map[EventKind]string{
	EventKindUndef:    "Undef",
	EventKindSysEnter: "SysEnter",
	EventKindSysMmap:  "SysMmap",
	EventKindTcpConn:  "TcpConnect",
}

func (k EventKind) String() string {
	if s, ok := eventKindStrings[k]; ok {
		return s
	}
	return fmt.Sprintf("Unknown(%d)", uint16(k))
}

// Known reports whether k is one of the kinds a probe can emit.
func (k EventKind) Known() bool {
	return k >= EventKindSysEnter && k <= EventKindTcpConn
}

const (
	MsgHeaderSize     = 16
	MsgSysEnterSize   = 24
	MsgSysMmapSize    = 64
	MsgTcpConnectSize = 32

	ConnectArgsSize = 24
	SockaddrInSize  = 16

	// ProgNameMax is the longest probe name the kernel keeps.
	ProgNameMax = 16
)

// MsgHeader prefixes every record pushed into the events ring buffer.
type MsgHeader struct {
	Ktime uint64    `align:"ktime"`
	Pid   uint32    `align:"pid"`
	Kind  EventKind `align:"kind"`
	Pad   uint16    `align:"pad"`
}

type MsgSysEnter struct {
	Header MsgHeader `align:"header"`
	ID     uint32    `align:"id"`
	// C aligns the record to its 8 byte header.
	Pad uint32 `align:"pad"`
}

// MmapArgs are the raw mmap(2) arguments in call order.
type MmapArgs struct {
	Addr   uint64 `align:"addr"`
	Len    uint64 `align:"len"`
	Prot   uint64 `align:"prot"`
	Flags  uint64 `align:"flags"`
	Fd     uint64 `align:"fd"`
	Offset uint64 `align:"off"`
}

type MsgSysMmap struct {
	Header MsgHeader `align:"header"`
	Args   MmapArgs  `align:"args"`
}

// TcpArgs carries IPv4 endpoints in host byte order. The source side is
// not known at connect time and is always zero.
type TcpArgs struct {
	Saddr uint32 `align:"saddr"`
	Daddr uint32 `align:"daddr"`
	Sport uint32 `align:"sport"`
	Dport uint32 `align:"dport"`
}

type MsgTcpConnect struct {
	Header MsgHeader `align:"header"`
	Args   TcpArgs   `align:"args"`
}

// ConnectArgs is the value of the connect_args correlation map.
type ConnectArgs struct {
	Fd         int32  `align:"fd"`
	Pad0       uint32 `align:"pad0"`
	Uservaddr  uint64 `align:"uservaddr"`
	AddressLen int32  `align:"addrlen"`
	Pad1       uint32 `align:"pad1"`
}

// SockaddrIn mirrors struct sockaddr_in. Port and Addr are in network
// byte order as they sit in user memory.
type SockaddrIn struct {
	Family uint16
	Port   uint16
	Addr   uint32
	Zero   [8]byte
}

// Event is a decoded ring buffer record.
type Event interface {
	EventHeader() MsgHeader
}

func (m *MsgSysEnter) EventHeader() MsgHeader   { return m.Header }
func (m *MsgSysMmap) EventHeader() MsgHeader    { return m.Header }
func (m *MsgTcpConnect) EventHeader() MsgHeader { return m.Header }
