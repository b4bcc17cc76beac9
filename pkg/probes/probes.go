// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package probes

import (
	"encoding/binary"

	"github.com/pidtrace/pidtrace/pkg/api/tracingapi"
	"golang.org/x/sys/unix"
)

const (
	// Both syscall tracepoints begin with the 8 byte common trace header.
	sysEnterIDOffset   = 8
	sysEnterArgsOffset = 16
	mmapArgsSize       = 48
)

type Probes struct {
	helpers Helpers
	maps    Maps
}

func New(helpers Helpers, maps Maps) *Probes {
	return &Probes{helpers: helpers, maps: maps}
}

// currentPid returns the thread group id of the caller if it is allowed.
func (p *Probes) currentPid() (uint32, bool) {
	pid := uint32(p.helpers.GetCurrentPidTgid() >> 32)
	if _, ok := p.maps.PidAllow.Lookup(pid); !ok {
		return 0, false
	}
	return pid, true
}

func (p *Probes) header(pid uint32, kind tracingapi.EventKind) tracingapi.MsgHeader {
	return tracingapi.MsgHeader{
		Ktime: p.helpers.KtimeGetNs(),
		Pid:   pid,
		Kind:  kind,
	}
}

// submit writes rec into a reservation of exactly its size. A full ring
// buffer drops the event.
func (p *Probes) submit(rec tracingapi.Record) {
	s, err := p.maps.Events.Reserve(rec.Size())
	if err != nil {
		return
	}
	rec.MarshalTo(s.Bytes())
	s.Submit()
}

// SysEnter handles tracepoint/raw_syscalls/sys_enter.
func (p *Probes) SysEnter(ctx TracePointContext) {
	pid, ok := p.currentPid()
	if !ok {
		return
	}
	raw, ok := ctx.ReadAt(sysEnterIDOffset, 8)
	if !ok {
		return
	}
	msg := tracingapi.MsgSysEnter{
		Header: p.header(pid, tracingapi.EventKindSysEnter),
		ID:     uint32(binary.LittleEndian.Uint64(raw)),
	}
	p.submit(&msg)
}

// SysEnterMmap handles tracepoint/syscalls/sys_enter_mmap.
func (p *Probes) SysEnterMmap(ctx TracePointContext) {
	pid, ok := p.currentPid()
	if !ok {
		return
	}
	raw, ok := ctx.ReadAt(sysEnterArgsOffset, mmapArgsSize)
	if !ok {
		return
	}
	le := binary.LittleEndian
	msg := tracingapi.MsgSysMmap{
		Header: p.header(pid, tracingapi.EventKindSysMmap),
		Args: tracingapi.MmapArgs{
			Addr:   le.Uint64(raw[0:8]),
			Len:    le.Uint64(raw[8:16]),
			Prot:   le.Uint64(raw[16:24]),
			Flags:  le.Uint64(raw[24:32]),
			Fd:     le.Uint64(raw[32:40]),
			Offset: le.Uint64(raw[40:48]),
		},
	}
	p.submit(&msg)
}

// EnterConnect handles kprobe/__sys_connect. It stashes the arguments
// for ExitConnect, as user memory is only known to be populated once
// the call returns.
func (p *Probes) EnterConnect(ctx ProbeContext) {
	pid, ok := p.currentPid()
	if !ok {
		return
	}
	fd, ok1 := ctx.Arg(0)
	addr, ok2 := ctx.Arg(1)
	addrlen, ok3 := ctx.Arg(2)
	if !ok1 || !ok2 || !ok3 {
		return
	}
	// A full table loses the connect.
	_ = p.maps.ConnectArgs.Update(pid, tracingapi.ConnectArgs{
		Fd:         int32(fd),
		Uservaddr:  addr,
		AddressLen: int32(addrlen),
	})
}

// ExitConnect handles kretprobe/__sys_connect.
func (p *Probes) ExitConnect(_ ProbeContext) {
	pid, ok := p.currentPid()
	if !ok {
		return
	}
	args, ok := p.maps.ConnectArgs.Lookup(pid)
	if !ok {
		return
	}
	p.maps.ConnectArgs.Delete(pid)

	if args.Uservaddr == 0 || args.AddressLen < tracingapi.SockaddrInSize {
		return
	}
	var sa [tracingapi.SockaddrInSize]byte
	if err := p.helpers.ProbeReadUser(sa[:], args.Uservaddr); err != nil {
		return
	}
	// sin_family is host order, port and address are network order.
	if binary.LittleEndian.Uint16(sa[0:2]) != unix.AF_INET {
		return
	}
	msg := tracingapi.MsgTcpConnect{
		Header: p.header(pid, tracingapi.EventKindTcpConn),
		Args: tracingapi.TcpArgs{
			Daddr: binary.BigEndian.Uint32(sa[4:8]),
			Dport: uint32(binary.BigEndian.Uint16(sa[2:4])),
		},
	}
	p.submit(&msg)
}
