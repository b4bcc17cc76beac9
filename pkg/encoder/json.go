// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package encoder

import (
	"encoding/json"
	"io"
	"time"

	"github.com/pidtrace/pidtrace/pkg/api/tracingapi"
	"github.com/pidtrace/pidtrace/pkg/ktime"
)

// JSONEvent is the exported form of an event.
type JSONEvent struct {
	Time  time.Time `json:"time"`
	Ktime uint64    `json:"ktime"`
	Pid   uint32    `json:"pid"`
	Kind  string    `json:"kind"`

	SysEnter   *JSONSysEnter   `json:"sys_enter,omitempty"`
	Mmap       *JSONMmap       `json:"mmap,omitempty"`
	TcpConnect *JSONTcpConnect `json:"tcp_connect,omitempty"`
}

type JSONSysEnter struct {
	ID uint32 `json:"id"`
}

type JSONMmap struct {
	Addr   uint64 `json:"addr"`
	Len    uint64 `json:"len"`
	Prot   string `json:"prot"`
	Flags  string `json:"flags"`
	Fd     int64  `json:"fd"`
	Offset uint64 `json:"offset"`
}

type JSONTcpConnect struct {
	Daddr       string `json:"daddr"`
	Dport       uint32 `json:"dport"`
	Destination string `json:"destination"`
}

// ToJSONEvent converts ev, using toTime for the wall clock time.
func ToJSONEvent(ev tracingapi.Event, toTime func(uint64) time.Time) (*JSONEvent, error) {
	hdr := ev.EventHeader()
	out := &JSONEvent{
		Time:  toTime(hdr.Ktime).UTC(),
		Ktime: hdr.Ktime,
		Pid:   hdr.Pid,
		Kind:  hdr.Kind.String(),
	}
	switch e := ev.(type) {
	case *tracingapi.MsgSysEnter:
		out.SysEnter = &JSONSysEnter{ID: e.ID}
	case *tracingapi.MsgSysMmap:
		a := e.Args
		out.Mmap = &JSONMmap{
			Addr:   a.Addr,
			Len:    a.Len,
			Prot:   ProtString(a.Prot),
			Flags:  MapFlagsString(a.Flags),
			Fd:     int64(a.Fd),
			Offset: a.Offset,
		}
	case *tracingapi.MsgTcpConnect:
		out.TcpConnect = &JSONTcpConnect{
			Daddr:       IPv4(e.Args.Daddr).String(),
			Dport:       e.Args.Dport,
			Destination: AddrPort(e.Args.Daddr, e.Args.Dport),
		}
	default:
		return nil, ErrUnknownEventType
	}
	return out, nil
}

// JSONEncoder writes one JSON object per line.
type JSONEncoder struct {
	enc  *json.Encoder
	Time func(ktime uint64) time.Time
}

func NewJSONEncoder(w io.Writer) *JSONEncoder {
	return &JSONEncoder{enc: json.NewEncoder(w), Time: ktime.ToTime}
}

func (e *JSONEncoder) Encode(ev tracingapi.Event) error {
	if ev == nil {
		return ErrInvalidEvent
	}
	out, err := ToJSONEvent(ev, e.Time)
	if err != nil {
		return err
	}
	return e.enc.Encode(out)
}
