// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package tracingapi

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrShortFrame = errors.New("short frame")

// ShortFrameError is returned when a frame cannot hold the record its
// header announces.
type ShortFrameError struct {
	Kind EventKind
	Len  int
	Want int
}

func (e *ShortFrameError) Error() string {
	return fmt.Sprintf("frame of kind %s has %d bytes, want %d", e.Kind, e.Len, e.Want)
}

func (e *ShortFrameError) Unwrap() error { return ErrShortFrame }

// UnknownKindError is returned for a frame whose header carries a kind
// no probe emits.
type UnknownKindError struct {
	Kind EventKind
	Len  int
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown event kind %d (frame len %d)", uint16(e.Kind), e.Len)
}

// Record is a fixed size wire record. MarshalTo writes exactly Size()
// bytes and panics if b is shorter.
type Record interface {
	Size() int
	MarshalTo(b []byte)
}

func (h *MsgHeader) MarshalTo(b []byte) {
	_ = b[MsgHeaderSize-1]
	binary.LittleEndian.PutUint64(b[0:8], h.Ktime)
	binary.LittleEndian.PutUint32(b[8:12], h.Pid)
	binary.LittleEndian.PutUint16(b[12:14], uint16(h.Kind))
	binary.LittleEndian.PutUint16(b[14:16], 0)
}

func (m *MsgSysEnter) Size() int { return MsgSysEnterSize }

func (m *MsgSysEnter) MarshalTo(b []byte) {
	_ = b[MsgSysEnterSize-1]
	m.Header.MarshalTo(b)
	binary.LittleEndian.PutUint32(b[16:20], m.ID)
	binary.LittleEndian.PutUint32(b[20:24], 0)
}

func (m *MsgSysMmap) Size() int { return MsgSysMmapSize }

func (m *MsgSysMmap) MarshalTo(b []byte) {
	_ = b[MsgSysMmapSize-1]
	m.Header.MarshalTo(b)
	a := &m.Args
	for i, v := range [...]uint64{a.Addr, a.Len, a.Prot, a.Flags, a.Fd, a.Offset} {
		off := MsgHeaderSize + 8*i
		binary.LittleEndian.PutUint64(b[off:off+8], v)
	}
}

func (m *MsgTcpConnect) Size() int { return MsgTcpConnectSize }

func (m *MsgTcpConnect) MarshalTo(b []byte) {
	_ = b[MsgTcpConnectSize-1]
	m.Header.MarshalTo(b)
	binary.LittleEndian.PutUint32(b[16:20], m.Args.Saddr)
	binary.LittleEndian.PutUint32(b[20:24], m.Args.Daddr)
	binary.LittleEndian.PutUint32(b[24:28], m.Args.Sport)
	binary.LittleEndian.PutUint32(b[28:32], m.Args.Dport)
}

// Marshal returns a freshly allocated encoding of r.
func Marshal(r Record) []byte {
	b := make([]byte, r.Size())
	r.MarshalTo(b)
	return b
}

// PeekHeader decodes the header of a frame without looking at the
// payload.
func PeekHeader(frame []byte) (MsgHeader, error) {
	if len(frame) < MsgHeaderSize {
		return MsgHeader{}, &ShortFrameError{Len: len(frame), Want: MsgHeaderSize}
	}
	return MsgHeader{
		Ktime: binary.LittleEndian.Uint64(frame[0:8]),
		Pid:   binary.LittleEndian.Uint32(frame[8:12]),
		Kind:  EventKind(binary.LittleEndian.Uint16(frame[12:14])),
		Pad:   binary.LittleEndian.Uint16(frame[14:16]),
	}, nil
}

// Decode reinterprets a ring buffer frame as the record selected by its
// header kind. The frame must be at least as long as that record.
func Decode(frame []byte) (Event, error) {
	hdr, err := PeekHeader(frame)
	if err != nil {
		return nil, err
	}

	var (
		ev   Event
		want int
	)
	switch hdr.Kind {
	case EventKindSysEnter:
		ev, want = &MsgSysEnter{}, MsgSysEnterSize
	case EventKindSysMmap:
		ev, want = &MsgSysMmap{}, MsgSysMmapSize
	case EventKindTcpConn:
		ev, want = &MsgTcpConnect{}, MsgTcpConnectSize
	default:
		return nil, &UnknownKindError{Kind: hdr.Kind, Len: len(frame)}
	}
	if len(frame) < want {
		return nil, &ShortFrameError{Kind: hdr.Kind, Len: len(frame), Want: want}
	}

	r := bytes.NewReader(frame[:want])
	if err := binary.Read(r, binary.LittleEndian, ev); err != nil {
		return nil, fmt.Errorf("failed to read %s record: %w", hdr.Kind, err)
	}
	return ev, nil
}
