// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package observer

import (
	"github.com/pidtrace/pidtrace/pkg/api/tracingapi"
	"github.com/pidtrace/pidtrace/pkg/logger/logfields"
	"github.com/sirupsen/logrus"
)

// LogListener logs every event at debug level.
type LogListener struct {
	Log logrus.FieldLogger
}

func (l LogListener) Notify(ev tracingapi.Event) error {
	hdr := ev.EventHeader()
	fields := logrus.Fields{
		logfields.Kind: hdr.Kind.String(),
		logfields.Pid:  hdr.Pid,
		"ktime":        hdr.Ktime,
	}
	switch e := ev.(type) {
	case *tracingapi.MsgSysEnter:
		fields["id"] = e.ID
	case *tracingapi.MsgSysMmap:
		fields["addr"] = e.Args.Addr
		fields["len"] = e.Args.Len
		fields["prot"] = e.Args.Prot
		fields["flags"] = e.Args.Flags
		fields["fd"] = int64(e.Args.Fd)
		fields["off"] = e.Args.Offset
	case *tracingapi.MsgTcpConnect:
		fields["daddr"] = e.Args.Daddr
		fields["dport"] = e.Args.Dport
	}
	l.Log.WithFields(fields).Debug("event")
	return nil
}

func (l LogListener) Close() error { return nil }
