package session

import (
	"errors"

	"github.com/danmuck/jdwpmux/internal/protocol/packet"
)

// Monitor observes every packet sent and received by a session.
//
// OnReceive runs on the pump before fan-out and must not retain p.
type Monitor interface {
	OnSend(p packet.Packet)
	OnReceive(p packet.Packet)
	Close() error
}

type monitorList []Monitor

func (l monitorList) OnSend(p packet.Packet) {
	for _, m := range l {
		m.OnSend(p)
	}
}

func (l monitorList) OnReceive(p packet.Packet) {
	for _, m := range l {
		m.OnReceive(p)
	}
}

func (l monitorList) Close() error {
	var errs []error
	for _, m := range l {
		errs = append(errs, m.Close())
	}
	return errors.Join(errs...)
}

// aggregateMonitors returns nil when there is nothing to notify.
func aggregateMonitors(in []Monitor) Monitor {
	out := make(monitorList, 0, len(in))
	for _, m := range in {
		if m != nil {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
