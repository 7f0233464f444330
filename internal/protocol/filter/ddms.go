package filter

import (
	"sync"

	"github.com/danmuck/jdwpmux/internal/protocol/packet"
)

const (
	NoDdmsID ID = "no-ddms"

	// DdmCmdSet is the vendor command set carrying DDM chunks.
	DdmCmdSet uint8 = 0xc7
	DdmCmd    uint8 = 0x01

	noDdmsInstallKey = "filter.no-ddms"
)

// NoDdms hides DDM traffic: DDM command packets coming from the VM and the
// replies to DDM commands sent through the session.
type NoDdms struct {
	mu      sync.Mutex
	pending map[uint32]struct{}
}

func NewNoDdms() *NoDdms {
	return &NoDdms{pending: make(map[uint32]struct{})}
}

func (f *NoDdms) ID() ID { return NoDdmsID }

func (f *NoDdms) BeforeSend(p packet.Packet) {
	if isDdmCommand(p) {
		f.mu.Lock()
		f.pending[p.ID] = struct{}{}
		f.mu.Unlock()
	}
}

func (f *NoDdms) Suppress(p packet.Packet) bool {
	if p.IsCommand() {
		return isDdmCommand(p)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.pending[p.ID]
	return ok
}

func (f *NoDdms) AfterReceive(p packet.Packet) {
	if !p.IsReply() {
		return
	}
	f.mu.Lock()
	delete(f.pending, p.ID)
	f.mu.Unlock()
}

// Pending reports how many DDM replies are still awaited.
func (f *NoDdms) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

func isDdmCommand(p packet.Packet) bool {
	set, err := p.CmdSet()
	return err == nil && set == DdmCmdSet
}

// InstallNoDdms adds the NoDdms factory to r exactly once.
func InstallNoDdms(r *Registry) bool {
	return r.InstallOnce(noDdmsInstallKey, func() Filter { return NewNoDdms() })
}
