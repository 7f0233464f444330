package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/danmuck/jdwpmux/internal/protocol/filter"
	"github.com/danmuck/jdwpmux/internal/protocol/packet"
	"github.com/danmuck/jdwpmux/internal/protocol/wire"
	"github.com/pterm/pterm"
)

const (
	cmdSetVirtualMachine uint8 = 1
	cmdVersion           uint8 = 1
)

var commandNames = map[[2]uint8]string{
	{1, 1}:    "VirtualMachine.Version",
	{1, 7}:    "VirtualMachine.IDSizes",
	{1, 8}:    "VirtualMachine.Suspend",
	{1, 9}:    "VirtualMachine.Resume",
	{1, 10}:   "VirtualMachine.Exit",
	{15, 1}:   "EventRequest.Set",
	{15, 2}:   "EventRequest.Clear",
	{64, 100}: "Event.Composite",

	{filter.DdmCmdSet, filter.DdmCmd}: "DDM.Chunk",
}

type versionInfo struct {
	Description string
	Major       int32
	Minor       int32
	VMVersion   string
	VMName      string
}

// tracer prints every packet one receiver sees.
type tracer struct {
	out       io.Writer
	mu        sync.Mutex
	versionID atomic.Uint32
	hasID     atomic.Bool
	seen      int
}

func newTracer(out io.Writer) *tracer {
	return &tracer{out: out}
}

// expectVersion marks id as the pending VirtualMachine.Version request.
func (t *tracer) expectVersion(id uint32) {
	t.versionID.Store(id)
	t.hasID.Store(true)
}

func (t *tracer) handle(_ context.Context, p packet.Packet) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen++

	pterm.Fprintln(t.out, describe(p))
	if isDdm(p) {
		return p.WithPayload(func(b []byte) error {
			if c, err := wire.DecodeChunk(b); err == nil {
				pterm.Fprintln(t.out, fmt.Sprintf("  chunk=%s len=%d", wire.ChunkName(c.Type), len(c.Data)))
			}
			return nil
		})
	}
	if p.IsReply() && t.hasID.Load() && p.ID == t.versionID.Load() {
		if code, _ := p.ErrorCode(); code != 0 {
			pterm.Fprintln(t.out, pterm.Yellow(fmt.Sprintf("  version request failed error=%d", code)))
			return nil
		}
		return p.WithPayload(func(b []byte) error {
			info, err := decodeVersionReply(b)
			if err != nil {
				pterm.Fprintln(t.out, pterm.Red("  "+err.Error()))
				return nil
			}
			pterm.Fprintln(t.out, pterm.Green(fmt.Sprintf("  vm=%q version=%q jdwp=%d.%d", info.VMName, info.VMVersion, info.Major, info.Minor)))
			return nil
		})
	}
	return nil
}

func (t *tracer) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seen
}

func isDdm(p packet.Packet) bool {
	set, err := p.CmdSet()
	return err == nil && set == filter.DdmCmdSet
}

func describe(p packet.Packet) string {
	if p.IsReply() {
		code, _ := p.ErrorCode()
		return fmt.Sprintf("%s id=%#08x len=%d error=%d", pterm.Cyan("<- reply  "), p.ID, p.Length, code)
	}
	set, _ := p.CmdSet()
	cmd, _ := p.Cmd()
	name, ok := commandNames[[2]uint8{set, cmd}]
	if !ok {
		name = fmt.Sprintf("%d.%d", set, cmd)
	}
	return fmt.Sprintf("%s id=%#08x len=%d %s", pterm.Magenta("<- command"), p.ID, p.Length, name)
}

// decodeVersionReply parses the VirtualMachine.Version reply payload: a
// description, the JDWP major and minor version, the VM version and the VM
// name.
func decodeVersionReply(b []byte) (versionInfo, error) {
	r := wire.NewReader(b)
	info := versionInfo{
		Description: r.String(),
		Major:       r.Int32(),
		Minor:       r.Int32(),
		VMVersion:   r.String(),
		VMName:      r.String(),
	}
	if err := r.Err(); err != nil {
		return versionInfo{}, fmt.Errorf("decode VirtualMachine.Version reply: %w", err)
	}
	return info, nil
}
