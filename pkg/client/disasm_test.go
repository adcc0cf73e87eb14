package client

import (
	"testing"

	"github.com/quarry-dbg/quarry/pkg/remote"
	"github.com/quarry-dbg/quarry/pkg/symbolize"
)

func TestDisassemble(t *testing.T) {
	_, agent, sym, _, p := newTestMirror()

	// push rbp; mov rbp, rsp; ret
	code := []byte{0x55, 0x48, 0x89, 0xe5, 0xc3}
	agent.readMemoryReply = remote.ReadMemoryReply{Blocks: []remote.MemoryBlock{
		{Address: 0x1000, Valid: true, Size: uint32(len(code)), Data: code},
	}}
	sym.locations[0x1000] = symbolize.Location{Address: 0x1000, Function: "main"}

	var insts []AsmInstruction
	Disassemble(p, 0x1000, uint32(len(code)), func(out []AsmInstruction, err error) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		insts = out
	})

	if len(insts) != 3 {
		t.Fatalf("expected 3 instructions, got %d", len(insts))
	}
	if insts[0].Addr != 0x1000 || insts[0].Size != 1 {
		t.Errorf("unexpected first instruction %+v", insts[0])
	}
	if insts[1].Addr != 0x1001 || insts[1].Size != 3 {
		t.Errorf("unexpected second instruction %+v", insts[1])
	}
	if insts[2].Addr != 0x1004 || insts[2].Text == "" {
		t.Errorf("unexpected third instruction %+v", insts[2])
	}
}

func TestDisassembleUnreadableBlock(t *testing.T) {
	_, agent, _, _, p := newTestMirror()

	agent.readMemoryReply = remote.ReadMemoryReply{Blocks: []remote.MemoryBlock{
		{Address: 0x1000, Valid: true, Size: 1, Data: []byte{0xc3}},
		{Address: 0x1001, Valid: false, Size: 7},
	}}

	var insts []AsmInstruction
	Disassemble(p, 0x1000, 8, func(out []AsmInstruction, err error) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		insts = out
	})

	if len(insts) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(insts))
	}
	gap := insts[1]
	if gap.Addr != 0x1001 || gap.Size != 7 {
		t.Errorf("unexpected gap entry %+v", gap)
	}
	if gap.Text != "?? (7 unreadable bytes)" {
		t.Errorf("unexpected gap text %q", gap.Text)
	}
}
