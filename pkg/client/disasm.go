package client

import (
	"fmt"

	"github.com/quarry-dbg/quarry/pkg/remote"
	"golang.org/x/arch/x86/x86asm"
)

// AsmInstruction is one decoded instruction from the debugged process.
type AsmInstruction struct {
	Addr  uint64
	Size  int
	Bytes []byte
	Text  string
}

// Disassemble reads size bytes at addr from the process and decodes them as
// amd64 instructions. Undecodable or unreadable bytes become single-byte
// placeholder entries so the caller can still render the region.
func Disassemble(p *Process, addr uint64, size uint32, cb func([]AsmInstruction, error)) {
	p.ReadMemory(addr, size, func(blocks []remote.MemoryBlock, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		var out []AsmInstruction
		for _, block := range blocks {
			if !block.Valid {
				out = append(out, AsmInstruction{
					Addr: block.Address,
					Size: int(block.Size),
					Text: fmt.Sprintf("?? (%d unreadable bytes)", block.Size),
				})
				continue
			}
			out = append(out, decodeBlock(p, block)...)
		}
		cb(out, nil)
	})
}

func decodeBlock(p *Process, block remote.MemoryBlock) []AsmInstruction {
	var out []AsmInstruction
	mem := block.Data
	pc := block.Address
	symLookup := func(addr uint64) (string, uint64) {
		loc := p.session.sym.LocationForAddress(addr)
		if loc.Function == "" {
			return "", 0
		}
		return loc.Function, addr
	}
	for len(mem) > 0 {
		inst, err := x86asm.Decode(mem, 64)
		if err != nil {
			out = append(out, AsmInstruction{Addr: pc, Size: 1, Bytes: mem[:1], Text: "?"})
			mem = mem[1:]
			pc++
			continue
		}
		out = append(out, AsmInstruction{
			Addr:  pc,
			Size:  inst.Len,
			Bytes: mem[:inst.Len],
			Text:  x86asm.GoSyntax(inst, pc, symLookup),
		})
		mem = mem[inst.Len:]
		pc += uint64(inst.Len)
	}
	return out
}
