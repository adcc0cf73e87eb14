// Package symbolize maps addresses in the debugged process to source
// locations and back. Symbols are registered per module and queried by the
// mirror and stepping layers.
package symbolize

import "fmt"

// AddressRange is a half-open address interval [From, To).
type AddressRange struct {
	From uint64
	To   uint64
}

// Contains returns true if addr falls inside the range.
func (r AddressRange) Contains(addr uint64) bool {
	return addr >= r.From && addr < r.To
}

// Location is a symbolized address. File, Line and Function are zero values
// when the address has no symbols.
type Location struct {
	Address  uint64
	File     string
	Line     int
	Function string
}

// HasSymbols returns true if the location resolved to source information.
func (l Location) HasSymbols() bool {
	return l.File != "" || l.Function != ""
}

func (l Location) String() string {
	if !l.HasSymbols() {
		return fmt.Sprintf("0x%x", l.Address)
	}
	if l.Function != "" && l.File != "" {
		return fmt.Sprintf("%s at %s:%d", l.Function, l.File, l.Line)
	}
	if l.Function != "" {
		return l.Function
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// LineEntry is one line-table row: the instruction range generated for a
// source line. A single source line can produce several discontiguous
// entries.
type LineEntry struct {
	Range AddressRange
	File  string
	Line  int
}

// FuncSymbol describes one function: its entry point and the end of its
// instruction range.
type FuncSymbol struct {
	Name  string
	Entry uint64
	End   uint64
}

// ModuleSymbols is the symbol information for one loaded module. Lines must
// be sorted by Range.From and non-overlapping; Index.AddModule rejects
// nothing and assumes the loader produced well-formed tables.
type ModuleSymbols struct {
	Name      string
	Base      uint64
	BuildID   string
	Functions []FuncSymbol
	Lines     []LineEntry
}
