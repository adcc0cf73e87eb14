package symbolize

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/derekparker/trie"
	lru "github.com/hashicorp/golang-lru"
	"github.com/quarry-dbg/quarry/pkg/logflags"
	"github.com/sirupsen/logrus"
)

const lineDetailsCacheSize = 4096

// Index holds the symbol tables of every loaded module and answers address
// and name queries. It is used from the session's dispatch loop only.
type Index struct {
	modules map[string]*ModuleSymbols
	funcs   *trie.Trie

	// merged line table of all modules, sorted by Range.From
	lines []LineEntry

	substitutions []PathSubstitution

	lineCache *lru.Cache
	log       *logrus.Entry
}

// PathSubstitution rewrites a source path prefix, for sources that moved
// between compilation and debugging.
type PathSubstitution struct {
	From string
	To   string
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	cache, _ := lru.New(lineDetailsCacheSize)
	return &Index{
		modules:   make(map[string]*ModuleSymbols),
		funcs:     trie.New(),
		lineCache: cache,
		log:       logflags.SymbolizeLogger(),
	}
}

// AddModule registers (or replaces) the symbols for one module.
func (ix *Index) AddModule(m *ModuleSymbols) {
	if old, ok := ix.modules[m.Name]; ok {
		ix.removeFunctions(old)
	}
	ix.modules[m.Name] = m
	for i := range m.Functions {
		ix.funcs.Add(m.Functions[i].Name, &m.Functions[i])
	}
	ix.rebuildLines()
	ix.log.Debugf("indexed module %s: %d functions, %d line entries", m.Name, len(m.Functions), len(m.Lines))
}

// RemoveModule drops the symbols of an unloaded module.
func (ix *Index) RemoveModule(name string) {
	m, ok := ix.modules[name]
	if !ok {
		return
	}
	ix.removeFunctions(m)
	delete(ix.modules, name)
	ix.rebuildLines()
}

// Module returns the registered symbols for name, or nil.
func (ix *Index) Module(name string) *ModuleSymbols {
	return ix.modules[name]
}

func (ix *Index) removeFunctions(m *ModuleSymbols) {
	for i := range m.Functions {
		ix.funcs.Remove(m.Functions[i].Name)
	}
}

func (ix *Index) rebuildLines() {
	ix.lineCache.Purge()
	n := 0
	for _, m := range ix.modules {
		n += len(m.Lines)
	}
	lines := make([]LineEntry, 0, n)
	for _, m := range ix.modules {
		lines = append(lines, m.Lines...)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Range.From < lines[j].Range.From })
	ix.lines = lines
}

// LineDetailsForAddress returns the ordered, contiguous line-table entries
// covering the source line that contains addr. The returned slice is empty
// when addr is not covered by any line table (unsymbolized code).
func (ix *Index) LineDetailsForAddress(addr uint64) []LineEntry {
	if v, ok := ix.lineCache.Get(addr); ok {
		return v.([]LineEntry)
	}

	i := sort.Search(len(ix.lines), func(i int) bool { return ix.lines[i].Range.To > addr })
	if i >= len(ix.lines) || !ix.lines[i].Range.Contains(addr) {
		ix.lineCache.Add(addr, []LineEntry(nil))
		return nil
	}

	// Expand to the contiguous run of entries for the same source line.
	first, last := i, i
	for first > 0 && sameLine(ix.lines[first-1], ix.lines[i]) && ix.lines[first-1].Range.To == ix.lines[first].Range.From {
		first--
	}
	for last < len(ix.lines)-1 && sameLine(ix.lines[last+1], ix.lines[i]) && ix.lines[last].Range.To == ix.lines[last+1].Range.From {
		last++
	}

	details := make([]LineEntry, last-first+1)
	copy(details, ix.lines[first:last+1])
	ix.lineCache.Add(addr, details)
	return details
}

func sameLine(a, b LineEntry) bool {
	return a.File == b.File && a.Line == b.Line
}

// SetPathSubstitutions installs the source path rewrite rules applied to
// symbolized locations.
func (ix *Index) SetPathSubstitutions(rules []PathSubstitution) {
	ix.substitutions = rules
}

func (ix *Index) substitutePath(path string) string {
	for _, r := range ix.substitutions {
		if strings.HasPrefix(path, r.From) {
			return r.To + path[len(r.From):]
		}
	}
	return path
}

// LocationForAddress symbolizes a single address. The result always carries
// the address, and source information when available. File paths have the
// substitution rules applied.
func (ix *Index) LocationForAddress(addr uint64) Location {
	loc := Location{Address: addr}
	if fn, ok := ix.functionForAddress(addr); ok {
		loc.Function = fn.Name
	}
	if details := ix.LineDetailsForAddress(addr); len(details) > 0 {
		loc.File = ix.substitutePath(details[0].File)
		loc.Line = details[0].Line
	}
	return loc
}

func (ix *Index) functionForAddress(addr uint64) (*FuncSymbol, bool) {
	for _, m := range ix.modules {
		for i := range m.Functions {
			fn := &m.Functions[i]
			if addr >= fn.Entry && addr < fn.End {
				return fn, true
			}
		}
	}
	return nil, false
}

// FindFunction looks up a function by its exact name.
func (ix *Index) FindFunction(name string) (*FuncSymbol, bool) {
	node, ok := ix.funcs.Find(name)
	if !ok {
		return nil, false
	}
	fn, ok := node.Meta().(*FuncSymbol)
	return fn, ok
}

// FunctionsMatching returns the names of all functions starting with prefix,
// for completion.
func (ix *Index) FunctionsMatching(prefix string) []string {
	names := ix.funcs.PrefixSearch(prefix)
	sort.Strings(names)
	return names
}

// ResolveLocation turns a location string into the addresses it names.
// Accepted forms:
//
//	*0x1234 or 0x1234  raw address
//	funcname           the function's entry point
//	file:line          the first address of every line entry for that line
func (ix *Index) ResolveLocation(spec string) ([]uint64, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("malformed location \"\": empty string")
	}

	addrExpr := spec
	if spec[0] == '*' {
		addrExpr = spec[1:]
	}
	if strings.HasPrefix(addrExpr, "0x") || strings.HasPrefix(addrExpr, "0X") {
		addr, err := strconv.ParseUint(addrExpr[2:], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed address location %q: %v", spec, err)
		}
		return []uint64{addr}, nil
	}

	if colon := strings.LastIndex(spec, ":"); colon >= 0 {
		file := spec[:colon]
		line, err := strconv.Atoi(spec[colon+1:])
		if err != nil {
			return nil, fmt.Errorf("malformed file:line location %q: %v", spec, err)
		}
		addrs := ix.addressesForLine(file, line)
		if len(addrs) == 0 {
			return nil, fmt.Errorf("could not find line %s:%d", file, line)
		}
		return addrs, nil
	}

	if fn, ok := ix.FindFunction(spec); ok {
		return []uint64{fn.Entry}, nil
	}
	return nil, fmt.Errorf("location %q not found", spec)
}

func (ix *Index) addressesForLine(file string, line int) []uint64 {
	var addrs []uint64
	prevEnd := uint64(0)
	for _, entry := range ix.lines {
		if entry.Line != line || !strings.HasSuffix(entry.File, file) {
			continue
		}
		// Contiguous entries for the same line count as one address.
		if entry.Range.From != prevEnd {
			addrs = append(addrs, entry.Range.From)
		}
		prevEnd = entry.Range.To
	}
	return addrs
}
