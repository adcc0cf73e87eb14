package symbolize

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
)

// symbolFile is the on-disk representation of a module's symbol table.
// Addresses are module-relative; the loader rebases them to the load address.
type symbolFile struct {
	Functions []struct {
		Name  string `json:"name"`
		Entry uint64 `json:"entry"`
		End   uint64 `json:"end"`
	} `json:"functions"`
	Lines []struct {
		From uint64 `json:"from"`
		To   uint64 `json:"to"`
		File string `json:"file"`
		Line int    `json:"line"`
	} `json:"lines"`
}

// LoadModuleSymbols searches dirs for a symbol file named after the module's
// build id ("<buildID>.sym") and returns the rebased symbol tables. The first
// directory containing the file wins.
func LoadModuleSymbols(dirs []string, name string, base uint64, buildID string) (*ModuleSymbols, error) {
	if buildID == "" {
		return nil, fmt.Errorf("module %s has no build id", name)
	}
	for _, dir := range dirs {
		path := filepath.Join(dir, buildID+".sym")
		data, err := ioutil.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		var sf symbolFile
		if err := json.Unmarshal(data, &sf); err != nil {
			return nil, fmt.Errorf("malformed symbol file %s: %v", path, err)
		}
		syms := &ModuleSymbols{Name: name, Base: base, BuildID: buildID}
		for _, fn := range sf.Functions {
			syms.Functions = append(syms.Functions, FuncSymbol{
				Name:  fn.Name,
				Entry: base + fn.Entry,
				End:   base + fn.End,
			})
		}
		for _, ln := range sf.Lines {
			syms.Lines = append(syms.Lines, LineEntry{
				Range: AddressRange{From: base + ln.From, To: base + ln.To},
				File:  ln.File,
				Line:  ln.Line,
			})
		}
		return syms, nil
	}
	return nil, fmt.Errorf("no symbol file for build id %s", buildID)
}
