package symbolize

import (
	"testing"
)

func testModule() *ModuleSymbols {
	return &ModuleSymbols{
		Name:    "app",
		Base:    0x1000,
		BuildID: "abc123",
		Functions: []FuncSymbol{
			{Name: "main", Entry: 0x1000, End: 0x1100},
			{Name: "mainHelper", Entry: 0x1100, End: 0x1200},
			{Name: "worker", Entry: 0x2000, End: 0x2200},
		},
		Lines: []LineEntry{
			{Range: AddressRange{From: 0x1000, To: 0x1008}, File: "src/main.c", Line: 10},
			{Range: AddressRange{From: 0x1008, To: 0x1010}, File: "src/main.c", Line: 10},
			{Range: AddressRange{From: 0x1010, To: 0x1020}, File: "src/main.c", Line: 11},
			{Range: AddressRange{From: 0x2000, To: 0x2010}, File: "src/worker.c", Line: 5},
		},
	}
}

func TestLineDetailsForAddress(t *testing.T) {
	ix := NewIndex()
	ix.AddModule(testModule())

	details := ix.LineDetailsForAddress(0x100c)
	if len(details) != 2 {
		t.Fatalf("expected 2 contiguous entries, got %d", len(details))
	}
	if details[0].Range.From != 0x1000 || details[1].Range.To != 0x1010 {
		t.Errorf("unexpected run [0x%x, 0x%x)", details[0].Range.From, details[1].Range.To)
	}
	if details[0].Line != 10 {
		t.Errorf("expected line 10, got %d", details[0].Line)
	}

	if details := ix.LineDetailsForAddress(0x9000); len(details) != 0 {
		t.Errorf("expected no details for uncovered address, got %d", len(details))
	}

	// Boundary: 0x1010 belongs to line 11, not line 10.
	details = ix.LineDetailsForAddress(0x1010)
	if len(details) != 1 || details[0].Line != 11 {
		t.Errorf("expected single line 11 entry, got %v", details)
	}
}

func TestLocationForAddressAppliesPathSubstitution(t *testing.T) {
	ix := NewIndex()
	ix.AddModule(testModule())
	ix.SetPathSubstitutions([]PathSubstitution{
		{From: "lib/", To: "/vendor/lib/"},
		{From: "src/", To: "/home/dev/src/"},
	})

	loc := ix.LocationForAddress(0x100c)
	if loc.File != "/home/dev/src/main.c" {
		t.Errorf("substitution not applied: got %q", loc.File)
	}
	if loc.Line != 10 || loc.Function != "main" {
		t.Errorf("substitution altered line info: %s:%d in %q", loc.File, loc.Line, loc.Function)
	}

	// Paths matching no rule pass through untouched.
	ix.SetPathSubstitutions([]PathSubstitution{{From: "/other/", To: "/moved/"}})
	if loc := ix.LocationForAddress(0x100c); loc.File != "src/main.c" {
		t.Errorf("non-matching rule rewrote path to %q", loc.File)
	}
}

func TestLineDetailsCachedResultStable(t *testing.T) {
	ix := NewIndex()
	ix.AddModule(testModule())

	first := ix.LineDetailsForAddress(0x1004)
	second := ix.LineDetailsForAddress(0x1004)
	if len(first) != len(second) {
		t.Fatalf("cached result differs: %d vs %d", len(first), len(second))
	}

	// Removing the module must drop cached answers.
	ix.RemoveModule("app")
	if details := ix.LineDetailsForAddress(0x1004); len(details) != 0 {
		t.Errorf("cache served details for an unloaded module")
	}
}

func TestLocationForAddress(t *testing.T) {
	ix := NewIndex()
	ix.AddModule(testModule())

	loc := ix.LocationForAddress(0x100c)
	if loc.Function != "main" {
		t.Errorf("expected function main, got %q", loc.Function)
	}
	if loc.File != "src/main.c" || loc.Line != 10 {
		t.Errorf("unexpected file:line %s:%d", loc.File, loc.Line)
	}

	loc = ix.LocationForAddress(0x9000)
	if loc.HasSymbols() {
		t.Errorf("expected raw location, got %v", loc)
	}
	if loc.Address != 0x9000 {
		t.Errorf("location lost its address: %v", loc)
	}
}

func TestFindFunction(t *testing.T) {
	ix := NewIndex()
	ix.AddModule(testModule())

	fn, ok := ix.FindFunction("worker")
	if !ok {
		t.Fatal("worker not found")
	}
	if fn.Entry != 0x2000 {
		t.Errorf("unexpected entry 0x%x", fn.Entry)
	}

	if _, ok := ix.FindFunction("nope"); ok {
		t.Error("found a function that does not exist")
	}
}

func TestFunctionsMatching(t *testing.T) {
	ix := NewIndex()
	ix.AddModule(testModule())

	names := ix.FunctionsMatching("main")
	if len(names) != 2 || names[0] != "main" || names[1] != "mainHelper" {
		t.Errorf("unexpected matches %v", names)
	}
}

func TestResolveLocation(t *testing.T) {
	ix := NewIndex()
	ix.AddModule(testModule())

	addrs, err := ix.ResolveLocation("*0x2a00")
	if err != nil || len(addrs) != 1 || addrs[0] != 0x2a00 {
		t.Errorf("address spec: addrs=%v err=%v", addrs, err)
	}

	addrs, err = ix.ResolveLocation("0x2a00")
	if err != nil || len(addrs) != 1 || addrs[0] != 0x2a00 {
		t.Errorf("bare address spec: addrs=%v err=%v", addrs, err)
	}

	addrs, err = ix.ResolveLocation("worker")
	if err != nil || len(addrs) != 1 || addrs[0] != 0x2000 {
		t.Errorf("function spec: addrs=%v err=%v", addrs, err)
	}

	// Contiguous entries for the same line collapse to one address.
	addrs, err = ix.ResolveLocation("main.c:10")
	if err != nil || len(addrs) != 1 || addrs[0] != 0x1000 {
		t.Errorf("file:line spec: addrs=%v err=%v", addrs, err)
	}

	if _, err = ix.ResolveLocation("nope"); err == nil {
		t.Error("expected error for unknown function")
	}
	if _, err = ix.ResolveLocation("main.c:9999"); err == nil {
		t.Error("expected error for unknown line")
	}
	if _, err = ix.ResolveLocation(""); err == nil {
		t.Error("expected error for empty spec")
	}
	if _, err = ix.ResolveLocation("*0xzz"); err == nil {
		t.Error("expected error for malformed address")
	}
}

func TestModuleReplaceAndRemove(t *testing.T) {
	ix := NewIndex()
	ix.AddModule(testModule())

	replacement := &ModuleSymbols{
		Name: "app",
		Base: 0x1000,
		Functions: []FuncSymbol{
			{Name: "other", Entry: 0x3000, End: 0x3100},
		},
	}
	ix.AddModule(replacement)

	if _, ok := ix.FindFunction("main"); ok {
		t.Error("replaced module still answers old function lookups")
	}
	if _, ok := ix.FindFunction("other"); !ok {
		t.Error("replacement module function not found")
	}

	ix.RemoveModule("app")
	if _, ok := ix.FindFunction("other"); ok {
		t.Error("removed module still answers function lookups")
	}
	if ix.Module("app") != nil {
		t.Error("removed module still registered")
	}
}
