package proc

import (
	"debug/elf"
	"errors"
	"fmt"

	"github.com/go-delve/mdb/pkg/logflags"
)

// ErrSymbolNotFound is returned when a symbol name has no entry in the
// symbol table, or when the binary has no symbol table at all.
var ErrSymbolNotFound = errors.New("Symbol not found")

// ErrUnsupportedArch is returned for executables that are not x86-64 ELF
// files.
var ErrUnsupportedArch = errors.New("unsupported architecture, only x86-64 ELF executables are supported")

// Symbol is an entry of an ELF .symtab section.
type Symbol struct {
	Name  string
	Value uint64
	Size  uint64
	Type  elf.SymType
}

// SymbolTable holds the entries of a binary's .symtab section in file
// order.
type SymbolTable struct {
	Path    string
	Symbols []Symbol
}

// LoadSymbolTable parses the .symtab section of the ELF file at path. A
// binary without a symbol table yields an empty table, not an error.
func LoadSymbolTable(path string) (*SymbolTable, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st := &SymbolTable{Path: path}
	syms, err := f.Symbols()
	if err != nil {
		if errors.Is(err, elf.ErrNoSymbols) {
			logflags.SymbolsLogger().Debugf("%s has no .symtab section", path)
			return st, nil
		}
		return nil, err
	}
	st.Symbols = make([]Symbol, 0, len(syms))
	for _, sym := range syms {
		st.Symbols = append(st.Symbols, Symbol{
			Name:  sym.Name,
			Value: sym.Value,
			Size:  sym.Size,
			Type:  elf.ST_TYPE(sym.Info),
		})
	}
	logflags.SymbolsLogger().Debugf("loaded %d symbols from %s", len(st.Symbols), path)
	return st, nil
}

// Lookup returns the value of the first symbol whose name is exactly name.
// Section and file symbols have no name and never match.
func (st *SymbolTable) Lookup(name string) (uint64, bool) {
	if name == "" {
		return 0, false
	}
	for i := range st.Symbols {
		if st.Symbols[i].Name == name {
			return st.Symbols[i].Value, true
		}
	}
	return 0, false
}

// Functions returns the names of all function symbols.
func (st *SymbolTable) Functions() []string {
	var r []string
	for i := range st.Symbols {
		if st.Symbols[i].Type == elf.STT_FUNC && st.Symbols[i].Name != "" {
			r = append(r, st.Symbols[i].Name)
		}
	}
	return r
}

// LookupSymbol resolves name to its link time address by parsing the
// symbol table of the binary at path. The binary is parsed again on every
// call.
func LookupSymbol(path, name string) (uint64, error) {
	st, err := LoadSymbolTable(path)
	if err != nil {
		return 0, err
	}
	addr, ok := st.Lookup(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrSymbolNotFound, name)
	}
	logflags.SymbolsLogger().Debugf("resolved %s to %#x", name, addr)
	return addr, nil
}

// BinaryInfo describes the executable being debugged.
type BinaryInfo struct {
	Path string
	// Entry is the entry point recorded in the ELF header.
	Entry uint64
	// PIE is true for position independent executables, whose symbol
	// values must be relocated by the load bias of the running process.
	PIE bool
}

// LoadBinaryInfo reads the ELF header of the executable at path.
func LoadBinaryInfo(path string) (*BinaryInfo, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if f.Class != elf.ELFCLASS64 || f.Machine != elf.EM_X86_64 {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedArch)
	}
	return &BinaryInfo{
		Path:  path,
		Entry: f.Entry,
		PIE:   f.Type == elf.ET_DYN,
	}, nil
}

// LoadBias returns the difference between the run time and link time
// addresses, given the entry point reported by the running process.
func (bi *BinaryInfo) LoadBias(runtimeEntry uint64) uint64 {
	if !bi.PIE || runtimeEntry == 0 {
		return 0
	}
	return runtimeEntry - bi.Entry
}
