package proc

import (
	"debug/elf"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	protest "github.com/go-delve/mdb/pkg/proc/test"
)

func TestMain(m *testing.M) {
	os.Exit(protest.RunTestsWithFixtures(m))
}

func elfSymbolValue(t *testing.T, path, name string) uint64 {
	f, err := elf.Open(path)
	require.NoError(t, err)
	defer f.Close()
	syms, err := f.Symbols()
	require.NoError(t, err)
	for _, s := range syms {
		if s.Name == name {
			return s.Value
		}
	}
	t.Fatalf("%s not in %s", name, path)
	return 0
}

func TestLookupSymbol(t *testing.T) {
	fixture := protest.BuildFixture(t, "calc")

	for _, name := range []string{"main", "addition", "subtraction"} {
		addr, err := LookupSymbol(fixture.Path, name)
		require.NoError(t, err, name)
		assert.NotZero(t, addr)
		assert.Equal(t, elfSymbolValue(t, fixture.Path, name), addr, name)
	}
}

func TestLookupSymbolNotFound(t *testing.T) {
	fixture := protest.BuildFixture(t, "calc")

	for _, name := range []string{"multiplication", "Addition", "add", ""} {
		_, err := LookupSymbol(fixture.Path, name)
		assert.True(t, errors.Is(err, ErrSymbolNotFound), "%q: %v", name, err)
	}
}

func TestLookupSymbolStripped(t *testing.T) {
	fixture := protest.BuildStrippedFixture(t, "calc")

	st, err := LoadSymbolTable(fixture.Path)
	require.NoError(t, err)
	assert.Empty(t, st.Symbols)

	_, err = LookupSymbol(fixture.Path, "main")
	assert.True(t, errors.Is(err, ErrSymbolNotFound), "%v", err)
}

func TestLookupSymbolIdempotent(t *testing.T) {
	fixture := protest.BuildFixture(t, "calc")

	first, err := LookupSymbol(fixture.Path, "addition")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := LookupSymbol(fixture.Path, "addition")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestLookupSymbolBadFile(t *testing.T) {
	_, err := LookupSymbol(filepath.Join(t.TempDir(), "missing"), "main")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrSymbolNotFound))

	notElf := filepath.Join(t.TempDir(), "not-elf")
	require.NoError(t, os.WriteFile(notElf, []byte("#!/bin/sh\necho hi\n"), 0o755))
	_, err = LookupSymbol(notElf, "main")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrSymbolNotFound))
}

func TestSymbolTableFunctions(t *testing.T) {
	fixture := protest.BuildFixture(t, "calc")

	st, err := LoadSymbolTable(fixture.Path)
	require.NoError(t, err)
	fns := st.Functions()
	assert.Contains(t, fns, "addition")
	assert.Contains(t, fns, "subtraction")
	assert.Contains(t, fns, "main")
}

func TestSymbolTableLookupFirstMatch(t *testing.T) {
	st := &SymbolTable{Symbols: []Symbol{
		{Name: "dup", Value: 1},
		{Name: "dup", Value: 2},
	}}
	addr, ok := st.Lookup("dup")
	assert.True(t, ok)
	assert.Equal(t, uint64(1), addr)

	empty := &SymbolTable{}
	_, ok = empty.Lookup("dup")
	assert.False(t, ok)
}

func TestLoadBinaryInfo(t *testing.T) {
	fixture := protest.BuildFixture(t, "calc")

	bi, err := LoadBinaryInfo(fixture.Path)
	require.NoError(t, err)
	assert.NotZero(t, bi.Entry)

	if bi.PIE {
		assert.Equal(t, uint64(0x1000), bi.LoadBias(bi.Entry+0x1000))
	} else {
		assert.Equal(t, uint64(0), bi.LoadBias(bi.Entry+0x1000))
	}
	assert.Equal(t, uint64(0), bi.LoadBias(0))
}
