package terminal

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-delve/mdb/pkg/proc"
)

func TestParse(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{"", Command{Kind: CmdNone}},
		{"   \t ", Command{Kind: CmdNone}},
		{"b main", Command{Kind: CmdBreakSymbol, Symbol: "main"}},
		{"b  addition", Command{Kind: CmdBreakSymbol, Symbol: "addition"}},
		{"b *0x401126", Command{Kind: CmdBreakAddress, Addr: 0x401126}},
		{"b *4198694", Command{Kind: CmdBreakAddress, Addr: 4198694}},
		{"b *0X10", Command{Kind: CmdBreakAddress, Addr: 0x10}},
		{"l", Command{Kind: CmdList}},
		{"d 0", Command{Kind: CmdDelete, N: 0}},
		{"d 12", Command{Kind: CmdDelete, N: 12}},
		{"r", Command{Kind: CmdRun}},
		{"c", Command{Kind: CmdContinue}},
		{"si", Command{Kind: CmdStep}},
		{"disas", Command{Kind: CmdDisassemble, N: 48}},
		{"disas 0", Command{Kind: CmdDisassemble, N: 0}},
		{"disas 16", Command{Kind: CmdDisassemble, N: 16}},
		{"q", Command{Kind: CmdQuit}},
		{"q\n", Command{Kind: CmdQuit}},
	}
	for _, tc := range tests {
		got, err := Parse(tc.line)
		require.NoError(t, err, "%q", tc.line)
		assert.Equal(t, tc.want, got, "%q", tc.line)
	}
}

func TestParseUndefined(t *testing.T) {
	for _, line := range []string{
		"x",
		"b",
		"b main extra",
		"b *",
		"b *zz",
		"b *-1",
		"l 1",
		"d",
		"d x",
		"d -1",
		"d 1 2",
		"r now",
		"c 2",
		"si 1",
		"disas x",
		"disas -4",
		"disas 1 2",
		"q now",
		"quit",
		"B main",
	} {
		_, err := Parse(line)
		assert.True(t, errors.Is(err, ErrUndefinedCommand), "%q: %v", line, err)
	}
}

func TestMergeAliases(t *testing.T) {
	cmds := DebugCommands()
	cmds.Merge(map[string][]string{"c": {"cont", "continue"}, "b": {"break"}})

	got, err := cmds.Parse("cont")
	require.NoError(t, err)
	assert.Equal(t, CmdContinue, got.Kind)

	got, err = cmds.Parse("break *0x10")
	require.NoError(t, err)
	assert.Equal(t, Command{Kind: CmdBreakAddress, Addr: 0x10}, got)

	got, err = cmds.Parse("break main")
	require.NoError(t, err)
	assert.Equal(t, Command{Kind: CmdBreakSymbol, Symbol: "main"}, got)

	// merging again replaces the previous config aliases
	cmds.Merge(map[string][]string{"c": {"go"}})
	_, err = cmds.Parse("cont")
	assert.ErrorIs(t, err, ErrUndefinedCommand)
	got, err = cmds.Parse("go")
	require.NoError(t, err)
	assert.Equal(t, CmdContinue, got.Kind)

	// builtin verbs keep working
	got, err = cmds.Parse("c")
	require.NoError(t, err)
	assert.Equal(t, CmdContinue, got.Kind)
}

func TestComplete(t *testing.T) {
	cmds := DebugCommands()
	cmds.Merge(map[string][]string{"b": {"break"}})
	sc := newSymbolCompleter(cmds)

	assert.Equal(t, []string{"b", "break"}, sc.complete("b"))
	assert.Equal(t, []string{"disas"}, sc.complete("di"))
	assert.Empty(t, sc.complete("b ad"))

	sc.load([]string{"addition", "add_one", "main", "subtraction"})
	assert.Equal(t, []string{"b add_one", "b addition"}, sc.complete("b add"))
	assert.Equal(t, []string{"break main"}, sc.complete("break ma"))
	assert.Empty(t, sc.complete("b *0x"))
	assert.Empty(t, sc.complete("d ma"))
	assert.Empty(t, sc.complete("b "))
}

func TestTrimHistory(t *testing.T) {
	history := []byte("b main\nr\nc\nq\n")
	assert.Equal(t, history, trimHistory(history, 0))
	assert.Equal(t, history, trimHistory(history, 4))
	assert.Equal(t, []byte("c\nq\n"), trimHistory(history, 2))
}

func TestDisasmPrint(t *testing.T) {
	insts := []proc.AsmInstruction{
		{Addr: 0x401126, Mnemonic: "pushq", Operands: "%rbp"},
		{Addr: 0x401127, Mnemonic: "movq", Operands: "%rsp, %rbp"},
		{Addr: 0x40112a, Mnemonic: "nop"},
	}
	var buf bytes.Buffer
	disasmPrint(insts, &buf, false)
	assert.Equal(t, "=> 0x401126:\tpushq\t\t%rbp\n"+
		"   0x401127:\tmovq\t\t%rsp, %rbp\n"+
		"   0x40112a:\tnop\t\t\n", buf.String())

	buf.Reset()
	disasmPrint(insts[:1], &buf, true)
	assert.Equal(t, "\033[32m=>\033[0m 0x401126:\tpushq\t\t%rbp\n", buf.String())
}
