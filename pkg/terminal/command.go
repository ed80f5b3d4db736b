// Package terminal implements the interactive command loop of mdb.
package terminal

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/go-delve/mdb/pkg/debugger"
	"github.com/go-delve/mdb/pkg/proc"
)

// CommandKind identifies a parsed command.
type CommandKind uint8

const (
	// CmdNone is an empty line.
	CmdNone CommandKind = iota
	CmdBreakSymbol
	CmdBreakAddress
	CmdList
	CmdDelete
	CmdRun
	CmdContinue
	CmdStep
	CmdDisassemble
	CmdQuit
)

func (k CommandKind) String() string {
	switch k {
	case CmdNone:
		return "none"
	case CmdBreakSymbol, CmdBreakAddress:
		return "break"
	case CmdList:
		return "list"
	case CmdDelete:
		return "delete"
	case CmdRun:
		return "run"
	case CmdContinue:
		return "continue"
	case CmdStep:
		return "stepinstruction"
	case CmdDisassemble:
		return "disassemble"
	case CmdQuit:
		return "quit"
	}
	return fmt.Sprintf("CommandKind(%d)", uint8(k))
}

// Command is a parsed command line.
type Command struct {
	Kind CommandKind
	// Symbol is the function name of CmdBreakSymbol.
	Symbol string
	// Addr is the address of CmdBreakAddress.
	Addr uint64
	// N is the breakpoint number of CmdDelete and the byte count of
	// CmdDisassemble.
	N int
}

// ErrUndefinedCommand is returned by Parse for lines that are not valid
// commands.
var ErrUndefinedCommand = errors.New("undefined command")

// ExitRequestError is returned when the user
// exits mdb.
type ExitRequestError struct{}

func (ere ExitRequestError) Error() string {
	return "Exiting mdb..."
}

// FatalError is returned when the debugging session cannot continue.
type FatalError struct {
	Err error
}

func (fe FatalError) Error() string {
	return fe.Err.Error()
}

func (fe FatalError) Unwrap() error { return fe.Err }

type command struct {
	kind    CommandKind
	aliases []string
	// builtinAliases is the alias list before config aliases were merged.
	builtinAliases []string
	helpMsg        string
}

// Returns true if the command string matches one of the aliases for this command
func (c command) match(cmdstr string) bool {
	for _, v := range c.aliases {
		if v == cmdstr {
			return true
		}
	}
	return false
}

// Commands is the table of verbs understood by the terminal.
type Commands struct {
	cmds []command
	// window is the byte count of a disassemble command without argument.
	window int
}

// DebugCommands returns the builtin command table.
func DebugCommands() *Commands {
	return &Commands{window: debugger.DefaultDisassembleWindow, cmds: []command{
		{kind: CmdBreakSymbol, aliases: []string{"b"}, helpMsg: "Add breakpoint command: b <function symbol>"},
		{kind: CmdBreakAddress, aliases: []string{"b"}, helpMsg: "Add breakpoint command: b *<address in hex>"},
		{kind: CmdList, aliases: []string{"l"}, helpMsg: "List all existing breakpoints command: l"},
		{kind: CmdDelete, aliases: []string{"d"}, helpMsg: "Delete a breakpoint command: d <b number>"},
		{kind: CmdRun, aliases: []string{"r"}, helpMsg: "Run the programm command: r"},
		{kind: CmdContinue, aliases: []string{"c"}, helpMsg: "Continue the execution command: c"},
		{kind: CmdStep, aliases: []string{"si"}, helpMsg: "Execute just a single instruction command: si"},
		{kind: CmdDisassemble, aliases: []string{"disas"}, helpMsg: "Disassemble next %d bytes command: disas"},
		{kind: CmdDisassemble, aliases: []string{"disas"}, helpMsg: "Disassemble next <n> bytes command: disas <n>"},
		{kind: CmdQuit, aliases: []string{"q"}, helpMsg: "Exit mdb command: q"},
	}}
}

// Merge takes aliases defined in the config struct and merges them with the
// default aliases. Keys are builtin verbs.
func (c *Commands) Merge(allAliases map[string][]string) {
	for i := range c.cmds {
		if c.cmds[i].builtinAliases != nil {
			c.cmds[i].aliases = append(c.cmds[i].aliases[:0], c.cmds[i].builtinAliases...)
		}
	}
	for i := range c.cmds {
		if aliases, ok := allAliases[c.cmds[i].aliases[0]]; ok {
			if c.cmds[i].builtinAliases == nil {
				c.cmds[i].builtinAliases = make([]string, len(c.cmds[i].aliases))
				copy(c.cmds[i].builtinAliases, c.cmds[i].aliases)
			}
			c.cmds[i].aliases = append(c.cmds[i].aliases, aliases...)
		}
	}
}

// verb translates an alias into its builtin verb.
func (c *Commands) verb(cmdstr string) (string, bool) {
	for _, cmd := range c.cmds {
		if cmd.match(cmdstr) {
			if cmd.builtinAliases != nil {
				return cmd.builtinAliases[0], true
			}
			return cmd.aliases[0], true
		}
	}
	return "", false
}

// Aliases returns every verb and alias, sorted.
func (c *Commands) Aliases() []string {
	seen := map[string]bool{}
	var r []string
	for _, cmd := range c.cmds {
		for _, a := range cmd.aliases {
			if !seen[a] {
				seen[a] = true
				r = append(r, a)
			}
		}
	}
	sort.Strings(r)
	return r
}

// Parse parses line using the builtin verbs only.
func Parse(line string) (Command, error) {
	return DebugCommands().Parse(line)
}

// Parse converts a command line into a Command. Every input yields either a
// Command or ErrUndefinedCommand; blank lines yield CmdNone.
func (c *Commands) Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{Kind: CmdNone}, nil
	}
	verb, ok := c.verb(fields[0])
	if !ok {
		return Command{}, ErrUndefinedCommand
	}
	args := fields[1:]

	switch verb {
	case "b":
		if len(args) != 1 {
			break
		}
		if !strings.HasPrefix(args[0], "*") {
			return Command{Kind: CmdBreakSymbol, Symbol: args[0]}, nil
		}
		addr, err := strconv.ParseUint(args[0][1:], 0, 64)
		if err != nil {
			break
		}
		return Command{Kind: CmdBreakAddress, Addr: addr}, nil
	case "d":
		if len(args) != 1 {
			break
		}
		n, ok := parseCount(args[0])
		if !ok {
			break
		}
		return Command{Kind: CmdDelete, N: n}, nil
	case "disas":
		switch len(args) {
		case 0:
			return Command{Kind: CmdDisassemble, N: c.window}, nil
		case 1:
			n, ok := parseCount(args[0])
			if !ok {
				break
			}
			return Command{Kind: CmdDisassemble, N: n}, nil
		}
	case "l", "r", "c", "si", "q":
		if len(args) != 0 {
			break
		}
		return Command{Kind: map[string]CommandKind{
			"l":  CmdList,
			"r":  CmdRun,
			"c":  CmdContinue,
			"si": CmdStep,
			"q":  CmdQuit,
		}[verb]}, nil
	}
	return Command{}, ErrUndefinedCommand
}

func parseCount(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Call parses and executes cmdstr.
func (c *Commands) Call(cmdstr string, t *Term) error {
	cmd, err := c.Parse(cmdstr)
	if err != nil {
		fmt.Fprintf(t.stderr, "Undefined command: %s\n", strings.TrimRight(cmdstr, "\r\n"))
		return nil
	}
	t.log.Debugf("command %s %+v", cmd.Kind, cmd)
	err = t.execute(cmd)
	if err == nil {
		return nil
	}
	if _, ok := err.(ExitRequestError); ok {
		return err
	}
	if debugger.IsFatal(err) {
		return FatalError{Err: err}
	}
	return err
}

func (t *Term) execute(cmd Command) error {
	switch cmd.Kind {
	case CmdNone:
		return nil
	case CmdBreakSymbol:
		return t.breakpoint(t.dbg.CreateBreakpointAtSymbol(cmd.Symbol))
	case CmdBreakAddress:
		return t.breakpoint(t.dbg.CreateBreakpoint(cmd.Addr))
	case CmdList:
		t.listBreakpoints()
		return nil
	case CmdDelete:
		return t.clearBreakpoint(cmd.N)
	case CmdRun:
		return t.printState(t.dbg.Run())
	case CmdContinue:
		state, err := t.dbg.Continue()
		if errors.Is(err, proc.ErrNotRunning) {
			fmt.Fprintln(t.stderr, "The program is not being run.")
			return nil
		}
		return t.printState(state, err)
	case CmdStep:
		return t.stepInstruction()
	case CmdDisassemble:
		return t.disassemble(cmd.N)
	case CmdQuit:
		return ExitRequestError{}
	}
	return fmt.Errorf("unknown command kind %d", cmd.Kind)
}

func (t *Term) breakpoint(id int, bp proc.Breakpoint, err error) error {
	if err != nil {
		var bpe proc.BreakpointExistsError
		switch {
		case errors.Is(err, proc.ErrSymbolNotFound):
			fmt.Fprintln(t.stderr, "Symbol not found")
			return nil
		case errors.As(err, &bpe):
			fmt.Fprintln(t.stderr, bpe.Error())
			return nil
		}
		return err
	}
	fmt.Fprintf(t.stderr, "Breakpoint %d at %#x\n", id, bp.Addr)
	return nil
}

func (t *Term) listBreakpoints() {
	fmt.Fprintln(t.stderr, "Breakpoint List:")
	fmt.Fprintf(t.stderr, "%-5s%-20s\n", "Num", "Address")
	for i, bp := range t.dbg.Breakpoints() {
		fmt.Fprintf(t.stderr, "%-5d%-20s\n", i, fmt.Sprintf("%#x", bp.Addr))
	}
}

func (t *Term) clearBreakpoint(id int) error {
	bp, err := t.dbg.ClearBreakpoint(id)
	if err != nil {
		var nbp proc.NoBreakpointError
		if errors.As(err, &nbp) {
			fmt.Fprintln(t.stdout, nbp.Error())
			return nil
		}
		return err
	}
	fmt.Fprintf(t.stderr, "Breakpoint %d at %#x deleted.\n", id, bp.Addr)
	return nil
}

func (t *Term) printState(state *debugger.State, err error) error {
	if err != nil {
		return err
	}
	switch {
	case state.Exited():
		fmt.Fprintln(t.stderr, debugger.ExitMessage(state.Event))
		return nil
	case state.Breakpoint != nil:
		fmt.Fprintf(t.stderr, "We 're on a breakpoint at %#x\n", state.PC)
	case state.Event.Reason == proc.StopSignal:
		fmt.Fprintf(t.stderr, "Program received signal %v at %#x\n", state.Event.Signal, state.PC)
	default:
		fmt.Fprintf(t.stderr, "We 've stopped at %#x\n", state.PC)
	}
	t.printDisassembly(state.Disassembly)
	return nil
}

func (t *Term) stepInstruction() error {
	state, err := t.dbg.Step()
	if errors.Is(err, proc.ErrNotRunning) {
		fmt.Fprintln(t.stderr, "No running process.")
		return nil
	}
	if err != nil {
		return err
	}
	if state.Exited() {
		fmt.Fprintln(t.stderr, debugger.ExitMessage(state.Event))
		return nil
	}
	fmt.Fprintln(t.stderr, "Single instruction executed.")
	fmt.Fprintf(t.stderr, "We 've stopped at %#x\n", state.PC)
	return nil
}

func (t *Term) disassemble(size int) error {
	insts, err := t.dbg.Disassemble(size)
	if errors.Is(err, proc.ErrNotRunning) {
		fmt.Fprintln(t.stderr, "No running process.")
		return nil
	}
	var dse debugger.DisassembleSizeError
	if errors.As(err, &dse) {
		fmt.Fprintln(t.stderr, dse.Error())
		return nil
	}
	if err != nil {
		return err
	}
	t.printDisassembly(insts)
	return nil
}

func (t *Term) printDisassembly(insts []proc.AsmInstruction) {
	if len(insts) == 0 {
		fmt.Fprintln(t.stderr, "ERROR: Failed to disassemble given code!")
		return
	}
	disasmPrint(insts, t.stderr, t.colors)
}

// executeFile runs the commands of an init file. Blank lines and lines
// starting with # are skipped.
func (c *Commands) executeFile(t *Term, name string) error {
	fh, err := os.Open(name)
	if err != nil {
		return err
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	lineno := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineno++

		if line == "" || line[0] == '#' {
			continue
		}

		if err := c.Call(line, t); err != nil {
			switch err.(type) {
			case ExitRequestError, FatalError:
				return err
			}
			fmt.Fprintf(t.stderr, "%s:%d: %v\n", name, lineno, err)
		}
	}

	return scanner.Err()
}
