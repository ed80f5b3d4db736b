package debugger

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/go-delve/mdb/pkg/logflags"
	"github.com/go-delve/mdb/pkg/proc"
	"github.com/go-delve/mdb/pkg/proc/native"
)

// DefaultDisassembleWindow is the number of bytes disassembled after a
// breakpoint hit and by a bare disassemble command.
const DefaultDisassembleWindow = 48

// MaxDisassembleSize is the largest byte count accepted by Disassemble.
const MaxDisassembleSize = 1 << 16

// DisassembleSizeError is returned when a disassembly request exceeds
// MaxDisassembleSize.
type DisassembleSizeError struct {
	Size int
}

func (e DisassembleSizeError) Error() string {
	return fmt.Sprintf("Cannot disassemble %d bytes, the limit is %d.", e.Size, MaxDisassembleSize)
}

// Debugger service.
//
// Debugger owns the traced process and the breakpoint list. The process is
// replaced on restart, the breakpoints survive it.
type Debugger struct {
	config *Config
	// arguments to launch a new process.
	processArgs []string

	processMutex sync.Mutex
	target       *native.Process
	bininfo      *proc.BinaryInfo
	breakpoints  *proc.BreakpointMap
	// bias is the load bias of target, zero unless the executable is
	// position independent.
	bias uint64

	log logflags.Logger
}

// Config provides the configuration to start a Debugger.
type Config struct {
	// WorkingDir is working directory of the new process.
	WorkingDir string

	// Flavour is the assembly syntax used for disassembly.
	Flavour proc.AssemblyFlavour

	// Window is the number of bytes disassembled after a breakpoint hit.
	// Zero means DefaultDisassembleWindow.
	Window int

	// Stdin, Stdout and Stderr of the target, nil means the debugger's.
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	// KeepASLR leaves address space randomization enabled for the target.
	KeepASLR bool
}

// State describes how the target stopped after a resume.
type State struct {
	Pid   int
	Event proc.StopEvent

	// BreakpointID is the number of the breakpoint that was hit, -1 if the
	// stop was not caused by a known breakpoint.
	BreakpointID int
	Breakpoint   *proc.Breakpoint

	// PC is the instruction pointer after the hit was served. For a
	// breakpoint hit it is the breakpoint address.
	PC uint64

	// Disassembly starts at PC, it is empty when the target exited.
	Disassembly []proc.AsmInstruction
}

// Exited returns true if the target terminated.
func (s *State) Exited() bool {
	return s.Event.Exited()
}

// New creates a new Debugger and launches processArgs[0] with the remaining
// elements as its arguments. The target is left stopped at its first
// instruction.
func New(config *Config, processArgs []string) (*Debugger, error) {
	if len(processArgs) == 0 {
		return nil, errors.New("no executable specified")
	}
	if config == nil {
		config = &Config{}
	}
	d := &Debugger{
		config:      config,
		processArgs: processArgs,
		breakpoints: proc.NewBreakpointMap(),
		log:         logflags.DebuggerLogger(),
	}

	d.log.Infof("launching process with args: %v", d.processArgs)
	p, err := d.launch()
	if err != nil {
		return nil, err
	}
	d.target = p

	d.bininfo, err = proc.LoadBinaryInfo(p.Path())
	if err != nil {
		p.Close()
		return nil, err
	}
	d.bias, err = d.loadBias(p)
	if err != nil {
		p.Close()
		return nil, err
	}
	return d, nil
}

func (d *Debugger) loadBias(p *native.Process) (uint64, error) {
	if !d.bininfo.PIE {
		return 0, nil
	}
	entry, err := p.EntryPoint()
	if err != nil {
		return 0, err
	}
	return d.bininfo.LoadBias(entry), nil
}

func (d *Debugger) launch() (*native.Process, error) {
	return native.Launch(d.processArgs, native.LaunchOptions{
		WorkingDir:  d.config.WorkingDir,
		Stdin:       d.config.Stdin,
		Stdout:      d.config.Stdout,
		Stderr:      d.config.Stderr,
		DisableASLR: !d.config.KeepASLR,
	})
}

func (d *Debugger) window() int {
	if d.config.Window > 0 {
		return d.config.Window
	}
	return DefaultDisassembleWindow
}

// ProcessPid returns the PID of the process the debugger is attached to.
func (d *Debugger) ProcessPid() int {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()
	return d.target.Pid()
}

// ProcessArgs returns the command line the target was launched with.
func (d *Debugger) ProcessArgs() []string {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()
	return d.target.Argv()
}

// Path returns the absolute path of the target executable.
func (d *Debugger) Path() string {
	return d.target.Path()
}

// Flavour returns the assembly syntax used for disassembly.
func (d *Debugger) Flavour() proc.AssemblyFlavour {
	return d.config.Flavour
}

// Running returns true if there is a live target process.
func (d *Debugger) Running() bool {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()
	return d.target.Alive()
}

// Detach kills the target and releases the tracer thread.
func (d *Debugger) Detach() error {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()
	return d.target.Close()
}

// Restart kills the target, if it is still alive, launches a new process
// and reapplies every breakpoint to it. When the executable is loaded at a
// different address the breakpoints move with it.
func (d *Debugger) Restart() error {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()
	return d.restart()
}

func (d *Debugger) restart() error {
	if err := d.target.Close(); err != nil {
		d.log.WithError(err).Warn("could not kill old process")
	}
	p, err := d.launch()
	if err != nil {
		return err
	}
	d.target = p
	bias, err := d.loadBias(p)
	if err != nil {
		return err
	}
	if bias != d.bias {
		d.log.Debugf("load bias changed from %#x to %#x", d.bias, bias)
		d.breakpoints.Rebase(d.bias, bias)
		d.bias = bias
	}
	d.log.WithField("pid", p.Pid()).Infof("restarted, reapplying %d breakpoints", d.breakpoints.Len())
	return d.breakpoints.ReapplyAll(p)
}

// ensureTarget starts a new process if the current one is gone.
func (d *Debugger) ensureTarget() error {
	if d.target.Alive() {
		return nil
	}
	return d.restart()
}

// CreateBreakpointAtSymbol resolves name in the symbol table of the target
// executable and sets a breakpoint at its address. Symbols of position
// independent executables are relocated by the load bias of the running
// process. A new process is launched if the target is not running.
func (d *Debugger) CreateBreakpointAtSymbol(name string) (int, proc.Breakpoint, error) {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()

	if err := d.ensureTarget(); err != nil {
		return -1, proc.Breakpoint{}, err
	}
	addr, err := proc.LookupSymbol(d.target.Path(), name)
	if err != nil {
		return -1, proc.Breakpoint{}, err
	}
	if d.bias != 0 {
		d.log.Debugf("relocating %s by %#x", name, d.bias)
		addr += d.bias
	}
	return d.createBreakpoint(addr)
}

// CreateBreakpoint sets a breakpoint at addr. A new process is launched if
// the target is not running.
func (d *Debugger) CreateBreakpoint(addr uint64) (int, proc.Breakpoint, error) {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()

	if err := d.ensureTarget(); err != nil {
		return -1, proc.Breakpoint{}, err
	}
	return d.createBreakpoint(addr)
}

func (d *Debugger) createBreakpoint(addr uint64) (int, proc.Breakpoint, error) {
	id, bp, err := d.breakpoints.Insert(d.target, addr)
	if err != nil {
		return id, proc.Breakpoint{}, err
	}
	d.log.Infof("created breakpoint %d at %#x", id, addr)
	return id, *bp, nil
}

// ClearBreakpoint deletes breakpoint number id. The breakpoints after it
// are renumbered.
func (d *Debugger) ClearBreakpoint(id int) (proc.Breakpoint, error) {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()

	var mem proc.MemoryReadWriter
	if d.target.Alive() {
		mem = d.target
	}
	bp, err := d.breakpoints.Delete(mem, id)
	if err != nil {
		return proc.Breakpoint{}, err
	}
	d.log.Infof("cleared breakpoint %d at %#x", id, bp.Addr)
	return *bp, nil
}

// Breakpoints returns a copy of the breakpoint list.
func (d *Debugger) Breakpoints() []proc.Breakpoint {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()
	return d.breakpoints.List()
}

// Run continues the target if it is alive, otherwise it starts a new
// process, reapplies the breakpoints and continues it.
func (d *Debugger) Run() (*State, error) {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()

	if !d.target.Alive() {
		if err := d.restart(); err != nil {
			return nil, err
		}
	}
	return d.resume()
}

// Continue resumes the target until the next stop.
func (d *Debugger) Continue() (*State, error) {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()

	if !d.target.Alive() {
		return nil, proc.ErrNotRunning
	}
	return d.resume()
}

func (d *Debugger) resume() (*State, error) {
	ev, err := d.target.Continue()
	if err != nil {
		return nil, err
	}
	state := &State{Pid: d.target.Pid(), Event: ev, BreakpointID: -1, PC: ev.PC}
	switch ev.Reason {
	case proc.StopExited, proc.StopKilled:
		d.log.Infof("process %d exited", ev.Pid)
		return state, nil
	case proc.StopTrap:
		return state, d.serveBreakpoint(state)
	}
	return state, d.disassembleState(state)
}

// serveBreakpoint handles a trap after a resume. If the trap was caused by
// a known breakpoint the original byte is restored and the instruction
// pointer rewound to the breakpoint address. The breakpoint stays disarmed
// until the next restart.
func (d *Debugger) serveBreakpoint(state *State) error {
	regs, err := d.target.Registers()
	if err != nil {
		return err
	}
	addr := regs.PC() - 1
	id, bp, ok := d.breakpoints.Find(addr)
	if !ok || !bp.Armed {
		d.log.Debugf("trap at %#x without a breakpoint", regs.PC())
		return d.disassembleState(state)
	}
	if err := d.breakpoints.Restore(d.target, bp); err != nil {
		return err
	}
	regs.SetPC(addr)
	if err := d.target.SetRegisters(regs); err != nil {
		return err
	}
	d.log.Infof("hit breakpoint %d at %#x", id, addr)
	state.BreakpointID = id
	hit := *bp
	state.Breakpoint = &hit
	state.PC = addr
	return d.disassembleState(state)
}

func (d *Debugger) disassembleState(state *State) error {
	insts, err := d.disassemble(state.PC, d.window())
	if err != nil {
		return err
	}
	state.Disassembly = insts
	return nil
}

// Step executes a single instruction.
func (d *Debugger) Step() (*State, error) {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()

	if !d.target.Alive() {
		return nil, proc.ErrNotRunning
	}
	ev, err := d.target.Step()
	if err != nil {
		return nil, err
	}
	return &State{Pid: d.target.Pid(), Event: ev, BreakpointID: -1, PC: ev.PC}, nil
}

// Disassemble decodes size bytes starting at the current instruction
// pointer.
func (d *Debugger) Disassemble(size int) ([]proc.AsmInstruction, error) {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()

	if size > MaxDisassembleSize {
		return nil, DisassembleSizeError{Size: size}
	}
	if !d.target.Alive() {
		return nil, proc.ErrNotRunning
	}
	regs, err := d.target.Registers()
	if err != nil {
		return nil, err
	}
	return d.disassemble(regs.PC(), size)
}

// disassemble reads size bytes at addr. Trap bytes of armed breakpoints are
// replaced with the original instruction bytes before decoding. A window
// running past the end of a mapping is cut short at the first unreadable
// word.
func (d *Debugger) disassemble(addr uint64, size int) ([]proc.AsmInstruction, error) {
	if size <= 0 {
		return nil, nil
	}
	mem, err := d.target.ReadMemory(addr, size)
	if err != nil {
		if len(mem) == 0 {
			return nil, err
		}
		d.log.WithError(err).Debugf("disassembling %d of %d bytes at %#x", len(mem), size, addr)
	}
	for _, bp := range d.breakpoints.List() {
		if bp.Armed && bp.Addr >= addr && bp.Addr < addr+uint64(len(mem)) {
			mem[bp.Addr-addr] = byte(bp.OriginalData)
		}
	}
	var r []proc.AsmInstruction
	for inst := range proc.Disassemble(mem, addr, d.config.Flavour) {
		r = append(r, inst)
	}
	return r, nil
}

// SymbolTable parses the symbol table of the target executable.
func (d *Debugger) SymbolTable() (*proc.SymbolTable, error) {
	return proc.LoadSymbolTable(d.target.Path())
}

// IsFatal returns true for errors after which the target process can no
// longer be trusted.
func IsFatal(err error) bool {
	var perr *native.PtraceError
	return errors.As(err, &perr)
}

// ExitMessage formats the message printed when the target terminates.
func ExitMessage(ev proc.StopEvent) string {
	if ev.Reason == proc.StopKilled {
		return fmt.Sprintf("Process %d killed by signal %v", ev.Pid, ev.Signal)
	}
	return proc.ProcessExitedError{Pid: ev.Pid, Status: ev.ExitStatus}.Error()
}
