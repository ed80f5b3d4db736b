package native

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/go-delve/mdb/pkg/logflags"
	"github.com/go-delve/mdb/pkg/proc"
)

// LaunchOptions configures how the debuggee is started.
type LaunchOptions struct {
	// WorkingDir is the working directory of the debuggee, empty means the
	// debugger's own.
	WorkingDir string
	// Stdin, Stdout and Stderr default to the debugger's streams when nil.
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File
	// DisableASLR runs the debuggee with address space randomization
	// disabled, so that PIE load addresses are identical across restarts.
	DisableASLR bool
}

// PtraceError is a failed ptrace request. The session cannot be trusted
// after one of these.
type PtraceError struct {
	Op  string
	Pid int
	Err error
}

func (e *PtraceError) Error() string {
	return fmt.Sprintf("(%s) %v", e.Op, e.Err)
}

func (e *PtraceError) Unwrap() error { return e.Err }

// Process represents a traced child process.
type Process struct {
	pid  int
	path string
	argv []string

	state proc.State
	// pendingSig is the signal that stopped the process, delivered on the
	// next resume.
	pendingSig syscall.Signal

	// ptraceChan is used to execute ptrace requests on the goroutine that
	// owns the tracer thread.
	ptraceChan     chan func()
	ptraceDoneChan chan struct{}
	closed         bool

	log logflags.Logger
}

// newProcess returns an initialized Process struct. Before returning,
// it will invoke the method `handlePtraceFuncs` on its own goroutine.
func newProcess(path string, argv []string) *Process {
	dbp := &Process{
		path:           path,
		argv:           argv,
		state:          proc.StateNotStarted,
		ptraceChan:     make(chan func()),
		ptraceDoneChan: make(chan struct{}),
		log:            logflags.PtraceLogger(),
	}
	go dbp.handlePtraceFuncs()
	return dbp
}

// Launch starts argv[0] with the remaining elements as its arguments and
// leaves it stopped at its first instruction. If argv[0] cannot be found in
// PATH it is retried relative to the working directory.
func Launch(argv []string, opts LaunchOptions) (*Process, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, errors.New("no executable specified")
	}
	path, err := findExecutable(argv[0], opts.WorkingDir)
	if err != nil {
		return nil, err
	}

	dbp := newProcess(path, argv)
	var pid int
	dbp.execPtraceFunc(func() {
		pid, err = launch(path, argv, opts)
	})
	if err != nil {
		dbp.close()
		return nil, err
	}
	dbp.pid = pid
	dbp.state = proc.StateRunning
	dbp.log.WithField("pid", pid).Debugf("launched %s %q", path, argv[1:])
	return dbp, nil
}

func findExecutable(name, wd string) (string, error) {
	path, err := exec.LookPath(name)
	if err == nil {
		return filepath.Abs(path)
	}
	local := name
	if !filepath.IsAbs(local) {
		local = "./" + name
		if wd != "" {
			local = filepath.Join(wd, name)
		}
	}
	path, err2 := exec.LookPath(local)
	if err2 != nil {
		return "", fmt.Errorf("could not launch process: %w", err)
	}
	return filepath.Abs(path)
}

// Pid returns the process ID.
func (dbp *Process) Pid() int { return dbp.pid }

// Path returns the absolute path of the executable.
func (dbp *Process) Path() string { return dbp.path }

// Argv returns the command line the process was started with.
func (dbp *Process) Argv() []string { return dbp.argv }

// State returns the last known state. Use Alive to refresh it.
func (dbp *Process) State() proc.State { return dbp.state }


// Alive reports whether the process can still be traced. A process that
// has terminated since the last stop is reaped and marked exited.
func (dbp *Process) Alive() bool {
	if !dbp.state.Alive() {
		return false
	}
	var (
		wpid int
		ws   waitResult
		err  error
	)
	dbp.execPtraceFunc(func() { wpid, ws, err = wait(dbp.pid, true) })
	switch {
	case err != nil:
		// ECHILD: someone else reaped it
		dbp.log.WithError(err).Debug("wait probe failed, marking process exited")
		dbp.state = proc.StateExited
		return false
	case wpid == 0:
		return true
	case ws.exited || ws.signaled:
		dbp.setExited(ws)
		return false
	}
	return true
}

func (dbp *Process) setExited(ws waitResult) {
	dbp.state = proc.StateExited
	dbp.pendingSig = 0
	dbp.log.WithField("pid", dbp.pid).Debugf("reaped, exited=%v status=%d signal=%v", ws.exited, ws.exitStatus, ws.signal)
}

// Continue resumes the process and blocks until it stops or exits. A signal
// that caused the previous stop is delivered to the process.
func (dbp *Process) Continue() (proc.StopEvent, error) {
	if !dbp.state.Alive() {
		return proc.StopEvent{}, proc.ErrNotRunning
	}
	sig := dbp.pendingSig
	var err error
	dbp.execPtraceFunc(func() { err = ptraceCont(dbp.pid, int(sig)) })
	if err != nil {
		return proc.StopEvent{}, &PtraceError{Op: "cont", Pid: dbp.pid, Err: err}
	}
	dbp.pendingSig = 0
	ev, err := dbp.waitStop()
	if err != nil {
		return ev, err
	}
	if ev.Reason == proc.StopTrap {
		dbp.state = proc.StateStoppedAtBreakpoint
	}
	return ev, nil
}

// Step executes exactly one instruction.
func (dbp *Process) Step() (proc.StopEvent, error) {
	if !dbp.state.Alive() {
		return proc.StopEvent{}, proc.ErrNotRunning
	}
	sig := dbp.pendingSig
	var err error
	dbp.execPtraceFunc(func() { err = ptraceSingleStep(dbp.pid, int(sig)) })
	if err != nil {
		return proc.StopEvent{}, &PtraceError{Op: "singlestep", Pid: dbp.pid, Err: err}
	}
	dbp.pendingSig = 0
	ev, err := dbp.waitStop()
	if err != nil {
		return ev, err
	}
	if ev.Reason == proc.StopTrap {
		dbp.state = proc.StateSingleStepped
	}
	return ev, nil
}

// waitStop blocks until the process stops or terminates and translates the
// wait status into a stop event.
func (dbp *Process) waitStop() (proc.StopEvent, error) {
	ev := proc.StopEvent{Pid: dbp.pid}
	var (
		ws  waitResult
		err error
	)
	dbp.execPtraceFunc(func() { _, ws, err = wait(dbp.pid, false) })
	if err != nil {
		dbp.state = proc.StateExited
		return ev, &PtraceError{Op: "wait", Pid: dbp.pid, Err: err}
	}
	switch {
	case ws.exited:
		dbp.setExited(ws)
		ev.Reason = proc.StopExited
		ev.ExitStatus = ws.exitStatus
		dbp.log.WithField("pid", dbp.pid).Debugf("exited with status %d", ws.exitStatus)
		return ev, nil
	case ws.signaled:
		dbp.setExited(ws)
		ev.Reason = proc.StopKilled
		ev.Signal = ws.signal
		dbp.log.WithField("pid", dbp.pid).Debugf("killed by %v", ws.signal)
		return ev, nil
	}

	regs, err := dbp.Registers()
	if err != nil {
		return ev, err
	}
	ev.PC = regs.PC()
	if ws.stopSignal == syscall.SIGTRAP {
		ev.Reason = proc.StopTrap
	} else {
		ev.Reason = proc.StopSignal
		ev.Signal = ws.stopSignal
		dbp.pendingSig = ws.stopSignal
		dbp.state = proc.StateStoppedBySignal
	}
	dbp.log.WithField("pid", dbp.pid).Debugf("stopped by %v: %s", ws.stopSignal, regs)
	return ev, nil
}

// Registers returns the general purpose registers of the stopped process.
func (dbp *Process) Registers() (*Registers, error) {
	if !dbp.state.Alive() {
		return nil, proc.ErrNotRunning
	}
	regs := new(Registers)
	var err error
	dbp.execPtraceFunc(func() { err = ptraceGetRegs(dbp.pid, regs) })
	if err != nil {
		return nil, &PtraceError{Op: "getregs", Pid: dbp.pid, Err: err}
	}
	return regs, nil
}

// SetRegisters writes the general purpose registers of the stopped process.
func (dbp *Process) SetRegisters(regs *Registers) error {
	if !dbp.state.Alive() {
		return proc.ErrNotRunning
	}
	var err error
	dbp.execPtraceFunc(func() { err = ptraceSetRegs(dbp.pid, regs) })
	if err != nil {
		return &PtraceError{Op: "setregs", Pid: dbp.pid, Err: err}
	}
	return nil
}

// PeekWord reads the 8 byte word at addr.
func (dbp *Process) PeekWord(addr uint64) (uint64, error) {
	if !dbp.state.Alive() {
		return 0, proc.ErrNotRunning
	}
	var (
		word uint64
		err  error
	)
	dbp.execPtraceFunc(func() { word, err = ptracePeekWord(dbp.pid, addr) })
	if err != nil {
		return 0, &PtraceError{Op: "peekdata", Pid: dbp.pid, Err: err}
	}
	return word, nil
}

// PokeWord writes the 8 byte word at addr.
func (dbp *Process) PokeWord(addr, word uint64) error {
	if !dbp.state.Alive() {
		return proc.ErrNotRunning
	}
	var err error
	dbp.execPtraceFunc(func() { err = ptracePokeWord(dbp.pid, addr, word) })
	if err != nil {
		return &PtraceError{Op: "pokedata", Pid: dbp.pid, Err: err}
	}
	return nil
}

// MaxReadMemory is the largest size accepted by ReadMemory.
const MaxReadMemory = 1 << 20

// ReadMemory reads size bytes starting at addr one word at a time. If a
// word cannot be read the bytes read before it are returned together with
// the error.
func (dbp *Process) ReadMemory(addr uint64, size int) ([]byte, error) {
	if size <= 0 {
		return nil, nil
	}
	if size > MaxReadMemory {
		return nil, fmt.Errorf("cannot read %d bytes of memory, the limit is %d", size, MaxReadMemory)
	}
	buf := make([]byte, 0, (size+7)&^7)
	for off := uint64(0); len(buf) < size; off += 8 {
		word, err := dbp.PeekWord(addr + off)
		if err != nil {
			return buf, err
		}
		buf = appendWord(buf, word)
	}
	return buf[:size], nil
}

func appendWord(buf []byte, word uint64) []byte {
	for i := 0; i < 8; i++ {
		buf = append(buf, byte(word>>(8*i)))
	}
	return buf
}

// EntryPoint returns the run time address of the program entry point as
// reported by the kernel in the auxiliary vector.
func (dbp *Process) EntryPoint() (uint64, error) {
	if !dbp.state.Alive() {
		return 0, proc.ErrNotRunning
	}
	return entryPoint(dbp.pid)
}

// Kill terminates the process and reaps it. Killing a process that has
// already exited is not an error.
func (dbp *Process) Kill() error {
	if !dbp.Alive() {
		return nil
	}
	var err error
	dbp.execPtraceFunc(func() {
		if err = kill(dbp.pid); err != nil {
			return
		}
		for {
			var ws waitResult
			_, ws, err = wait(dbp.pid, false)
			if err != nil || ws.exited || ws.signaled {
				return
			}
		}
	})
	dbp.state = proc.StateExited
	dbp.pendingSig = 0
	if err != nil && !errors.Is(err, syscall.ECHILD) && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	dbp.log.WithField("pid", dbp.pid).Debug("killed")
	return nil
}

// Close kills the process if it is still alive and releases the tracer
// thread. The Process must not be used afterwards.
func (dbp *Process) Close() error {
	if dbp.closed {
		return nil
	}
	err := dbp.Kill()
	dbp.close()
	return err
}

func (dbp *Process) close() {
	if !dbp.closed {
		dbp.closed = true
		close(dbp.ptraceChan)
	}
}

func (dbp *Process) handlePtraceFuncs() {
	// We must ensure here that we are running on the same thread during
	// while invoking the ptrace(2) syscall. The kernel only accepts
	// requests from the thread that started the tracee.
	runtime.LockOSThread()

	for fn := range dbp.ptraceChan {
		fn()
		dbp.ptraceDoneChan <- struct{}{}
	}
	runtime.UnlockOSThread()
}

func (dbp *Process) execPtraceFunc(fn func()) {
	dbp.ptraceChan <- fn
	<-dbp.ptraceDoneChan
}

// waitResult is the decoded status of a wait4 call.
type waitResult struct {
	exited     bool
	exitStatus int
	signaled   bool
	signal     syscall.Signal
	stopped    bool
	stopSignal syscall.Signal
}
