package proc

import (
	"errors"
	"fmt"
	"syscall"
)

// State is the lifecycle state of a traced process.
type State uint8

const (
	// StateNotStarted is the state of a session whose process was never
	// launched.
	StateNotStarted State = iota
	// StateRunning means the process was launched and has not reported a
	// stop event since it was last resumed. A freshly launched process is
	// in this state while it sits at its initial exec stop.
	StateRunning
	// StateStoppedAtBreakpoint means the process stopped on a SIGTRAP
	// after being continued.
	StateStoppedAtBreakpoint
	// StateSingleStepped means the process stopped after executing exactly
	// one instruction.
	StateSingleStepped
	// StateStoppedBySignal means the process stopped on a signal other than
	// SIGTRAP. The signal is delivered on the next resume.
	StateStoppedBySignal
	// StateExited means the process has terminated and has been reaped.
	StateExited
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not started"
	case StateRunning:
		return "running"
	case StateStoppedAtBreakpoint:
		return "stopped at breakpoint"
	case StateSingleStepped:
		return "single stepped"
	case StateStoppedBySignal:
		return "stopped by signal"
	case StateExited:
		return "exited"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Alive returns true if a process in this state can be inspected and
// resumed.
func (s State) Alive() bool {
	switch s {
	case StateRunning, StateStoppedAtBreakpoint, StateSingleStepped, StateStoppedBySignal:
		return true
	}
	return false
}

// StopReason describes why a resumed process handed control back.
type StopReason uint8

const (
	// StopTrap is a SIGTRAP stop: a breakpoint or the end of a single step.
	StopTrap StopReason = iota
	// StopSignal is a stop caused by any other signal.
	StopSignal
	// StopExited is a normal process exit.
	StopExited
	// StopKilled is a process termination caused by a signal.
	StopKilled
)

// StopEvent is what a blocking resume (continue or single step) reports.
type StopEvent struct {
	Pid    int
	Reason StopReason
	// PC is the instruction pointer at the stop. Valid for StopTrap and
	// StopSignal.
	PC uint64
	// Signal is the stop signal for StopSignal and the terminating signal
	// for StopKilled.
	Signal syscall.Signal
	// ExitStatus is valid for StopExited.
	ExitStatus int
}

// Exited returns true if the event terminated the process.
func (ev StopEvent) Exited() bool {
	return ev.Reason == StopExited || ev.Reason == StopKilled
}

// ErrNotRunning is returned by operations that need a live process when
// there is none.
var ErrNotRunning = errors.New("the program is not being run")

// ProcessExitedError indicates that the process has exited and contains both
// process id and exit status.
type ProcessExitedError struct {
	Pid    int
	Status int
}

func (pe ProcessExitedError) Error() string {
	return fmt.Sprintf("Process %d exited with status %d", pe.Pid, pe.Status)
}
