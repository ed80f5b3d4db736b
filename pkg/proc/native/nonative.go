//go:build !linux || !amd64

package native

import (
	"errors"
	"syscall"
)

// ErrNativeBackendDisabled is returned on platforms without ptrace support.
var ErrNativeBackendDisabled = errors.New("native backend disabled, only linux/amd64 is supported")

// Registers is empty on unsupported platforms.
type Registers struct{}

func (r *Registers) PC() uint64      { return 0 }
func (r *Registers) SetPC(pc uint64) {}

func launch(path string, argv []string, opts LaunchOptions) (int, error) {
	return 0, ErrNativeBackendDisabled
}

func wait(pid int, nohang bool) (int, waitResult, error) {
	return 0, waitResult{}, syscall.ECHILD
}

func kill(pid int) error { return ErrNativeBackendDisabled }

func entryPoint(pid int) (uint64, error) { return 0, ErrNativeBackendDisabled }

func ptraceCont(pid, sig int) error       { return ErrNativeBackendDisabled }
func ptraceSingleStep(pid, sig int) error { return ErrNativeBackendDisabled }

func ptracePeekWord(pid int, addr uint64) (uint64, error) {
	return 0, ErrNativeBackendDisabled
}

func ptracePokeWord(pid int, addr, word uint64) error { return ErrNativeBackendDisabled }

func ptraceGetRegs(pid int, regs *Registers) error { return ErrNativeBackendDisabled }
func ptraceSetRegs(pid int, regs *Registers) error { return ErrNativeBackendDisabled }
