//go:build linux && amd64

package native

import (
	"syscall"

	sys "golang.org/x/sys/unix"
)

// ptraceCont executes ptrace PTRACE_CONT
func ptraceCont(pid, sig int) error {
	return sys.PtraceCont(pid, sig)
}

// ptraceSingleStep executes ptrace PTRACE_SINGLESTEP
func ptraceSingleStep(pid, sig int) error {
	_, _, e1 := sys.Syscall6(sys.SYS_PTRACE, uintptr(sys.PTRACE_SINGLESTEP), uintptr(pid), uintptr(0), uintptr(sig), 0, 0)
	if e1 != 0 {
		return e1
	}
	return nil
}

// ptracePeekWord executes ptrace PTRACE_PEEKDATA. The word is returned
// separately from the error, so a word with every bit set is not mistaken
// for a failure.
func ptracePeekWord(pid int, addr uint64) (uint64, error) {
	var buf [8]byte
	n, err := sys.PtracePeekData(pid, uintptr(addr), buf[:])
	if err != nil {
		return 0, err
	}
	if n != len(buf) {
		return 0, syscall.EIO
	}
	return wordFromBytes(buf[:]), nil
}

// ptracePokeWord executes ptrace PTRACE_POKEDATA.
func ptracePokeWord(pid int, addr, word uint64) error {
	var buf [8]byte
	for i := range buf {
		buf[i] = byte(word >> (8 * i))
	}
	n, err := sys.PtracePokeData(pid, uintptr(addr), buf[:])
	if err != nil {
		return err
	}
	if n != len(buf) {
		return syscall.EIO
	}
	return nil
}

func ptraceGetRegs(pid int, regs *Registers) error {
	return sys.PtraceGetRegs(pid, &regs.Regs)
}

func ptraceSetRegs(pid int, regs *Registers) error {
	return sys.PtraceSetRegs(pid, &regs.Regs)
}
