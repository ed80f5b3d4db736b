package native

import (
	"fmt"

	sys "golang.org/x/sys/unix"
)

// Registers is the general purpose register set of a stopped tracee.
type Registers struct {
	Regs sys.PtraceRegs
}

// PC returns the instruction pointer.
func (r *Registers) PC() uint64 { return r.Regs.Rip }

// SetPC sets the instruction pointer.
func (r *Registers) SetPC(pc uint64) { r.Regs.Rip = pc }

// SP returns the stack pointer.
func (r *Registers) SP() uint64 { return r.Regs.Rsp }

// BP returns the frame pointer.
func (r *Registers) BP() uint64 { return r.Regs.Rbp }

func (r *Registers) String() string {
	return fmt.Sprintf("rip=%#x rsp=%#x rbp=%#x rax=%#x", r.PC(), r.SP(), r.BP(), r.Regs.Rax)
}
