package proc

import (
	"fmt"
)

// BreakpointInstruction is the x86 int3 opcode written over the least
// significant byte of the word at a breakpoint address.
const BreakpointInstruction = 0xCC

// Breakpoint represents a software breakpoint. Stores the word of data
// that was at the breakpoint address before the trap byte replaced its
// least significant byte.
type Breakpoint struct {
	Addr         uint64 // Address breakpoint is set for.
	OriginalData uint64 // Word read at Addr before patching.

	// Armed is true while the trap byte is present in the process image.
	// A breakpoint that has been hit is restored and stays disarmed until
	// the process is restarted.
	Armed bool
}

// BreakpointExistsError is returned when trying to set a breakpoint at
// an address that already has a breakpoint set for it.
type BreakpointExistsError struct {
	ID   int
	Addr uint64
}

func (bpe BreakpointExistsError) Error() string {
	return fmt.Sprintf("Breakpoint %d already set at %#x", bpe.ID, bpe.Addr)
}

// NoBreakpointError is returned when trying to clear a breakpoint number
// that does not exist.
type NoBreakpointError struct {
	ID int
}

func (nbp NoBreakpointError) Error() string {
	return fmt.Sprintf("There is no breakpoint with number %d", nbp.ID)
}

// BreakpointMap holds the breakpoints of a debugging session in the order
// they were created. A breakpoint's number is its current index: deleting
// a breakpoint renumbers every breakpoint after it.
//
// The map outlives the processes it is applied to: after a restart
// ReapplyAll patches the new process image at the same addresses.
type BreakpointMap struct {
	bps []*Breakpoint
}

// NewBreakpointMap creates an empty breakpoint map.
func NewBreakpointMap() *BreakpointMap {
	return &BreakpointMap{}
}

// Len returns the number of breakpoints.
func (bpmap *BreakpointMap) Len() int {
	return len(bpmap.bps)
}

// Insert saves the word at addr, writes the trap byte over its least
// significant byte and appends a new breakpoint. It returns the number
// assigned to the breakpoint.
func (bpmap *BreakpointMap) Insert(mem MemoryReadWriter, addr uint64) (int, *Breakpoint, error) {
	if id, bp, ok := bpmap.Find(addr); ok {
		return id, bp, BreakpointExistsError{ID: id, Addr: addr}
	}
	bp := &Breakpoint{Addr: addr}
	if err := bp.arm(mem); err != nil {
		return -1, nil, err
	}
	bpmap.bps = append(bpmap.bps, bp)
	return len(bpmap.bps) - 1, bp, nil
}

// Delete removes breakpoint number id. If mem is not nil the trap byte is
// removed from the live process image first; pass nil when there is no
// live process.
func (bpmap *BreakpointMap) Delete(mem MemoryReadWriter, id int) (*Breakpoint, error) {
	if id < 0 || id >= len(bpmap.bps) {
		return nil, NoBreakpointError{ID: id}
	}
	bp := bpmap.bps[id]
	if mem != nil && bp.Armed {
		if err := bpmap.Restore(mem, bp); err != nil {
			return nil, err
		}
	}
	copy(bpmap.bps[id:], bpmap.bps[id+1:])
	bpmap.bps[len(bpmap.bps)-1] = nil
	bpmap.bps = bpmap.bps[:len(bpmap.bps)-1]
	return bp, nil
}

// List returns a copy of the breakpoints, indexed by breakpoint number.
func (bpmap *BreakpointMap) List() []Breakpoint {
	r := make([]Breakpoint, len(bpmap.bps))
	for i, bp := range bpmap.bps {
		r[i] = *bp
	}
	return r
}

// Find returns the breakpoint set at addr and its number.
func (bpmap *BreakpointMap) Find(addr uint64) (int, *Breakpoint, bool) {
	for i, bp := range bpmap.bps {
		if bp.Addr == addr {
			return i, bp, true
		}
	}
	return -1, nil, false
}

// ReapplyAll patches every breakpoint into a freshly launched process. The
// saved original word of each breakpoint is replaced with the word read
// from the new image.
func (bpmap *BreakpointMap) ReapplyAll(mem MemoryReadWriter) error {
	for _, bp := range bpmap.bps {
		bp.Armed = false
		if err := bp.arm(mem); err != nil {
			return err
		}
	}
	return nil
}

// Rebase moves every breakpoint from an image loaded with bias oldBias to
// the same place in an image loaded with bias newBias. It must be called
// before ReapplyAll, the breakpoints are not written to memory.
func (bpmap *BreakpointMap) Rebase(oldBias, newBias uint64) {
	if oldBias == newBias {
		return
	}
	for _, bp := range bpmap.bps {
		bp.Addr = bp.Addr - oldBias + newBias
		bp.Armed = false
	}
}

// Restore puts the original byte back at the breakpoint address and marks
// the breakpoint as disarmed. Only the least significant byte is written
// back, so traps of other breakpoints inside the same word survive.
func (bpmap *BreakpointMap) Restore(mem MemoryReadWriter, bp *Breakpoint) error {
	word, err := mem.PeekWord(bp.Addr)
	if err != nil {
		return err
	}
	word = (word &^ 0xff) | (bp.OriginalData & 0xff)
	if err := mem.PokeWord(bp.Addr, word); err != nil {
		return err
	}
	bp.Armed = false
	return nil
}

func (bp *Breakpoint) arm(mem MemoryReadWriter) error {
	word, err := mem.PeekWord(bp.Addr)
	if err != nil {
		return err
	}
	if err := mem.PokeWord(bp.Addr, (word&^0xff)|BreakpointInstruction); err != nil {
		return err
	}
	bp.OriginalData = word
	bp.Armed = true
	return nil
}
