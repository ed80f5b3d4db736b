package proc

import (
	"fmt"
	"iter"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// AssemblyFlavour is the assembly syntax to display.
type AssemblyFlavour int

const (
	// GNUFlavour will display GNU (AT&T) assembly syntax.
	GNUFlavour = AssemblyFlavour(iota)
	// IntelFlavour will display Intel assembly syntax.
	IntelFlavour
	// GoFlavour will display Go assembly syntax.
	GoFlavour
)

// ParseAssemblyFlavour converts a flavour name as used on the command line
// and in the config file.
func ParseAssemblyFlavour(s string) (AssemblyFlavour, error) {
	switch strings.ToLower(s) {
	case "", "att", "gnu":
		return GNUFlavour, nil
	case "intel":
		return IntelFlavour, nil
	case "go":
		return GoFlavour, nil
	}
	return GNUFlavour, fmt.Errorf("unknown assembly flavour %q", s)
}

func (f AssemblyFlavour) String() string {
	switch f {
	case IntelFlavour:
		return "intel"
	case GoFlavour:
		return "go"
	}
	return "att"
}

// AsmInstruction represents one decoded instruction.
type AsmInstruction struct {
	Addr     uint64
	Bytes    []byte
	Mnemonic string
	Operands string
}

// Disassemble decodes mem, which was read from address base, as 64-bit x86
// code. Instructions are decoded lazily, in order, until the buffer is
// exhausted or an instruction cannot be decoded, a truncated instruction
// ends the sequence.
func Disassemble(mem []byte, base uint64, flavour AssemblyFlavour) iter.Seq[AsmInstruction] {
	return func(yield func(AsmInstruction) bool) {
		for off := 0; off < len(mem); {
			inst, err := x86asm.Decode(mem[off:], 64)
			if err != nil || inst.Op == 0 {
				// Op 0 is a lone prefix, what is left of an instruction cut
				// off by the end of the buffer.
				return
			}
			pc := base + uint64(off)
			mnemonic, operands := splitMnemonic(asmText(inst, pc, flavour))
			asmInst := AsmInstruction{
				Addr:     pc,
				Bytes:    mem[off : off+inst.Len],
				Mnemonic: mnemonic,
				Operands: operands,
			}
			if !yield(asmInst) {
				return
			}
			off += inst.Len
		}
	}
}

func asmText(inst x86asm.Inst, pc uint64, flavour AssemblyFlavour) string {
	switch flavour {
	case IntelFlavour:
		return x86asm.IntelSyntax(inst, pc, nil)
	case GoFlavour:
		return x86asm.GoSyntax(inst, pc, nil)
	default:
		return x86asm.GNUSyntax(inst, pc, nil)
	}
}

var instPrefixes = map[string]bool{
	"lock":    true,
	"rep":     true,
	"repe":    true,
	"repz":    true,
	"repne":   true,
	"repnz":   true,
	"REP;":    true,
	"REPN;":   true,
	"LOCK;":   true,
	"bnd":     true,
	"notrack": true,
	"data16":  true,
	"addr32":  true,
}

// splitMnemonic separates the mnemonic, including any prefixes, from the
// operand text.
func splitMnemonic(text string) (string, string) {
	fields := strings.Fields(text)
	i := 0
	for i < len(fields)-1 && instPrefixes[fields[i]] {
		i++
	}
	if len(fields) == 0 {
		return "", ""
	}
	return strings.Join(fields[:i+1], " "), strings.Join(fields[i+1:], " ")
}
