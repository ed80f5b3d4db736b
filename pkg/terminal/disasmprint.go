package terminal

import (
	"bufio"
	"fmt"
	"io"

	"github.com/go-delve/mdb/pkg/proc"
)

// disasmPrint writes one instruction per line, the first one marked with
// an arrow.
func disasmPrint(dv []proc.AsmInstruction, out io.Writer, colors bool) {
	bw := bufio.NewWriter(out)
	defer bw.Flush()
	for i, inst := range dv {
		atpc := "   "
		if i == 0 {
			atpc = "=> "
			if colors {
				atpc = fmt.Sprintf(terminalHighlightEscapeCode, ansiGreen) + "=>" + terminalResetEscapeCode + " "
			}
		}
		fmt.Fprintf(bw, "%s%#x:\t%s\t\t%s\n", atpc, inst.Addr, inst.Mnemonic, inst.Operands)
	}
}
