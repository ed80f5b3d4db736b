package terminal

import (
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// getColorableWriter wraps f so that ANSI escapes are translated on
// consoles that do not understand them.
func getColorableWriter(f *os.File) io.Writer {
	return colorable.NewColorable(f)
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd())
}
