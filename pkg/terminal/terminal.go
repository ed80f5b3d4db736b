package terminal

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-delve/liner"

	"github.com/go-delve/mdb/pkg/config"
	"github.com/go-delve/mdb/pkg/debugger"
	"github.com/go-delve/mdb/pkg/logflags"
)

const (
	historyFile                 string = ".mdb_history"
	terminalHighlightEscapeCode string = "\033[%2dm"
	terminalResetEscapeCode     string = "\033[0m"
)

const ansiGreen = 32

// Term represents the terminal running mdb.
type Term struct {
	dbg    *debugger.Debugger
	conf   *config.Config
	prompt string
	// line is nil when the input is not a terminal, input is then read
	// line by line from in.
	line     *liner.State
	in       *bufio.Scanner
	cmds     *Commands
	stdout   io.Writer
	stderr   io.Writer
	colors   bool
	symbols  *symbolCompleter
	InitFile string

	log logflags.Logger
}

// New returns a new Term reading commands from the process's standard
// input.
func New(dbg *debugger.Debugger, conf *config.Config) *Term {
	dumb := strings.ToLower(os.Getenv("TERM")) == "dumb"
	t := newTerm(dbg, conf, os.Stdin, getColorableWriter(os.Stdout), getColorableWriter(os.Stderr))
	if isTerminal(os.Stdin) && !dumb {
		t.line = liner.NewLiner()
	}
	t.colors = !dumb && isTerminal(os.Stderr)
	return t
}

func newTerm(dbg *debugger.Debugger, conf *config.Config, in io.Reader, stdout, stderr io.Writer) *Term {
	if conf == nil {
		conf = &config.Config{}
	}
	cmds := DebugCommands()
	if conf.Aliases != nil {
		cmds.Merge(conf.Aliases)
	}
	cmds.window = conf.Window()
	return &Term{
		dbg:     dbg,
		conf:    conf,
		prompt:  "(mdb) ",
		in:      bufio.NewScanner(in),
		cmds:    cmds,
		stdout:  stdout,
		stderr:  stderr,
		symbols: newSymbolCompleter(cmds),
		log:     logflags.TerminalLogger(),
	}
}

// Close returns the terminal to its previous mode.
func (t *Term) Close() {
	if t.line != nil {
		t.line.Close()
	}
}

// sigintGuard keeps SIGINT from killing the debugger. The target is in the
// same process group, it receives the signal too and reports a stop.
func (t *Term) sigintGuard(ch <-chan os.Signal) {
	for range ch {
		t.log.Debug("received SIGINT")
	}
}

// Run begins running mdb in the terminal. It returns the exit status of
// the debugger.
func (t *Term) Run() (int, error) {
	defer t.Close()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT)
	defer signal.Stop(ch)
	go t.sigintGuard(ch)

	if t.line != nil {
		t.line.SetCtrlCAborts(true)
		t.line.SetCompleter(t.complete)
		t.readHistory()
		t.loadSymbols()
	}

	t.printBanner()

	if t.InitFile != "" {
		err := t.cmds.executeFile(t, t.InitFile)
		if err != nil {
			switch err.(type) {
			case ExitRequestError:
				return t.handleExit(true)
			case FatalError:
				t.handleExit(false)
				return 1, err
			}
			fmt.Fprintf(t.stderr, "Error executing init file: %s\n", err)
		}
	}

	for {
		cmdstr, err := t.promptForInput()
		if err != nil {
			if err == io.EOF {
				return t.handleExit(false)
			}
			if err == liner.ErrPromptAborted {
				continue
			}
			t.handleExit(false)
			return 1, fmt.Errorf("prompt for input failed: %w", err)
		}

		if err := t.cmds.Call(cmdstr, t); err != nil {
			switch err.(type) {
			case ExitRequestError:
				return t.handleExit(true)
			case FatalError:
				t.handleExit(false)
				return 1, err
			}
			fmt.Fprintf(t.stderr, "Command failed: %s\n", err)
		}
	}
}

func (t *Term) printBanner() {
	binary := ""
	if args := t.dbg.ProcessArgs(); len(args) > 0 {
		binary = args[0]
	}
	fmt.Fprintf(t.stdout, "\nMINIMAL DEBUGGER\n====================\n")
	fmt.Fprintf(t.stdout, "Binary loaded: %s\n", binary)
	fmt.Fprintf(t.stdout, "--------------------\n")
	fmt.Fprintf(t.stdout, "Supported Commands:\n")
	for i, cmd := range t.cmds.cmds {
		helpMsg := cmd.helpMsg
		if strings.Contains(helpMsg, "%d") {
			helpMsg = fmt.Sprintf(helpMsg, t.cmds.window)
		}
		fmt.Fprintf(t.stdout, "\t%d. %s\n", i+1, helpMsg)
	}
}

func (t *Term) promptForInput() (string, error) {
	if t.line == nil {
		fmt.Fprint(t.stdout, t.prompt)
		if !t.in.Scan() {
			if err := t.in.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		return t.in.Text(), nil
	}

	l, err := t.line.Prompt(t.prompt)
	if err != nil {
		return "", err
	}

	l = strings.TrimSuffix(l, "\n")
	if strings.TrimSpace(l) != "" {
		t.line.AppendHistory(l)
	}

	return l, nil
}

func (t *Term) complete(line string) []string {
	return t.symbols.complete(line)
}

func (t *Term) loadSymbols() {
	st, err := t.dbg.SymbolTable()
	if err != nil {
		t.log.WithError(err).Warn("symbol completion disabled")
		return
	}
	t.symbols.load(st.Functions())
}

func (t *Term) readHistory() {
	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Fprintf(t.stderr, "Unable to load history file: %v.\n", err)
		return
	}
	f, err := os.Open(fullHistoryFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			t.log.WithError(err).Warn("could not open history file")
		}
		return
	}
	defer f.Close()
	if _, err := t.line.ReadHistory(f); err != nil {
		t.log.WithError(err).Warn("could not read history file")
	}
}

func (t *Term) writeHistory() {
	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Fprintln(t.stderr, "Error saving history file:", err)
		return
	}
	var buf bytes.Buffer
	if _, err := t.line.WriteHistory(&buf); err != nil {
		fmt.Fprintln(t.stderr, "readline history error:", err)
		return
	}
	history := trimHistory(buf.Bytes(), t.conf.MaxHistory)
	if err := os.WriteFile(fullHistoryFile, history, 0o600); err != nil {
		t.log.WithError(err).Warn("could not write history file")
	}
}

// trimHistory keeps the last n lines of a history file, n <= 0 keeps
// everything.
func trimHistory(history []byte, n int) []byte {
	if n <= 0 {
		return history
	}
	lines := bytes.SplitAfter(history, []byte("\n"))
	if len(lines) > 0 && len(lines[len(lines)-1]) == 0 {
		lines = lines[:len(lines)-1]
	}
	if len(lines) <= n {
		return history
	}
	return bytes.Join(lines[len(lines)-n:], nil)
}

// handleExit saves the history and kills the target. A quit command exits
// with status 1.
func (t *Term) handleExit(quit bool) (int, error) {
	if t.line != nil {
		t.writeHistory()
	}
	if err := t.dbg.Detach(); err != nil {
		t.log.WithError(err).Warn("could not kill target")
	}
	if quit {
		fmt.Fprintf(t.stderr, "mdb: %s\n", ExitRequestError{}.Error())
		return 1, nil
	}
	return 0, nil
}
