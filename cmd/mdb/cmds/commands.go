package cmds

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/go-delve/mdb/pkg/config"
	"github.com/go-delve/mdb/pkg/debugger"
	"github.com/go-delve/mdb/pkg/logflags"
	"github.com/go-delve/mdb/pkg/proc"
	"github.com/go-delve/mdb/pkg/terminal"
	"github.com/go-delve/mdb/pkg/version"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// initFile is the path to initialization file.
	initFile string
	// workingDir is the working directory for running the program.
	workingDir string
	// syntax is the assembly syntax used for disassembly.
	syntax string
	// keepASLR leaves address space randomization enabled.
	keepASLR bool

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config
)

const mdbCommandLongDesc = `mdb is a minimal debugger for x86-64 ELF executables on Linux.

mdb launches the program under ptrace and stops it before its first
instruction. Breakpoints can be set on function symbols or raw addresses,
the program can be resumed or single stepped, and the code at the current
instruction pointer can be disassembled.

Pass flags to the program you are debugging using ` + "`--`" + `, for example:

` + "`mdb ./calc -- 1 2`" + `

The --log-output flag takes a comma separated list of components that should
produce logs:

	debugger	Log debugger commands
	ptrace		Log ptrace requests and stop events
	symbols		Log symbol table loading
	terminal	Log parsed commands

If --log-dest is a number it is interpreted as a file descriptor, otherwise
as a file path.`

// New returns an initialized command tree.
func New() *cobra.Command {
	rootCommand = &cobra.Command{
		Use:     "mdb [flags] <binary> [-- args...]",
		Short:   "mdb is a minimal debugger for x86-64 ELF executables.",
		Long:    mdbCommandLongDesc,
		Version: version.MDBVersion.String(),
		RunE:    execRun,

		SilenceErrors: true,
		SilenceUsage:  true,
	}
	rootCommand.Flags().SetInterspersed(false)
	rootCommand.SetGlobalNormalizationFunc(normalizeFlagName)

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable debugger logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", "Comma separated list of components that should produce debug output.")
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor.")
	rootCommand.PersistentFlags().StringVar(&initFile, "init", "", "Init file, executed by the terminal before the first prompt.")
	rootCommand.PersistentFlags().StringVar(&workingDir, "wd", "", "Working directory for running the program.")
	rootCommand.PersistentFlags().StringVar(&syntax, "syntax", "", "Assembly syntax used for disassembly: att, intel or go (default from the config file, or att).")
	rootCommand.PersistentFlags().BoolVar(&keepASLR, "keep-aslr", false, "Do not disable address space randomization for the program.")

	rootCommand.SetVersionTemplate("mdb\n{{.Version}}\n")
	return rootCommand
}

// normalizeFlagName accepts underscores in place of dashes, so that
// --log_output and --log-output name the same flag.
func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// errNoBinary mirrors the usage error of the interactive tool.
type errNoBinary struct {
	argc int
}

func (e errNoBinary) Error() string {
	return fmt.Sprintf("Not enough arguments given: %d", e.argc)
}

func execRun(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return errNoBinary{argc: 1}
	}
	processArgs, targetArgs := splitArgs(cmd, args)
	os.Exit(execute(append(processArgs, targetArgs...)))
	return nil
}

// splitArgs separates the binary from the arguments of the program. The
// separator is optional since flag parsing stops at the binary.
func splitArgs(cmd *cobra.Command, args []string) ([]string, []string) {
	if dash := cmd.ArgsLenAtDash(); dash > 0 {
		return args[:dash], args[dash:]
	}
	if len(args) > 1 && args[1] == "--" {
		return args[:1], args[2:]
	}
	return args[:1], args[1:]
}

func execute(processArgs []string) int {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer logflags.Close()
	logflags.DebuggerLogger().Debugf("mdb %s\n%s", version.MDBVersion, version.BuildInfo())

	var err error
	conf, err = config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	if len(processArgs) == 1 {
		targetArgs, err := conf.Args()
		if err != nil {
			return fatalf("invalid target-args in config file: %v", err)
		}
		processArgs = append(processArgs, targetArgs...)
	}

	if syntax == "" {
		syntax = conf.DisassembleFlavor
	}
	flavour, err := proc.ParseAssemblyFlavour(syntax)
	if err != nil {
		return fatalf("%v", err)
	}

	d, err := debugger.New(&debugger.Config{
		WorkingDir: workingDir,
		Flavour:    flavour,
		Window:     conf.Window(),
		KeepASLR:   keepASLR,
	}, processArgs)
	if err != nil {
		return fatalf("Failed to execute the binary. Error: %v", err)
	}

	term := terminal.New(d, conf)
	term.InitFile = initFile
	status, err := term.Run()
	if err != nil {
		var fe terminal.FatalError
		if errors.As(err, &fe) {
			return fatalf("%v", fe.Err)
		}
		fmt.Fprintf(os.Stderr, "mdb: %v\n", err)
	}
	return status
}

// fatalf prints a diagnostic prefixed with the tool name and returns the
// failure exit status.
func fatalf(format string, args ...interface{}) int {
	fmt.Fprintf(os.Stderr, "mdb: "+format+"\n", args...)
	return 1
}
