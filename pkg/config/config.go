package config

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"

	"github.com/cosiner/argv"
	"gopkg.in/yaml.v2"
)

const (
	configDir    string = ".mdb"
	xdgConfigDir string = "mdb"
	configFile   string = "config.yml"

	// DefaultDisassembleWindow is the number of bytes shown by disas
	// without an argument and after a breakpoint is hit.
	DefaultDisassembleWindow = 48
)

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// Commands aliases.
	Aliases map[string][]string `yaml:"aliases"`

	// DisassembleFlavor is the syntax used by disas: att, intel or go.
	DisassembleFlavor string `yaml:"disassemble-flavor,omitempty"`

	// DisassembleWindow is the number of bytes disassembled by default.
	DisassembleWindow *int `yaml:"disassemble-window,omitempty"`

	// MaxHistory limits the number of lines kept in the history file.
	MaxHistory int `yaml:"max-history,omitempty"`

	// TargetArgs are the arguments passed to the target when none are
	// given on the command line, split like a shell would.
	TargetArgs string `yaml:"target-args,omitempty"`
}

// Window returns the configured disassembly window or the default one.
func (c *Config) Window() int {
	if c == nil || c.DisassembleWindow == nil || *c.DisassembleWindow < 0 {
		return DefaultDisassembleWindow
	}
	return *c.DisassembleWindow
}

// Args splits TargetArgs into an argument vector.
func (c *Config) Args() ([]string, error) {
	if c == nil || c.TargetArgs == "" {
		return nil, nil
	}
	v, err := argv.Argv(c.TargetArgs,
		func(s string) (string, error) {
			return "", fmt.Errorf("backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return nil, err
	}
	if len(v) != 1 {
		return nil, fmt.Errorf("illegal target-args '%s'", c.TargetArgs)
	}
	return v[0], nil
}

// LoadConfig attempts to populate a Config object from the config.yml file.
func LoadConfig() (*Config, error) {
	err := createConfigPath()
	if err != nil {
		return &Config{}, fmt.Errorf("could not create config directory: %v", err)
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return &Config{}, fmt.Errorf("unable to get config file path: %v", err)
	}

	f, err := os.Open(fullConfigFile)
	if err != nil {
		f, err = createDefaultConfig(fullConfigFile)
		if err != nil {
			return &Config{}, fmt.Errorf("error creating default config file: %v", err)
		}
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return &Config{}, fmt.Errorf("unable to read config data: %v", err)
	}

	var c Config
	err = yaml.Unmarshal(data, &c)
	if err != nil {
		return &Config{}, fmt.Errorf("unable to decode config file: %v", err)
	}

	return &c, nil
}

func createDefaultConfig(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("unable to create config file: %v", err)
	}
	err = writeDefaultConfig(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("unable to write default configuration: %v", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func writeDefaultConfig(f *os.File) error {
	_, err := f.WriteString(
		`# Configuration file for the mdb debugger.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# Provided aliases will be added to the default aliases for a given command.
aliases:
  # command: ["alias1", "alias2"]

# Syntax used by the disas command: att, intel or go.
# disassemble-flavor: att

# Number of bytes disassembled by disas without an argument.
# disassemble-window: 48

# Maximum number of lines saved in the history file.
# max-history: 100

# Arguments passed to the target program when none are given after "--".
# target-args: "-v 'some file'"
`)
	return err
}

// createConfigPath creates the directory structure at which all config files are saved.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
// $XDG_CONFIG_HOME/mdb is used when set, ~/.mdb otherwise.
func GetConfigFilePath(file string) (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, xdgConfigDir, file), nil
	}
	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}
	return filepath.Join(userHomeDir, configDir, file), nil
}
