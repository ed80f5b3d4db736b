package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	conf, err := LoadConfig()
	require.NoError(t, err)
	assert.Empty(t, conf.Aliases)
	assert.Equal(t, DefaultDisassembleWindow, conf.Window())

	_, err = os.Stat(filepath.Join(dir, "mdb", "config.yml"))
	assert.NoError(t, err)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	require.NoError(t, createConfigPath())
	path, err := GetConfigFilePath(configFile)
	require.NoError(t, err)
	data := []byte(`aliases:
  c: [cont]
disassemble-flavor: intel
disassemble-window: 16
target-args: -v "two words"
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"cont"}, loaded.Aliases["c"])
	assert.Equal(t, "intel", loaded.DisassembleFlavor)
	assert.Equal(t, 16, loaded.Window())

	args, err := loaded.Args()
	require.NoError(t, err)
	assert.Equal(t, []string{"-v", "two words"}, args)
}

func TestArgs(t *testing.T) {
	var nilConf *Config
	args, err := nilConf.Args()
	assert.NoError(t, err)
	assert.Nil(t, args)

	_, err = (&Config{TargetArgs: "a `b`"}).Args()
	assert.Error(t, err)

	_, err = (&Config{TargetArgs: "a | b"}).Args()
	assert.Error(t, err)
}
