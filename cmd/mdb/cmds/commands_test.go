package cmds

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		cmdline     []string
		process     []string
		target      []string
		keepASLR    bool
		syntaxValue string
	}{
		{[]string{"./calc"}, []string{"./calc"}, []string{}, false, ""},
		{[]string{"./calc", "1", "2"}, []string{"./calc"}, []string{"1", "2"}, false, ""},
		{[]string{"./calc", "--", "1", "2"}, []string{"./calc"}, []string{"1", "2"}, false, ""},
		{[]string{"./calc", "--log", "-x"}, []string{"./calc"}, []string{"--log", "-x"}, false, ""},
		{[]string{"--keep-aslr", "--syntax", "intel", "./calc", "-v"}, []string{"./calc"}, []string{"-v"}, true, "intel"},
		{[]string{"--keep_aslr", "./calc"}, []string{"./calc"}, []string{}, true, ""},
		{[]string{"--", "./calc", "a"}, []string{"./calc"}, []string{"a"}, false, ""},
	}
	for _, tc := range tests {
		keepASLR, syntax = false, ""
		cmd := New()
		require.NoError(t, cmd.ParseFlags(tc.cmdline), "%q", tc.cmdline)
		process, target := splitArgs(cmd, cmd.Flags().Args())
		assert.Equal(t, tc.process, process, "%q", tc.cmdline)
		assert.Equal(t, tc.target, target, "%q", tc.cmdline)
		assert.Equal(t, tc.keepASLR, keepASLR, "%q", tc.cmdline)
		assert.Equal(t, tc.syntaxValue, syntax, "%q", tc.cmdline)
	}
}

func TestNoBinary(t *testing.T) {
	cmd := New()
	cmd.SetArgs([]string{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, "Not enough arguments given: 1", err.Error())
}

func TestVersionFlag(t *testing.T) {
	cmd := New()
	cmd.SetArgs([]string{"--version"})
	assert.NoError(t, cmd.Execute())
}
