//go:build linux && amd64

package debugger

import (
	"errors"
	"fmt"
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-delve/mdb/pkg/proc"
	protest "github.com/go-delve/mdb/pkg/proc/test"
)

func TestMain(m *testing.M) {
	os.Exit(protest.RunTestsWithFixtures(m))
}

func withTestDebugger(t *testing.T, name string, fn func(d *Debugger)) {
	t.Helper()
	withDebuggerFor(t, protest.BuildFixture(t, name), &Config{}, fn)
}

func withDebuggerFor(t *testing.T, fixture protest.Fixture, conf *Config, fn func(d *Debugger)) {
	t.Helper()
	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	require.NoError(t, err)
	defer devnull.Close()

	conf.Stdout, conf.Stderr = devnull, devnull
	conf.Flavour = proc.IntelFlavour
	d, err := New(conf, []string{fixture.Path})
	require.NoError(t, err)
	defer d.Detach()
	fn(d)
}

func TestRunToExit(t *testing.T) {
	withTestDebugger(t, "exitcode", func(d *Debugger) {
		pid := d.ProcessPid()
		args := d.ProcessArgs()
		require.Len(t, args, 1)
		state, err := d.Run()
		require.NoError(t, err)
		assert.True(t, state.Exited())
		assert.Equal(t, 7, state.Event.ExitStatus)
		assert.Equal(t, fmt.Sprintf("Process %d exited with status 7", pid), ExitMessage(state.Event))
		assert.False(t, d.Running())

		_, err = d.Continue()
		assert.ErrorIs(t, err, proc.ErrNotRunning)
		_, err = d.Step()
		assert.ErrorIs(t, err, proc.ErrNotRunning)
		_, err = d.Disassemble(48)
		assert.ErrorIs(t, err, proc.ErrNotRunning)

		// r on an exited process starts a new one
		state, err = d.Run()
		require.NoError(t, err)
		assert.True(t, state.Exited())
		assert.NotEqual(t, pid, d.ProcessPid())
		assert.Equal(t, args, d.ProcessArgs())
	})
}

func TestBreakpointAtSymbol(t *testing.T) {
	withTestDebugger(t, "calc", func(d *Debugger) {
		id, bp, err := d.CreateBreakpointAtSymbol("addition")
		require.NoError(t, err)
		assert.Equal(t, 0, id)
		assert.True(t, bp.Armed)

		state, err := d.Continue()
		require.NoError(t, err)
		require.Equal(t, proc.StopTrap, state.Event.Reason)
		assert.Equal(t, 0, state.BreakpointID)
		assert.Equal(t, bp.Addr, state.PC)
		require.NotEmpty(t, state.Disassembly)
		assert.Equal(t, bp.Addr, state.Disassembly[0].Addr)
		assert.NotEqual(t, "int3", state.Disassembly[0].Mnemonic)

		// the breakpoint is dormant after the hit
		bps := d.Breakpoints()
		require.Len(t, bps, 1)
		assert.False(t, bps[0].Armed)

		state, err = d.Continue()
		require.NoError(t, err)
		assert.True(t, state.Exited())
		assert.Equal(t, 2, state.Event.ExitStatus)
	})
}

func TestBreakpointRearmedOnRestart(t *testing.T) {
	withTestDebugger(t, "calc", func(d *Debugger) {
		_, add, err := d.CreateBreakpointAtSymbol("addition")
		require.NoError(t, err)
		_, sub, err := d.CreateBreakpointAtSymbol("subtraction")
		require.NoError(t, err)

		for run := 0; run < 2; run++ {
			state, err := d.Run()
			require.NoError(t, err)
			assert.Equal(t, add.Addr, state.PC, "run %d", run)
			assert.Equal(t, 0, state.BreakpointID)

			state, err = d.Continue()
			require.NoError(t, err)
			assert.Equal(t, sub.Addr, state.PC, "run %d", run)
			assert.Equal(t, 1, state.BreakpointID)

			state, err = d.Continue()
			require.NoError(t, err)
			assert.True(t, state.Exited())
		}
	})
}

func TestPIEBreakpointsFollowLoadAddress(t *testing.T) {
	fixture := protest.BuildPIEFixture(t, "calc")
	linkAddr, err := proc.LookupSymbol(fixture.Path, "addition")
	require.NoError(t, err)

	for _, keepASLR := range []bool{false, true} {
		withDebuggerFor(t, fixture, &Config{KeepASLR: keepASLR}, func(d *Debugger) {
			require.True(t, d.bininfo.PIE)
			_, bp, err := d.CreateBreakpointAtSymbol("addition")
			require.NoError(t, err)
			assert.Equal(t, linkAddr+d.bias, bp.Addr)

			for run := 0; run < 3; run++ {
				state, err := d.Run()
				require.NoError(t, err, "run %d keepASLR=%v", run, keepASLR)
				assert.Equal(t, 0, state.BreakpointID, "run %d keepASLR=%v", run, keepASLR)
				assert.Equal(t, linkAddr+d.bias, state.PC, "run %d keepASLR=%v", run, keepASLR)
				assert.Equal(t, state.PC, d.Breakpoints()[0].Addr)

				state, err = d.Continue()
				require.NoError(t, err)
				assert.True(t, state.Exited())
			}
		})
	}
}

func TestBreakpointDeletedBeforeHit(t *testing.T) {
	withTestDebugger(t, "calc", func(d *Debugger) {
		_, _, err := d.CreateBreakpointAtSymbol("addition")
		require.NoError(t, err)
		_, sub, err := d.CreateBreakpointAtSymbol("subtraction")
		require.NoError(t, err)

		_, err = d.ClearBreakpoint(0)
		require.NoError(t, err)
		bps := d.Breakpoints()
		require.Len(t, bps, 1)
		assert.Equal(t, sub.Addr, bps[0].Addr)

		state, err := d.Continue()
		require.NoError(t, err)
		assert.Equal(t, 0, state.BreakpointID)
		assert.Equal(t, sub.Addr, state.PC)

		_, err = d.ClearBreakpoint(3)
		var nbp proc.NoBreakpointError
		assert.True(t, errors.As(err, &nbp))
	})
}

func TestBreakpointErrors(t *testing.T) {
	withTestDebugger(t, "calc", func(d *Debugger) {
		_, _, err := d.CreateBreakpointAtSymbol("multiplication")
		assert.ErrorIs(t, err, proc.ErrSymbolNotFound)
		assert.False(t, IsFatal(err))

		_, first, err := d.CreateBreakpointAtSymbol("main")
		require.NoError(t, err)
		_, _, err = d.CreateBreakpoint(first.Addr)
		var bpe proc.BreakpointExistsError
		assert.True(t, errors.As(err, &bpe))
		assert.Len(t, d.Breakpoints(), 1)

		_, _, err = d.CreateBreakpoint(0)
		assert.Error(t, err)
		assert.True(t, IsFatal(err))
	})
}

func TestBreakpointOnExitedProcess(t *testing.T) {
	withTestDebugger(t, "calc", func(d *Debugger) {
		state, err := d.Continue()
		require.NoError(t, err)
		require.True(t, state.Exited())

		// setting a breakpoint starts a new process
		_, _, err = d.CreateBreakpointAtSymbol("subtraction")
		require.NoError(t, err)
		assert.True(t, d.Running())

		state, err = d.Continue()
		require.NoError(t, err)
		assert.Equal(t, 0, state.BreakpointID)
	})
}

func TestStepAndDisassemble(t *testing.T) {
	withTestDebugger(t, "calc", func(d *Debugger) {
		insts, err := d.Disassemble(0)
		require.NoError(t, err)
		assert.Empty(t, insts)

		insts, err = d.Disassemble(DefaultDisassembleWindow)
		require.NoError(t, err)
		require.NotEmpty(t, insts)
		first := insts[0].Addr

		state, err := d.Step()
		require.NoError(t, err)
		assert.Equal(t, first+uint64(len(insts[0].Bytes)), state.PC)
	})
}

func TestDisassembleSizeLimit(t *testing.T) {
	withTestDebugger(t, "calc", func(d *Debugger) {
		for _, size := range []int{MaxDisassembleSize + 1, math.MaxInt} {
			_, err := d.Disassemble(size)
			var dse DisassembleSizeError
			require.True(t, errors.As(err, &dse), "%v", err)
			assert.Equal(t, size, dse.Size)
			assert.False(t, IsFatal(err))
		}

		// the largest window may run past the end of the mapping
		insts, err := d.Disassemble(MaxDisassembleSize)
		require.NoError(t, err)
		assert.NotEmpty(t, insts)
		assert.True(t, d.Running())
	})
}

func TestDisassembleHidesTraps(t *testing.T) {
	withTestDebugger(t, "calc", func(d *Debugger) {
		_, bp, err := d.CreateBreakpointAtSymbol("addition")
		require.NoError(t, err)

		insts, err := d.disassemble(bp.Addr, 8)
		require.NoError(t, err)
		require.NotEmpty(t, insts)
		assert.Equal(t, byte(bp.OriginalData), insts[0].Bytes[0])
		assert.NotEqual(t, "int3", insts[0].Mnemonic)
	})
}

func TestSignalStop(t *testing.T) {
	withTestDebugger(t, "raise", func(d *Debugger) {
		state, err := d.Continue()
		require.NoError(t, err)
		assert.Equal(t, proc.StopSignal, state.Event.Reason)
		assert.Equal(t, -1, state.BreakpointID)

		state, err = d.Continue()
		require.NoError(t, err)
		assert.True(t, state.Exited())
		assert.Equal(t, 3, state.Event.ExitStatus)
	})
}
