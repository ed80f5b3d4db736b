package logflags

import (
	"bytes"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetFlags() {
	debugger, ptrace, symbols, terminal = false, false, false, false
	loggerFactory = nil
	logOut = nil
}

func TestMakeLogger_usingLoggerFactory(t *testing.T) {
	defer resetFlags()
	logOut = &bufferWriter{}

	expectedLogger := &logrusLogger{}
	SetLoggerFactory(func(level logrus.Level, fields Fields, out io.Writer) Logger {
		assert.Equal(t, logrus.TraceLevel, level)
		assert.Equal(t, Fields{"foo": "bar"}, fields)
		assert.Equal(t, logOut, out)
		return expectedLogger
	})

	actual := makeLogger(logrus.TraceLevel, Fields{"foo": "bar"})
	assert.Same(t, expectedLogger, actual)
}

func TestMakeFlaggableLogger(t *testing.T) {
	defer resetFlags()

	off, ok := makeFlaggableLogger(false, Fields{"foo": "bar"}).(*logrusLogger)
	require.True(t, ok)
	assert.Equal(t, logrus.ErrorLevel, off.Logger.Level)
	assert.Equal(t, "bar", off.Data["foo"])

	on, ok := makeFlaggableLogger(true, Fields{"foo": "bar"}).(*logrusLogger)
	require.True(t, ok)
	assert.Equal(t, logrus.DebugLevel, on.Logger.Level)
	assert.Same(t, textFormatterInstance, on.Logger.Formatter)
}

func TestSetup(t *testing.T) {
	defer resetFlags()

	assert.Equal(t, errLogstrWithoutLog, Setup(false, "ptrace", ""))

	require.NoError(t, Setup(true, "", ""))
	assert.True(t, Debugger())
	assert.False(t, Ptrace())

	require.NoError(t, Setup(true, "ptrace,symbols,terminal", ""))
	assert.True(t, Ptrace())
	assert.True(t, Symbols())
	assert.True(t, Terminal())

	assert.Error(t, Setup(true, "gdbwire", ""))
}

func TestLoggerWritesToLogOut(t *testing.T) {
	defer resetFlags()
	buf := &bufferWriter{}
	logOut = buf
	debugger = true

	DebuggerLogger().WithField("pid", 42).Debugf("launched %s", "target")
	out := buf.String()
	assert.Contains(t, out, "launched target")
	assert.Contains(t, out, "layer=debugger")
	assert.Contains(t, out, "pid=42")
}

type bufferWriter struct {
	bytes.Buffer
}

func (bw *bufferWriter) Close() error {
	return nil
}
