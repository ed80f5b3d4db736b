//go:build linux && amd64

package native

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	sys "golang.org/x/sys/unix"
)

const (
	personalityGetPersonality = 0xffffffff // argument to pass to personality syscall to get the current personality
	_ADDR_NO_RANDOMIZE        = 0x0040000  // ADDR_NO_RANDOMIZE linux constant
)

// launch starts the tracee and waits for the stop caused by its execve. It
// must run on the tracer thread.
func launch(path string, argv []string, opts LaunchOptions) (int, error) {
	if opts.DisableASLR {
		oldPersonality, _, err := syscall.Syscall(sys.SYS_PERSONALITY, personalityGetPersonality, 0, 0)
		if err == syscall.Errno(0) {
			newPersonality := oldPersonality | _ADDR_NO_RANDOMIZE
			syscall.Syscall(sys.SYS_PERSONALITY, newPersonality, 0, 0)
			defer syscall.Syscall(sys.SYS_PERSONALITY, oldPersonality, 0, 0)
		}
	}

	process := &exec.Cmd{Path: path, Args: argv}
	process.Stdin = orStd(opts.Stdin, os.Stdin)
	process.Stdout = orStd(opts.Stdout, os.Stdout)
	process.Stderr = orStd(opts.Stderr, os.Stderr)
	process.Dir = opts.WorkingDir
	process.SysProcAttr = &syscall.SysProcAttr{
		Ptrace:    true,
		Pdeathsig: syscall.SIGTERM,
	}
	if err := process.Start(); err != nil {
		return 0, fmt.Errorf("could not launch process: %w", err)
	}
	pid := process.Process.Pid

	_, ws, err := wait(pid, false)
	if err != nil {
		return 0, fmt.Errorf("waiting for target execve failed: %w", err)
	}
	if !ws.stopped {
		return 0, fmt.Errorf("process %d did not stop after execve", pid)
	}
	if err := sys.PtraceSetOptions(pid, sys.PTRACE_O_EXITKILL); err != nil {
		_ = kill(pid)
		_, _, _ = wait(pid, false)
		return 0, &PtraceError{Op: "setoptions", Pid: pid, Err: err}
	}
	return pid, nil
}

func orStd(f, std *os.File) *os.File {
	if f != nil {
		return f
	}
	return std
}

// wait calls wait4 on pid. With nohang set a zero pid is returned when
// there is nothing to report.
func wait(pid int, nohang bool) (int, waitResult, error) {
	var (
		ws  sys.WaitStatus
		res waitResult
	)
	options := sys.WALL
	if nohang {
		options |= sys.WNOHANG
	}
	for {
		wpid, err := sys.Wait4(pid, &ws, options, nil)
		if err == sys.EINTR {
			continue
		}
		if err != nil {
			return 0, res, err
		}
		if wpid == 0 {
			return 0, res, nil
		}
		switch {
		case ws.Exited():
			res.exited = true
			res.exitStatus = ws.ExitStatus()
		case ws.Signaled():
			res.signaled = true
			res.signal = ws.Signal()
		case ws.Stopped():
			res.stopped = true
			res.stopSignal = ws.StopSignal()
		}
		return wpid, res, nil
	}
}

func kill(pid int) error {
	return sys.Kill(pid, sys.SIGKILL)
}

func entryPoint(pid int) (uint64, error) {
	auxv, err := os.ReadFile(fmt.Sprintf("/proc/%d/auxv", pid))
	if err != nil {
		return 0, err
	}
	return EntryPointFromAuxv(auxv), nil
}
