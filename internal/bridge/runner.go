// Package bridge runs the debug-bridge executable and exposes each child
// process as a stream of output chunks plus a single exit status.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	readBufferSize = 32 * 1024
	outputBacklog  = 16
	stderrLimit    = 4 * 1024

	// DefaultKillGrace is how long a terminated child may take to exit
	// before it is killed.
	DefaultKillGrace = 3 * time.Second
)

// ExitStatus describes how a child process ended.
type ExitStatus struct {
	// Code is the exit code, or -1 when the process was killed by a signal.
	Code int
	// Terminated is set when Terminate was called before the process exited.
	Terminated bool
	// Err holds a wait failure that is not a plain non-zero exit.
	Err error
	// Stderr is the beginning of the process' standard error.
	Stderr string
}

// Success reports whether the process exited with code zero.
func (s ExitStatus) Success() bool {
	return s.Code == 0 && s.Err == nil
}

// Handle is a running child process.
type Handle interface {
	// Output delivers stdout chunks as they arrive. It is closed at end of
	// stream. Callers must keep receiving until then or call Terminate.
	Output() <-chan []byte
	// Exit yields exactly one status once the process has been reaped, and
	// is closed afterwards.
	Exit() <-chan ExitStatus
	// Terminate asks the process to stop. Calling it again is a no-op.
	Terminate() error
}

// Launcher starts child processes. Launch never waits for the child.
type Launcher interface {
	Launch(ctx context.Context, args ...string) (Handle, error)
}

// ExecLauncher launches the bridge executable found at Path.
type ExecLauncher struct {
	Path   string
	Logger zerolog.Logger
	// KillGrace overrides DefaultKillGrace.
	KillGrace time.Duration
}

// Launch starts Path with args. Failing to start the executable is reported
// here and never through the returned handle. Cancelling ctx terminates the
// child the same way Terminate does.
func (l ExecLauncher) Launch(ctx context.Context, args ...string) (Handle, error) {
	if l.Path == "" {
		return nil, errors.New("bridge: executable path is empty")
	}

	cmd := exec.CommandContext(ctx, l.Path, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("bridge: stdout pipe: %w", err)
	}
	stderr := &cappedBuffer{limit: stderrLimit}
	cmd.Stderr = stderr

	p := &process{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		output: make(chan []byte, outputBacklog),
		exit:   make(chan ExitStatus, 1),
		stop:   make(chan struct{}),
		grace:  l.KillGrace,
		log:    l.Logger,
	}
	if p.grace <= 0 {
		p.grace = DefaultKillGrace
	}
	cmd.Cancel = p.Terminate
	cmd.WaitDelay = p.grace

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("bridge: start %s: %w", l.Path, err)
	}
	p.log.Debug().Int("pid", cmd.Process.Pid).Strs("args", args).Msg("process started")

	go p.run()
	return p, nil
}

type process struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *cappedBuffer
	output chan []byte
	exit   chan ExitStatus
	log    zerolog.Logger
	grace  time.Duration

	stop       chan struct{}
	stopOnce   sync.Once
	terminated atomic.Bool
}

func (p *process) Output() <-chan []byte   { return p.output }
func (p *process) Exit() <-chan ExitStatus { return p.exit }

func (p *process) Terminate() error {
	var err error
	p.stopOnce.Do(func() {
		p.terminated.Store(true)
		close(p.stop)
		err = signalTerminate(p.cmd.Process)
		if errors.Is(err, os.ErrProcessDone) {
			err = nil
			return
		}
		time.AfterFunc(p.grace, p.kill)
	})
	return err
}

// kill stops a child that ignored Terminate. It is a no-op once the process
// has been reaped.
func (p *process) kill() {
	if err := p.cmd.Process.Kill(); err == nil {
		p.log.Warn().Int("pid", p.cmd.Process.Pid).Dur("grace", p.grace).Msg("killed unresponsive process")
	}
}

func (p *process) run() {
	p.pump()
	close(p.output)

	var status ExitStatus
	if err := p.cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			status.Err = err
		}
	}
	status.Code = -1
	if p.cmd.ProcessState != nil {
		status.Code = p.cmd.ProcessState.ExitCode()
	}
	status.Terminated = p.terminated.Load()
	status.Stderr = p.stderr.String()

	p.log.Debug().Int("pid", p.cmd.Process.Pid).Int("code", status.Code).Bool("terminated", status.Terminated).Msg("process exited")
	p.exit <- status
	close(p.exit)
}

// pump copies stdout to the output channel until the pipe reports end of
// stream. After Terminate the remaining output is read and discarded so the
// child never blocks on a full pipe.
func (p *process) pump() {
	buf := make([]byte, readBufferSize)
	for {
		n, err := p.stdout.Read(buf)
		if n > 0 && !p.stopped() {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case p.output <- chunk:
			case <-p.stop:
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				p.log.Warn().Err(err).Msg("read stdout")
			}
			return
		}
	}
}

func (p *process) stopped() bool {
	select {
	case <-p.stop:
		return true
	default:
		return false
	}
}

type cappedBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (c *cappedBuffer) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if room := c.limit - len(c.buf); room > 0 {
		c.buf = append(c.buf, b[:min(room, len(b))]...)
	}
	return len(b), nil
}

func (c *cappedBuffer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.buf)
}
