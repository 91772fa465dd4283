// Package bridgetest provides an in-memory bridge.Launcher whose processes
// are driven by the test.
package bridgetest

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/entro314-labs/nookfb/internal/bridge"
)

// Launcher records launches and hands out scripted processes.
type Launcher struct {
	// OnLaunch, when set, runs in its own goroutine for every process.
	OnLaunch func(p *Process)

	mu       sync.Mutex
	err      error
	launches []*Process
	launched chan *Process
}

// NewLauncher returns an empty launcher.
func NewLauncher() *Launcher {
	return &Launcher{launched: make(chan *Process, 128)}
}

// SetError makes subsequent launches fail with err. A nil err restores
// normal behaviour.
func (l *Launcher) SetError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

// Launch implements bridge.Launcher.
func (l *Launcher) Launch(_ context.Context, args ...string) (bridge.Handle, error) {
	l.mu.Lock()
	if l.err != nil {
		err := l.err
		l.mu.Unlock()
		return nil, err
	}
	p := newProcess(args)
	l.launches = append(l.launches, p)
	hook := l.OnLaunch
	l.mu.Unlock()

	l.launched <- p
	if hook != nil {
		go hook(p)
	}
	return p, nil
}

// Launches returns every process launched so far.
func (l *Launcher) Launches() []*Process {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Process(nil), l.launches...)
}

// Next waits for the next launch.
func (l *Launcher) Next(t testing.TB) *Process {
	t.Helper()
	select {
	case p := <-l.launched:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a launch")
		return nil
	}
}

// ExpectNone fails the test if anything is launched within wait.
func (l *Launcher) ExpectNone(t testing.TB, wait time.Duration) {
	t.Helper()
	select {
	case p := <-l.launched:
		t.Fatalf("unexpected launch: %q", p.Args)
	case <-time.After(wait):
	}
}

// Process is a fake child process.
type Process struct {
	Args []string

	output     chan []byte
	exit       chan bridge.ExitStatus
	terminated chan struct{}

	termOnce   sync.Once
	outputOnce sync.Once
	exitOnce   sync.Once
}

func newProcess(args []string) *Process {
	return &Process{
		Args:       append([]string(nil), args...),
		output:     make(chan []byte, 64),
		exit:       make(chan bridge.ExitStatus, 1),
		terminated: make(chan struct{}),
	}
}

// Command joins the arguments with spaces.
func (p *Process) Command() string {
	return strings.Join(p.Args, " ")
}

func (p *Process) Output() <-chan []byte          { return p.output }
func (p *Process) Exit() <-chan bridge.ExitStatus { return p.exit }

func (p *Process) Terminate() error {
	p.termOnce.Do(func() { close(p.terminated) })
	return nil
}

// Write delivers chunks on the output stream.
func (p *Process) Write(chunks ...string) {
	for _, chunk := range chunks {
		p.output <- []byte(chunk)
	}
}

// CloseOutput ends the output stream.
func (p *Process) CloseOutput() {
	p.outputOnce.Do(func() { close(p.output) })
}

// Finish ends the output stream if still open and reports code as the exit
// code.
func (p *Process) Finish(code int) {
	p.CloseOutput()
	p.exitOnce.Do(func() {
		p.exit <- bridge.ExitStatus{Code: code, Terminated: p.IsTerminated()}
		close(p.exit)
	})
}

// IsTerminated reports whether Terminate was called.
func (p *Process) IsTerminated() bool {
	select {
	case <-p.terminated:
		return true
	default:
		return false
	}
}

// WaitTerminated fails the test unless Terminate is called within two
// seconds.
func (p *Process) WaitTerminated(t testing.TB) {
	t.Helper()
	select {
	case <-p.terminated:
	case <-time.After(2 * time.Second):
		t.Fatalf("process %q was not terminated", p.Args)
	}
}
