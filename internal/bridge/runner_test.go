//go:build !windows

package bridge

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func shellLauncher() ExecLauncher {
	return ExecLauncher{Path: "/bin/sh", Logger: zerolog.Nop()}
}

func collect(t *testing.T, h Handle) (string, ExitStatus) {
	t.Helper()
	var out strings.Builder
	timeout := time.After(5 * time.Second)
	for {
		select {
		case chunk, ok := <-h.Output():
			if !ok {
				select {
				case status := <-h.Exit():
					return out.String(), status
				case <-timeout:
					t.Fatal("timed out waiting for exit")
				}
			}
			out.Write(chunk)
		case <-timeout:
			t.Fatal("timed out reading output")
		}
	}
}

func TestExecLauncher_StreamsOutputAndExit(t *testing.T) {
	h, err := shellLauncher().Launch(context.Background(), "-c", `printf 'dsub\r\n'; printf 'fa.txt\r\n'`)
	if err != nil {
		t.Fatalf("Launch error = %v", err)
	}

	out, status := collect(t, h)
	if out != "dsub\r\nfa.txt\r\n" {
		t.Errorf("output = %q", out)
	}
	if !status.Success() || status.Terminated {
		t.Errorf("status = %+v, want clean success", status)
	}

	if _, ok := <-h.Exit(); ok {
		t.Error("Exit delivered a second value")
	}
}

func TestExecLauncher_NonZeroExit(t *testing.T) {
	h, err := shellLauncher().Launch(context.Background(), "-c", "echo boom >&2; exit 3")
	if err != nil {
		t.Fatalf("Launch error = %v", err)
	}

	_, status := collect(t, h)
	if status.Code != 3 {
		t.Errorf("Code = %d, want 3", status.Code)
	}
	if status.Success() {
		t.Error("Success() = true for exit 3")
	}
	if !strings.Contains(status.Stderr, "boom") {
		t.Errorf("Stderr = %q, want boom", status.Stderr)
	}
}

func TestExecLauncher_Terminate(t *testing.T) {
	h, err := shellLauncher().Launch(context.Background(), "-c", "echo started; exec sleep 30")
	if err != nil {
		t.Fatalf("Launch error = %v", err)
	}

	select {
	case <-h.Output():
	case <-time.After(5 * time.Second):
		t.Fatal("no output before terminate")
	}

	if err := h.Terminate(); err != nil {
		t.Fatalf("Terminate error = %v", err)
	}
	if err := h.Terminate(); err != nil {
		t.Fatalf("second Terminate error = %v", err)
	}

	_, status := collect(t, h)
	if !status.Terminated {
		t.Error("Terminated = false after Terminate")
	}
	if status.Success() {
		t.Errorf("status = %+v, want failure after SIGTERM", status)
	}
}

func TestExecLauncher_LaunchFailure(t *testing.T) {
	l := ExecLauncher{Path: "/nonexistent/adb", Logger: zerolog.Nop()}
	if _, err := l.Launch(context.Background(), "shell", "true"); err == nil {
		t.Fatal("Launch of a missing executable succeeded")
	}

	if _, err := (ExecLauncher{}).Launch(context.Background()); err == nil {
		t.Fatal("Launch with empty path succeeded")
	}
}

func TestExecLauncher_KillsChildIgnoringTerminate(t *testing.T) {
	const script = `trap '' TERM; echo ready; while :; do sleep 0.05; done`

	tests := []struct {
		name string
		stop func(cancel context.CancelFunc, h Handle)
	}{
		{name: "terminate", stop: func(_ context.CancelFunc, h Handle) { _ = h.Terminate() }},
		{name: "context cancel", stop: func(cancel context.CancelFunc, _ Handle) { cancel() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			l := shellLauncher()
			l.KillGrace = 100 * time.Millisecond
			h, err := l.Launch(ctx, "-c", script)
			if err != nil {
				t.Fatalf("Launch error = %v", err)
			}

			select {
			case <-h.Output():
			case <-time.After(5 * time.Second):
				t.Fatal("no output before stop")
			}

			tt.stop(cancel, h)
			_, status := collect(t, h)
			if !status.Terminated || status.Success() {
				t.Errorf("status = %+v, want terminated failure", status)
			}
		})
	}
}
