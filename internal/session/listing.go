package session

import (
	"fmt"
	"strings"

	"github.com/entro314-labs/nookfb/internal/listing"
)

// State is the lifecycle state of a listing session. Every state except
// StateIdle and StateRunning is terminal.
type State int

const (
	// StateIdle means nothing has been listed yet.
	StateIdle State = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateSuperseded
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateSuperseded:
		return "superseded"
	default:
		return "idle"
	}
}

// PendingError is a one-shot, dismissible failure of a file operation.
type PendingError struct {
	ID   uint64
	Op   string
	Path string
	Err  error
}

func (p PendingError) Error() string {
	if p.Path == "" {
		return fmt.Sprintf("%s: %v", p.Op, p.Err)
	}
	return fmt.Sprintf("%s %s: %v", p.Op, p.Path, p.Err)
}

func (p PendingError) Unwrap() error {
	return p.Err
}

// Listing is a read-only snapshot of the published directory state.
// Entries must not be modified by receivers.
type Listing struct {
	// Version increases with every published change.
	Version uint64
	Path    string
	Entries []listing.Entry
	State   State
	// LoadFailed stays set until the next navigation or refresh.
	LoadFailed bool
	Pending    *PendingError
}

// Loading reports whether entries are still streaming in.
func (l Listing) Loading() bool {
	return l.State == StateRunning
}

// Parent returns the directory containing p. The root is the empty path and
// is its own parent.
func Parent(p string) string {
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return ""
	}
	return p[:idx]
}

// Join appends name to dir.
func Join(dir, name string) string {
	return dir + "/" + name
}

// Display renders p for humans; the root is shown as "/".
func Display(p string) string {
	if p == "" {
		return "/"
	}
	return p
}
