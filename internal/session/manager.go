// Package session owns the directory listing shown to the user. At most one
// listing process runs at a time; navigating supersedes it.
package session

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/entro314-labs/nookfb/internal/bridge"
	"github.com/entro314-labs/nookfb/internal/listing"
)

// Options configures a Manager.
type Options struct {
	// Home is listed by Home and by a refresh before any navigation.
	Home string
	// Separator terminates records of the listing output.
	Separator string
	Logger    zerolog.Logger
}

// Manager serializes all listing state on the goroutine running Run. Its
// exported methods only enqueue requests and are safe for concurrent use.
type Manager struct {
	launcher bridge.Launcher
	home     string
	sep      string
	log      zerolog.Logger

	requests chan request
	events   chan event
	done     chan struct{}
	started  atomic.Bool

	latest  atomic.Pointer[Listing]
	subsMu  sync.Mutex
	subs    map[int]chan Listing
	nextSub int

	// Owned by Run.
	ctx        context.Context
	gen        uint64
	current    *record
	path       string
	navigated  bool
	entries    []listing.Entry
	loadFailed bool
	pending    *PendingError
	pendingSeq uint64
	version    uint64
}

type requestKind int

const (
	reqNavigate requestKind = iota
	reqRefresh
	reqUp
	reqHome
	reqReport
	reqDismiss
)

type request struct {
	kind    requestKind
	path    string
	pending PendingError
}

type eventKind int

const (
	evChunk eventKind = iota
	evEOF
	evExit
)

type event struct {
	gen    uint64
	kind   eventKind
	chunk  []byte
	status bridge.ExitStatus
}

// record is one listing session. Completion needs both the end of the
// output stream and the exit status, in whichever order they arrive.
type record struct {
	gen          uint64
	path         string
	handle       bridge.Handle
	decoder      *listing.Decoder
	state        State
	streamClosed bool
	exitSeen     bool
	exit         bridge.ExitStatus
	stop         chan struct{}
}

// New returns a Manager that lists directories through launcher.
func New(launcher bridge.Launcher, opts Options) *Manager {
	return &Manager{
		launcher: launcher,
		home:     opts.Home,
		sep:      opts.Separator,
		log:      opts.Logger,
		requests: make(chan request, 32),
		events:   make(chan event, 64),
		done:     make(chan struct{}),
		subs:     make(map[int]chan Listing),
	}
}

// Run processes requests and process events until ctx is cancelled. The
// running listing process is terminated on return.
func (m *Manager) Run(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return errors.New("session: manager already running")
	}
	m.ctx = ctx
	defer close(m.done)
	defer m.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-m.requests:
			m.handleRequest(req)
		case ev := <-m.events:
			m.handleEvent(ev)
		}
	}
}

// Done is closed once Run has returned.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// NavigateTo lists path unless it is already the published path.
func (m *Manager) NavigateTo(path string) {
	m.send(request{kind: reqNavigate, path: path})
}

// ForceRefresh lists the published path again, even if it is unchanged.
func (m *Manager) ForceRefresh() {
	m.send(request{kind: reqRefresh})
}

// Up navigates to the parent of the published path. At the root this is a
// no-op.
func (m *Manager) Up() {
	m.send(request{kind: reqUp})
}

// Home navigates to the configured home path.
func (m *Manager) Home() {
	m.send(request{kind: reqHome})
}

// ReportError publishes a pending error for the user to dismiss.
func (m *Manager) ReportError(op, path string, err error) {
	m.send(request{kind: reqReport, pending: PendingError{Op: op, Path: path, Err: err}})
}

// DismissError clears the pending error with the given id. A newer pending
// error is left in place.
func (m *Manager) DismissError(id uint64) {
	m.send(request{kind: reqDismiss, pending: PendingError{ID: id}})
}

// Snapshot returns the most recently published listing.
func (m *Manager) Snapshot() Listing {
	if l := m.latest.Load(); l != nil {
		return *l
	}
	return Listing{}
}

// Subscribe returns a channel carrying the latest listing. Intermediate
// snapshots are skipped when the receiver falls behind. The channel is
// closed by cancel or when Run returns.
func (m *Manager) Subscribe() (<-chan Listing, func()) {
	ch := make(chan Listing, 1)

	m.subsMu.Lock()
	if m.subs == nil {
		m.subsMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	if l := m.latest.Load(); l != nil {
		ch <- *l
	}
	m.subsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.subsMu.Lock()
			defer m.subsMu.Unlock()
			if c, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

func (m *Manager) send(req request) {
	select {
	case m.requests <- req:
	case <-m.done:
	}
}

func (m *Manager) handleRequest(req request) {
	switch req.kind {
	case reqNavigate:
		m.navigate(req.path, false)
	case reqRefresh:
		if !m.navigated {
			m.navigate(m.home, true)
			return
		}
		m.navigate(m.path, true)
	case reqUp:
		m.navigate(Parent(m.path), false)
	case reqHome:
		m.navigate(m.home, false)
	case reqReport:
		m.pendingSeq++
		pending := req.pending
		pending.ID = m.pendingSeq
		m.pending = &pending
		m.log.Debug().Uint64("id", pending.ID).Str("op", pending.Op).Msg("pending error")
		m.publish()
	case reqDismiss:
		if m.pending != nil && m.pending.ID == req.pending.ID {
			m.pending = nil
			m.publish()
		}
	}
}

func (m *Manager) navigate(path string, force bool) {
	if !force && m.navigated && path == m.path {
		m.log.Debug().Str("path", path).Msg("already listing path")
		return
	}

	m.supersede()
	m.navigated = true
	m.path = path
	m.entries = nil
	m.loadFailed = false
	m.gen++

	rec := &record{
		gen:     m.gen,
		path:    path,
		decoder: listing.NewDecoder(m.sep),
		state:   StateRunning,
		stop:    make(chan struct{}),
	}
	m.current = rec

	handle, err := m.launcher.Launch(m.ctx, bridge.ListArgs(path)...)
	if err != nil {
		m.log.Error().Err(err).Str("path", path).Msg("launch listing")
		rec.state = StateFailed
		m.loadFailed = true
		m.publish()
		return
	}
	rec.handle = handle
	m.log.Debug().Uint64("session", rec.gen).Str("path", path).Msg("listing started")

	go m.forward(rec.gen, handle, rec.stop)
	m.publish()
}

// supersede terminates the running session. Its events still in flight are
// dropped by the generation check in handleEvent.
func (m *Manager) supersede() {
	rec := m.current
	if rec == nil {
		return
	}
	m.current = nil
	close(rec.stop)
	if rec.state != StateRunning {
		return
	}
	rec.state = StateSuperseded
	m.log.Debug().Uint64("session", rec.gen).Str("path", rec.path).Msg("listing superseded")
	if err := rec.handle.Terminate(); err != nil {
		m.log.Warn().Err(err).Str("path", rec.path).Msg("terminate listing")
	}
}

// forward hands process events over to the Run goroutine.
func (m *Manager) forward(gen uint64, h bridge.Handle, stop <-chan struct{}) {
	deliver := func(ev event) bool {
		select {
		case m.events <- ev:
			return true
		case <-stop:
			return false
		case <-m.done:
			return false
		}
	}

	for chunk := range h.Output() {
		if !deliver(event{gen: gen, kind: evChunk, chunk: chunk}) {
			return
		}
	}
	if !deliver(event{gen: gen, kind: evEOF}) {
		return
	}
	status, ok := <-h.Exit()
	if !ok {
		status = bridge.ExitStatus{Code: -1, Err: errors.New("exit status lost")}
	}
	deliver(event{gen: gen, kind: evExit, status: status})
}

func (m *Manager) handleEvent(ev event) {
	rec := m.current
	if rec == nil || rec.gen != ev.gen || rec.state != StateRunning {
		return
	}

	switch ev.kind {
	case evChunk:
		entries, err := rec.decoder.Feed(ev.chunk)
		if err != nil {
			m.log.Warn().Err(err).Str("path", rec.path).Msg("dropped listing chunk")
		}
		if len(entries) > 0 {
			m.entries = append(m.entries, entries...)
			m.publish()
		}
	case evEOF:
		rec.streamClosed = true
		m.settle(rec)
	case evExit:
		rec.exitSeen = true
		rec.exit = ev.status
		m.settle(rec)
	}
}

func (m *Manager) settle(rec *record) {
	if !rec.streamClosed || !rec.exitSeen {
		return
	}

	switch {
	case rec.exit.Success():
		rec.state = StateSucceeded
		if tail := rec.decoder.Flush(); len(tail) > 0 {
			m.entries = append(m.entries, tail...)
		}
		m.log.Debug().Str("path", rec.path).Int("entries", len(m.entries)).Msg("listing complete")
	case rec.exit.Terminated:
		// Stopped on purpose, e.g. during shutdown; not a load failure.
		rec.state = StateFailed
		m.log.Debug().Str("path", rec.path).Msg("listing terminated")
	default:
		rec.state = StateFailed
		m.loadFailed = true
		m.log.Warn().
			Str("path", rec.path).
			Int("code", rec.exit.Code).
			Err(rec.exit.Err).
			Str("stderr", rec.exit.Stderr).
			Msg("listing failed")
	}
	m.publish()
}

func (m *Manager) publish() {
	m.version++
	state := StateIdle
	if m.current != nil {
		state = m.current.state
	}
	snapshot := Listing{
		Version:    m.version,
		Path:       m.path,
		Entries:    slices.Clip(m.entries),
		State:      state,
		LoadFailed: m.loadFailed,
		Pending:    m.pending,
	}
	m.latest.Store(&snapshot)

	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
}

func (m *Manager) shutdown() {
	m.supersede()

	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for id, ch := range m.subs {
		close(ch)
		delete(m.subs, id)
	}
	m.subs = nil
}
