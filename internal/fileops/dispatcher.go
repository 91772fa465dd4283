// Package fileops runs download, upload and delete commands against the
// device. Every operation is an independent one-shot process.
package fileops

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/entro314-labs/nookfb/internal/bridge"
)

var (
	// ErrNoDownloadsDir is returned by Download when there is nowhere to
	// store the file locally.
	ErrNoDownloadsDir = errors.New("fileops: downloads directory unavailable")
	// ErrCommandFailed wraps non-zero exits of operation processes.
	ErrCommandFailed = errors.New("fileops: command failed")
)

// Refresher is the part of the session manager the dispatcher drives.
type Refresher interface {
	ForceRefresh()
	ReportError(op, path string, err error)
}

// NoticeKind identifies a completed operation.
type NoticeKind int

const (
	NoticeDownloaded NoticeKind = iota
	NoticeUploaded
	NoticeDeleted
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeDownloaded:
		return "downloaded"
	case NoticeUploaded:
		return "uploaded"
	default:
		return "deleted"
	}
}

// Notice reports a successful operation. Local is the file on this machine
// for downloads and uploads.
type Notice struct {
	Kind   NoticeKind
	Remote string
	Local  string
}

// Options configures a Dispatcher.
type Options struct {
	// UploadPath is the device directory uploads are pushed to.
	UploadPath string
	// StorageRootURL is passed to the media rescan broadcast.
	StorageRootURL string
	// DownloadDir resolves the local downloads directory.
	DownloadDir func() (string, error)
	Logger      zerolog.Logger
}

// Dispatcher issues file operations. It is safe for concurrent use.
type Dispatcher struct {
	launcher bridge.Launcher
	listing  Refresher
	opts     Options
	log      zerolog.Logger

	notices chan Notice
	dropped atomic.Int64
	wg      sync.WaitGroup
}

// New returns a Dispatcher launching through launcher and refreshing
// listing after mutations.
func New(launcher bridge.Launcher, listing Refresher, opts Options) *Dispatcher {
	return &Dispatcher{
		launcher: launcher,
		listing:  listing,
		opts:     opts,
		log:      opts.Logger,
		notices:  make(chan Notice, 32),
	}
}

// Notices delivers completion notices. Notices that do not fit the buffer
// are dropped.
func (d *Dispatcher) Notices() <-chan Notice {
	return d.notices
}

// DroppedNotices returns how many notices were discarded.
func (d *Dispatcher) DroppedNotices() int64 {
	return d.dropped.Load()
}

// Wait blocks until every operation started so far has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Download pulls remotePath into the downloads directory without waiting
// for the transfer. Only a missing downloads directory is returned; launch
// and transfer failures are reported to the listing as a pending error.
func (d *Dispatcher) Download(ctx context.Context, remotePath string) error {
	dir, err := d.downloadDir()
	if err != nil {
		d.log.Error().Err(err).Str("remote", remotePath).Msg("download")
		return err
	}

	h, err := d.launcher.Launch(ctx, bridge.PullArgs(remotePath, dir)...)
	if err != nil {
		d.fail("download", remotePath, err)
		return nil
	}
	d.async(func() {
		if err := d.await(h); err != nil {
			d.fail("download", remotePath, err)
			return
		}
		local := filepath.Join(dir, path.Base(remotePath))
		d.log.Info().Str("remote", remotePath).Str("local", local).Msg("download complete")
		d.notify(Notice{Kind: NoticeDownloaded, Remote: remotePath, Local: local})
	})
	return nil
}

func (d *Dispatcher) downloadDir() (string, error) {
	if d.opts.DownloadDir == nil {
		return "", ErrNoDownloadsDir
	}
	dir, err := d.opts.DownloadDir()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoDownloadsDir, err)
	}
	if dir == "" {
		return "", ErrNoDownloadsDir
	}
	return dir, nil
}

// Upload pushes every local file to the upload path, each in its own
// process. A failure of one upload does not affect the others.
func (d *Dispatcher) Upload(ctx context.Context, localPaths ...string) {
	for _, local := range localPaths {
		remote := d.opts.UploadPath
		h, err := d.launcher.Launch(ctx, bridge.PushArgs(local, remote)...)
		if err != nil {
			d.fail("upload", local, err)
			continue
		}
		d.async(func() {
			if err := d.await(h); err != nil {
				d.fail("upload", local, err)
				return
			}
			d.log.Info().Str("local", local).Str("remote", remote).Msg("upload complete")
			d.notify(Notice{Kind: NoticeUploaded, Remote: remote, Local: local})
			d.SyncAndRefresh(ctx)
		})
	}
}

// Delete removes remotePath recursively. The listing is refreshed whatever
// the outcome, so it always shows what is actually on the device.
func (d *Dispatcher) Delete(ctx context.Context, remotePath string) {
	h, err := d.launcher.Launch(ctx, bridge.RemoveArgs(remotePath)...)
	if err != nil {
		d.log.Error().Err(err).Str("remote", remotePath).Msg("delete")
		d.SyncAndRefresh(ctx)
		return
	}
	d.async(func() {
		if err := d.await(h); err != nil {
			d.log.Warn().Err(err).Str("remote", remotePath).Msg("delete failed")
		} else {
			d.log.Info().Str("remote", remotePath).Msg("deleted")
			d.notify(Notice{Kind: NoticeDeleted, Remote: remotePath})
		}
		d.SyncAndRefresh(ctx)
	})
}

// SyncAndRefresh asks the device to rescan its media and refreshes the
// listing. The rescan is best-effort and not waited for.
func (d *Dispatcher) SyncAndRefresh(ctx context.Context) {
	h, err := d.launcher.Launch(ctx, bridge.RescanArgs(d.opts.StorageRootURL)...)
	if err != nil {
		d.log.Debug().Err(err).Msg("media rescan")
	} else {
		d.async(func() {
			if err := d.await(h); err != nil {
				d.log.Debug().Err(err).Msg("media rescan")
			}
		})
	}
	d.listing.ForceRefresh()
}

func (d *Dispatcher) async(fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn()
	}()
}

// await drains the process output and returns an error unless it exited
// with code zero.
func (d *Dispatcher) await(h bridge.Handle) error {
	for chunk := range h.Output() {
		d.log.Debug().Str("output", strings.TrimSpace(string(chunk))).Msg("bridge output")
	}
	status, ok := <-h.Exit()
	if !ok {
		return fmt.Errorf("%w: exit status lost", ErrCommandFailed)
	}
	if status.Err != nil {
		return fmt.Errorf("%w: %w", ErrCommandFailed, status.Err)
	}
	if status.Code != 0 {
		if msg := strings.TrimSpace(status.Stderr); msg != "" {
			return fmt.Errorf("%w: exit code %d: %s", ErrCommandFailed, status.Code, msg)
		}
		return fmt.Errorf("%w: exit code %d", ErrCommandFailed, status.Code)
	}
	return nil
}

func (d *Dispatcher) fail(op, target string, err error) {
	d.log.Error().Err(err).Str("op", op).Str("path", target).Msg("operation failed")
	d.listing.ReportError(op, target, err)
}

func (d *Dispatcher) notify(n Notice) {
	select {
	case d.notices <- n:
	default:
		d.dropped.Add(1)
	}
}
