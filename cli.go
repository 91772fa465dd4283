package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"github.com/entro314-labs/nookfb/internal/fileops"
	"github.com/entro314-labs/nookfb/internal/session"
)

func newListCmd(flags *globalFlags) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a device directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, *flags, false)
			if err != nil {
				return err
			}
			defer a.Close()

			dir := a.cfg.HomePath
			if len(args) > 0 {
				dir = remotePath(args[0])
			}
			return runList(cmd.Context(), a.manager, dir, all, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include hidden entries")
	return cmd
}

// lister is the part of the session manager used by the ls command.
type lister interface {
	Run(ctx context.Context) error
	NavigateTo(path string)
	Subscribe() (<-chan session.Listing, func())
}

// runList prints the entries of dir as they arrive and fails when the
// listing cannot be loaded.
func runList(ctx context.Context, m lister, dir string, all bool, out io.Writer) error {
	updates, unsubscribe := m.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(ctx)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = m.Run(ctx)
	}()
	defer func() {
		cancel()
		<-stopped
	}()

	m.NavigateTo(dir)

	printed := 0
	for l := range updates {
		if l.Path != dir || l.State == session.StateIdle {
			continue
		}
		if printed > len(l.Entries) {
			printed = 0
		}
		for _, e := range l.Entries[printed:] {
			if e.Hidden && !all {
				continue
			}
			name := e.Name
			if e.IsDir() {
				name += "/"
			}
			fmt.Fprintln(out, name)
		}
		printed = len(l.Entries)

		if l.Loading() {
			continue
		}
		if l.LoadFailed {
			return fmt.Errorf("list %s: load failed", session.Display(dir))
		}
		return nil
	}
	return ctx.Err()
}

func newPullCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "pull <remote>",
		Short: "Download a device file into the downloads directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOneShot(cmd, *flags, func(ctx context.Context, d *fileops.Dispatcher) error {
				return d.Download(ctx, remotePath(args[0]))
			})
		},
	}
}

func newPushCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "push <local>...",
		Short: "Upload local files to the device upload directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			locals := make([]string, 0, len(args))
			for _, arg := range args {
				abs, err := filepath.Abs(arg)
				if err != nil {
					return fmt.Errorf("resolve %s: %w", arg, err)
				}
				locals = append(locals, abs)
			}
			return runOneShot(cmd, *flags, func(ctx context.Context, d *fileops.Dispatcher) error {
				d.Upload(ctx, locals...)
				return nil
			})
		},
	}
}

func newRemoveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <remote>",
		Short: "Delete a device file or directory recursively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := remotePath(args[0])
			if target == "" {
				return errors.New("rm: refusing to delete the root directory")
			}
			var deleted bool
			err := runOneShot(cmd, *flags, func(ctx context.Context, d *fileops.Dispatcher) error {
				d.Delete(ctx, target)
				return nil
			}, func(n fileops.Notice) {
				deleted = deleted || n.Kind == fileops.NoticeDeleted
			})
			if err == nil && !deleted {
				err = fmt.Errorf("rm %s: command failed", target)
			}
			return err
		},
	}
}

// runOneShot runs op, waits for every process it started and reports the
// collected failures.
func runOneShot(cmd *cobra.Command, flags globalFlags, op func(context.Context, *fileops.Dispatcher) error, observers ...func(fileops.Notice)) error {
	a, err := newApp(cmd, flags, false)
	if err != nil {
		return err
	}
	defer a.Close()

	failures := &collector{}
	d := a.dispatcher(failures)
	if err := op(cmd.Context(), d); err != nil {
		return err
	}
	d.Wait()

	out := cmd.OutOrStdout()
	for drained := false; !drained; {
		select {
		case n := <-d.Notices():
			printNotice(out, n)
			for _, observe := range observers {
				observe(n)
			}
		default:
			drained = true
		}
	}
	return failures.Err()
}

func printNotice(out io.Writer, n fileops.Notice) {
	switch n.Kind {
	case fileops.NoticeDownloaded:
		fmt.Fprintf(out, "downloaded %s to %s\n", n.Remote, n.Local)
	case fileops.NoticeUploaded:
		fmt.Fprintf(out, "uploaded %s to %s\n", n.Local, n.Remote)
	case fileops.NoticeDeleted:
		fmt.Fprintf(out, "deleted %s\n", n.Remote)
	}
}

// collector stands in for the session manager of one-shot commands: there is
// no listing to refresh and failures are returned instead of displayed.
type collector struct {
	mu   sync.Mutex
	errs []error
}

func (c *collector) ForceRefresh() {}

func (c *collector) ReportError(op, path string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, session.PendingError{Op: op, Path: path, Err: err})
}

func (c *collector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return errors.Join(c.errs...)
}
