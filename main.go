// Package main implements nookfb, a file browser for e-readers reached
// through adb.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := fang.Execute(
		ctx,
		newRootCmd(),
		fang.WithVersion(version),
		fang.WithoutCompletions(),
		fang.WithoutManpage(),
	)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:   "nookfb [path]",
		Short: "Browse and manage files on an e-reader over adb",
		Long: `nookfb lists directories on a device connected through adb and
lets you download, upload and delete files. Without a subcommand
it opens an interactive browser at path, or at the configured
home directory.`,
		Example: `nookfb
nookfb "/sdcard/NOOK/My Files"
nookfb ls /sdcard --all`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBrowser(cmd, flags, args)
		},
	}
	flags.register(root)

	root.AddCommand(
		newListCmd(&flags),
		newPullCmd(&flags),
		newPushCmd(&flags),
		newRemoveCmd(&flags),
	)
	return root
}

func runBrowser(cmd *cobra.Command, flags globalFlags, args []string) error {
	a, err := newApp(cmd, flags, true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	go func() {
		if err := a.manager.Run(ctx); err != nil {
			a.log.Error().Err(err).Msg("session manager")
		}
	}()

	start := a.cfg.HomePath
	if len(args) > 0 {
		start = remotePath(args[0])
	}
	a.manager.NavigateTo(start)

	listings, unsubscribe := a.manager.Subscribe()
	defer unsubscribe()

	ops := a.dispatcher(a.manager)
	m := newModel(ctx, modelDeps{
		browser:  a.manager,
		ops:      ops,
		listings: listings,
		notices:  ops.Notices(),
	})
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("run browser: %w", err)
	}

	cancel()
	<-a.manager.Done()
	ops.Wait()
	return nil
}

// remotePath normalizes a device path given on the command line. The root
// directory is the empty path.
func remotePath(arg string) string {
	p := strings.TrimRight(arg, "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}
