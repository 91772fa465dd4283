package main

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/entro314-labs/nookfb/internal/bridge"
	"github.com/entro314-labs/nookfb/internal/config"
	"github.com/entro314-labs/nookfb/internal/fileops"
	"github.com/entro314-labs/nookfb/internal/logging"
	"github.com/entro314-labs/nookfb/internal/session"
)

// app holds the components shared by every command.
type app struct {
	cfg     config.Config
	log     zerolog.Logger
	closer  io.Closer
	manager *session.Manager
}

// newApp loads the configuration and builds the logger and session manager.
// Interactive mode logs to the configured file since the terminal belongs to
// the UI.
func newApp(cmd *cobra.Command, f globalFlags, interactive bool) (*app, error) {
	cfg, err := resolveConfig(cmd, f)
	if err != nil {
		return nil, err
	}

	var (
		log    zerolog.Logger
		closer io.Closer = io.NopCloser(nil)
	)
	if interactive {
		log, closer, err = logging.NewFile(cfg.LogFile, cfg.LogLevel, f.verbose)
		if err != nil {
			return nil, err
		}
	} else {
		log = logging.New(os.Stderr, cfg.LogLevel, f.verbose)
	}

	launcher := bridge.ExecLauncher{Path: cfg.ADBPath, Logger: logging.Component(log, "bridge")}
	manager := session.New(launcher, session.Options{
		Home:      cfg.HomePath,
		Separator: cfg.RecordSeparator,
		Logger:    logging.Component(log, "session"),
	})

	log.Debug().Str("adb", cfg.ADBPath).Str("home", cfg.HomePath).Msg("starting")
	return &app{cfg: cfg, log: log, closer: closer, manager: manager}, nil
}

// dispatcher returns a dispatcher refreshing listing after mutations.
func (a *app) dispatcher(listing fileops.Refresher) *fileops.Dispatcher {
	launcher := bridge.ExecLauncher{Path: a.cfg.ADBPath, Logger: logging.Component(a.log, "bridge")}
	return fileops.New(launcher, listing, fileops.Options{
		UploadPath:     a.cfg.UploadPath,
		StorageRootURL: a.cfg.StorageRootURL,
		DownloadDir:    a.cfg.DownloadDirectory,
		Logger:         logging.Component(a.log, "fileops"),
	})
}

func (a *app) Close() error {
	return a.closer.Close()
}
