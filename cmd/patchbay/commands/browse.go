// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/patchbay-collective/patchbay/cmd/patchbay/cli"
	"github.com/patchbay-collective/patchbay/drive"
	"github.com/patchbay-collective/patchbay/lib/clock"
	"github.com/patchbay-collective/patchbay/lib/driveui"
	"github.com/patchbay-collective/patchbay/lib/loop"
)

type driveBrowseParams struct {
	cli.ConfigFlags
	LogOutput string `flag:"log-output" desc:"write JSON log records to this file (the terminal belongs to the browser)"`
}

func driveBrowseCommand() *cli.Command {
	var params driveBrowseParams
	return &cli.Command{
		Name:    "browse",
		Summary: "Browse documents interactively",
		Description: `Open an interactive browser over the document directory. The list
refreshes every drive.poll_interval.

Keys: arrows move, o opens a live session, t trashes or restores, d
duplicates, s changes the sort, T shows the trash, r refreshes, q quits.`,
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("browse", &params) },
		Run: func(args []string) error {
			if err := requireArgs(args); err != nil {
				return err
			}
			cfg, err := params.Load()
			if err != nil {
				return err
			}
			key, err := drive.ParseSortKey(cfg.Drive.Sort)
			if err != nil {
				return cli.Validation("%w", err)
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}

			logger := slog.New(slog.DiscardHandler)
			if params.LogOutput != "" {
				file, err := os.OpenFile(params.LogOutput, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return cli.Internal("opening log output: %w", err)
				}
				defer file.Close()
				level, err := cli.ParseLevel(cfg.Log.Level)
				if err != nil {
					return cli.Validation("%w", err)
				}
				logger = slog.New(slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level}))
			}
			logger = logger.With("command", "drive/browse")

			order := drive.Order{Key: key, TrashedFirst: cfg.Drive.TrashedFirst}
			name := cfg.User.Name
			if name == "" {
				name = cfg.ServerAddress()
			}

			l := loop.New(logger)
			var program *tea.Program
			bridge := driveui.NewBridge(l, func(msg tea.Msg) { program.Send(msg) })
			d, err := drive.New(drive.Options{
				Account:      drive.NewAccount(name, client, bridge.LoggedOut, logger),
				Loop:         l,
				Clock:        clock.Real(),
				Logger:       logger,
				PollInterval: cfg.DrivePollInterval(),
				Order:        order,
				Listener:     bridge,
			})
			if err != nil {
				return cli.Internal("%w", err)
			}
			bridge.Attach(d)
			program = tea.NewProgram(driveui.NewModel(name, order, bridge), tea.WithAltScreen())

			loopDone := make(chan error, 1)
			go func() { loopDone <- l.Run(context.Background()) }()
			l.Post(d.Start)

			_, runErr := program.Run()

			// Close the drive on its loop, then let the loop drain and
			// stop.
			l.Post(d.Close)
			l.Close()
			<-loopDone
			return runErr
		},
	}
}
