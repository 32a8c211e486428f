// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/patchbay-collective/patchbay/cmd/patchbay/cli"
	"github.com/patchbay-collective/patchbay/lib/clock"
	"github.com/patchbay-collective/patchbay/relay"
)

type relayParams struct {
	cli.ConfigFlags
	Listen string `flag:"listen" desc:"address to bind (default: relay.listen)"`
}

func relayCommand() *cli.Command {
	var params relayParams
	return &cli.Command{
		Name:    "relay",
		Summary: "Run a relay server",
		Description: `Run the relay: the document directory API, live session sockets and,
when relay.metrics is set, Prometheus metrics at /metrics.

Accounts come from relay.accounts in the configuration. The relay keeps
documents in memory; stopping it discards them.`,
		Usage: "patchbay relay [--listen host:port] [flags]",
		Examples: []cli.Example{
			{Description: "Serve on every interface", Command: "patchbay relay --listen :7411 -c relay.yaml"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("relay", &params) },
		Run: func(args []string) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			cfg, err := params.Load()
			if err != nil {
				return err
			}
			logger, err := params.Logger(cfg, "relay")
			if err != nil {
				return err
			}
			if len(cfg.Relay.Accounts) == 0 {
				logger.Warn("no relay.accounts configured; every request will be refused")
			}

			server, err := relay.FromConfig(cfg, clock.Real(), logger)
			if err != nil {
				return cli.Validation("%w", err)
			}
			address := params.Listen
			if address == "" {
				address = cfg.Relay.Listen
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return cli.Classify(server.ListenAndServe(ctx, address))
		},
	}
}
