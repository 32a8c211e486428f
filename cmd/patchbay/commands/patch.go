// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/muesli/termenv"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/patchbay-collective/patchbay/cmd/patchbay/cli"
	"github.com/patchbay-collective/patchbay/drive"
	"github.com/patchbay-collective/patchbay/lib/clock"
	"github.com/patchbay-collective/patchbay/lib/config"
	"github.com/patchbay-collective/patchbay/lib/loop"
	"github.com/patchbay-collective/patchbay/lib/ref"
	"github.com/patchbay-collective/patchbay/patcher"
	"github.com/patchbay-collective/patchbay/transport"
)

func patchCommand() *cli.Command {
	return &cli.Command{
		Name:    "patch",
		Summary: "Read and join patcher documents",
		Subcommands: []*cli.Command{
			patchShowCommand(),
			patchJoinCommand(),
		},
	}
}

type patchShowParams struct {
	cli.ConfigFlags
	cli.JSONOutput
}

// patchObject and patchLink are the JSON shapes of 'patch show'.
type patchObject struct {
	Ref     string  `json:"ref"`
	Text    string  `json:"text"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	Inlets  string  `json:"inlets"`
	Outlets string  `json:"outlets"`
}

type patchLink struct {
	Ref      string `json:"ref"`
	Sender   string `json:"sender"`
	Outlet   int    `json:"outlet"`
	Receiver string `json:"receiver"`
	Inlet    int    `json:"inlet"`
	Control  bool   `json:"control,omitempty"`
}

type patchSummary struct {
	Path    string        `json:"path"`
	Objects []patchObject `json:"objects"`
	Links   []patchLink   `json:"links"`
	Views   int           `json:"views"`
}

func patchShowCommand() *cli.Command {
	var params patchShowParams
	return &cli.Command{
		Name:    "show",
		Summary: "Print the objects and links of a snapshot file",
		Usage:   "patchbay patch show <file> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("show", &params) },
		Run: func(args []string) error {
			if err := requireArgs(args, "file"); err != nil {
				return err
			}
			cfg, err := params.Load()
			if err != nil {
				return err
			}
			logger, err := params.Logger(cfg, "patch/show")
			if err != nil {
				return err
			}

			l := loop.New(logger)
			manager, err := patcher.Open(patcher.Context{Config: cfg, Logger: logger, Clock: clock.Real(), Loop: l}, args[0], patcher.Options{})
			if err != nil {
				return cli.Classify(err)
			}
			summary := summarize(args[0], manager)
			manager.ForceClose()
			l.RunPending()

			if done, err := params.EmitJSON(summary); done {
				return err
			}
			return printPatch(cli.Stdout, summary)
		},
	}
}

func summarize(path string, manager *patcher.Manager) patchSummary {
	p := manager.Patcher()
	summary := patchSummary{
		Path:    path,
		Objects: make([]patchObject, 0, len(p.Objects)),
		Links:   make([]patchLink, 0, len(p.Links)),
		Views:   len(p.Views),
	}
	for _, object := range p.Objects {
		summary.Objects = append(summary.Objects, patchObject{
			Ref:     object.Ref.String(),
			Text:    object.Text,
			X:       object.Position.X,
			Y:       object.Position.Y,
			Width:   object.Size.Width,
			Height:  object.Size.Height,
			Inlets:  object.Inlets,
			Outlets: object.Outlets,
		})
	}
	for _, link := range p.Links {
		summary.Links = append(summary.Links, patchLink{
			Ref:      link.Ref.String(),
			Sender:   link.Sender.String(),
			Outlet:   link.Outlet,
			Receiver: link.Receiver.String(),
			Inlet:    link.Inlet,
			Control:  link.Control,
		})
	}
	return summary
}

func printPatch(w io.Writer, summary patchSummary) error {
	fmt.Fprintf(w, "%s: %d objects, %d links, %d views\n", summary.Path, len(summary.Objects), len(summary.Links), summary.Views)
	if len(summary.Objects) > 0 {
		fmt.Fprintln(w)
		table := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(table, "OBJECT\tTEXT\tPOSITION\tPORTS")
		for _, object := range summary.Objects {
			fmt.Fprintf(table, "%s\t%s\t%g,%g\t%s/%s\n", object.Ref, object.Text, object.X, object.Y,
				portsOrDash(object.Inlets), portsOrDash(object.Outlets))
		}
		if err := table.Flush(); err != nil {
			return err
		}
	}
	if len(summary.Links) > 0 {
		fmt.Fprintln(w)
		table := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(table, "LINK\tFROM\tTO\tKIND")
		for _, link := range summary.Links {
			kind := "signal"
			if link.Control {
				kind = "control"
			}
			fmt.Fprintf(table, "%s\t%s:%d\t%s:%d\t%s\n", link.Ref, link.Sender, link.Outlet, link.Receiver, link.Inlet, kind)
		}
		return table.Flush()
	}
	return nil
}

func portsOrDash(ports string) string {
	if ports == "" {
		return "-"
	}
	return ports
}

type patchJoinParams struct {
	cli.ConfigFlags
	Save string `flag:"save" desc:"write the document to this snapshot file when leaving"`
}

func patchJoinCommand() *cli.Command {
	var params patchJoinParams
	return &cli.Command{
		Name:    "join",
		Summary: "Join a document's live session and follow it",
		Usage:   "patchbay patch join <document-id> [flags]",
		Description: `Open a document on the relay and join its live session. Connection
changes, collaborators and cycle warnings are printed as they happen.
Interrupt to leave; --save writes the merged document first.`,
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("join", &params) },
		Run: func(args []string) error {
			if err := requireArgs(args, "document-id"); err != nil {
				return err
			}
			id, err := parseDocumentID(args[0])
			if err != nil {
				return err
			}
			cfg, err := params.Load()
			if err != nil {
				return err
			}
			logger, err := params.Logger(cfg, "patch/join")
			if err != nil {
				return err
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := interruptible()
			defer cancel()
			document, err := client.Open(ctx, id)
			if err != nil {
				return cli.Classify(err)
			}
			fmt.Fprintf(cli.Stdout, "joining %q in session %s\n", document.Name, document.Session)

			accountName := cfg.User.Name
			if accountName == "" {
				accountName = cfg.ServerAddress()
			}
			account := drive.NewAccount(accountName, client, func(name string) {
				fmt.Fprintf(cli.Stdout, "the relay refused the credentials of %s; update user.token and join again\n", name)
			}, logger)

			return joinSession(ctx, cfg, logger, account, transport.Endpoint{
				Host:    cfg.Server.Host,
				Port:    cfg.Server.Port,
				Session: document.Session,
				Token:   cfg.User.Token,
			}, document.Name, params.Save)
		},
	}
}

// joinSession follows a session until ctx ends or the manager closes.
// Every manager call happens on the loop, which runs on this goroutine.
func joinSession(ctx context.Context, cfg *config.Config, logger *slog.Logger, account patcher.Account, endpoint transport.Endpoint, name, savePath string) error {
	l := loop.New(logger)
	workspace := patcher.NewWorkspace(patcher.Context{
		Config:  cfg,
		Logger:  logger,
		Clock:   clock.Real(),
		Loop:    l,
		Dialer:  &transport.WebSocketDialer{Logger: logger},
		Account: account,
	})

	var leaveErr error
	listener := newJoinListener(cli.Stdout)
	manager, err := workspace.OpenSession(ctx, endpoint, patcher.Options{
		Name:     name,
		Listener: listener,
		Prompter: newTerminalPrompter(l, os.Stdin, os.Stderr),
	})
	if err != nil {
		return cli.Classify(err)
	}
	if _, err := manager.NewView(); err != nil {
		manager.ForceClose()
		return cli.Internal("opening a view: %w", err)
	}
	manager.OnClosed(func(*patcher.Manager) { l.Close() })

	go func() {
		<-ctx.Done()
		l.Post(func() {
			if savePath != "" && !manager.Closed() {
				if err := manager.Save(savePath); err != nil {
					leaveErr = cli.Classify(err)
				} else {
					fmt.Fprintf(cli.Stdout, "saved %s\n", savePath)
				}
			}
			workspace.CloseAll()
			l.Close()
		})
	}()

	if err := l.Run(context.Background()); err != nil {
		return cli.Internal("%w", err)
	}
	return leaveErr
}

// joinListener prints what a session participant would notice.
// Warnings are colored only when out is a color terminal.
type joinListener struct {
	patcher.NopListener
	out     io.Writer
	term    *termenv.Output
	objects int
	links   int
}

func newJoinListener(out io.Writer) *joinListener {
	return &joinListener{out: out, term: termenv.NewOutput(out)}
}

func (j *joinListener) warning(text string) string {
	return j.term.String(text).Foreground(j.term.Color("3")).Bold().String()
}

func (j *joinListener) ConnectionStateChanged(_ *patcher.Manager, state transport.State) {
	fmt.Fprintf(j.out, "connection %s\n", state)
}

func (j *joinListener) ConnectedUsersChanged(_ *patcher.Manager, users []ref.UserID) {
	if len(users) == 0 {
		fmt.Fprintln(j.out, "no one else is connected")
		return
	}
	names := make([]string, len(users))
	for i, user := range users {
		names[i] = user.String()
	}
	fmt.Fprintf(j.out, "connected: %s\n", strings.Join(names, ", "))
}

func (j *joinListener) DocumentChanged(m *patcher.Manager, _ *patcher.View) {
	p := m.Patcher()
	if len(p.Objects) == j.objects && len(p.Links) == j.links {
		return
	}
	j.objects, j.links = len(p.Objects), len(p.Links)
	fmt.Fprintf(j.out, "document: %d objects, %d links\n", j.objects, j.links)
}

func (j *joinListener) StackOverflowDetected(_ *patcher.Manager, refs []ref.Ref) {
	names := make([]string, len(refs))
	for i, r := range refs {
		names[i] = r.String()
	}
	fmt.Fprintf(j.out, "%s control links form a cycle through %s\n", j.warning("warning:"), strings.Join(names, ", "))
}

func (j *joinListener) StackOverflowCleared(*patcher.Manager) {
	fmt.Fprintln(j.out, "control cycle resolved")
}

// terminalPrompter asks on the terminal whether to keep editing after
// the connection is lost. Without a terminal it always stays offline.
type terminalPrompter struct {
	loop *loop.Loop
	in   *os.File
	out  io.Writer
}

func newTerminalPrompter(l *loop.Loop, in *os.File, out io.Writer) patcher.Prompter {
	if !term.IsTerminal(int(in.Fd())) {
		return patcher.StayOffline{}
	}
	return &terminalPrompter{loop: l, in: in, out: out}
}

func (p *terminalPrompter) AskContinueOffline(m *patcher.Manager, answer func(bool)) {
	fmt.Fprintf(p.out, "Lost the connection to %s with %d unsent changes. Continue offline? [Y/n] ", m.Name(), m.Unsent())
	go func() {
		line, err := bufio.NewReader(p.in).ReadString('\n')
		if err != nil {
			answer(true)
			return
		}
		reply := strings.ToLower(strings.TrimSpace(line))
		answer(reply != "n" && reply != "no")
	}()
}
