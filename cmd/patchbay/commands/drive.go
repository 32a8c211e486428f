// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/patchbay-collective/patchbay/cmd/patchbay/cli"
	"github.com/patchbay-collective/patchbay/drive"
	"github.com/patchbay-collective/patchbay/lib/config"
	"github.com/patchbay-collective/patchbay/lib/ref"
	"github.com/patchbay-collective/patchbay/remote"
)

func driveCommand() *cli.Command {
	return &cli.Command{
		Name:    "drive",
		Summary: "Manage documents on the relay",
		Description: `Manage the document directory of the configured relay account.

Documents are addressed by the numeric id shown by 'patchbay drive list'.`,
		Subcommands: []*cli.Command{
			driveListCommand(),
			driveCreateCommand(),
			driveRenameCommand(),
			driveActionCommand("trash", "Move a document to the trash", (*remote.Client).Trash),
			driveActionCommand("untrash", "Restore a trashed document", (*remote.Client).Untrash),
			driveActionCommand("duplicate", "Copy a document", (*remote.Client).Duplicate),
			driveUploadCommand(),
			driveDownloadCommand(),
			driveBrowseCommand(),
		},
	}
}

type driveListParams struct {
	cli.ConfigFlags
	cli.JSONOutput
	Sort         string `flag:"sort,s" desc:"sort by name, author, created or opened (default: drive.sort)"`
	Trashed      bool   `flag:"trashed" desc:"include trashed documents"`
	TrashedFirst bool   `flag:"trashed-first" desc:"list trashed documents before others on ties"`
}

func driveListCommand() *cli.Command {
	var params driveListParams
	return &cli.Command{
		Name:    "list",
		Summary: "List documents",
		Examples: []cli.Example{
			{Description: "Everything, alphabetically", Command: "patchbay drive list --trashed --sort name"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("list", &params) },
		Run: func(args []string) error {
			if err := requireArgs(args); err != nil {
				return err
			}
			cfg, err := params.Load()
			if err != nil {
				return err
			}
			sortName := params.Sort
			if sortName == "" {
				sortName = cfg.Drive.Sort
			}
			key, err := drive.ParseSortKey(sortName)
			if err != nil {
				return cli.Validation("%w", err)
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := interruptible()
			defer cancel()
			documents, err := client.ListDocuments(ctx)
			if err != nil {
				return cli.Classify(err)
			}

			// The directory cache gives the CLI the same order as the
			// browser.
			directory := drive.NewDirectory(drive.Order{
				Key:          key,
				TrashedFirst: params.TrashedFirst || cfg.Drive.TrashedFirst,
			}, nil)
			byID := make(map[ref.DocumentID]remote.Document, len(documents))
			entries := make([]drive.Entry, len(documents))
			for i, document := range documents {
				byID[document.ID] = document
				entries[i] = drive.EntryFromRemote(document)
			}
			directory.Reconcile(entries)

			var listed []remote.Document
			for _, entry := range directory.Entries() {
				if entry.Trashed && !params.Trashed {
					continue
				}
				listed = append(listed, byID[entry.ID])
			}
			if done, err := params.EmitJSON(listed); done {
				return err
			}

			if len(listed) == 0 {
				fmt.Fprintln(cli.Stdout, "no documents")
				return nil
			}
			tw := tabwriter.NewWriter(cli.Stdout, 2, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tAUTHOR\tOPENED\tSTATUS")
			for _, document := range listed {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", document.ID, document.Name, document.Author,
					formatTime(document.Opened), documentStatus(document))
			}
			return tw.Flush()
		},
	}
}

type driveDocumentParams struct {
	cli.ConfigFlags
	cli.JSONOutput
}

func driveCreateCommand() *cli.Command {
	var params driveDocumentParams
	return &cli.Command{
		Name:    "create",
		Summary: "Create an empty document",
		Usage:   "patchbay drive create <name> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("create", &params) },
		Run: func(args []string) error {
			if err := requireArgs(args, "name"); err != nil {
				return err
			}
			return runDocumentCall(&params, "created", func(ctx context.Context, client *remote.Client) (remote.Document, error) {
				return client.Create(ctx, args[0])
			})
		},
	}
}

func driveRenameCommand() *cli.Command {
	var params driveDocumentParams
	return &cli.Command{
		Name:    "rename",
		Summary: "Rename a document",
		Usage:   "patchbay drive rename <id> <name> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("rename", &params) },
		Run: func(args []string) error {
			if err := requireArgs(args, "id", "name"); err != nil {
				return err
			}
			id, err := parseDocumentID(args[0])
			if err != nil {
				return err
			}
			return runDocumentCall(&params, "renamed", func(ctx context.Context, client *remote.Client) (remote.Document, error) {
				return client.Rename(ctx, id, args[1])
			})
		},
	}
}

func driveActionCommand(name, summary string, call func(*remote.Client, context.Context, ref.DocumentID) (remote.Document, error)) *cli.Command {
	var params driveDocumentParams
	past := strings.TrimSuffix(name, "e") + "ed"
	return &cli.Command{
		Name:    name,
		Summary: summary,
		Usage:   "patchbay drive " + name + " <id> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams(name, &params) },
		Run: func(args []string) error {
			if err := requireArgs(args, "id"); err != nil {
				return err
			}
			id, err := parseDocumentID(args[0])
			if err != nil {
				return err
			}
			return runDocumentCall(&params, past, func(ctx context.Context, client *remote.Client) (remote.Document, error) {
				return call(client, ctx, id)
			})
		},
	}
}

// documentOutput is the parameter set runDocumentCall needs.
type documentOutput interface {
	Load() (*config.Config, error)
	EmitJSON(result any) (bool, error)
}

// runDocumentCall runs one directory operation and prints the document
// it returns.
func runDocumentCall(params documentOutput, verb string, call func(context.Context, *remote.Client) (remote.Document, error)) error {
	cfg, err := params.Load()
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := interruptible()
	defer cancel()
	document, err := call(ctx, client)
	if err != nil {
		return cli.Classify(err)
	}
	if done, err := params.EmitJSON(document); done {
		return err
	}
	fmt.Fprintf(cli.Stdout, "%s document %s %q\n", verb, document.ID, document.Name)
	return nil
}

type driveUploadParams struct {
	cli.ConfigFlags
	cli.JSONOutput
	Name string `flag:"name,n" desc:"document name (default: file name without extension)"`
}

func driveUploadCommand() *cli.Command {
	var params driveUploadParams
	return &cli.Command{
		Name:    "upload",
		Summary: "Upload a saved patch as a new document",
		Usage:   "patchbay drive upload <file> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("upload", &params) },
		Run: func(args []string) error {
			if err := requireArgs(args, "file"); err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return cli.Classify(err)
			}
			name := params.Name
			if name == "" {
				name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			return runDocumentCall(&params, "uploaded", func(ctx context.Context, client *remote.Client) (remote.Document, error) {
				return client.Upload(ctx, name, data)
			})
		},
	}
}

type driveDownloadParams struct {
	cli.ConfigFlags
	Output string `flag:"output,o" desc:"destination file (default: <id>.pbsn)"`
}

func driveDownloadCommand() *cli.Command {
	var params driveDownloadParams
	return &cli.Command{
		Name:    "download",
		Summary: "Download a document as a snapshot file",
		Description: `Download a document as a snapshot file. A document open in a live
session is downloaded as the relay currently holds it.`,
		Usage: "patchbay drive download <id> [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("download", &params) },
		Run: func(args []string) error {
			if err := requireArgs(args, "id"); err != nil {
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
			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := interruptible()
			defer cancel()
			data, err := client.Download(ctx, id)
			if err != nil {
				return cli.Classify(err)
			}
			output := params.Output
			if output == "" {
				output = id.String() + ".pbsn"
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return cli.Internal("writing %s: %w", output, err)
			}
			fmt.Fprintf(cli.Stdout, "wrote %s (%d bytes)\n", output, len(data))
			return nil
		},
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func documentStatus(document remote.Document) string {
	switch {
	case document.Trashed:
		return "trashed"
	case document.Session != 0:
		return "open"
	}
	return ""
}
