// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/patchbay-collective/patchbay/cmd/patchbay/cli"
	"github.com/patchbay-collective/patchbay/lib/codec"
	"github.com/patchbay-collective/patchbay/lib/sealed"
	"github.com/patchbay-collective/patchbay/lib/snapshot"
	"github.com/patchbay-collective/patchbay/lib/version"
)

func snapshotCommand() *cli.Command {
	return &cli.Command{
		Name:    "snapshot",
		Summary: "Inspect and seal snapshot files",
		Description: `Snapshot files hold one document: a header naming the schema, the
compression and a BLAKE3 digest, followed by the CBOR body.

seal and unseal wrap a snapshot in age encryption for sharing outside
the relay, to X25519 recipients or under a passphrase.`,
		Subcommands: []*cli.Command{
			snapshotInspectCommand(),
			snapshotSealCommand(),
			snapshotUnsealCommand(),
			snapshotKeygenCommand(),
		},
	}
}

type snapshotInspectParams struct {
	cli.JSONOutput
	Diagnostic bool `flag:"diag" desc:"also print the body in CBOR diagnostic notation"`
}

type snapshotReport struct {
	Path             string `json:"path"`
	Schema           string `json:"schema"`
	Compatible       bool   `json:"compatible"`
	Compression      string `json:"compression"`
	UncompressedSize uint64 `json:"uncompressed_size"`
	CompressedSize   uint64 `json:"compressed_size"`
	Digest           string `json:"digest"`
	Valid            bool   `json:"valid"`
	Problem          string `json:"problem,omitempty"`
	Body             string `json:"body,omitempty"`
}

func snapshotInspectCommand() *cli.Command {
	var params snapshotInspectParams
	return &cli.Command{
		Name:    "inspect",
		Summary: "Print a snapshot header and verify its body",
		Usage:   "patchbay snapshot inspect <file> [flags]",
		Description: `Print the header of a snapshot file, then decompress the body and
check it against the header digest. Exits 1 when the body does not
verify.`,
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("inspect", &params) },
		Run: func(args []string) error {
			if err := requireArgs(args, "file"); err != nil {
				return err
			}
			path := args[0]
			header, err := snapshot.Inspect(path)
			if err != nil {
				return cli.Classify(err)
			}
			report := snapshotReport{
				Path:             path,
				Schema:           header.Schema,
				Compatible:       header.Schema == version.Schema,
				Compression:      header.Compression.String(),
				UncompressedSize: header.UncompressedSize,
				CompressedSize:   header.CompressedSize,
				Digest:           header.Digest.String(),
				Valid:            true,
			}
			// Verify against the file's own schema so older files still
			// get a body check.
			body, err := snapshot.Load(path, header.Schema)
			if err != nil {
				report.Valid = false
				report.Problem = err.Error()
			} else if params.Diagnostic {
				report.Body, err = codec.Diagnose(body)
				if err != nil {
					return cli.Validation("%s: body is not CBOR: %w", path, err)
				}
			}

			if done, err := params.EmitJSON(report); !done {
				out := cli.Stdout
				fmt.Fprintf(out, "%s\n", report.Path)
				fmt.Fprintf(out, "  schema:       %s", report.Schema)
				if !report.Compatible {
					fmt.Fprintf(out, " (this build reads %s)", version.Schema)
				}
				fmt.Fprintln(out)
				fmt.Fprintf(out, "  compression:  %s\n", report.Compression)
				fmt.Fprintf(out, "  size:         %d bytes (%d stored)\n", report.UncompressedSize, report.CompressedSize)
				fmt.Fprintf(out, "  digest:       %s\n", report.Digest)
				if report.Valid {
					fmt.Fprintln(out, "  body:         ok")
				} else {
					fmt.Fprintf(out, "  body:         %s\n", report.Problem)
				}
				if report.Body != "" {
					fmt.Fprintf(out, "\n%s\n", report.Body)
				}
			} else if err != nil {
				return err
			}
			if !report.Valid {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

type snapshotSealParams struct {
	Recipients    []string `flag:"recipient,r" desc:"age X25519 public key to seal to (repeatable)"`
	PassphraseEnv string   `flag:"passphrase-env" desc:"environment variable holding the passphrase"`
	Passphrase    bool     `flag:"passphrase,p" desc:"seal with a passphrase read from the terminal"`
	Armor         bool     `flag:"armor,a" desc:"write PEM-armored text instead of binary"`
	Output        string   `flag:"output,o" desc:"write here instead of <file>.age"`
}

func snapshotSealCommand() *cli.Command {
	var params snapshotSealParams
	return &cli.Command{
		Name:    "seal",
		Summary: "Encrypt a snapshot file with age",
		Usage:   "patchbay snapshot seal <file> (--recipient KEY... | --passphrase | --passphrase-env NAME) [flags]",
		Examples: []cli.Example{
			{Description: "Seal to a collaborator", Command: "patchbay snapshot seal arp.pbsn -r age1..."},
			{Description: "Seal under a passphrase from the environment", Command: "patchbay snapshot seal arp.pbsn --passphrase-env PATCH_PASSPHRASE --armor"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("seal", &params) },
		Run: func(args []string) error {
			if err := requireArgs(args, "file"); err != nil {
				return err
			}
			path := args[0]
			usesPassphrase := params.Passphrase || params.PassphraseEnv != ""
			if len(params.Recipients) > 0 && usesPassphrase {
				return cli.Validation("--recipient and a passphrase are mutually exclusive")
			}
			if len(params.Recipients) == 0 && !usesPassphrase {
				return cli.Validation("nothing to seal to").
					WithHint("Pass --recipient with an age public key (see 'patchbay snapshot keygen'), or --passphrase.")
			}
			for _, recipient := range params.Recipients {
				if err := sealed.ParsePublicKey(recipient); err != nil {
					return cli.Validation("%w", err)
				}
			}

			// Refuse to seal anything that is not a snapshot.
			data, err := os.ReadFile(path)
			if err != nil {
				return cli.Classify(err)
			}
			if _, _, err := snapshot.ReadHeader(data); err != nil {
				return cli.Classify(fmt.Errorf("%s: %w", path, err))
			}

			var ciphertext []byte
			if usesPassphrase {
				passphrase, err := readPassphrase(params.PassphraseEnv, true)
				if err != nil {
					return err
				}
				ciphertext, err = sealed.SealWithPassphrase(data, passphrase, params.Armor)
				if err != nil {
					return cli.Internal("%w", err)
				}
			} else {
				ciphertext, err = sealed.Seal(data, params.Recipients, params.Armor)
				if err != nil {
					return cli.Internal("%w", err)
				}
			}

			output := params.Output
			if output == "" {
				output = path + ".age"
			}
			if err := os.WriteFile(output, ciphertext, 0o600); err != nil {
				return cli.Internal("writing %s: %w", output, err)
			}
			fmt.Fprintf(cli.Stdout, "sealed %s -> %s\n", path, output)
			return nil
		},
	}
}

type snapshotUnsealParams struct {
	Identity      string `flag:"identity,i" desc:"file holding an AGE-SECRET-KEY-1 private key"`
	PassphraseEnv string `flag:"passphrase-env" desc:"environment variable holding the passphrase"`
	Passphrase    bool   `flag:"passphrase,p" desc:"unseal with a passphrase read from the terminal"`
	Output        string `flag:"output,o" desc:"write here instead of <file> without .age"`
}

func snapshotUnsealCommand() *cli.Command {
	var params snapshotUnsealParams
	return &cli.Command{
		Name:    "unseal",
		Summary: "Decrypt a sealed snapshot file",
		Usage:   "patchbay snapshot unseal <file> (--identity FILE | --passphrase | --passphrase-env NAME) [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("unseal", &params) },
		Run: func(args []string) error {
			if err := requireArgs(args, "file"); err != nil {
				return err
			}
			path := args[0]
			usesPassphrase := params.Passphrase || params.PassphraseEnv != ""
			if (params.Identity != "") == usesPassphrase {
				return cli.Validation("pass exactly one of --identity or a passphrase")
			}
			ciphertext, err := os.ReadFile(path)
			if err != nil {
				return cli.Classify(err)
			}

			var plaintext []byte
			if usesPassphrase {
				passphrase, err := readPassphrase(params.PassphraseEnv, false)
				if err != nil {
					return err
				}
				plaintext, err = sealed.OpenWithPassphrase(ciphertext, passphrase)
				if err != nil {
					return cli.Forbidden("%w", err)
				}
			} else {
				key, err := os.ReadFile(params.Identity)
				if err != nil {
					return cli.Classify(err)
				}
				plaintext, err = sealed.Open(ciphertext, string(key))
				if err != nil {
					return cli.Forbidden("%w", err)
				}
			}
			if _, _, err := snapshot.ReadHeader(plaintext); err != nil {
				return cli.Validation("%s does not hold a snapshot: %w", path, err)
			}

			output := params.Output
			if output == "" {
				output = trimAgeSuffix(path)
			}
			if err := os.WriteFile(output, plaintext, 0o644); err != nil {
				return cli.Internal("writing %s: %w", output, err)
			}
			fmt.Fprintf(cli.Stdout, "unsealed %s -> %s\n", path, output)
			return nil
		},
	}
}

func trimAgeSuffix(path string) string {
	const suffix = ".age"
	if len(path) > len(suffix) && path[len(path)-len(suffix):] == suffix {
		return path[:len(path)-len(suffix)]
	}
	return path + ".pbsn"
}

type snapshotKeygenParams struct {
	cli.JSONOutput
	Output string `flag:"output,o" desc:"write the private key to this file (mode 0600) instead of stdout"`
}

type keygenResult struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key,omitempty"`
	KeyFile    string `json:"key_file,omitempty"`
}

func snapshotKeygenCommand() *cli.Command {
	var params snapshotKeygenParams
	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate an age keypair for sealing snapshots",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("keygen", &params) },
		Run: func(args []string) error {
			if err := requireArgs(args); err != nil {
				return err
			}
			keypair, err := sealed.GenerateKeypair()
			if err != nil {
				return cli.Internal("%w", err)
			}
			result := keygenResult{PublicKey: keypair.PublicKey}
			if params.Output != "" {
				if err := os.WriteFile(params.Output, []byte(keypair.PrivateKey+"\n"), 0o600); err != nil {
					return cli.Internal("writing %s: %w", params.Output, err)
				}
				result.KeyFile = params.Output
			} else {
				result.PrivateKey = keypair.PrivateKey
			}

			if done, err := params.EmitJSON(result); done {
				return err
			}
			fmt.Fprintf(cli.Stdout, "public key: %s\n", result.PublicKey)
			if result.KeyFile != "" {
				fmt.Fprintf(cli.Stdout, "private key written to %s\n", result.KeyFile)
			} else {
				fmt.Fprintln(cli.Stdout, result.PrivateKey)
			}
			return nil
		},
	}
}

// readPassphrase takes the passphrase from envName when set, else
// prompts on the terminal. Sealing asks twice.
func readPassphrase(envName string, confirm bool) (string, error) {
	if envName != "" {
		passphrase := os.Getenv(envName)
		if passphrase == "" {
			return "", cli.Validation("environment variable %s is empty", envName)
		}
		return passphrase, nil
	}

	stdinFileDescriptor := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFileDescriptor) {
		return "", cli.Validation("--passphrase needs a terminal").
			WithHint("Use --passphrase-env to pass the passphrase non-interactively.")
	}
	fmt.Fprint(os.Stderr, "Passphrase: ")
	first, err := term.ReadPassword(stdinFileDescriptor)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", cli.Internal("reading passphrase: %w", err)
	}
	if confirm {
		fmt.Fprint(os.Stderr, "Confirm passphrase: ")
		second, err := term.ReadPassword(stdinFileDescriptor)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", cli.Internal("reading passphrase: %w", err)
		}
		if string(first) != string(second) {
			return "", cli.Validation("passphrases do not match")
		}
	}
	if len(first) == 0 {
		return "", cli.Validation("empty passphrase")
	}
	return string(first), nil
}
