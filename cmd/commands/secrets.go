package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/tbaudier/overseer/internal/config"
	"github.com/tbaudier/overseer/internal/secrets"
)

// NewSecretsCommand returns the secrets subcommand.
func NewSecretsCommand() *cli.Command {
	return &cli.Command{
		Name:  "secrets",
		Usage: "Manage encrypted provider credentials",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Generate the local encryption identity",
				Action: runSecretsInit,
			},
			{
				Name:      "set",
				Usage:     "Encrypt a credential and store it in the env file",
				ArgsUsage: "<KEY>",
				Action:    runSecretsSet,
			},
		},
	}
}

func runSecretsInit(_ context.Context, _ *cli.Command) error {
	keyPath := secrets.KeyPath()
	if _, err := os.Stat(keyPath); err == nil {
		fmt.Printf("Identity already exists at %s.\n", keyPath)
		return nil
	}

	if err := secrets.GenerateIdentity(keyPath); err != nil {
		return fmt.Errorf("generate identity: %w", err)
	}
	fmt.Printf("Identity written to %s.\n", keyPath)
	return nil
}

func runSecretsSet(_ context.Context, cmd *cli.Command) error {
	key := cmd.Args().First()
	if key == "" {
		return fmt.Errorf("usage: overseer secrets set <KEY>")
	}

	value, err := readSecret(fmt.Sprintf("Value for %s: ", key))
	if err != nil {
		return fmt.Errorf("read value: %w", err)
	}
	if value == "" {
		return fmt.Errorf("empty value")
	}

	identity, err := secrets.LoadIdentity(secrets.KeyPath())
	if err != nil {
		return fmt.Errorf("load identity (run `overseer secrets init` first): %w", err)
	}

	blob, err := secrets.Encrypt(value, identity.Recipient())
	if err != nil {
		return fmt.Errorf("encrypt: %w", err)
	}

	if err := secrets.SetEntry(config.DotenvPath(), key, blob); err != nil {
		return fmt.Errorf("store entry: %w", err)
	}

	fmt.Printf("%s stored encrypted in %s.\n", key, config.DotenvPath())
	return nil
}

// readSecret reads a value without echo when stdin is a terminal, and falls
// back to a plain line read for piped input.
func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	if term.IsTerminal(int(syscall.Stdin)) {
		value, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(value)), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
