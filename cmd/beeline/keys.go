package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/exedev/beeline/internal/keys"
	"github.com/exedev/beeline/internal/provider"
	"github.com/exedev/beeline/internal/state"
)

func keyStoreFromCtx(cmd *cli.Command) (*keys.Store, func() error, error) {
	cfg, err := loadConfigFromCtx(cmd)
	if err != nil {
		return nil, nil, err
	}
	db, err := state.OpenDB(cfg.StatePath())
	if err != nil {
		return nil, nil, fmt.Errorf("open state: %w", err)
	}
	return keys.NewStore(db), db.Close, nil
}

func knownProvider(name string) bool {
	for _, p := range provider.Providers() {
		if p == name {
			return true
		}
	}
	return false
}

func cmdKeysSet(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args().Slice()
	if len(args) != 1 {
		return fmt.Errorf("usage: beeline keys set <provider>")
	}
	name := args[0]
	if !knownProvider(name) {
		return fmt.Errorf("unknown provider %q (known: %s)", name, strings.Join(provider.Providers(), ", "))
	}

	store, closeDB, err := keyStoreFromCtx(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	fmt.Fprintf(os.Stderr, "Enter your %s API key: ", name)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("read API key: %w", err)
	}

	if err := store.Set(name, strings.TrimSpace(string(raw))); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Stored API key for %s\n", name)
	return nil
}

func cmdKeysRemove(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args().Slice()
	if len(args) != 1 {
		return fmt.Errorf("usage: beeline keys remove <provider>")
	}
	name := args[0]

	store, closeDB, err := keyStoreFromCtx(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := store.Delete(name); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Removed stored API key for %s\n", name)
	return nil
}
