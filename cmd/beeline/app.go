package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// version is set via ldflags at build time by GoReleaser.
// e.g. -ldflags "-X main.version=1.2.3"
var version = "dev"

// newApp creates the CLI application with all flags and commands.
func newApp() *cli.Command {
	return &cli.Command{
		Name:        "beeline",
		Usage:       "Prompt script runner for LLM providers",
		Version:     version,
		UsageText:   "beeline [global options] command [command options] [arguments...]",
		Description: "Beeline executes prompt scripts that drive multi-turn, tool-using conversations with LLM providers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   "beeline.json",
			},
			&cli.StringFlag{
				Name:    "project",
				Aliases: []string{"p"},
				Usage:   "Project directory",
				Value:   ".",
			},
			&cli.StringSliceFlag{
				Name:    "var",
				Aliases: []string{"V"},
				Usage:   "Script variable as name=value (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress transcript output (errors still print)",
			},
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "Debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Execute a prompt script",
				ArgsUsage: "<prompt>",
				Action:    cmdRun,
			},
			{
				Name:      "list",
				Usage:     "Show the parsed statements of a prompt script",
				ArgsUsage: "<prompt>",
				Action:    cmdList,
			},
			{
				Name:   "init",
				Usage:  "Initialize prompts and functions directories",
				Action: cmdInit,
			},
			{
				Name:   "config",
				Usage:  "Show current configuration",
				Action: cmdConfig,
			},
			{
				Name:   "models",
				Usage:  "List known models and pricing",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "provider", Usage: "Only show models for one provider"},
				},
				Action: cmdModels,
			},
			{
				Name:   "functions",
				Usage:  "List functions discovered in the functions directory",
				Action: cmdFunctions,
			},
			{
				Name:      "sessions",
				Usage:     "List past prompt runs, or show one transcript",
				ArgsUsage: "[session-id]",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "Maximum sessions to show"},
				},
				Action: cmdSessions,
			},
			{
				Name:  "keys",
				Usage: "Manage stored provider API keys",
				Commands: []*cli.Command{
					{
						Name:      "set",
						Usage:     "Store an API key for a provider",
						ArgsUsage: "<provider>",
						Action:    cmdKeysSet,
					},
					{
						Name:      "remove",
						Usage:     "Remove the stored API key for a provider",
						ArgsUsage: "<provider>",
						Action:    cmdKeysRemove,
					},
				},
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			// Default action: treat the first arg as a prompt name (implicit run)
			args := cmd.Args().Slice()
			if len(args) == 0 {
				return fmt.Errorf("usage: beeline <prompt> (see beeline --help)")
			}
			return runScript(ctx, cmd, args[0])
		},
	}
}
