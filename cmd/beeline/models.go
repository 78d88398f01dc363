package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/exedev/beeline/internal/funcs"
	"github.com/exedev/beeline/internal/model"
	"github.com/exedev/beeline/internal/output"
)

func cmdModels(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfigFromCtx(cmd)
	if err != nil {
		return err
	}

	registry := model.NewRegistry()
	if cfg.ModelsFile != "" {
		if err := registry.LoadFile(cfg.ModelsFile); err != nil {
			return fmt.Errorf("load models overlay: %w", err)
		}
	}

	filter := cmd.String("provider")
	p := output.NewPrinter(output.ModePlain, false)

	var rows [][]string
	for _, m := range registry.All() {
		if filter != "" && m.Provider != filter {
			continue
		}
		caps := ""
		if m.Vision {
			caps += "vision "
		}
		if m.Tools {
			caps += "tools"
		}
		rows = append(rows, []string{
			m.ID,
			m.Provider,
			fmt.Sprintf("$%.2f", m.InputCost*1_000_000),
			fmt.Sprintf("$%.2f", m.OutputCost*1_000_000),
			fmt.Sprintf("%d", m.Context),
			caps,
		})
	}
	if len(rows) == 0 {
		p.Info("No models found.")
		return nil
	}

	p.Table([]string{"Model", "Provider", "In/Mtok", "Out/Mtok", "Context", "Capabilities"}, rows)
	return nil
}

func cmdFunctions(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfigFromCtx(cmd)
	if err != nil {
		return err
	}

	registry, err := funcs.Discover(cfg.FunctionsPath(), cfg.ProjectDir, nil)
	if err != nil {
		return fmt.Errorf("discover functions: %w", err)
	}

	p := output.NewPrinter(output.ModePlain, false)
	var rows [][]string
	for _, d := range registry.Definitions() {
		rows = append(rows, []string{d.Name, d.Description})
	}
	p.Table([]string{"Function", "Description"}, rows)
	return nil
}
