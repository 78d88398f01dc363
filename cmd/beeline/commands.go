package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/exedev/beeline/internal/config"
	"github.com/exedev/beeline/internal/funcs"
	"github.com/exedev/beeline/internal/keys"
	"github.com/exedev/beeline/internal/model"
	"github.com/exedev/beeline/internal/output"
	"github.com/exedev/beeline/internal/provider"
	"github.com/exedev/beeline/internal/state"
	"github.com/exedev/beeline/internal/subst"
	"github.com/exedev/beeline/internal/vm"
)

func loadConfigFromCtx(cmd *cli.Command) (*config.Config, error) {
	configPath := cmd.String("config")
	projectDir := cmd.String("project")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if projectDir != "." {
		cfg.ProjectDir = projectDir
	}
	return cfg, nil
}

func cmdRun(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args().Slice()
	if len(args) == 0 {
		return fmt.Errorf("usage: beeline run <prompt>")
	}
	return runScript(ctx, cmd, args[0])
}

func cmdList(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args().Slice()
	if len(args) == 0 {
		return fmt.Errorf("usage: beeline list <prompt>")
	}

	cfg, err := loadConfigFromCtx(cmd)
	if err != nil {
		return err
	}
	path, err := resolveScript(cfg, args[0])
	if err != nil {
		return err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	stmts := vm.Parse(string(src))
	if len(stmts) == 0 {
		return fmt.Errorf("%s: empty script", path)
	}

	p := output.NewPrinter(output.ModePlain, false)
	var rows [][]string
	for _, s := range stmts {
		value := s.Value
		if len(value) > 72 {
			value = value[:69] + "..."
		}
		rows = append(rows, []string{fmt.Sprintf("%02d", s.Seq), s.Keyword, value})
	}
	p.Table([]string{"Seq", "Keyword", "Value"}, rows)
	return nil
}

// resolveScript accepts either a path to a .prompt file or a bare prompt
// name looked up under the prompts directory.
func resolveScript(cfg *config.Config, name string) (string, error) {
	if info, err := os.Stat(name); err == nil && info.Mode().IsRegular() {
		return name, nil
	}
	candidate := cfg.PromptsPath(name)
	if !strings.HasSuffix(candidate, ".prompt") {
		candidate += ".prompt"
	}
	if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
		return candidate, nil
	}
	return "", fmt.Errorf("prompt %q not found (looked for %s)", name, candidate)
}

func runScript(ctx context.Context, cmd *cli.Command, name string) error {
	cfg, err := loadConfigFromCtx(cmd)
	if err != nil {
		return err
	}
	logger := log.New(os.Stderr, "", log.LstdFlags)

	path, err := resolveScript(cfg, name)
	if err != nil {
		return err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read prompt: %w", err)
	}
	program := vm.Parse(string(src))
	if len(program) == 0 {
		return fmt.Errorf("%s: empty prompt script", path)
	}

	vars := subst.Vars{}
	for _, pair := range cmd.StringSlice("var") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("--var %q: want name=value", pair)
		}
		vars[k] = v
	}

	mode := output.ModePlain
	if cmd.Bool("quiet") {
		mode = output.ModeQuiet
	}
	printer := output.NewPrinter(mode, cmd.Bool("debug"))

	models := model.NewRegistry()
	if cfg.ModelsFile != "" {
		if err := models.LoadFile(cfg.ModelsFile); err != nil {
			return fmt.Errorf("load models overlay: %w", err)
		}
	}

	registry, err := funcs.Discover(cfg.FunctionsPath(), cfg.ProjectDir, logger)
	if err != nil {
		return fmt.Errorf("discover functions: %w", err)
	}
	if cfg.Run.FunctionTimeout > 0 {
		registry.CallTimeout = cfg.Run.FunctionTimeout
	}

	db, err := state.OpenDB(cfg.StatePath())
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer db.Close()

	sessionID := state.NewSessionID()
	if err := db.CreateSession(sessionID, filepath.Base(path)); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	machine := &vm.VM{
		Script:    filepath.Base(path),
		Vars:      vars,
		Models:    models,
		Funcs:     registry,
		Keys:      keys.NewStore(db),
		Printer:   printer,
		Builtins:  registry.Builtins,
		HTTP:      provider.NewHTTPClient(cfg.HTTP.Timeout),
		Config:    cfg,
		Store:     db,
		SessionID: sessionID,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Println("\nReceived shutdown signal, stopping...")
		cancel()
	}()

	runErr := machine.Run(runCtx, program)

	c := machine.Conversation()
	costIn, costOut := machine.Cost()
	status := "done"
	if runErr != nil {
		status = "failed"
	}
	if err := db.FinishSession(sessionID, status, c.TokensIn, c.TokensOut, costIn+costOut); err != nil {
		logger.Printf("finish session: %v", err)
	}
	return runErr
}

func cmdInit(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	logger := log.New(os.Stderr, "", log.LstdFlags)

	cfg, err := loadConfigFromCtx(cmd)
	if err != nil {
		return err
	}

	for _, dir := range []string{cfg.PromptsPath(), cfg.FunctionsPath(), cfg.StatePath()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	sample := cfg.PromptsPath("hello.prompt")
	if _, err := os.Stat(sample); os.IsNotExist(err) {
		script := ".llm \"model\": \"claude-sonnet-4\"\n.user Say hello in five words or fewer.\n.exec\n"
		if err := os.WriteFile(sample, []byte(script), 0644); err != nil {
			return fmt.Errorf("write sample prompt: %w", err)
		}
		logger.Printf("Wrote sample prompt %s", sample)
	}

	logger.Printf("Initialized project at %s", cfg.ProjectDir)
	logger.Printf("Config saved to %s", configPath)
	return nil
}

func cmdConfig(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfigFromCtx(cmd)
	if err != nil {
		return err
	}

	fmt.Printf("Configuration (%s):\n", cmd.String("config"))
	fmt.Printf("  Project Dir:      %s\n", cfg.ProjectDir)
	fmt.Printf("  Prompts Dir:      %s\n", cfg.PromptsDir)
	fmt.Printf("  Functions Dir:    %s\n", cfg.FunctionsDir)
	fmt.Printf("  State Dir:        %s\n", cfg.StateDir)
	fmt.Printf("  Max Iterations:   %d\n", cfg.Run.MaxIterations)
	fmt.Printf("  Function Timeout: %v\n", cfg.Run.FunctionTimeout)
	fmt.Printf("  HTTP Timeout:     %v\n", cfg.HTTP.Timeout)
	if cfg.ModelsFile != "" {
		fmt.Printf("  Models Overlay:   %s\n", cfg.ModelsFile)
	}
	for name, pc := range cfg.Providers {
		fmt.Printf("  Provider %s: base_url=%s max_tokens=%d\n", name, pc.BaseURL, pc.MaxTokens)
	}
	return nil
}
