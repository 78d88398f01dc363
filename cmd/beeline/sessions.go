package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/exedev/beeline/internal/output"
	"github.com/exedev/beeline/internal/state"
)

func cmdSessions(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfigFromCtx(cmd)
	if err != nil {
		return err
	}

	db, err := state.OpenDB(cfg.StatePath())
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer db.Close()

	if id := cmd.Args().First(); id != "" {
		return showSession(db, id)
	}

	sessions, err := db.ListSessions(int(cmd.Int("limit")))
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	p := output.NewPrinter(output.ModePlain, false)
	if len(sessions) == 0 {
		p.Info("No sessions found. Run 'beeline run <prompt>' to start one.")
		return nil
	}

	var rows [][]string
	for _, s := range sessions {
		binding := s.Model
		if binding == "" {
			binding = "-"
		}
		rows = append(rows, []string{
			s.ID,
			s.Script,
			binding,
			s.Status,
			fmt.Sprintf("%d/%d", s.TokensIn, s.TokensOut),
			fmt.Sprintf("$%.4f", s.Cost),
			s.CreatedAt,
		})
	}
	p.Table([]string{"Session", "Script", "Model", "Status", "Tokens", "Cost", "Started"}, rows)
	return nil
}

// showSession prints the stored transcript of a single run.
func showSession(db *state.DB, id string) error {
	s, err := db.GetSession(id)
	if err != nil {
		return fmt.Errorf("session %s: %w", id, err)
	}

	p := output.NewPrinter(output.ModePlain, false)
	p.KeyValue([][]string{
		{"Session", s.ID},
		{"Script", s.Script},
		{"Model", s.Model},
		{"Status", s.Status},
		{"Tokens", fmt.Sprintf("%d in / %d out", s.TokensIn, s.TokensOut)},
		{"Cost", fmt.Sprintf("$%.4f", s.Cost)},
		{"Started", s.CreatedAt},
	})

	c, err := db.LoadConversation(id)
	if err != nil {
		p.Info("No transcript stored for this session.")
		return nil
	}
	for _, m := range c.Messages {
		p.Divider()
		p.Println(string(m.Role) + ":")
		for _, call := range m.Calls() {
			p.ToolCall(call.Name, call.Args)
		}
		if text := m.Text(); text != "" {
			p.Println(text)
		}
	}
	return nil
}
