// Package vm executes prompt scripts. A script is a flat list of
// statements that build up a conversation, bind a model, and hand the
// conversation to the tool-invocation loop. Execution is strictly
// sequential; any statement failure aborts the script, except tool
// failures inside a turn, which flow back to the model as error results.
package vm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/exedev/beeline/internal/config"
	"github.com/exedev/beeline/internal/conv"
	"github.com/exedev/beeline/internal/engine"
	"github.com/exedev/beeline/internal/funcs"
	"github.com/exedev/beeline/internal/model"
	"github.com/exedev/beeline/internal/output"
	"github.com/exedev/beeline/internal/provider"
	"github.com/exedev/beeline/internal/state"
	"github.com/exedev/beeline/internal/subst"
)

// KeyResolver yields the API key for a provider.
type KeyResolver interface {
	Get(provider string) (string, error)
}

// VM interprets one prompt script against one conversation. Collaborators
// are plain fields so callers (and tests) can wire exactly what they need;
// only Models is required for scripts that declare a model.
type VM struct {
	Script   string
	Vars     subst.Vars
	Models   *model.Registry
	Funcs    *funcs.Registry
	Keys     KeyResolver
	Printer  *output.Printer
	Builtins *funcs.Builtins
	HTTP     *http.Client
	Config   *config.Config

	// Optional persistence; when both are set the conversation is
	// snapshotted after every executed turn.
	Store     *state.DB
	SessionID string

	// NewAdapter is swapped out by tests to inject a stub provider.
	NewAdapter func(provider.Options) (provider.Adapter, error)

	program []Statement
	conv    *conv.Conversation
	adapter provider.Adapter
	mdl     model.Model
	llmSeen bool
	halted  bool

	costIn  float64
	costOut float64
}

// Run executes the program to completion or the first fatal error.
func (v *VM) Run(ctx context.Context, program []Statement) error {
	if v.Printer == nil {
		v.Printer = output.NewPrinter(output.ModeQuiet, false)
	}
	if v.Builtins == nil {
		if v.Funcs != nil && v.Funcs.Builtins != nil {
			v.Builtins = v.Funcs.Builtins
		} else {
			v.Builtins = funcs.NewBuiltins(".")
		}
	}
	if v.NewAdapter == nil {
		v.NewAdapter = provider.New
	}

	v.program = program
	v.conv = conv.New()
	v.conv.Vars = v.Vars

	for _, stmt := range program {
		if err := v.execute(ctx, stmt); err != nil {
			return &StatementError{Seq: stmt.Seq, Keyword: stmt.Keyword, Err: err}
		}
		if v.halted {
			break
		}
	}
	return nil
}

// Conversation exposes the transcript built so far.
func (v *VM) Conversation() *conv.Conversation {
	return v.conv
}

// Cost returns the accumulated input and output spend in USD.
func (v *VM) Cost() (in, out float64) {
	return v.costIn, v.costOut
}

func (v *VM) execute(ctx context.Context, stmt Statement) error {
	v.Printer.Statement(stmt.Seq, stmt.Keyword, stmt.Value)

	switch stmt.Keyword {
	case ".#":
		return nil
	case ".llm":
		return v.execLLM(stmt.Value)
	case ".system":
		return v.addText(conv.RoleSystem, stmt.Value)
	case ".user":
		return v.addText(conv.RoleUser, stmt.Value)
	case ".assistant":
		return v.addText(conv.RoleAssistant, stmt.Value)
	case ".text":
		return v.execText(stmt.Value)
	case ".include":
		return v.execInclude(stmt.Value)
	case ".image":
		return v.execImage(stmt.Value)
	case ".cmd":
		return v.execCmd(ctx, stmt.Value)
	case ".exec":
		return v.execTurn(ctx)
	case ".debug":
		return v.execDebug(stmt.Value)
	case ".clear":
		return v.execClear(stmt.Value)
	case ".exit":
		v.halted = true
		return nil
	default:
		return fmt.Errorf("unknown keyword %q", stmt.Keyword)
	}
}

// execLLM binds the model and provider adapter for the rest of the run.
func (v *VM) execLLM(value string) error {
	if v.llmSeen {
		return &DuplicateModelError{Script: v.Script}
	}
	v.llmSeen = true

	if !strings.HasPrefix(value, "{") {
		value = "{" + value + "}"
	}
	expanded, err := v.conv.Expand(value)
	if err != nil {
		return err
	}

	var params map[string]any
	if err := json.Unmarshal([]byte(expanded), &params); err != nil {
		return fmt.Errorf("parse .llm parameters: %w", err)
	}
	id, _ := params["model"].(string)
	if id == "" {
		return fmt.Errorf(".llm requires a 'model' parameter")
	}

	mdl, err := v.Models.Lookup(id)
	if err != nil {
		return err
	}

	// Declared parameters become script variables, alongside the
	// resolved binding.
	if v.Vars == nil {
		v.Vars = subst.Vars{}
		v.conv.Vars = v.Vars
	}
	for k, val := range params {
		v.Vars[k] = val
	}
	v.Vars["provider"] = mdl.Provider
	v.Vars["filename"] = v.Script

	opts := provider.Options{Provider: mdl.Provider, Model: mdl.ID}
	if v.Config != nil {
		pc := v.Config.Provider(mdl.Provider)
		opts.BaseURL = pc.BaseURL
		opts.MaxTokens = pc.MaxTokens
		opts.APIKey = pc.APIKey
	}
	if opts.APIKey == "" && v.Keys != nil {
		key, err := v.Keys.Get(mdl.Provider)
		if err != nil {
			return err
		}
		opts.APIKey = key
	}

	adapter, err := v.NewAdapter(opts)
	if err != nil {
		return err
	}

	v.adapter = adapter
	v.mdl = mdl
	v.conv.Provider = mdl.Provider
	v.conv.Model = mdl.ID

	if v.Store != nil && v.SessionID != "" {
		if err := v.Store.UpdateSessionModel(v.SessionID, mdl.Provider, mdl.ID); err != nil {
			v.Printer.Warning("record model binding: %v", err)
		}
	}
	return nil
}

func (v *VM) addText(role conv.Role, value string) error {
	if value == "" {
		v.conv.Add(role)
		return nil
	}
	v.conv.Add(role, conv.TextPart{Text: value})
	return nil
}

// execText appends literal text to the last text-bearing message, or
// starts a user message when there is nothing to extend.
func (v *VM) execText(value string) error {
	if last := v.conv.Last(); last != nil {
		switch last.Role {
		case conv.RoleSystem, conv.RoleUser, conv.RoleAssistant:
			last.Parts = append(last.Parts, conv.TextPart{Text: value})
			return nil
		}
	}
	v.conv.Add(conv.RoleUser, conv.TextPart{Text: value})
	return nil
}

func (v *VM) execInclude(value string) error {
	filename, err := v.conv.Expand(value)
	if err != nil {
		return err
	}
	text, err := v.Builtins.ReadFile(filename)
	if err != nil {
		return err
	}
	last := v.conv.Last()
	if last == nil {
		return fmt.Errorf(".include needs a preceding message to extend")
	}
	last.Parts = append(last.Parts, conv.TextPart{Text: text})
	return nil
}

// execImage attaches an image under the user role. Unlike .include, an
// image may open the conversation: with no message yet a fresh user
// message is started, and the same-role rule merges into the last user
// message otherwise.
func (v *VM) execImage(value string) error {
	part, err := conv.NewImagePart(v.Builtins.Path(value))
	if err != nil {
		return err
	}
	v.conv.Add(conv.RoleUser, part)
	return nil
}

// execCmd runs a builtin written as name(arg=value, ...). The output is
// appended as text to the last message.
func (v *VM) execCmd(ctx context.Context, value string) error {
	name, args, err := parseCmd(value)
	if err != nil {
		return err
	}
	out, err := v.Builtins.Call(ctx, name, args)
	if err != nil {
		return err
	}
	last := v.conv.Last()
	if last == nil {
		return fmt.Errorf(".cmd needs a preceding message to receive output")
	}
	last.Parts = append(last.Parts, conv.TextPart{Text: out})
	return nil
}

func parseCmd(value string) (string, map[string]string, error) {
	name, rest, ok := strings.Cut(value, "(")
	if !ok || !strings.HasSuffix(rest, ")") {
		return "", nil, fmt.Errorf(".cmd syntax: want name(arg=value, ...), got %q", value)
	}
	name = strings.TrimSpace(name)
	rest = strings.TrimSuffix(rest, ")")

	args := make(map[string]string)
	if rest == "" {
		return name, args, nil
	}
	for _, pair := range strings.Split(rest, ",") {
		k, val, ok := strings.Cut(pair, "=")
		if !ok {
			return "", nil, fmt.Errorf(".cmd syntax: argument %q is not name=value", pair)
		}
		args[strings.TrimSpace(k)] = val
	}
	return name, args, nil
}

// execTurn hands the conversation to the tool-invocation loop and folds
// the usage of the turn into the running cost counters.
func (v *VM) execTurn(ctx context.Context) error {
	if v.adapter == nil {
		return fmt.Errorf(".exec requires a preceding .llm statement")
	}

	eng := &engine.Engine{Adapter: v.adapter, Funcs: v.Funcs, HTTP: v.HTTP}
	if v.Config != nil {
		eng.MaxIterations = v.Config.Run.MaxIterations
	}

	v.Printer.Requesting(v.conv.Provider, v.conv.Model, 1)

	inBefore, outBefore := v.conv.TokensIn, v.conv.TokensOut
	appended, err := eng.Run(ctx, v.conv)

	for _, m := range appended {
		v.printMessage(m)
	}

	v.costIn += float64(v.conv.TokensIn-inBefore) * v.mdl.InputCost
	v.costOut += float64(v.conv.TokensOut-outBefore) * v.mdl.OutputCost
	v.Printer.CostSummary(v.conv.TokensIn, v.conv.TokensOut, v.costIn, v.costOut)

	if v.Store != nil && v.SessionID != "" {
		if serr := v.Store.SaveConversation(v.SessionID, v.conv); serr != nil {
			v.Printer.Warning("save conversation: %v", serr)
		}
	}

	if err != nil {
		var capped *engine.MaxIterationsError
		if errors.As(err, &capped) {
			// The turn hit its iteration cap; report it and let the
			// script continue with the transcript so far.
			v.Printer.Warning("%v", capped)
			return nil
		}
		return err
	}
	return nil
}

func (v *VM) printMessage(m *conv.Message) {
	for _, p := range m.Parts {
		switch part := p.(type) {
		case conv.TextPart:
			v.Printer.Response(part.Text)
		case conv.CallPart:
			v.Printer.ToolCall(part.Name, part.Args)
		case conv.ResultPart:
			v.Printer.ToolResult(part.Name, part.Result)
		}
	}
}

func (v *VM) execDebug(value string) error {
	if value == "" {
		value = `["all"]`
	}
	if !strings.HasPrefix(value, "[") {
		value = "[" + value + "]"
	}
	var elems []string
	if err := json.Unmarshal([]byte(value), &elems); err != nil {
		return fmt.Errorf("parse .debug parameters: %w", err)
	}

	for _, e := range elems {
		switch e {
		case "all":
			v.dumpStatements()
			v.dumpMessages()
			v.dumpVariables()
		case "statements":
			v.dumpStatements()
		case "messages":
			v.dumpMessages()
		case "variables":
			v.dumpVariables()
		default:
			return fmt.Errorf("unknown .debug element %q", e)
		}
	}
	return nil
}

func (v *VM) dumpStatements() {
	rows := make([][]string, 0, len(v.program))
	for _, s := range v.program {
		rows = append(rows, []string{fmt.Sprintf("%02d", s.Seq), s.Keyword, s.Value})
	}
	v.Printer.Table([]string{"Seq", "Keyword", "Value"}, rows)
}

func (v *VM) dumpMessages() {
	rows := make([][]string, 0, len(v.conv.Messages))
	for i, m := range v.conv.Messages {
		rows = append(rows, []string{fmt.Sprintf("%02d", i), string(m.Role), m.Text()})
	}
	v.Printer.Table([]string{"No", "Role", "Text"}, rows)
}

func (v *VM) dumpVariables() {
	names := make([]string, 0, len(v.Vars))
	for k := range v.Vars {
		names = append(names, k)
	}
	sort.Strings(names)

	pairs := make([][]string, 0, len(names))
	for _, k := range names {
		pairs = append(pairs, []string{k, fmt.Sprint(v.Vars[k])})
	}
	v.Printer.KeyValue(pairs)
}

// execClear deletes files matching each glob in a JSON list. Per-file
// failures are reported but do not stop the script.
func (v *VM) execClear(value string) error {
	var patterns []string
	if err := json.Unmarshal([]byte(value), &patterns); err != nil {
		return fmt.Errorf("parse .clear parameters: %w", err)
	}

	for _, pattern := range patterns {
		matches, err := filepath.Glob(v.Builtins.Path(pattern))
		if err != nil {
			return fmt.Errorf("bad glob %q: %w", pattern, err)
		}
		for _, path := range matches {
			info, err := os.Stat(path)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			if err := os.Remove(path); err != nil {
				v.Printer.Error("delete %s: %v", path, err)
				continue
			}
			v.Printer.Info("deleted %s", path)
		}
	}
	return nil
}
