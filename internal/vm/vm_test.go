package vm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/exedev/beeline/internal/conv"
	"github.com/exedev/beeline/internal/funcs"
	"github.com/exedev/beeline/internal/model"
	"github.com/exedev/beeline/internal/output"
	"github.com/exedev/beeline/internal/provider"
	"github.com/exedev/beeline/internal/subst"
)

// stubAdapter replays scripted assistant turns through the real HTTP
// helper, so a VM test covers everything but a live vendor.
type stubAdapter struct {
	url   string
	turns [][]conv.Part
	next  int
	usage provider.Usage
}

func (s *stubAdapter) Provider() string { return "stub" }

func (s *stubAdapter) BuildRequest(c *conv.Conversation, tools []provider.Tool) (*provider.Request, error) {
	for _, m := range c.Messages {
		for _, p := range m.Parts {
			if tp, ok := p.(conv.TextPart); ok {
				if _, err := c.Expand(tp.Text); err != nil {
					return nil, err
				}
			}
		}
	}
	return &provider.Request{URL: s.url, Header: make(http.Header), Body: []byte("{}")}, nil
}

func (s *stubAdapter) ParseResponse(body []byte) (*conv.Message, provider.Usage, error) {
	if s.next >= len(s.turns) {
		return nil, provider.Usage{}, &provider.MalformedResponse{Provider: "stub", Reason: "script exhausted"}
	}
	parts := s.turns[s.next]
	s.next++
	return &conv.Message{Role: conv.RoleAssistant, Parts: parts}, s.usage, nil
}

func okServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	}))
	t.Cleanup(server.Close)
	return server
}

func testRegistry() *model.Registry {
	r := model.NewRegistry()
	r.Register(map[string]model.Model{
		"stub-model": {Provider: "anthropic", InputCost: 0.000002, OutputCost: 0.00001, Context: 200000, Tools: true},
	})
	return r
}

// newTestVM wires a VM whose adapter is the given stub regardless of the
// provider id the model resolves to.
func newTestVM(t *testing.T, stub *stubAdapter) *VM {
	t.Helper()
	return &VM{
		Script:   "test.prompt",
		Models:   testRegistry(),
		Printer:  output.NewPrinterWithWriter(output.ModeQuiet, false, &strings.Builder{}),
		Builtins: funcs.NewBuiltins(t.TempDir()),
		NewAdapter: func(opts provider.Options) (provider.Adapter, error) {
			return stub, nil
		},
	}
}

func TestRunEndToEnd(t *testing.T) {
	server := okServer(t)
	stub := &stubAdapter{
		url:   server.URL,
		turns: [][]conv.Part{{conv.TextPart{Text: "Hello"}}},
		usage: provider.Usage{TokensIn: 10, TokensOut: 5},
	}
	v := newTestVM(t, stub)

	program := Parse(".llm {\"model\": \"stub-model\"}\n.user Hi\n.exec\n")
	if err := v.Run(context.Background(), program); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	c := v.Conversation()
	if len(c.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(c.Messages))
	}
	if c.Messages[0].Role != conv.RoleUser || c.Messages[0].Text() != "Hi" {
		t.Errorf("Messages[0] = %s %q", c.Messages[0].Role, c.Messages[0].Text())
	}
	if c.Messages[1].Role != conv.RoleAssistant || c.Messages[1].Text() != "Hello" {
		t.Errorf("Messages[1] = %s %q", c.Messages[1].Role, c.Messages[1].Text())
	}
	if c.TokensOut <= 0 {
		t.Errorf("TokensOut = %d, want > 0", c.TokensOut)
	}

	costIn, costOut := v.Cost()
	if costIn != 10*0.000002 || costOut != 5*0.00001 {
		t.Errorf("cost = %v/%v", costIn, costOut)
	}
}

func TestRunSameRoleMerges(t *testing.T) {
	server := okServer(t)
	stub := &stubAdapter{url: server.URL, turns: [][]conv.Part{{conv.TextPart{Text: "ok"}}}}
	v := newTestVM(t, stub)

	program := Parse(".llm {\"model\": \"stub-model\"}\n.user first\n.user second\n.exec\n")
	if err := v.Run(context.Background(), program); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	c := v.Conversation()
	if len(c.Messages) != 2 {
		t.Fatalf("got %d messages, want 2 (user merged + assistant)", len(c.Messages))
	}
	if got := len(c.Messages[0].Parts); got != 2 {
		t.Errorf("merged user message has %d parts, want 2", got)
	}
	if got := c.Messages[0].Text(); got != "firstsecond" {
		t.Errorf("merged user text = %q", got)
	}
}

func TestRunDuplicateModelDeclaration(t *testing.T) {
	v := newTestVM(t, &stubAdapter{})

	program := []Statement{
		{Seq: 0, Keyword: ".llm", Value: `{"model": "stub-model"}`},
		{Seq: 1, Keyword: ".llm", Value: `{"model": "stub-model"}`},
	}
	err := v.Run(context.Background(), program)

	var dup *DuplicateModelError
	if !errors.As(err, &dup) {
		t.Fatalf("err = %v, want DuplicateModelError", err)
	}
	var se *StatementError
	if !errors.As(err, &se) || se.Seq != 1 {
		t.Errorf("err = %v, want StatementError at seq 1", err)
	}
}

func TestRunUnknownModel(t *testing.T) {
	v := newTestVM(t, &stubAdapter{})

	err := v.Run(context.Background(), []Statement{{Keyword: ".llm", Value: `{"model": "ghost"}`}})
	var unknown *model.UnknownModelError
	if !errors.As(err, &unknown) {
		t.Fatalf("err = %v, want UnknownModelError", err)
	}
}

func TestRunLLMRequiresModelParameter(t *testing.T) {
	v := newTestVM(t, &stubAdapter{})

	if err := v.Run(context.Background(), []Statement{{Keyword: ".llm", Value: `{"temperature": "0"}`}}); err == nil {
		t.Error("missing model parameter did not error")
	}
}

func TestRunLLMBindsVariables(t *testing.T) {
	server := okServer(t)
	stub := &stubAdapter{url: server.URL, turns: [][]conv.Part{{}}}
	v := newTestVM(t, stub)
	v.Vars = subst.Vars{"which": "stub-model"}

	program := Parse(".llm \"model\": \"<[which]>\"\n.user Hi\n.exec\n")
	if err := v.Run(context.Background(), program); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if v.Vars["model"] != "stub-model" {
		t.Errorf("Vars[model] = %v", v.Vars["model"])
	}
	if v.Vars["provider"] != "anthropic" {
		t.Errorf("Vars[provider] = %v", v.Vars["provider"])
	}
	if v.Vars["filename"] != "test.prompt" {
		t.Errorf("Vars[filename] = %v", v.Vars["filename"])
	}
}

func TestRunExecWithoutModel(t *testing.T) {
	v := newTestVM(t, &stubAdapter{})

	err := v.Run(context.Background(), []Statement{{Keyword: ".exec"}})
	if err == nil || !strings.Contains(err.Error(), ".llm") {
		t.Errorf("err = %v, want missing .llm error", err)
	}
}

func TestRunInclude(t *testing.T) {
	v := newTestVM(t, &stubAdapter{})
	if err := os.WriteFile(filepath.Join(v.Builtins.ProjectDir, "extra.txt"), []byte("appendix"), 0644); err != nil {
		t.Fatal(err)
	}
	v.Vars = subst.Vars{"doc": "extra.txt"}

	program := []Statement{
		{Seq: 0, Keyword: ".user", Value: "Context:"},
		{Seq: 1, Keyword: ".include", Value: "<[doc]>"},
	}
	if err := v.Run(context.Background(), program); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	last := v.Conversation().Last()
	if len(last.Parts) != 2 {
		t.Fatalf("last message has %d parts, want 2", len(last.Parts))
	}
	if got := last.Parts[1].(conv.TextPart).Text; got != "appendix" {
		t.Errorf("included text = %q", got)
	}
}

func TestRunIncludeMissingFileIsFatal(t *testing.T) {
	v := newTestVM(t, &stubAdapter{})

	program := []Statement{
		{Seq: 0, Keyword: ".user", Value: "Context:"},
		{Seq: 1, Keyword: ".include", Value: "missing.txt"},
	}
	if err := v.Run(context.Background(), program); err == nil {
		t.Error("missing include file did not abort the script")
	}
}

func TestRunIncludeNeedsMessage(t *testing.T) {
	v := newTestVM(t, &stubAdapter{})
	if err := os.WriteFile(filepath.Join(v.Builtins.ProjectDir, "extra.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := v.Run(context.Background(), []Statement{{Keyword: ".include", Value: "extra.txt"}}); err == nil {
		t.Error(".include with no preceding message did not error")
	}
}

func TestRunCmdAppendsOutput(t *testing.T) {
	v := newTestVM(t, &stubAdapter{})
	if err := os.WriteFile(filepath.Join(v.Builtins.ProjectDir, "data.txt"), []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}

	program := []Statement{
		{Seq: 0, Keyword: ".user", Value: "File:"},
		{Seq: 1, Keyword: ".cmd", Value: "readfile(filename=data.txt)"},
	}
	if err := v.Run(context.Background(), program); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	last := v.Conversation().Last()
	if got := last.Parts[1].(conv.TextPart).Text; got != "payload" {
		t.Errorf("cmd output = %q", got)
	}
}

func TestRunCmdSyntaxError(t *testing.T) {
	v := newTestVM(t, &stubAdapter{})

	program := []Statement{
		{Seq: 0, Keyword: ".user", Value: "x"},
		{Seq: 1, Keyword: ".cmd", Value: "readfile filename"},
	}
	if err := v.Run(context.Background(), program); err == nil {
		t.Error("malformed .cmd did not error")
	}
}

func TestRunExitHalts(t *testing.T) {
	v := newTestVM(t, &stubAdapter{})

	program := []Statement{
		{Seq: 0, Keyword: ".user", Value: "before"},
		{Seq: 1, Keyword: ".exit"},
		{Seq: 2, Keyword: ".user", Value: "after"},
	}
	if err := v.Run(context.Background(), program); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	c := v.Conversation()
	if len(c.Messages) != 1 || c.Messages[0].Text() != "before" {
		t.Errorf("messages after .exit = %+v", c.Messages)
	}
}

func TestRunClearDeletesMatches(t *testing.T) {
	v := newTestVM(t, &stubAdapter{})
	dir := v.Builtins.ProjectDir
	for _, name := range []string{"a.log", "b.log", "keep.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	if err := v.Run(context.Background(), []Statement{{Keyword: ".clear", Value: `["*.log"]`}}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "a.log")); !os.IsNotExist(err) {
		t.Error("a.log survived .clear")
	}
	if _, err := os.Stat(filepath.Join(dir, "keep.txt")); err != nil {
		t.Error("keep.txt was deleted")
	}
}

func TestRunClearRejectsNonList(t *testing.T) {
	v := newTestVM(t, &stubAdapter{})

	if err := v.Run(context.Background(), []Statement{{Keyword: ".clear", Value: `"*.log"`}}); err == nil {
		t.Error(".clear with non-list value did not error")
	}
}

func TestRunDebugElements(t *testing.T) {
	var buf strings.Builder
	v := newTestVM(t, &stubAdapter{})
	v.Printer = output.NewPrinterWithWriter(output.ModePlain, false, &buf)
	v.Vars = subst.Vars{"topic": "bees"}

	program := []Statement{
		{Seq: 0, Keyword: ".user", Value: "Hi"},
		{Seq: 1, Keyword: ".debug", Value: `["variables"]`},
	}
	if err := v.Run(context.Background(), program); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(buf.String(), "topic") {
		t.Errorf("debug output missing variables: %q", buf.String())
	}

	if err := v.Run(context.Background(), []Statement{{Keyword: ".debug", Value: `["bogus"]`}}); err == nil {
		t.Error("unknown debug element did not error")
	}
}

func TestRunTextAfterImageStartsFromLastMessage(t *testing.T) {
	v := newTestVM(t, &stubAdapter{})

	program := []Statement{
		{Seq: 0, Keyword: ".user", Value: "look"},
		{Seq: 1, Keyword: ".text", Value: "more"},
	}
	if err := v.Run(context.Background(), program); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	c := v.Conversation()
	if len(c.Messages) != 1 || len(c.Messages[0].Parts) != 2 {
		t.Fatalf("messages = %+v", c.Messages)
	}
}

func TestRunUndefinedVariableIsFatal(t *testing.T) {
	server := okServer(t)
	stub := &stubAdapter{url: server.URL, turns: [][]conv.Part{{}}}
	v := newTestVM(t, stub)

	program := Parse(".llm {\"model\": \"stub-model\"}\n.user Describe <[nope]>\n.exec\n")
	err := v.Run(context.Background(), program)

	var undef *subst.UndefinedVariableError
	if !errors.As(err, &undef) {
		t.Fatalf("err = %v, want UndefinedVariableError", err)
	}
}
