package engine

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
	"github.com/exedev/beeline/internal/provider"
)

// stubAdapter replays a scripted sequence of assistant turns. Requests
// still travel through the HTTP helper so the transport path is
// exercised too.
type stubAdapter struct {
	url   string
	turns [][]conv.Part
	next  int
	usage provider.Usage
}

func (s *stubAdapter) Provider() string { return "stub" }

func (s *stubAdapter) BuildRequest(c *conv.Conversation, tools []provider.Tool) (*provider.Request, error) {
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

// echoRegistry builds a funcs registry with one real "echo" tool.
func echoRegistry(t *testing.T) *funcs.Registry {
	t.Helper()
	dir := t.TempDir()
	script := `#!/bin/sh
if [ "$1" = "--list-functions" ]; then
  echo '[{"name":"echo","description":"echo args","parameters":{"type":"object","properties":{}}}]'
  exit 0
fi
read -r input
echo "echo:$input"
`
	if err := os.WriteFile(filepath.Join(dir, "tools"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	r, err := funcs.Discover(dir, dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRun_LoopTermination(t *testing.T) {
	server := okServer(t)
	stub := &stubAdapter{
		url: server.URL,
		turns: [][]conv.Part{
			{conv.CallPart{ID: "c1", Name: "echo", Args: map[string]any{"msg": "hi"}}},
			{}, // second turn: no calls, loop settles
		},
		usage: provider.Usage{TokensIn: 10, TokensOut: 5},
	}

	c := conv.New()
	c.Add(conv.RoleUser, conv.TextPart{Text: "go"})

	e := &Engine{Adapter: stub, Funcs: echoRegistry(t), HTTP: server.Client()}
	appended, err := e.Run(context.Background(), c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// assistant-with-call plus tool-with-result; the empty final turn is
	// not a message
	if len(appended) != 2 {
		t.Fatalf("expected exactly 2 appended messages, got %d", len(appended))
	}
	if appended[0].Role != conv.RoleAssistant || len(appended[0].Calls()) != 1 {
		t.Errorf("first appended should be the calling assistant turn: %+v", appended[0])
	}
	if appended[1].Role != conv.RoleTool {
		t.Errorf("second appended should be the tool turn: %+v", appended[1])
	}
	res, ok := appended[1].Parts[0].(conv.ResultPart)
	if !ok {
		t.Fatalf("expected result part, got %T", appended[1].Parts[0])
	}
	if res.ID != "c1" || res.Result != `echo:{"msg":"hi"}` {
		t.Errorf("unexpected result: %+v", res)
	}

	// two model turns worth of usage
	if c.TokensIn != 20 || c.TokensOut != 10 {
		t.Errorf("token counters not accumulated: in=%d out=%d", c.TokensIn, c.TokensOut)
	}
}

func TestRun_NoCalls(t *testing.T) {
	server := okServer(t)
	stub := &stubAdapter{
		url:   server.URL,
		turns: [][]conv.Part{{conv.TextPart{Text: "Hello"}}},
		usage: provider.Usage{TokensIn: 3, TokensOut: 2},
	}

	c := conv.New()
	c.Add(conv.RoleUser, conv.TextPart{Text: "Hi"})

	e := &Engine{Adapter: stub, HTTP: server.Client()}
	appended, err := e.Run(context.Background(), c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(appended) != 1 || appended[0].Text() != "Hello" {
		t.Fatalf("expected single assistant turn, got %+v", appended)
	}
	if len(c.Messages) != 2 {
		t.Errorf("conversation should hold user + assistant, got %d messages", len(c.Messages))
	}
}

func TestRun_ToolErrorsAreRecoverable(t *testing.T) {
	server := okServer(t)
	stub := &stubAdapter{
		url: server.URL,
		turns: [][]conv.Part{
			{conv.CallPart{ID: "c1", Name: "no_such_tool", Args: nil}},
			{conv.TextPart{Text: "understood"}},
		},
	}

	c := conv.New()
	c.Add(conv.RoleUser, conv.TextPart{Text: "go"})

	e := &Engine{Adapter: stub, Funcs: echoRegistry(t), HTTP: server.Client()}
	appended, err := e.Run(context.Background(), c)
	if err != nil {
		t.Fatalf("tool failure must not abort the loop: %v", err)
	}
	if len(appended) != 3 {
		t.Fatalf("expected 3 appended messages, got %d", len(appended))
	}
	res := appended[1].Parts[0].(conv.ResultPart)
	if !strings.HasPrefix(res.Result, "ERROR:") {
		t.Errorf("failed call must come back error-marked, got %q", res.Result)
	}
}

func TestRun_ResultOrderMatchesCallOrder(t *testing.T) {
	server := okServer(t)
	stub := &stubAdapter{
		url: server.URL,
		turns: [][]conv.Part{
			{
				conv.CallPart{ID: "c1", Name: "echo", Args: map[string]any{"n": "first"}},
				conv.CallPart{ID: "c2", Name: "missing", Args: nil},
				conv.CallPart{ID: "c3", Name: "echo", Args: map[string]any{"n": "third"}},
			},
			{},
		},
	}

	c := conv.New()
	c.Add(conv.RoleUser, conv.TextPart{Text: "go"})

	e := &Engine{Adapter: stub, Funcs: echoRegistry(t), HTTP: server.Client()}
	appended, err := e.Run(context.Background(), c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	toolMsg := appended[1]
	if len(toolMsg.Parts) != 3 {
		t.Fatalf("expected 3 results in one tool message, got %d", len(toolMsg.Parts))
	}
	ids := []string{"c1", "c2", "c3"}
	for i, p := range toolMsg.Parts {
		res := p.(conv.ResultPart)
		if res.ID != ids[i] {
			t.Errorf("result %d out of order: got %s, want %s", i, res.ID, ids[i])
		}
	}
}

func TestRun_MaxIterations(t *testing.T) {
	server := okServer(t)
	stub := &stubAdapter{
		url: server.URL,
		turns: [][]conv.Part{
			{conv.CallPart{ID: "c1", Name: "echo", Args: nil}},
			{conv.CallPart{ID: "c2", Name: "echo", Args: nil}},
			{conv.CallPart{ID: "c3", Name: "echo", Args: nil}},
			{conv.CallPart{ID: "c4", Name: "echo", Args: nil}},
		},
	}

	c := conv.New()
	c.Add(conv.RoleUser, conv.TextPart{Text: "go"})

	e := &Engine{Adapter: stub, Funcs: echoRegistry(t), HTTP: server.Client(), MaxIterations: 3}
	appended, err := e.Run(context.Background(), c)
	if err == nil {
		t.Fatal("expected iteration cap error")
	}
	var mi *MaxIterationsError
	if !errors.As(err, &mi) {
		t.Fatalf("expected MaxIterationsError, got %T: %v", err, err)
	}
	if mi.Limit != 3 {
		t.Errorf("expected limit 3, got %d", mi.Limit)
	}
	// three assistant turns, three tool turns, and a closing note saying
	// why the loop stopped
	if len(appended) != 7 {
		t.Fatalf("expected partial transcript of 7 messages, got %d", len(appended))
	}
	last := appended[len(appended)-1]
	if last.Role != conv.RoleTool {
		t.Errorf("closing note should be a tool message: %+v", last)
	}
	res, ok := last.Parts[0].(conv.ResultPart)
	if !ok {
		t.Fatalf("expected result part, got %T", last.Parts[0])
	}
	if !strings.HasPrefix(res.Result, "ERROR:") || !strings.Contains(res.Result, "3 model turns") {
		t.Errorf("closing note should carry the cap error: %q", res.Result)
	}
}

func TestRun_TransportFailureAborts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	stub := &stubAdapter{url: server.URL, turns: [][]conv.Part{{}}}
	c := conv.New()
	c.Add(conv.RoleUser, conv.TextPart{Text: "go"})

	e := &Engine{Adapter: stub, HTTP: server.Client()}
	appended, err := e.Run(context.Background(), c)
	if err == nil {
		t.Fatal("expected error")
	}
	var te *provider.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %T", err)
	}
	if len(appended) != 0 {
		t.Errorf("nothing should be appended on transport failure, got %d", len(appended))
	}
}
