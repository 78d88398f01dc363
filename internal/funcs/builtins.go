package funcs

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// Builtins are the host-provided functions every run carries: file
// read/write, shell execution, HTTP fetch, and operator questions. They
// run in-process, unlike discovered functions which are subprocesses, but
// the model calls them through the same Registry surface.
type Builtins struct {
	ProjectDir string
	HTTP       *http.Client
	In         io.Reader
	Out        io.Writer
}

func NewBuiltins(projectDir string) *Builtins {
	return &Builtins{
		ProjectDir: projectDir,
		HTTP:       &http.Client{Timeout: 30 * time.Second},
		In:         os.Stdin,
		Out:        os.Stderr,
	}
}

// builtinDefinitions returns the declarations the model sees for the
// host-provided functions, in their canonical order.
func builtinDefinitions() []Definition {
	return []Definition{
		{
			Name:        "readfile",
			Description: "Read the contents of a named file",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"filename": map[string]any{"type": "string", "description": "The name of the file to read"},
				},
				"required":             []any{"filename"},
				"additionalProperties": false,
			},
		},
		{
			Name:        "wwwget",
			Description: "Read a webpage url and return the contents",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url": map[string]any{"type": "string", "description": "The url of the web page to read"},
				},
				"required":             []any{"url"},
				"additionalProperties": false,
			},
		},
		{
			Name:        "writefile",
			Description: "Write the contents to a named file on the local file system",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"filename": map[string]any{"type": "string", "description": "The name of the file to write"},
					"content":  map[string]any{"type": "string", "description": "The content to be written to the file"},
				},
				"required":             []any{"filename", "content"},
				"additionalProperties": false,
			},
		},
		{
			Name:        "execcmd",
			Description: fmt.Sprintf("Execute a command on the local %s system", runtime.GOOS),
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"cmd": map[string]any{"type": "string", "description": "command to be executed"},
				},
				"required":             []any{"cmd"},
				"additionalProperties": false,
			},
		},
		{
			Name:        "askuser",
			Description: "Get Clarification by Asking the user a question",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"question": map[string]any{"type": "string", "description": "Question to ask the user"},
				},
				"required":             []any{"question"},
				"additionalProperties": false,
			},
		},
	}
}

// Call dispatches a builtin by name.
func (b *Builtins) Call(ctx context.Context, name string, args map[string]string) (string, error) {
	switch name {
	case "readfile":
		return b.ReadFile(args["filename"])
	case "writefile":
		return b.writeFile(args["filename"], args["content"])
	case "execcmd":
		return b.execCmd(ctx, args["cmd"])
	case "wwwget":
		return b.wwwGet(ctx, args["url"])
	case "askuser":
		return b.askUser(args["question"])
	default:
		return "", fmt.Errorf("unknown builtin %q", name)
	}
}

// Path resolves a relative filename against the project directory.
func (b *Builtins) Path(name string) string {
	if filepath.IsAbs(name) || b.ProjectDir == "" {
		return name
	}
	return filepath.Join(b.ProjectDir, name)
}

func (b *Builtins) ReadFile(filename string) (string, error) {
	data, err := os.ReadFile(b.Path(filename))
	if err != nil {
		return "", fmt.Errorf("readfile: %w", err)
	}
	return string(data), nil
}

// writeFile writes content to filename, first renaming any existing file
// out of the way as filename.backup.
func (b *Builtins) writeFile(filename, content string) (string, error) {
	target := b.Path(filename)
	if _, err := os.Stat(target); err == nil {
		if err := os.Rename(target, target+".backup"); err != nil {
			return "", fmt.Errorf("writefile: backup %s: %w", filename, err)
		}
	}
	if err := os.WriteFile(target, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("writefile: %w", err)
	}
	return fmt.Sprintf("Content written to file '%s'", filename), nil
}

// execCmd runs a shell command and returns its output. A failing command
// is not an error: its stderr is returned as the result so the transcript
// (and the model) can see what went wrong.
func (b *Builtins) execCmd(ctx context.Context, cmd string) (string, error) {
	if len(cmd) > 1 && (cmd[0] == '"' || cmd[0] == '\'') && cmd[len(cmd)-1] == cmd[0] {
		cmd = cmd[1 : len(cmd)-1]
	}

	prog, err := syntax.NewParser().Parse(strings.NewReader(cmd), "")
	if err != nil {
		return "", fmt.Errorf("execcmd: parse: %w", err)
	}

	var stdout, stderr bytes.Buffer
	runner, err := interp.New(
		interp.Dir(b.ProjectDir),
		interp.StdIO(nil, &stdout, &stderr),
	)
	if err != nil {
		return "", fmt.Errorf("execcmd: %w", err)
	}

	if err := runner.Run(ctx, prog); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "stderr: " + msg, nil
	}
	return stdout.String(), nil
}

func (b *Builtins) wwwGet(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("wwwget: %w", err)
	}
	resp, err := b.HTTP.Do(req)
	if err != nil {
		return fmt.Sprintf("ERROR url not returned: %s", url), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Sprintf("ERROR url not returned: %s", url), nil
	}
	return string(body), nil
}

func (b *Builtins) askUser(question string) (string, error) {
	fmt.Fprintf(b.Out, "%s ", question)
	r := bufio.NewReader(b.In)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("askuser: %w", err)
	}
	return strings.TrimSpace(line), nil
}
