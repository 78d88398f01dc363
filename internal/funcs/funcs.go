// Package funcs discovers tool executables and invokes them on the
// model's behalf. Every executable in the functions directory is asked
// to list what it provides; invocation hands the arguments over as JSON
// on stdin.
package funcs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const discoverTimeout = 10 * time.Second

// DefaultCallTimeout bounds one tool invocation.
const DefaultCallTimeout = 30 * time.Second

// reservedNames are data files that live alongside tool executables and
// must never be probed.
var reservedNames = map[string]bool{
	"functions.json": true,
	"model_prices_and_context_window.json":        true,
	"model_prices_and_context_window.json.backup": true,
}

// Definition is one function exported by a tool executable, in the shape
// executables print for --list-functions.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Registry maps function names to whatever serves them: the builtins
// first, then the executables found by discovery. Built once by Discover
// and read-only afterwards.
type Registry struct {
	// CallTimeout bounds each invocation. Defaults to DefaultCallTimeout.
	CallTimeout time.Duration

	// Builtins serve the host-provided function names. Always set by
	// Discover; callers may adjust its streams before the first Call.
	Builtins *Builtins

	defs       map[string]Definition
	owners     map[string]string // function name -> executable path
	order      []string          // names in registration order
	projectDir string
}

// Discover registers the builtins, then probes every executable in dir
// for the functions it provides. Files with .json or .backup extensions,
// reserved data files, and non-executable entries are skipped. An
// executable that exits non-zero or prints invalid JSON contributes
// nothing; that is logged, not fatal. When two sources export the same
// name, the first one seen keeps it, so an executable can never shadow a
// builtin. Invoked functions run with projectDir as their working
// directory.
func Discover(dir, projectDir string, logger *log.Logger) (*Registry, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	r := &Registry{
		CallTimeout: DefaultCallTimeout,
		Builtins:    NewBuiltins(projectDir),
		defs:        make(map[string]Definition),
		owners:      make(map[string]string),
		projectDir:  projectDir,
	}
	for _, def := range builtinDefinitions() {
		r.defs[def.Name] = def
		r.order = append(r.order, def.Name)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if reservedNames[name] {
			continue
		}
		switch filepath.Ext(name) {
		case ".json", ".backup":
			continue
		}
		info, err := entry.Info()
		if err != nil || info.Mode()&0o111 == 0 {
			continue
		}

		path := filepath.Join(dir, name)
		defs, err := listFunctions(path, dir)
		if err != nil {
			logger.Printf("funcs: skipping %s: %v", name, err)
			continue
		}
		for _, def := range defs {
			if _, taken := r.defs[def.Name]; taken {
				continue
			}
			r.defs[def.Name] = def
			r.owners[def.Name] = path
			r.order = append(r.order, def.Name)
		}
	}
	return r, nil
}

func listFunctions(path, dir string) ([]Definition, error) {
	ctx, cancel := context.WithTimeout(context.Background(), discoverTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, "--list-functions")
	cmd.Dir = dir
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return nil, err
	}

	var defs []Definition
	if err := json.Unmarshal(stdout.Bytes(), &defs); err != nil {
		return nil, err
	}
	return defs, nil
}

// Definitions returns every known function in discovery order.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.defs[name])
	}
	return out
}

// Lookup returns the definition for name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	def, ok := r.defs[name]
	return def, ok
}

// Call invokes name. Builtin names dispatch in-process; discovered names
// run their owning executable with the function name as argv[1] and the
// JSON-encoded arguments on stdin, in the project directory. Exit 0
// yields trimmed stdout; anything else yields a *FunctionError carrying
// trimmed stderr. An unknown name fails without spawning a process.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	path, ok := r.owners[name]
	if !ok {
		if _, builtin := r.defs[name]; builtin && r.Builtins != nil {
			return r.Builtins.Call(ctx, name, stringArgs(args))
		}
		return "", &UnknownFunctionError{Name: name}
	}

	input, err := json.Marshal(args)
	if err != nil {
		return "", &FunctionError{Name: name, Detail: "encode arguments: " + err.Error()}
	}

	timeout := r.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, name)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Dir = r.projectDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return "", &FunctionError{Name: name, Detail: detail, Err: err}
	}
	return strings.TrimSpace(stdout.String()), nil
}

// stringArgs flattens decoded JSON arguments for the builtins, which
// take every parameter as a string.
func stringArgs(args map[string]any) map[string]string {
	out := make(map[string]string, len(args))
	for k, v := range args {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}
