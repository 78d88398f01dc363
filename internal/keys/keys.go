// Package keys resolves provider API keys. Resolution order: environment
// variable, then the persistent kv store, then an interactive terminal
// prompt whose answer is saved for next time.
package keys

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// KV is the subset of the state store the key resolver needs.
type KV interface {
	GetKV(key string) (string, error)
	SetKV(key, value string) error
	DeleteKV(key string) error
}

// Store resolves and persists API keys per provider.
type Store struct {
	kv  KV
	in  *os.File
	out io.Writer
}

func NewStore(kv KV) *Store {
	return &Store{kv: kv, in: os.Stdin, out: os.Stderr}
}

// EnvVar returns the environment variable consulted for a provider,
// e.g. ANTHROPIC_API_KEY.
func EnvVar(provider string) string {
	return strings.ToUpper(provider) + "_API_KEY"
}

func kvKey(provider string) string {
	return "api_key." + provider
}

// Get resolves the API key for a provider. A key found only via the
// interactive prompt is persisted to the kv store before returning.
func (s *Store) Get(provider string) (string, error) {
	if v := os.Getenv(EnvVar(provider)); v != "" {
		return v, nil
	}

	v, err := s.kv.GetKV(kvKey(provider))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("read stored key for %s: %w", provider, err)
	}
	if v != "" {
		return v, nil
	}

	return s.promptAndSave(provider)
}

// Set stores a key for a provider, replacing any previous value.
func (s *Store) Set(provider, key string) error {
	if key == "" {
		return fmt.Errorf("API key for %s cannot be empty", provider)
	}
	return s.kv.SetKV(kvKey(provider), key)
}

// Delete removes the stored key for a provider.
func (s *Store) Delete(provider string) error {
	return s.kv.DeleteKV(kvKey(provider))
}

func (s *Store) promptAndSave(provider string) (string, error) {
	fd := int(s.in.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no API key for %s: set %s or run `beeline keys set %s`", provider, EnvVar(provider), provider)
	}

	fmt.Fprintf(s.out, "Enter your %s API key: ", provider)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(s.out)
	if err != nil {
		return "", fmt.Errorf("read API key: %w", err)
	}

	key := strings.TrimSpace(string(raw))
	if key == "" {
		return "", fmt.Errorf("API key for %s cannot be empty", provider)
	}
	if err := s.kv.SetKV(kvKey(provider), key); err != nil {
		return "", fmt.Errorf("store key for %s: %w", provider, err)
	}
	return key, nil
}
