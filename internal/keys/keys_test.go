package keys

import (
	"database/sql"
	"strings"
	"testing"
)

type fakeKV struct {
	m map[string]string
}

func newFakeKV() *fakeKV {
	return &fakeKV{m: make(map[string]string)}
}

func (f *fakeKV) GetKV(key string) (string, error) {
	v, ok := f.m[key]
	if !ok {
		return "", sql.ErrNoRows
	}
	return v, nil
}

func (f *fakeKV) SetKV(key, value string) error {
	f.m[key] = value
	return nil
}

func (f *fakeKV) DeleteKV(key string) error {
	delete(f.m, key)
	return nil
}

func TestEnvVar(t *testing.T) {
	if got := EnvVar("anthropic"); got != "ANTHROPIC_API_KEY" {
		t.Errorf("EnvVar(anthropic) = %q", got)
	}
	if got := EnvVar("xai"); got != "XAI_API_KEY" {
		t.Errorf("EnvVar(xai) = %q", got)
	}
}

func TestGetPrefersEnvironment(t *testing.T) {
	kv := newFakeKV()
	kv.m["api_key.openai"] = "sk-stored"
	t.Setenv("OPENAI_API_KEY", "sk-env")

	s := NewStore(kv)
	key, err := s.Get("openai")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if key != "sk-env" {
		t.Errorf("Get = %q, want sk-env", key)
	}
}

func TestGetFallsBackToStore(t *testing.T) {
	kv := newFakeKV()
	kv.m["api_key.groq"] = "gsk-stored"
	t.Setenv("GROQ_API_KEY", "")

	s := NewStore(kv)
	key, err := s.Get("groq")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if key != "gsk-stored" {
		t.Errorf("Get = %q, want gsk-stored", key)
	}
}

func TestGetMissingWithoutTerminal(t *testing.T) {
	t.Setenv("MISTRAL_API_KEY", "")

	s := NewStore(newFakeKV())
	_, err := s.Get("mistral")
	if err == nil {
		t.Fatal("Get succeeded with no key and no terminal")
	}
	if !strings.Contains(err.Error(), "MISTRAL_API_KEY") {
		t.Errorf("error %q does not name the environment variable", err)
	}
}

func TestSetAndDelete(t *testing.T) {
	kv := newFakeKV()
	s := NewStore(kv)

	if err := s.Set("google", "AIza-test"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if kv.m["api_key.google"] != "AIza-test" {
		t.Errorf("stored value = %q", kv.m["api_key.google"])
	}

	if err := s.Set("google", ""); err == nil {
		t.Error("Set accepted an empty key")
	}

	if err := s.Delete("google"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := kv.m["api_key.google"]; ok {
		t.Error("key still present after Delete")
	}
}
