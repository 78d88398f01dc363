package subst

import (
	"errors"
	"testing"
)

func TestExpand_Plain(t *testing.T) {
	out, err := Expand("no placeholders here", Vars{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "no placeholders here" {
		t.Errorf("expected unchanged text, got %q", out)
	}
}

func TestExpand_Adjacent(t *testing.T) {
	out, err := Expand("<[a]><[b]>", Vars{"a": "1", "b": "2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "12" {
		t.Errorf("expected %q, got %q", "12", out)
	}
}

func TestExpand_Undefined(t *testing.T) {
	_, err := Expand("<[missing]>", Vars{})
	if err == nil {
		t.Fatal("expected error for undefined variable")
	}
	var uv *UndefinedVariableError
	if !errors.As(err, &uv) {
		t.Fatalf("expected UndefinedVariableError, got %T", err)
	}
	if uv.Name != "missing" {
		t.Errorf("expected name missing, got %q", uv.Name)
	}
}

func TestExpand_DottedPath(t *testing.T) {
	vars := Vars{
		"model": map[string]any{
			"id":      "gpt-4o",
			"context": 128000,
		},
	}
	out, err := Expand("using <[model.id]> (<[model.context]> tokens)", vars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "using gpt-4o (128000 tokens)" {
		t.Errorf("got %q", out)
	}
}

func TestExpand_DottedPathMissingSegment(t *testing.T) {
	vars := Vars{"model": map[string]any{"id": "x"}}
	if _, err := Expand("<[model.price]>", vars); err == nil {
		t.Fatal("expected error for missing path segment")
	}
	// Descending into a non-map is also undefined.
	if _, err := Expand("<[model.id.extra]>", vars); err == nil {
		t.Fatal("expected error when path descends into a scalar")
	}
}

func TestExpand_SubstitutedValueNotRescanned(t *testing.T) {
	// A value that itself looks like a placeholder must not be expanded
	// again; recursive templates are not supported.
	out, err := Expand("<[a]>", Vars{"a": "<[b]>", "b": "nope"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "<[b]>" {
		t.Errorf("expected literal <[b]>, got %q", out)
	}
}

func TestExpand_NestedPlaceholderRefused(t *testing.T) {
	// A placeholder opened inside another must error, not emit the
	// half-resolved residue as literal text.
	_, err := Expand("<[a<[b]>]>", Vars{"b": "x", "ax": "boom"})
	if err == nil {
		t.Fatal("expected error for nested placeholder")
	}
	var np *NestedPlaceholderError
	if !errors.As(err, &np) {
		t.Fatalf("expected NestedPlaceholderError, got %T: %v", err, err)
	}
	if np.Name != "b" {
		t.Errorf("expected the inner name, got %q", np.Name)
	}
}

func TestExpand_OrphanCloseMarker(t *testing.T) {
	out, err := Expand("a ]> b", Vars{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "a ]> b" {
		t.Errorf("expected unchanged text, got %q", out)
	}
}

func TestExpand_MapValueRendersAsJSON(t *testing.T) {
	out, err := Expand("<[cfg]>", Vars{"cfg": map[string]any{"k": "v"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `{"k":"v"}` {
		t.Errorf("expected JSON rendering, got %q", out)
	}
}
