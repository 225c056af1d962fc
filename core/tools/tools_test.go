package tools

import (
	"context"
	"testing"
)

func TestToolExecutesTypedCallback(t *testing.T) {
	tool := New("echo_title", "Echo the requested title back",
		func(parameters struct {
			Title string `json:"title"`
		}) (string, error) {
			return "playing " + parameters.Title, nil
		})

	if tool.Function.Name != "echo_title" {
		t.Fatalf("expected the tool named after its function, got %q", tool.Function.Name)
	}
	if tool.Function.Parameters == nil || tool.Function.Parameters.Type != "object" {
		t.Fatalf("expected an object parameter schema")
	}

	resp, err := tool.Execute(`{"title": "blue in green"}`)
	if err != nil {
		t.Fatalf("failed to execute tool: %v", err)
	}
	if resp != "playing blue in green" {
		t.Fatalf("expected the parsed title in the response, got %q", resp)
	}
}

func TestToolRejectsMalformedArguments(t *testing.T) {
	tool := New("noop", "Does nothing",
		func(struct{}) (string, error) { return "ok", nil })

	if _, err := tool.Execute(`{"title":`); err == nil {
		t.Fatalf("expected malformed arguments to fail")
	}
}

func TestRegistryCallRoutesByName(t *testing.T) {
	registry := NewRegistry(
		New("first", "First tool", func(struct{}) (string, error) { return "one", nil }),
		New("second", "Second tool", func(struct{}) (string, error) { return "two", nil }),
	)

	resp, err := registry.Call(context.Background(), "second", "")
	if err != nil {
		t.Fatalf("failed to call tool: %v", err)
	}
	if resp != "two" {
		t.Fatalf("expected the second tool's response, got %q", resp)
	}

	if _, err := registry.Call(context.Background(), "missing", ""); err == nil {
		t.Fatalf("expected an unknown tool to fail")
	}
}

func TestRegistrySnapshotDoesNotShareState(t *testing.T) {
	registry := NewRegistry(
		New("stable", "Stays the same", func(struct{}) (string, error) { return "ok", nil }),
	)

	snapshot := registry.Tools()
	if len(snapshot) != 1 {
		t.Fatalf("expected one registered tool, got %d", len(snapshot))
	}
	snapshot[0].Function.Name = "renamed"

	if _, err := registry.Call(context.Background(), "stable", ""); err != nil {
		t.Fatalf("expected the registry unaffected by snapshot edits: %v", err)
	}
}
