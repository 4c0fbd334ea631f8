package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRouting(t *testing.T) {
	content := `picker: gpt-4o-mini
chat:
  - model: claude-sonnet-4-20250514
    description: "Strong general model"
  - model: qwen3:8b
    description: "Fast local model"
  - model: gpt-4o
    disabled: true
agent:
  - model: claude-sonnet-4-20250514
`
	dir := t.TempDir()
	path := filepath.Join(dir, "routing.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	rc, err := LoadRouting(path)
	if err != nil {
		t.Fatal(err)
	}

	if rc.Picker != "gpt-4o-mini" {
		t.Errorf("picker: got %q", rc.Picker)
	}

	chat := rc.EnabledModels("chat")
	if len(chat) != 2 {
		t.Fatalf("enabled chat models: got %d, want 2", len(chat))
	}
	if chat[0] != "claude-sonnet-4-20250514" || chat[1] != "qwen3:8b" {
		t.Errorf("chat order: got %v", chat)
	}

	agent := rc.EnabledModels("agent")
	if len(agent) != 1 {
		t.Errorf("enabled agent models: got %d, want 1", len(agent))
	}

	if d := rc.Description("qwen3:8b"); d != "Fast local model" {
		t.Errorf("description: got %q", d)
	}
}

func TestLoadRoutingMissing(t *testing.T) {
	rc, err := LoadRouting(filepath.Join(t.TempDir(), "routing.yaml"))
	if err != nil {
		t.Fatalf("missing routing file should not error: %v", err)
	}
	if len(rc.EnabledModels("chat")) != 0 {
		t.Error("expected no candidates from empty config")
	}
}

func TestSaveRoutingRoundTrip(t *testing.T) {
	rc := &RoutingConfig{
		Picker: "picker-model",
		Chat: []RouteCandidate{
			{Model: "a", Description: "model a"},
			{Model: "b", Disabled: true},
		},
	}

	path := filepath.Join(t.TempDir(), "routing.yaml")
	if err := SaveRouting(path, rc); err != nil {
		t.Fatal(err)
	}

	got, err := LoadRouting(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Picker != rc.Picker {
		t.Errorf("picker: got %q, want %q", got.Picker, rc.Picker)
	}
	if len(got.Chat) != 2 || got.Chat[0].Model != "a" || !got.Chat[1].Disabled {
		t.Errorf("chat candidates: got %+v", got.Chat)
	}
}
