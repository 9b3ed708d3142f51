package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmbeddedMessages(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Text("relay.fen_required", nil); got != "FEN notation required" {
		t.Fatalf("unexpected text %q", got)
	}
	got, err := c.Render("session.not_found", map[string]any{"ID": "abc"})
	if err != nil || got != "Session abc not found" {
		t.Fatalf("Render = %q, %v", got, err)
	}
	if _, err := c.Render("session.not_found", map[string]any{}); err == nil {
		t.Fatalf("expected missing key error")
	}
	if got := c.Text("no.such.key", nil); got != "no.such.key" {
		t.Fatalf("fallback = %q", got)
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("relay:\n  image_required: \"Bild fehlt\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Text("relay.image_required", nil); got != "Bild fehlt" {
		t.Fatalf("override not applied: %q", got)
	}
	if got := c.Text("relay.fen_required", nil); got != "FEN notation required" {
		t.Fatalf("default lost: %q", got)
	}
}

func TestOverrideDuplicateKeys(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("internal:\n  error: x\n"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	_, err := New(dir)
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}
