package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/dgallion1/pagetree/internal/config"
)

func TestNew(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{
		LLMProvider:   "openai",
		OpenAIAPIKey:  "sk-test",
		OpenAIModel:   "gpt-4o",
		OpenAIBaseURL: "http://127.0.0.1:1",
		DatabasePath:  filepath.Join(t.TempDir(), "nested", "pagetree.db"),
	}

	a, err := New(context.Background(), cfg, log)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()

	if a.LLM.Model() != "gpt-4o" {
		t.Errorf("expected openai model, got %q", a.LLM.Model())
	}
	if err := a.Store.Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
	if a.Builder == nil || a.Orchestrator == nil || a.Reasoner == nil {
		t.Error("expected every service to be constructed")
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{LLMProvider: "mystery", DatabasePath: filepath.Join(t.TempDir(), "p.db")}
	if _, err := New(context.Background(), cfg, log); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
