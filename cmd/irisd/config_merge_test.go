package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"irisd/internal/config"
)

func serveCommand(t *testing.T) *cobra.Command {
	t.Helper()
	root := buildRootCmd()
	for _, c := range root.Commands() {
		if c.Name() == "serve" {
			return c
		}
	}
	t.Fatal("serve command not registered")
	return nil
}

func TestMergeConfigFlagWinsOverFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(p, []byte("addr: \":9999\"\ncontext_size: 4096\nmax_tokens: 64\ndefault_model: tiny.gguf\nbackend: cpu\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cmd := serveCommand(t)
	if err := cmd.Flags().Set("addr", ":7000"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	merged, err := mergeConfig(cmd, config.Config{Addr: ":7000", ContextSize: 2048, Seed: -1, MaxTokens: 512}, p)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if merged.Addr != ":7000" {
		t.Fatalf("flag did not win: %q", merged.Addr)
	}
	if merged.ContextSize != 4096 {
		t.Fatalf("file value dropped: %d", merged.ContextSize)
	}
	if merged.Seed != -1 {
		t.Fatalf("defaults not layered under file: %+v", merged)
	}
	if merged.MaxTokens != 64 || merged.DefaultModel != "tiny.gguf" || merged.Backend != "cpu" {
		t.Fatalf("file values dropped: %+v", merged)
	}
}

func TestMergeConfigWithoutFile(t *testing.T) {
	cmd := serveCommand(t)
	flags := config.Config{Addr: ":8080", ContextSize: 2048, Seed: -1, MaxTokens: 512}
	merged, err := mergeConfig(cmd, flags, "")
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if merged != flags {
		t.Fatalf("merged %+v, want %+v", merged, flags)
	}
}

func TestMergeConfigRejectsBadFile(t *testing.T) {
	cmd := serveCommand(t)
	if _, err := mergeConfig(cmd, config.Config{}, filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing config accepted")
	}
}
