package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	p := writeTemp(t, "cfg.yaml", "addr: \":9090\"\nmodels_dir: /models\ncontext_size: 1024\nseed: -1\nbackend: cpu\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.ModelsDir != "/models" || cfg.ContextSize != 1024 || cfg.Seed != -1 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	p := writeTemp(t, "cfg.toml", "addr = \":8080\"\nthreads = 8\nmax_tokens = 256\nlib_path = \"/usr/local/lib/llama\"\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.Threads != 8 || cfg.MaxTokens != 256 || cfg.LibPath != "/usr/local/lib/llama" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadJSON(t *testing.T) {
	p := writeTemp(t, "cfg.json", `{"addr": ":7070", "default_model": "tiny.gguf", "log_level": "debug"}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7070" || cfg.DefaultModel != "tiny.gguf" || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadRejects(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("empty path accepted")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file accepted")
	}
	p := writeTemp(t, "cfg.ini", "addr=:8080")
	if _, err := Load(p); err == nil {
		t.Fatal("unsupported extension accepted")
	}
	p = writeTemp(t, "bad.yaml", "addr: [")
	if _, err := Load(p); err == nil {
		t.Fatal("malformed yaml accepted")
	}
}

func TestValidate(t *testing.T) {
	if err := (Config{Backend: "cuda"}).Validate(); err == nil {
		t.Fatal("unknown backend accepted")
	}
	if err := (Config{Backend: "cpu"}).Validate(); err != nil {
		t.Fatalf("cpu backend rejected: %v", err)
	}
	if err := (Config{ContextSize: -1}).Validate(); err == nil {
		t.Fatal("negative context_size accepted")
	}
	if err := (Config{MaxTokens: -1}).Validate(); err == nil {
		t.Fatal("negative max_tokens accepted")
	}
}
