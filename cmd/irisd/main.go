package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"irisd/internal/catalog"
	"irisd/internal/config"
	"irisd/internal/httpapi"
	"irisd/internal/llm"
	"irisd/internal/session"
)

var version = "dev"

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	cfg := config.Config{
		Addr:        envOr("IRISD_ADDR", ":8080"),
		ModelsDir:   "~/models/llm",
		ContextSize: 2048,
		Seed:        -1,
		MaxTokens:   512,
		LogLevel:    envOr("IRISD_LOG_LEVEL", "info"),
	}
	var configPath string
	var corsEnabled bool

	root := &cobra.Command{
		Use:           "irisd",
		Short:         "Local LLM session server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to a yaml/json/toml config file")
	root.PersistentFlags().StringVar(&cfg.ModelsDir, "models-dir", cfg.ModelsDir, "Directory to scan for *.gguf model files")
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug|info|warn|error")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			merged, err := mergeConfig(cmd, cfg, configPath)
			if err != nil {
				return err
			}
			return runServe(merged, corsEnabled)
		},
	}
	serveCmd.Flags().StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address, e.g. :8080")
	serveCmd.Flags().IntVar(&cfg.ContextSize, "context-size", cfg.ContextSize, "Default context window in tokens")
	serveCmd.Flags().IntVar(&cfg.Threads, "threads", cfg.Threads, "Decode thread count (0 = backend default)")
	serveCmd.Flags().Int64Var(&cfg.Seed, "seed", cfg.Seed, "Default model seed (-1 derives one from the clock)")
	serveCmd.Flags().IntVar(&cfg.MaxTokens, "max-tokens", cfg.MaxTokens, "Default per-session token budget")
	serveCmd.Flags().StringVar(&cfg.LibPath, "lib-path", cfg.LibPath, "Directory holding the llama.cpp shared libraries")
	serveCmd.Flags().BoolVar(&corsEnabled, "cors", false, "Allow cross-origin requests")

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "List *.gguf files in the models directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			merged, err := mergeConfig(cmd, cfg, configPath)
			if err != nil {
				return err
			}
			files, err := catalog.LoadDir(merged.ModelsDir)
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%s\n", f.ID, f.SizeBytes, f.Path)
			}
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "irisd", version)
		},
	}

	root.AddCommand(serveCmd, modelsCmd, versionCmd)
	return root
}

// mergeConfig layers a config file under the flag values. Flags the user set
// explicitly win over the file; untouched flags take the file's value.
func mergeConfig(cmd *cobra.Command, flags config.Config, path string) (config.Config, error) {
	if path == "" {
		return flags, flags.Validate()
	}
	fileCfg, err := config.Load(path)
	if err != nil {
		return flags, fmt.Errorf("config %s: %w", path, err)
	}
	merged := fileCfg
	set := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			f = cmd.InheritedFlags().Lookup(name)
		}
		return f != nil && f.Changed
	}
	if set("addr") || merged.Addr == "" {
		merged.Addr = flags.Addr
	}
	if set("models-dir") || merged.ModelsDir == "" {
		merged.ModelsDir = flags.ModelsDir
	}
	if set("context-size") || merged.ContextSize == 0 {
		merged.ContextSize = flags.ContextSize
	}
	if set("threads") {
		merged.Threads = flags.Threads
	}
	if set("seed") || merged.Seed == 0 {
		merged.Seed = flags.Seed
	}
	if set("max-tokens") || merged.MaxTokens == 0 {
		merged.MaxTokens = flags.MaxTokens
	}
	if set("lib-path") || merged.LibPath == "" {
		merged.LibPath = flags.LibPath
	}
	if set("log-level") || merged.LogLevel == "" {
		merged.LogLevel = flags.LogLevel
	}
	return merged, merged.Validate()
}

func runServe(cfg config.Config, corsEnabled bool) error {
	log := newLogger(cfg.LogLevel)

	backend := cfg.Backend
	if backend == "" {
		backend = "cpu"
	}

	reg, err := session.New(session.Config{
		Runtime:            llm.NewRuntime(cfg.LibPath),
		Logger:             log,
		DefaultContextSize: cfg.ContextSize,
		DefaultMaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("init registry: %w", err)
	}

	if cfg.DefaultModel != "" {
		path, err := catalog.Resolve(cfg.ModelsDir, cfg.DefaultModel)
		if err != nil {
			reg.Shutdown()
			return fmt.Errorf("default model: %w", err)
		}
		id, err := reg.LoadModel(path, cfg.ContextSize, cfg.Seed, cfg.Threads)
		if err != nil {
			reg.Shutdown()
			return fmt.Errorf("load default model %s: %w", path, err)
		}
		log.Info().Str("model_id", id).Str("path", path).Msg("default model loaded")
	}

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetLogger(log)
	httpapi.SetBaseContext(baseCtx)
	if corsEnabled {
		httpapi.SetCORSOptions(true, []string{"*"}, []string{"GET", "POST", "DELETE"}, []string{"Content-Type"})
	}

	mux := httpapi.NewMux(reg, httpapi.Options{ModelsDir: cfg.ModelsDir})
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.Addr).
			Str("models_dir", cfg.ModelsDir).
			Str("backend", backend).
			Msg("irisd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		reg.Shutdown()
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	reg.Shutdown()
	return nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
