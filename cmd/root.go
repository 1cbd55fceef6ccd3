package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/cr/internal/agent"
	"github.com/joescharf/cr/internal/arena"
	"github.com/joescharf/cr/internal/council"
	"github.com/joescharf/cr/internal/debate"
	"github.com/joescharf/cr/internal/llm"
	"github.com/joescharf/cr/internal/notify"
	"github.com/joescharf/cr/internal/output"
	"github.com/joescharf/cr/internal/review"
	"github.com/joescharf/cr/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool

	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "cr",
	Short: "Multi-agent code review orchestrator",
	Long: `cr coordinates multiple LLM agents to review a code artifact.

Role-specialized agents (general, security, performance, style) analyze
the code independently or in a moderated council discussion; findings can
be debated adversarially, and full agent configurations can compete
head-to-head in arena sessions with ELO ratings.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/cr/config.yaml)")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "cr %s (commit %s, built %s)\n", buildVersion, buildCommit, buildDate)
	},
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "cr")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CR")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "cr")

	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "cr.db"))
	viper.SetDefault("default_backend", "")
	viper.SetDefault("default_model", "")
	viper.SetDefault("backends.anthropic.api_key", "")
	viper.SetDefault("backends.anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("backends.openai.base_url", "")
	viper.SetDefault("backends.openai.api_key", "")
	viper.SetDefault("backends.openai.model", "gpt-4o-mini")
	viper.SetDefault("backends.ollama.host", "http://localhost:11434")
	viper.SetDefault("backends.ollama.model", "llama3")
	viper.SetDefault("council.rounds", council.DefaultRounds)
	viper.SetDefault("agent.timeout_seconds", agent.DefaultTimeoutSeconds)
	viper.SetDefault("agent.temperature", 0.2)
	viper.SetDefault("agent.max_tokens", 4096)
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.ttl_hours", 24)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// The store and engines are initialized lazily so config/version
	// commands run without a db.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// newGateway builds the generation gateway from the configured backends.
// Registration order is the refusal fallback order; the offline backend is
// always last so generation can never fail for want of a backend.
func newGateway() *llm.Gateway {
	registry := llm.NewRegistry()

	if apiKey := viper.GetString("backends.anthropic.api_key"); apiKey != "" {
		registry.Register(llm.NewAnthropicBackend(apiKey, viper.GetString("backends.anthropic.model")))
	}
	if baseURL := viper.GetString("backends.openai.base_url"); baseURL != "" {
		registry.Register(llm.NewOpenAIBackend(llm.BackendOpenAI, baseURL,
			viper.GetString("backends.openai.api_key"), viper.GetString("backends.openai.model")))
	}
	registry.Register(llm.NewOllamaBackend(
		viper.GetString("backends.ollama.host"), viper.GetString("backends.ollama.model")))
	registry.Register(llm.NewOfflineBackend())

	return llm.NewGateway(registry, viper.GetString("default_backend"))
}

// engines bundles the orchestration engines wired over shared deps.
type engines struct {
	store        store.Store
	orchestrator *review.Orchestrator
	debater      *debate.Engine
	arena        *arena.Engine
}

// getEngines wires the full engine stack: store, gateway, runner, council,
// debate, and arena, with lifecycle events flowing to the CLI.
func getEngines() (*engines, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}

	cfg := review.DefaultConfig()
	gateway := newGateway()
	notifier := notify.NewUINotifier(ui)

	runner := agent.NewRunner(s, gateway, notifier)
	runner.CacheEnabled = cfg.CacheEnabled
	runner.CacheTTL = cfg.CacheTTL

	councilEngine := council.NewEngine(s, gateway, notifier)
	councilEngine.Rounds = cfg.Rounds
	councilEngine.TimeoutSeconds = cfg.TimeoutSeconds

	debater := debate.NewEngine(s, gateway)
	debater.TimeoutSeconds = cfg.TimeoutSeconds

	return &engines{
		store:        s,
		orchestrator: review.NewOrchestrator(s, runner, councilEngine, notifier),
		debater:      debater,
		arena:        arena.NewEngine(s, runner, notifier),
	}, nil
}
