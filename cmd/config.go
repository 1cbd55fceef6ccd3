package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "cr"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage cr configuration.

Running bare 'cr config' is the same as 'cr config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# cr configuration
# See: cr config show (for effective values and sources)

# SQLite database path (default: ~/.config/cr/cr.db)
# db_path: {{ .DBPath }}

# Default backend when an agent does not request one explicitly.
# One of: anthropic, openai, ollama, offline. Leave empty to let cr
# pick the first available backend (ollama if running, else offline).
default_backend: "{{ .DefaultBackend }}"

# Generation backends
backends:
  anthropic:
    api_key: ""
    model: "{{ .AnthropicModel }}"
  openai:
    # Any OpenAI-compatible endpoint (set base_url to enable)
    base_url: ""
    api_key: ""
    model: "{{ .OpenAIModel }}"
  ollama:
    host: "{{ .OllamaHost }}"
    model: "{{ .OllamaModel }}"

# Council discussion rounds (default: {{ .CouncilRounds }})
council:
  rounds: {{ .CouncilRounds }}

# Per-agent generation settings
agent:
  timeout_seconds: {{ .AgentTimeout }}
  temperature: {{ .AgentTemperature }}
  max_tokens: {{ .AgentMaxTokens }}

# Response cache
cache:
  enabled: {{ .CacheEnabled }}
  ttl_hours: {{ .CacheTTLHours }}
`

type configTemplateData struct {
	DBPath           string
	DefaultBackend   string
	AnthropicModel   string
	OpenAIModel      string
	OllamaHost       string
	OllamaModel      string
	CouncilRounds    int
	AgentTimeout     int
	AgentTemperature float64
	AgentMaxTokens   int
	CacheEnabled     bool
	CacheTTLHours    int
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		DBPath:           viper.GetString("db_path"),
		DefaultBackend:   viper.GetString("default_backend"),
		AnthropicModel:   viper.GetString("backends.anthropic.model"),
		OpenAIModel:      viper.GetString("backends.openai.model"),
		OllamaHost:       viper.GetString("backends.ollama.host"),
		OllamaModel:      viper.GetString("backends.ollama.model"),
		CouncilRounds:    viper.GetInt("council.rounds"),
		AgentTimeout:     viper.GetInt("agent.timeout_seconds"),
		AgentTemperature: viper.GetFloat64("agent.temperature"),
		AgentMaxTokens:   viper.GetInt("agent.max_tokens"),
		CacheEnabled:     viper.GetBool("cache.enabled"),
		CacheTTLHours:    viper.GetInt("cache.ttl_hours"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "db_path", EnvVar: "CR_DB_PATH"},
	{Key: "default_backend", EnvVar: "CR_DEFAULT_BACKEND"},
	{Key: "backends.anthropic.model", EnvVar: "CR_BACKENDS_ANTHROPIC_MODEL"},
	{Key: "backends.openai.base_url", EnvVar: "CR_BACKENDS_OPENAI_BASE_URL"},
	{Key: "backends.openai.model", EnvVar: "CR_BACKENDS_OPENAI_MODEL"},
	{Key: "backends.ollama.host", EnvVar: "CR_BACKENDS_OLLAMA_HOST"},
	{Key: "backends.ollama.model", EnvVar: "CR_BACKENDS_OLLAMA_MODEL"},
	{Key: "council.rounds", EnvVar: "CR_COUNCIL_ROUNDS"},
	{Key: "agent.timeout_seconds", EnvVar: "CR_AGENT_TIMEOUT_SECONDS"},
	{Key: "agent.temperature", EnvVar: "CR_AGENT_TEMPERATURE"},
	{Key: "agent.max_tokens", EnvVar: "CR_AGENT_MAX_TOKENS"},
	{Key: "cache.enabled", EnvVar: "CR_CACHE_ENABLED"},
	{Key: "cache.ttl_hours", EnvVar: "CR_CACHE_TTL_HOURS"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-28s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set — set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'cr config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
