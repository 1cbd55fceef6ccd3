package review

import (
	"github.com/spf13/viper"

	"github.com/joescharf/cr/internal/models"
)

// DefaultAgentConfigs builds the per-role agent configuration from viper.
// Every role shares the default backend/model unless a per-role override is
// set under agents.<role>.
func DefaultAgentConfigs() map[models.Role]models.AgentConfig {
	base := models.AgentConfig{
		Backend:        viper.GetString("default_backend"),
		Model:          viper.GetString("default_model"),
		Temperature:    viper.GetFloat64("agent.temperature"),
		MaxTokens:      viper.GetInt("agent.max_tokens"),
		TimeoutSeconds: viper.GetInt("agent.timeout_seconds"),
	}

	configs := make(map[models.Role]models.AgentConfig)
	roles := append(models.ReviewRoles(), models.RoleModerator)
	for _, role := range roles {
		cfg := base
		prefix := "agents." + string(role) + "."
		if v := viper.GetString(prefix + "backend"); v != "" {
			cfg.Backend = v
		}
		if v := viper.GetString(prefix + "model"); v != "" {
			cfg.Model = v
		}
		if v := viper.GetString(prefix + "prompt_variant"); v != "" {
			cfg.PromptVariant = v
		}
		if viper.IsSet(prefix + "temperature") {
			cfg.Temperature = viper.GetFloat64(prefix + "temperature")
		}
		if v := viper.GetInt(prefix + "max_tokens"); v > 0 {
			cfg.MaxTokens = v
		}
		if v := viper.GetInt(prefix + "timeout_seconds"); v > 0 {
			cfg.TimeoutSeconds = v
		}
		configs[role] = cfg
	}
	return configs
}
