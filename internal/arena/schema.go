package arena

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/joescharf/cr/internal/models"
)

// Schema is a full set of per-role agent configurations, loaded from YAML.
// Two schemas with the same sorted contents hash identically regardless of
// file name or key order.
type Schema struct {
	Name   string                             `yaml:"name"`
	Agents map[models.Role]models.AgentConfig `yaml:"agents"`
}

// ValidationError identifies which schema is structurally unusable and why.
type ValidationError struct {
	Schema  string
	Missing []models.Role
	Reason  string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		names := make([]string, len(e.Missing))
		for i, r := range e.Missing {
			names[i] = string(r)
		}
		return fmt.Sprintf("schema %q missing configuration for roles: %s", e.Schema, strings.Join(names, ", "))
	}
	return fmt.Sprintf("schema %q invalid: %s", e.Schema, e.Reason)
}

// LoadSchema reads a schema from a YAML file. The name defaults to the file's
// base name without extension.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}

	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &s, nil
}

// Validate checks that the schema configures every review role.
func (s *Schema) Validate() error {
	var missing []models.Role
	for _, role := range models.ReviewRoles() {
		if _, ok := s.Agents[role]; !ok {
			missing = append(missing, role)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Schema: s.Name, Missing: missing}
	}
	return nil
}

// Hash returns a stable hex digest of the schema's sorted configuration.
// The name and any request-scoped credentials are excluded: identical agent
// setups must rate as the same participant.
func (s *Schema) Hash() string {
	roles := make([]string, 0, len(s.Agents))
	for role := range s.Agents {
		roles = append(roles, string(role))
	}
	sort.Strings(roles)

	h := sha256.New()
	for _, role := range roles {
		cfg := s.Agents[models.Role(role)]
		fmt.Fprintf(h, "%s|%s|%s|%s|%g|%d|%d\n",
			role, cfg.Backend, cfg.Model, cfg.PromptVariant,
			cfg.Temperature, cfg.MaxTokens, cfg.TimeoutSeconds)
	}
	return hex.EncodeToString(h.Sum(nil))
}
