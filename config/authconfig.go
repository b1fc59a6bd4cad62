package config

import (
	"fmt"
	"os"

	"github.com/upb/dataset-search-api/oidc"
	"github.com/upb/dataset-search-api/utils"
	"gopkg.in/yaml.v3"
)

// LoadAuthConfig reads the audience to provider mapping from path. The file
// is YAML; JSON files parse as well since JSON is a subset of YAML.
func LoadAuthConfig(path string) (oidc.AuthConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read auth config %s: %w", path, err)
	}
	return ParseAuthConfig(data)
}

// ParseAuthConfig parses and validates an auth config document
func ParseAuthConfig(data []byte) (oidc.AuthConfig, error) {
	var authConfig oidc.AuthConfig
	if err := yaml.Unmarshal(data, &authConfig); err != nil {
		return nil, fmt.Errorf("failed to parse auth config: %w", err)
	}

	if len(authConfig) == 0 {
		return nil, fmt.Errorf("auth config defines no audiences")
	}

	for audience, provider := range authConfig {
		if audience == "" {
			return nil, fmt.Errorf("auth config contains an empty audience")
		}
		if err := utils.ValidateStruct(&provider); err != nil {
			return nil, fmt.Errorf("auth config for %q: %w: %v", audience, err, utils.GetValidationFields(err))
		}
	}

	return authConfig, nil
}
