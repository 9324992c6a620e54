package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"pagewatch/internal/types"
)

// Load resolves the configuration from the process environment. In local
// mode an optional .env file is merged in first (existing environment
// variables win). A malformed configuration is a fatal startup error; it is
// returned as an AppError so callers can fail fast with a typed code.
func Load() (*Config, error) {
	// Best effort: absence of a dotenv file is not an error.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeConfigMalformed,
			fmt.Sprintf("failed to process environment: %v", err),
			err,
		)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the struct-level validation tags on the configuration.
// Returns a types.AppError with code config_malformed on failure.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		details := map[string]any{}
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				details[fe.Namespace()] = fe.Tag()
			}
		}
		return types.NewAppErrorWithDetails(
			types.ErrCodeConfigMalformed,
			"configuration failed validation",
			err,
			details,
		)
	}
	return nil
}
