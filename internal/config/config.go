// Package config provides environment-based configuration loading and
// validation for msgbus transports and the circuit breaker, grounded on
// the same cleanenv + validator combination the rest of the stack uses.
package config

import (
	apperrors "github.com/arielkovacs/msgbus/internal/errors"
	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
)

// Load reads configuration from environment variables (falling back to a
// .env file if present) into cfg, then validates the loaded struct.
func Load[T any](cfg *T) error {
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return apperrors.Wrap(err, "failed to read env config")
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return apperrors.Wrap(err, "config validation failed")
	}

	return nil
}
