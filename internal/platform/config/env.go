// Package config loads storyframe settings from the process environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix namespaces every storyframe environment variable.
const EnvPrefix = "STORYFRAME_"

// EnvName returns the fully qualified environment variable for suffix.
func EnvName(suffix string) string {
	return EnvPrefix + suffix
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
