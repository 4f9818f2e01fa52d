package app

import (
	"errors"
	"fmt"
	"strings"

	"authd/cmd/security/token"
)

// ValidateSecurityConfig checks startup invariants that must hold before any listener opens.
func ValidateSecurityConfig(cfg Config) error {
	if _, err := token.SecretFromEnv(token.MinSecretBytes); err != nil {
		switch {
		case errors.Is(err, token.ErrSecretMissing):
			return fmt.Errorf("security policy: %s is required", token.SecretEnvKey)
		case errors.Is(err, token.ErrSecretTooShort):
			return fmt.Errorf("security policy: %s is too short (min %d bytes)", token.SecretEnvKey, token.MinSecretBytes)
		default:
			return err
		}
	}

	switch cfg.Store {
	case StoreMemory:
	case StorePostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return errors.New("config: AUTHD_STORE=postgres requires AUTHD_DATABASE_URL")
		}
	default:
		return fmt.Errorf("config: unknown AUTHD_STORE %q", cfg.Store)
	}

	hasUser := strings.TrimSpace(cfg.BootstrapUsername) != ""
	hasPass := cfg.BootstrapPassword != ""
	if hasUser != hasPass {
		return errors.New("config: AUTHD_BOOTSTRAP_USERNAME and AUTHD_BOOTSTRAP_PASSWORD must be set together")
	}
	return nil
}
