package token

import (
	"strings"

	"authd/cmd/internal/config"
)

const (
	// SecretEnvKey is the env var name for the signing secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	SecretEnvKey = "AUTHD_JWT_SECRET"

	// MinSecretBytes is the smallest secret accepted for HMAC-SHA256 signing.
	MinSecretBytes = 32
)

// SecretFromEnv returns the configured signing secret (trimmed), enforcing a minimum byte length.
// If the value is missing/blank -> ErrSecretMissing.
// If too short -> ErrSecretTooShort.
func SecretFromEnv(minBytes int) ([]byte, error) {
	return SecretFrom(config.Default(), minBytes)
}

// SecretFrom is SecretFromEnv over an explicit Source.
func SecretFrom(src *config.Source, minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(src.String(SecretEnvKey, ""))
	if raw == "" {
		return nil, ErrSecretMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrSecretTooShort
	}
	return b, nil
}
