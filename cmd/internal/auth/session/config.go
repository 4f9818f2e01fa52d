package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"authd/cmd/internal/config"
	"authd/cmd/security/token"
)

// Config defines runtime configuration for the session subsystem.
type Config struct {
	// Token configures both codecs (secret, algorithm, lifetimes, leeway).
	Token token.Config

	// MaxFingerprintLen bounds the device fingerprint accepted by the service.
	MaxFingerprintLen int
}

// DefaultFingerprintMaxLen is the largest fingerprint accepted by default.
const DefaultFingerprintMaxLen = 512

// DefaultConfig returns defaults without a signing secret.
func DefaultConfig() Config {
	return Config{
		Token:             token.DefaultConfig(),
		MaxFingerprintLen: DefaultFingerprintMaxLen,
	}
}

// LoadConfigFromEnv loads session configuration.
//
// Required:
//   - AUTHD_JWT_SECRET (at least 32 bytes)
//
// Optional:
//   - AUTHD_JWT_ALGORITHM (HS256, HS384, HS512)
//   - AUTHD_AUTH_ACCESS_TTL, AUTHD_AUTH_REFRESH_TTL, AUTHD_AUTH_LEEWAY (Go durations)
//   - AUTHD_AUTH_FINGERPRINT_MAX_LEN
//
// Returns an error wrapping ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	return loadConfig(config.Default())
}

func loadConfig(src *config.Source) (Config, error) {
	cfg := DefaultConfig()

	secret, err := token.SecretFrom(src, token.MinSecretBytes)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	cfg.Token.Secret = secret

	cfg.Token.Algorithm = strings.ToUpper(src.String("AUTHD_JWT_ALGORITHM", cfg.Token.Algorithm))
	switch cfg.Token.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return Config{}, fmt.Errorf("%w: unsupported AUTHD_JWT_ALGORITHM %q", ErrConfig, cfg.Token.Algorithm)
	}

	cfg.Token.AccessTTL = src.Duration("AUTHD_AUTH_ACCESS_TTL", cfg.Token.AccessTTL)
	cfg.Token.RefreshTTL = src.Duration("AUTHD_AUTH_REFRESH_TTL", cfg.Token.RefreshTTL)
	cfg.Token.Leeway = src.Duration("AUTHD_AUTH_LEEWAY", cfg.Token.Leeway)
	cfg.MaxFingerprintLen = src.Int("AUTHD_AUTH_FINGERPRINT_MAX_LEN", cfg.MaxFingerprintLen)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if len(c.Token.Secret) == 0 {
		return fmt.Errorf("%w: %w", ErrConfig, token.ErrSecretMissing)
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return fmt.Errorf("%w: token lifetimes must be positive", ErrConfig)
	}
	if c.Token.RefreshTTL < c.Token.AccessTTL {
		return fmt.Errorf("%w: refresh ttl shorter than access ttl", ErrConfig)
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > time.Hour {
		return fmt.Errorf("%w: leeway out of range", ErrConfig)
	}
	if c.MaxFingerprintLen <= 0 {
		return errors.Join(ErrConfig, errors.New("fingerprint max length must be positive"))
	}
	return nil
}
