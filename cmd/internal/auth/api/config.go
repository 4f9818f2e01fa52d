package api

import (
	"net/http"
	"strings"

	"authd/cmd/internal/config"
)

// Credential places.
const (
	PlaceHeader = "header"
	PlaceCookie = "cookie"
)

// Config controls the auth transport: where credentials are read from and how
// the refresh cookie is written.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	// Places lists where credentials are looked up, in order. The header wins when both are present.
	Places []string

	AccessCookieName  string
	RefreshCookieName string
	CookiePath        string
	CookieDomain      string
	CookieSecure      bool
	CookieSameSite    http.SameSite

	// RequireCSRF enables double-submit checks for cookie credentials on unsafe methods.
	RequireCSRF    bool
	CSRFHeaderName string
}

// DefaultConfig returns the transport defaults.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:      1 << 20, // 1 MiB
		Places:            []string{PlaceHeader, PlaceCookie},
		AccessCookieName:  "access_token",
		RefreshCookieName: "refresh_token",
		CookiePath:        "/",
		CookieSecure:      true,
		CookieSameSite:    http.SameSiteLaxMode,
		CSRFHeaderName:    "X-CSRF-Token",
	}
}

// LoadConfigFromEnv loads auth transport config with safe defaults.
func LoadConfigFromEnv() Config {
	return loadConfig(config.Default())
}

func loadConfig(src *config.Source) Config {
	def := DefaultConfig()
	cfg := Config{
		TrustProxy:        src.Bool("AUTHD_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:      src.Int64("AUTHD_AUTH_MAX_BODY_BYTES", def.MaxBodyBytes),
		Places:            normalizePlaces(src.List("AUTHD_AUTH_CREDENTIAL_PLACES", def.Places)),
		AccessCookieName:  src.String("AUTHD_AUTH_ACCESS_COOKIE_NAME", def.AccessCookieName),
		RefreshCookieName: src.String("AUTHD_AUTH_REFRESH_COOKIE_NAME", def.RefreshCookieName),
		CookiePath:        src.String("AUTHD_AUTH_COOKIE_PATH", def.CookiePath),
		CookieDomain:      src.String("AUTHD_AUTH_COOKIE_DOMAIN", ""),
		CookieSecure:      src.Bool("AUTHD_AUTH_COOKIE_SECURE", def.CookieSecure),
		CookieSameSite:    parseSameSite(src.String("AUTHD_AUTH_COOKIE_SAMESITE", "lax")),
		RequireCSRF:       src.Bool("AUTHD_AUTH_REQUIRE_CSRF", false),
		CSRFHeaderName:    src.String("AUTHD_AUTH_CSRF_HEADER", def.CSRFHeaderName),
	}

	// Browsers drop SameSite=None cookies without Secure.
	if cfg.CookieSameSite == http.SameSiteNoneMode {
		cfg.CookieSecure = true
	}
	if cfg.AccessCookieName == cfg.RefreshCookieName {
		cfg.AccessCookieName = def.AccessCookieName
		cfg.RefreshCookieName = def.RefreshCookieName
	}
	if len(cfg.Places) == 0 {
		cfg.Places = def.Places
	}
	return cfg
}

func normalizePlaces(in []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, p := range in {
		p = strings.ToLower(strings.TrimSpace(p))
		if (p == PlaceHeader || p == PlaceCookie) && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

func (c Config) allows(place string) bool {
	for _, p := range c.Places {
		if p == place {
			return true
		}
	}
	return false
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}
