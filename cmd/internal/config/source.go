// Package config is the single read path for runtime settings.
//
// Values come from the process environment first, then from an optional
// dotenv file (".env" in the working directory unless AUTHD_ENV_FILE points
// elsewhere). Keys are full environment variable names, e.g. AUTHD_HTTP_ADDR.
package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// EnvFileKey names the variable that overrides the dotenv file location.
const EnvFileKey = "AUTHD_ENV_FILE"

// Source reads typed settings with defaults. Invalid values fall back to the default.
type Source struct {
	v *viper.Viper
}

// New builds a Source backed by the environment and, if present, the dotenv file at path.
// An empty path disables file loading.
func New(path string) *Source {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		// Missing file is fine (CI, containers).
		_ = v.ReadInConfig()
	}
	v.AutomaticEnv()
	return &Source{v: v}
}

var (
	defaultOnce sync.Once
	defaultSrc  *Source
)

// Default returns the process-wide Source.
func Default() *Source {
	defaultOnce.Do(func() {
		path := strings.TrimSpace(os.Getenv(EnvFileKey))
		if path == "" {
			path = ".env"
		}
		defaultSrc = New(path)
	})
	return defaultSrc
}

// Lookup returns the trimmed raw value and whether it is non-empty.
func (s *Source) Lookup(key string) (string, bool) {
	v := strings.TrimSpace(s.v.GetString(key))
	return v, v != ""
}

// String reads a string with a default.
func (s *Source) String(key, def string) string {
	if v, ok := s.Lookup(key); ok {
		return v
	}
	return def
}

// Bool reads a bool with a default.
func (s *Source) Bool(key string, def bool) bool {
	v, ok := s.Lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Int reads a positive int with a default.
func (s *Source) Int(key string, def int) int {
	v, ok := s.Lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// Int32 reads a non-negative int32 with a default.
func (s *Source) Int32(key string, def int32) int32 {
	v, ok := s.Lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil || n < 0 {
		return def
	}
	return int32(n)
}

// Int64 reads a positive int64 with a default.
func (s *Source) Int64(key string, def int64) int64 {
	v, ok := s.Lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// Duration reads a positive Go duration with a default.
func (s *Source) Duration(key string, def time.Duration) time.Duration {
	v, ok := s.Lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// List reads a comma-separated list, dropping blanks.
func (s *Source) List(key string, def []string) []string {
	v, ok := s.Lookup(key)
	if !ok {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
