package token

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Type distinguishes access tokens from refresh tokens.
type Type string

const (
	// TypeAccess marks short-lived request credentials.
	TypeAccess Type = "access"
	// TypeRefresh marks long-lived rotation credentials.
	TypeRefresh Type = "refresh"
)

// DefaultLeeway absorbs clock skew when checking exp/iat.
const DefaultLeeway = 10 * time.Second

// Config is shared by the access and refresh codecs.
type Config struct {
	Secret    []byte
	Algorithm string

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration
}

// DefaultConfig returns HS256 with 15 day access and 31 day refresh lifetimes.
// Secret must be filled in by the caller.
func DefaultConfig() Config {
	return Config{
		Algorithm:  "HS256",
		AccessTTL:  15 * 24 * time.Hour,
		RefreshTTL: 31 * 24 * time.Hour,
		Leeway:     DefaultLeeway,
	}
}

// Payload is the verified (or freshly minted) content of a token.
type Payload struct {
	Subject   map[string]any
	Type      Type
	IssuedAt  time.Time
	ExpiresAt time.Time
	ID        string
	CSRF      string
}

// SubjectString returns subject[key] as a string ("" if absent or not a string).
func (p Payload) SubjectString(key string) string {
	if p.Subject == nil {
		return ""
	}
	s, _ := p.Subject[key].(string)
	return s
}

// claims is the wire shape. RegisteredClaims carries exp/iat/jti.
type claims struct {
	Principal map[string]any `json:"subject"`
	Type      Type           `json:"type"`
	CSRF      string         `json:"csrf"`
	jwt.RegisteredClaims
}

// Codec is one keyed instance bound to a token type and a default lifetime.
// It is immutable and safe for concurrent use.
type Codec struct {
	secret []byte
	method jwt.SigningMethod
	typ    Type
	ttl    time.Duration
	parser *jwt.Parser
	now    func() time.Time
}

// Option customizes a Codec.
type Option func(*Codec)

// WithClock overrides the time source used for minting and verification.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// New builds a codec for typ. The TTL is taken from cfg according to typ.
func New(cfg Config, typ Type, opts ...Option) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrSecretMissing
	}

	alg := strings.ToUpper(strings.TrimSpace(cfg.Algorithm))
	if alg == "" {
		alg = "HS256"
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, cfg.Algorithm)
	}

	var ttl time.Duration
	switch typ {
	case TypeAccess:
		ttl = cfg.AccessTTL
	case TypeRefresh:
		ttl = cfg.RefreshTTL
	default:
		return nil, fmt.Errorf("token: unknown type %q", typ)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token: non-positive ttl for %s", typ)
	}

	leeway := cfg.Leeway
	if leeway < 0 {
		leeway = 0
	}

	c := &Codec{
		secret: append([]byte(nil), cfg.Secret...),
		method: method,
		typ:    typ,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithLeeway(leeway),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	)
	return c, nil
}

// NewPair builds the access and refresh codecs sharing cfg's secret and algorithm.
func NewPair(cfg Config, opts ...Option) (access *Codec, refresh *Codec, err error) {
	access, err = New(cfg, TypeAccess, opts...)
	if err != nil {
		return nil, nil, err
	}
	refresh, err = New(cfg, TypeRefresh, opts...)
	if err != nil {
		return nil, nil, err
	}
	return access, refresh, nil
}

// Type reports the token type this codec mints and accepts.
func (c *Codec) Type() Type { return c.typ }

// TTL reports the default lifetime.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Mint signs a new token for subject. ttl <= 0 uses the codec default.
func (c *Codec) Mint(subject map[string]any, ttl time.Duration) (string, Payload, error) {
	if ttl <= 0 {
		ttl = c.ttl
	}

	sub := make(map[string]any, len(subject))
	for k, v := range subject {
		sub[k] = v
	}

	now := c.now()
	iat := jwt.NewNumericDate(now)
	exp := jwt.NewNumericDate(now.Add(ttl))

	cl := claims{
		Principal: sub,
		Type:      c.typ,
		CSRF:      uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  iat,
			ExpiresAt: exp,
		},
	}

	signed, err := jwt.NewWithClaims(c.method, cl).SignedString(c.secret)
	if err != nil {
		return "", Payload{}, err
	}

	return signed, Payload{
		Subject:   sub,
		Type:      c.typ,
		IssuedAt:  iat.Time,
		ExpiresAt: exp.Time,
		ID:        cl.ID,
		CSRF:      cl.CSRF,
	}, nil
}

// Verify checks signature, structure and expiry, then the embedded csrf claim.
func (c *Codec) Verify(raw string) (Payload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Payload{}, ErrMalformed
	}

	var cl claims
	_, err := c.parser.ParseWithClaims(raw, &cl, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != c.method.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Payload{}, ErrExpired
		}
		return Payload{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if cl.CSRF == "" || cl.ID == "" || cl.Principal == nil || cl.IssuedAt == nil {
		return Payload{}, ErrMalformed
	}
	if cl.Type != c.typ {
		return Payload{}, ErrMalformed
	}

	return Payload{
		Subject:   cl.Principal,
		Type:      cl.Type,
		IssuedAt:  cl.IssuedAt.Time,
		ExpiresAt: cl.ExpiresAt.Time,
		ID:        cl.ID,
		CSRF:      cl.CSRF,
	}, nil
}

// VerifyCSRF verifies raw and compares its csrf claim with presented in constant time.
func (c *Codec) VerifyCSRF(raw, presented string) (Payload, error) {
	p, err := c.Verify(raw)
	if err != nil {
		return Payload{}, err
	}
	presented = strings.TrimSpace(presented)
	if presented == "" || len(presented) != len(p.CSRF) {
		return Payload{}, ErrCSRF
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(p.CSRF)) != 1 {
		return Payload{}, ErrCSRF
	}
	return p, nil
}
