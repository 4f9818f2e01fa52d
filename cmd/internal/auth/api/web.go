package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"authd/cmd/internal/auth/session"
	"authd/cmd/security/token"
)

// Transport moves tokens between HTTP requests and the codecs:
// bearer header or cookie on the way in, refresh cookie on the way out.
type Transport struct {
	cfg     Config
	log     *slog.Logger
	access  *token.Codec
	refresh *token.Codec
	now     func() time.Time
}

// NewTransport builds a Transport over the access and refresh codecs.
func NewTransport(cfg Config, log *slog.Logger, access, refresh *token.Codec) *Transport {
	if log == nil {
		log = slog.Default()
	}
	return &Transport{cfg: cfg, log: log, access: access, refresh: refresh, now: time.Now}
}

// credential is a raw token and where it was found.
type credential struct {
	raw        string
	fromCookie bool
}

func (t *Transport) codec(typ token.Type) (*token.Codec, string) {
	if typ == token.TypeRefresh {
		return t.refresh, t.cfg.RefreshCookieName
	}
	return t.access, t.cfg.AccessCookieName
}

func (t *Transport) lookup(r *http.Request, cookieName string) (credential, bool) {
	if t.cfg.allows(PlaceHeader) {
		if raw := bearerToken(r); raw != "" {
			return credential{raw: raw}, true
		}
	}
	if t.cfg.allows(PlaceCookie) && cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil {
			if v := strings.TrimSpace(c.Value); v != "" {
				return credential{raw: v, fromCookie: true}, true
			}
		}
	}
	return credential{}, false
}

// Authenticate extracts and verifies a token of typ from r.
// A missing credential yields session.ErrUnauthorized, or a zero payload and no
// error when optional is set. ok reports whether a credential was verified.
func (t *Transport) Authenticate(r *http.Request, typ token.Type, optional bool) (p token.Payload, raw string, ok bool, err error) {
	codec, cookieName := t.codec(typ)

	cred, found := t.lookup(r, cookieName)
	if !found {
		if optional {
			return token.Payload{}, "", false, nil
		}
		return token.Payload{}, "", false, session.ErrUnauthorized
	}

	if cred.fromCookie && t.cfg.RequireCSRF && !safeMethod(r.Method) {
		p, err = codec.VerifyCSRF(cred.raw, strings.TrimSpace(r.Header.Get(t.cfg.CSRFHeaderName)))
	} else {
		p, err = codec.Verify(cred.raw)
	}
	if err != nil {
		return token.Payload{}, "", false, err
	}
	return p, cred.raw, true, nil
}

func safeMethod(m string) bool {
	return m == http.MethodGet || m == http.MethodHead || m == http.MethodOptions
}

// SetRefreshCookie writes the refresh cookie, alive until expiresAt.
func (t *Transport) SetRefreshCookie(w http.ResponseWriter, raw string, expiresAt time.Time) {
	maxAge := int(expiresAt.Sub(t.now()).Seconds())
	if maxAge <= 0 {
		t.UnsetRefreshCookie(w)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     t.cfg.RefreshCookieName,
		Value:    raw,
		Path:     t.cfg.CookiePath,
		Domain:   t.cfg.CookieDomain,
		MaxAge:   maxAge,
		Expires:  expiresAt.UTC(),
		HttpOnly: true,
		Secure:   t.cfg.CookieSecure,
		SameSite: t.cfg.CookieSameSite,
	})
}

// UnsetRefreshCookie expires the refresh cookie on the client.
func (t *Transport) UnsetRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     t.cfg.RefreshCookieName,
		Value:    "",
		Path:     t.cfg.CookiePath,
		Domain:   t.cfg.CookieDomain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   t.cfg.CookieSecure,
		SameSite: t.cfg.CookieSameSite,
	})
}

type claimsKey struct{}

// ClaimsFromContext returns the access payload stored by RequireAccess or OptionalAccess.
func ClaimsFromContext(ctx context.Context) (token.Payload, bool) {
	p, ok := ctx.Value(claimsKey{}).(token.Payload)
	return p, ok
}

// RequireAccess rejects requests without a valid access token.
func (t *Transport) RequireAccess(next http.Handler) http.Handler {
	return t.accessMiddleware(next, false)
}

// OptionalAccess verifies an access token when one is present.
// Requests without a credential pass through with no claims.
func (t *Transport) OptionalAccess(next http.Handler) http.Handler {
	return t.accessMiddleware(next, true)
}

func (t *Transport) accessMiddleware(next http.Handler, optional bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _, ok, err := t.Authenticate(r, token.TypeAccess, optional)
		if err != nil {
			writeMappedError(t.log, w, "auth.access", err)
			return
		}
		if ok {
			r = r.WithContext(context.WithValue(r.Context(), claimsKey{}, p))
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
