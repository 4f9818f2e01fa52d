// Package token mints and verifies the signed tokens handed to clients.
//
// A token is a three-part JWT whose payload is
//
//	{subject, type, exp, iat, jti, csrf}
//
// where subject is a free-form map, type is "access" or "refresh" and csrf is a
// random value usable for double-submit checks. Signing is HMAC-only with a
// single static secret (AUTHD_JWT_SECRET).
package token
