package token

import "errors"

var (
	// ErrExpired is returned when a token is past its expiry (after leeway).
	ErrExpired = errors.New("token expired")

	// ErrMalformed is returned for bad signatures, bad structure, missing claims or a wrong token type.
	ErrMalformed = errors.New("malformed token")

	// ErrCSRF is returned when a presented csrf value does not match the token's claim.
	ErrCSRF = errors.New("csrf mismatch")

	// ErrSecretMissing is returned when AUTHD_JWT_SECRET is not set.
	ErrSecretMissing = errors.New("jwt secret missing")

	// ErrSecretTooShort is returned when the secret is shorter than the required minimum.
	ErrSecretTooShort = errors.New("jwt secret too short")

	// ErrUnsupportedAlgorithm is returned for non-HMAC or unknown signing algorithms.
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
)
