package password

import "errors"

var (
	// ErrTooShort is returned by Hash when the password is under the minimum length.
	ErrTooShort = errors.New("password too short")
	// ErrTooLong is returned by Hash when the password exceeds the maximum length.
	ErrTooLong = errors.New("password too long")
	// ErrInvalidHash is returned by Verify for malformed or out-of-bounds encoded hashes.
	ErrInvalidHash = errors.New("invalid password hash")
)
