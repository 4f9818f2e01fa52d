package api

import "time"

type loginRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	Fingerprint string `json:"fingerprint"`
}

// fingerprintRequest is the body of refresh and logout.
type fingerprintRequest struct {
	Fingerprint string `json:"fingerprint"`
}

type loginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserRoleName string `json:"user_role_name"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type meResponse struct {
	UserID    string    `json:"user_id"`
	RoleName  string    `json:"role_name"`
	ExpiresAt time.Time `json:"expires_at"`
}
