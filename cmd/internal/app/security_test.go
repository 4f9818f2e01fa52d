package app

import "testing"

func TestValidateSecurityConfig(t *testing.T) {
	t.Setenv("AUTHD_JWT_SECRET", "0123456789abcdef0123456789abcdef")

	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "memory", cfg: Config{Store: StoreMemory}},
		{name: "postgres with url", cfg: Config{Store: StorePostgres, DatabaseURL: "postgres://localhost/authd"}},
		{name: "postgres without url", cfg: Config{Store: StorePostgres}, wantErr: true},
		{name: "unknown store", cfg: Config{Store: "redis"}, wantErr: true},
		{name: "bootstrap user without password", cfg: Config{Store: StoreMemory, BootstrapUsername: "admin"}, wantErr: true},
		{name: "bootstrap pair", cfg: Config{Store: StoreMemory, BootstrapUsername: "admin", BootstrapPassword: "longenough"}},
	}
	for _, tc := range cases {
		err := ValidateSecurityConfig(tc.cfg)
		if (err != nil) != tc.wantErr {
			t.Fatalf("%s: err=%v wantErr=%v", tc.name, err, tc.wantErr)
		}
	}
}

func TestValidateSecurityConfig_Secret(t *testing.T) {
	t.Setenv("AUTHD_JWT_SECRET", "")
	if err := ValidateSecurityConfig(Config{Store: StoreMemory}); err == nil {
		t.Fatalf("expected missing secret error")
	}

	t.Setenv("AUTHD_JWT_SECRET", "short")
	if err := ValidateSecurityConfig(Config{Store: StoreMemory}); err == nil {
		t.Fatalf("expected short secret error")
	}
}
