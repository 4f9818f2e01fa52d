// Command useradd provisions a user in the Postgres store.
// The password is read from the first line of stdin.
//
//	printf '%s\n' "$PASS" | go run ./cmd/useradd -username alice -role admin
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"authd/cmd/identity"
	"authd/cmd/internal/config"
	"authd/cmd/security/password"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "useradd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		username = flag.String("username", "", "username (required)")
		role     = flag.String("role", identity.DefaultRole, "role name")
		dsn      = flag.String("database", "", "Postgres URL (default: AUTHD_DATABASE_URL)")
	)
	flag.Parse()

	if strings.TrimSpace(*username) == "" {
		return errors.New("-username is required")
	}
	url := *dsn
	if url == "" {
		url = config.Default().String("AUTHD_DATABASE_URL", "")
	}
	if url == "" {
		return errors.New("database url is empty (set AUTHD_DATABASE_URL or -database)")
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read password: %w", err)
	}
	plain := strings.TrimRight(line, "\r\n")

	hasher, err := password.FromEnv()
	if err != nil {
		return err
	}
	hash, err := hasher.Hash(plain)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return err
	}
	defer pool.Close()

	users, err := identity.NewPostgresStore(pool)
	if err != nil {
		return err
	}
	u, err := users.CreateUser(ctx, identity.CreateUserInput{
		Username:     *username,
		RoleName:     *role,
		PasswordHash: hash,
	})
	if err != nil {
		return err
	}

	fmt.Printf("created user id=%s username=%s role=%s\n", u.ID, u.Username, u.RoleName)
	return nil
}
