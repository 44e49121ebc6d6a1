package main

import (
	"fmt"
	"time"

	"github.com/gatewarden/gatewarden/rbac"
	"github.com/gatewarden/gatewarden/session"
)

// ---- Token Command ----

// tokenCommand mints a signed session token so protected routes can be
// exercised with curl. The secret must match the server's JWT_SECRET.
func tokenCommand(args []string) error {
	opts := parseArgs(args)

	identity := opts["identity"]
	if identity == "" {
		return fmt.Errorf("usage: gatewarden-cli token --identity=ID [--role=ROLE] [--secret=S] [--ttl=24h]")
	}

	secret := opts["secret"]
	if secret == "" {
		secret = getEnv("GATEWARDEN_JWT_SECRET", "dev-only-secret")
	}

	ttl := 24 * time.Hour
	if raw, ok := opts["ttl"]; ok {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid --ttl: %w", err)
		}
		ttl = d
	}

	jwt := session.NewHS256(secret, ttl)
	token, err := jwt.Issue(identity, rbac.Role(opts["role"]))
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
