package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/gatewarden/gatewarden/rbac"
	"github.com/gatewarden/gatewarden/session"
)

// ---- Check Command ----

func (c *CLI) checkCommand(args []string) error {
	if len(args) < 1 || strings.HasPrefix(args[0], "--") {
		return fmt.Errorf("usage: gatewarden-cli check <path> [--identity=ID] [--role=ROLE] [--file=policy.yaml] [--server]")
	}
	path := args[0]
	opts := parseArgs(args[1:])

	if _, remote := opts["server"]; remote {
		return c.checkRemote(path, opts)
	}
	return checkLocal(path, opts)
}

func (c *CLI) checkRemote(path string, opts map[string]string) error {
	query := "?path=" + url.QueryEscape(path)
	for _, k := range []string{"identity", "role"} {
		if v, ok := opts[k]; ok {
			query += "&" + k + "=" + url.QueryEscape(v)
		}
	}
	resp, err := c.get("/api/authz/check" + query)
	if err != nil {
		return err
	}
	return prettyPrint(resp)
}

// checkLocal evaluates the path against a policy document on disk, using the
// same wiring as the server. Omitting --identity and --role checks the
// anonymous caller.
func checkLocal(path string, opts map[string]string) error {
	g, _, err := loadGuard(policyFile(opts))
	if err != nil {
		return err
	}

	var sess *session.Session
	if opts["identity"] != "" || opts["role"] != "" {
		identity := opts["identity"]
		if identity == "" {
			identity = "simulated"
		}
		sess = &session.Session{Identity: identity, Role: rbac.Role(opts["role"])}
	}

	decision, entry := g.Check(context.Background(), path, sess)

	fmt.Printf("path:     %s\n", path)
	switch {
	case g.Registry().IsPublic(path):
		fmt.Println("matched:  (public prefix)")
	case entry != nil:
		fmt.Printf("matched:  %s (%s: %s)\n", entry.Prefix, entry.Requirement.Mode(), entry.Requirement)
	default:
		fmt.Println("matched:  (none, unprotected by default)")
	}
	if sess != nil {
		fmt.Printf("session:  %s role=%s\n", sess.Identity, sess.Role)
	} else {
		fmt.Println("session:  (anonymous)")
	}
	fmt.Printf("decision: %s\n", decision)
	return nil
}
