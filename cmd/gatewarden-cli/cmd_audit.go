package main

import (
	"fmt"
)

// ---- Audit Commands ----

func (c *CLI) auditCommand(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: gatewarden-cli audit recent [--limit=N]")
	}

	sub := args[0]
	args = args[1:]

	switch sub {
	case "recent":
		return c.recentAudit(args)
	default:
		return fmt.Errorf("unknown audit subcommand: %s", sub)
	}
}

func (c *CLI) recentAudit(args []string) error {
	opts := parseArgs(args)
	query := buildQuery(opts, "limit")

	resp, err := c.get("/api/audit/recent" + query)
	if err != nil {
		return err
	}
	return prettyPrint(resp)
}
