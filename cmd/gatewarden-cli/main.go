package main

import (
	"fmt"
	"net/http"
	"os"
	"time"
)

// Version is set at build time.
var Version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	cli := &CLI{
		BaseURL: getEnv("GATEWARDEN_URL", "http://localhost:8080"),
		Token:   os.Getenv("GATEWARDEN_TOKEN"),
		Client:  &http.Client{Timeout: 30 * time.Second},
	}

	var err error
	switch cmd {
	case "check":
		err = cli.checkCommand(args)
	case "validate":
		err = validateCommand(args)
	case "routes":
		err = routesCommand(args)
	case "token":
		err = tokenCommand(args)
	case "audit":
		err = cli.auditCommand(args)
	case "health":
		err = cli.healthCommand(args)
	case "whoami":
		err = cli.whoamiCommand(args)
	case "init":
		err = initCommand(args)
	case "version":
		fmt.Printf("gatewarden-cli %s\n", Version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`gatewarden-cli - route policy tooling for gatewarden

Usage:
  gatewarden-cli <command> [options]

Environment Variables:
  GATEWARDEN_URL         Base URL of a running server (default: http://localhost:8080)
  GATEWARDEN_TOKEN       Session token sent with server commands
  GATEWARDEN_JWT_SECRET  HMAC secret for the token command

Commands:
  check <path>   Evaluate a path against a policy document
    --identity=ID --role=ROLE   simulate a session (omit both for anonymous)
    --file=policy.yaml          document to load (default: policy.yaml)
    --server                    ask the running server instead of a local file
  validate       Validate a policy document
    --file=policy.yaml
  routes         Print the resolved route table, most specific first
    --file=policy.yaml
  token          Mint a signed session token for local testing
    --identity=ID [--role=ROLE] [--secret=S] [--ttl=24h]
  audit recent   Query recorded decisions from a running server
    [--limit=N]
  health         Fetch the running server's health report
  whoami         Show the session the server resolves for GATEWARDEN_TOKEN
  init [path]    Write a starter policy.yaml
  version        Print the CLI version
`)
}
