package main

import (
	"fmt"
	"os"
)

// ---- Init Command ----

const starterPolicy = `# gatewarden route policy
#
# Routes map path prefixes to an access requirement. The longest matching
# prefix wins; paths outside this table are unprotected.
routes:
  /dashboard: standard_user        # shorthand for min_role
  /account:
    authenticated: true
  /admin:
    role: admin
  /admin/reports:
    any_of: [admin, power_user]
  /api/reports:
    any_of: [admin, power_user]
  /api/audit:
    role: admin

# Prefixes that bypass evaluation entirely.
public:
  - /
  - /signin
  - /signout
  - /auth/error
  - /auth/callback
  - /healthz
  - /ready

sign_in_url: /signin
denied_url: /denied

# How authenticated sessions without a role are treated: deny or lowest.
missing_role: deny

# Paths under these prefixes get JSON denials instead of redirects.
api_prefixes:
  - /api
`

func initCommand(args []string) error {
	target := "policy.yaml"
	if len(args) > 0 {
		target = args[0]
	}

	if _, err := os.Stat(target); err == nil {
		return fmt.Errorf("%s already exists, refusing to overwrite", target)
	}

	if err := os.WriteFile(target, []byte(starterPolicy), 0644); err != nil {
		return err
	}
	fmt.Printf("Wrote starter policy to %s\n", target)
	return nil
}
