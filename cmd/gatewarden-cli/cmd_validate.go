package main

import (
	"fmt"

	"github.com/gatewarden/gatewarden/engine"
	"github.com/gatewarden/gatewarden/guard"
	"github.com/gatewarden/gatewarden/policy"
	"github.com/gatewarden/gatewarden/rbac"
	"github.com/gatewarden/gatewarden/session"
)

// ---- Validate & Routes Commands ----

func validateCommand(args []string) error {
	opts := parseArgs(args)
	file := policyFile(opts)

	g, doc, err := loadGuard(file)
	if err != nil {
		return err
	}

	fmt.Printf("%s: OK\n", file)
	fmt.Printf("routes:       %d\n", len(g.Registry().Entries()))
	fmt.Printf("public:       %d\n", len(g.Registry().Public()))
	fmt.Printf("sign_in_url:  %s\n", doc.SignInURL)
	fmt.Printf("denied_url:   %s\n", doc.DeniedURL)
	fmt.Printf("missing_role: %s\n", doc.MissingRole)
	return nil
}

func routesCommand(args []string) error {
	opts := parseArgs(args)

	g, _, err := loadGuard(policyFile(opts))
	if err != nil {
		return err
	}

	fmt.Printf("%-30s %-15s %s\n", "PREFIX", "MODE", "REQUIRES")
	for _, entry := range g.Registry().Entries() {
		fmt.Printf("%-30s %-15s %s\n", entry.Prefix, entry.Requirement.Mode(), entry.Requirement)
	}
	for _, prefix := range g.Registry().Public() {
		fmt.Printf("%-30s %-15s %s\n", prefix, "public", "-")
	}
	return nil
}

// policyFile returns the --file option or the default document name.
func policyFile(opts map[string]string) string {
	if f := opts["file"]; f != "" {
		return f
	}
	return "policy.yaml"
}

// loadGuard builds an offline guard from a policy document, mirroring the
// reference server's wiring without the HTTP parts.
func loadGuard(file string) (*guard.Guard, *policy.File, error) {
	doc, err := policy.LoadFile(file)
	if err != nil {
		return nil, nil, err
	}
	hierarchy := rbac.DefaultHierarchy()
	registry, err := doc.Registry(hierarchy)
	if err != nil {
		return nil, nil, err
	}
	missing, err := engine.ParseMissingRoleMode(doc.MissingRole)
	if err != nil {
		return nil, nil, err
	}

	g, err := guard.New(guard.Options{
		Registry: registry,
		Evaluator: engine.New(hierarchy, engine.Fallback{
			MissingRole: missing,
			SignInURL:   doc.SignInURL,
			DeniedURL:   doc.DeniedURL,
		}),
		Resolver:   session.StaticResolver{},
		Classifier: guard.NewClassifier(doc.APIPrefixes...),
	})
	if err != nil {
		return nil, nil, err
	}
	return g, doc, nil
}
