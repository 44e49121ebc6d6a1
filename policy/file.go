package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gatewarden/gatewarden/rbac"
)

// File is the on-disk policy document. A minimal file looks like:
//
//	routes:
//	  /dashboard: standard_user        # shorthand for min_role
//	  /admin:
//	    role: admin                    # exact match, admins only
//	  /api/reports:
//	    any_of: [admin, power_user]
//	  /account:
//	    authenticated: true
//	public:
//	  - /
//	  - /signin
//	sign_in_url: /signin
//	denied_url: /denied
//	missing_role: deny
//	api_prefixes:
//	  - /api
type File struct {
	Routes      map[string]RouteRule `yaml:"routes"`
	Public      []string             `yaml:"public"`
	SignInURL   string               `yaml:"sign_in_url"`
	DeniedURL   string               `yaml:"denied_url"`
	MissingRole string               `yaml:"missing_role"`
	APIPrefixes []string             `yaml:"api_prefixes"`
}

// RouteRule is one route entry in a policy document. It accepts either a
// bare scalar, which is shorthand for min_role, or a mapping that sets
// exactly one of role, any_of, min_role or authenticated.
type RouteRule struct {
	Role          string   `yaml:"role"`
	AnyOf         []string `yaml:"any_of"`
	MinRole       string   `yaml:"min_role"`
	Authenticated bool     `yaml:"authenticated"`
}

// UnmarshalYAML handles the scalar shorthand.
func (rr *RouteRule) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		rr.MinRole = value.Value
		return nil
	}
	type plainRouteRule RouteRule
	var plain plainRouteRule
	if err := value.Decode(&plain); err != nil {
		return err
	}
	*rr = RouteRule(plain)
	return nil
}

// Requirement converts the rule into a validated Requirement. A rule that
// sets no mode, or more than one, is rejected.
func (rr RouteRule) Requirement() (Requirement, error) {
	var req Requirement
	modes := 0
	if rr.Role != "" {
		req = Exact(rbac.Role(rr.Role))
		modes++
	}
	if len(rr.AnyOf) > 0 {
		roles := make([]rbac.Role, len(rr.AnyOf))
		for i, r := range rr.AnyOf {
			roles[i] = rbac.Role(r)
		}
		req = AnyOf(roles...)
		modes++
	}
	if rr.MinRole != "" {
		req = Minimum(rbac.Role(rr.MinRole))
		modes++
	}
	if rr.Authenticated {
		req = Authenticated()
		modes++
	}
	if modes == 0 {
		return Requirement{}, ErrNoMode
	}
	if modes > 1 {
		return Requirement{}, fmt.Errorf("policy: route rule sets %d modes, want exactly one", modes)
	}
	return req, nil
}

// LoadFile reads and parses a policy document from path.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a policy document, applying defaults for the redirect
// targets and the missing-role fallback.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("policy: parse file: %w", err)
	}
	if f.SignInURL == "" {
		f.SignInURL = "/signin"
	}
	if f.DeniedURL == "" {
		f.DeniedURL = "/denied"
	}
	if f.MissingRole == "" {
		f.MissingRole = "deny"
	}
	if f.MissingRole != "deny" && f.MissingRole != "lowest" {
		return nil, fmt.Errorf("policy: unknown missing_role %q (supported: deny, lowest)", f.MissingRole)
	}
	return &f, nil
}

// Registry builds the frozen table from the document, checking every
// referenced role against h.
func (f *File) Registry(h *rbac.Hierarchy) (*Registry, error) {
	entries := make([]Entry, 0, len(f.Routes))
	for prefix, rule := range f.Routes {
		req, err := rule.Requirement()
		if err != nil {
			return nil, fmt.Errorf("policy: route %q: %w", prefix, err)
		}
		if err := req.ValidateRoles(h); err != nil {
			return nil, fmt.Errorf("policy: route %q: %w", prefix, err)
		}
		entries = append(entries, Entry{Prefix: prefix, Requirement: req})
	}
	return NewRegistry(entries, f.Public)
}
