package policy

import (
	"fmt"
	"sort"
	"strings"
)

// Entry binds a path prefix to its access requirement.
type Entry struct {
	Prefix      string
	Requirement Requirement
}

// Registry is the frozen route-protection table. Entries are matched
// longest prefix first so the most specific rule wins; public prefixes are
// consulted before any matching and bypass it. A Registry is immutable
// after construction and safe for concurrent use.
//
// Paths that match neither a public prefix nor an entry are unprotected:
// the table is fail-open, and routes gain protection by being listed, not
// by a default deny.
type Registry struct {
	entries []Entry
	public  []string
}

// NewRegistry validates and freezes the table. Prefixes must be absolute,
// unique after normalization, and every requirement must have exactly one
// mode.
func NewRegistry(entries []Entry, public []string) (*Registry, error) {
	seen := make(map[string]bool, len(entries))
	normalized := make([]Entry, 0, len(entries))
	for _, e := range entries {
		prefix, err := normalizePrefix(e.Prefix)
		if err != nil {
			return nil, err
		}
		if seen[prefix] {
			return nil, fmt.Errorf("policy: duplicate prefix %q", prefix)
		}
		seen[prefix] = true
		if err := e.Requirement.Validate(); err != nil {
			return nil, fmt.Errorf("policy: prefix %q: %w", prefix, err)
		}
		normalized = append(normalized, Entry{Prefix: prefix, Requirement: e.Requirement})
	}

	// Longest prefix first, so /admin/settings is tried before /admin.
	sort.SliceStable(normalized, func(i, j int) bool {
		return len(normalized[i].Prefix) > len(normalized[j].Prefix)
	})

	pub := make([]string, 0, len(public))
	for _, p := range public {
		prefix, err := normalizePrefix(p)
		if err != nil {
			return nil, err
		}
		pub = append(pub, prefix)
	}

	return &Registry{entries: normalized, public: pub}, nil
}

// MustNewRegistry is NewRegistry that panics on invalid input. Intended for
// tables declared in code at startup.
func MustNewRegistry(entries []Entry, public []string) *Registry {
	r, err := NewRegistry(entries, public)
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve returns the most specific entry covering path. The boolean is
// false when no prefix matches; callers must treat such paths as
// unprotected rather than inventing a default rule here.
func (r *Registry) Resolve(path string) (*Entry, bool) {
	for i := range r.entries {
		if MatchesPrefix(path, r.entries[i].Prefix) {
			return &r.entries[i], true
		}
	}
	return nil, false
}

// IsPublic reports whether path falls under an always-public prefix.
func (r *Registry) IsPublic(path string) bool {
	for _, p := range r.public {
		if MatchesPrefix(path, p) {
			return true
		}
	}
	return false
}

// Entries returns a copy of the table, most specific first.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Public returns a copy of the public prefix list.
func (r *Registry) Public() []string {
	out := make([]string, len(r.public))
	copy(out, r.public)
	return out
}

// MatchesPrefix reports whether path equals prefix or sits underneath it as
// a whole segment, so "/admin" covers "/admin" and "/admin/users" but never
// "/admin2". The root prefix "/" matches only the root path itself.
func MatchesPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	if prefix == "/" {
		return false
	}
	return strings.HasPrefix(path, prefix+"/")
}

func normalizePrefix(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("policy: empty path prefix")
	}
	if !strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("policy: prefix %q must start with /", p)
	}
	if p != "/" {
		trimmed := strings.TrimRight(p, "/")
		if trimmed == "" {
			return "", fmt.Errorf("policy: prefix %q normalizes to empty", p)
		}
		p = trimmed
	}
	return p, nil
}
