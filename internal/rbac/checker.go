package rbac

import (
	"sort"
	"strings"
)

// Checker answers permission questions against a role policy. A pattern of "*" grants
// everything; a trailing "*" grants a prefix, so "run:*" covers every run permission.
type Checker struct {
	policy map[string][]string
}

// NewChecker uses RolePermissions when policy is nil.
func NewChecker(policy map[string][]string) *Checker {
	if policy == nil {
		policy = RolePermissions
	}
	return &Checker{policy: policy}
}

func (c *Checker) Has(role, perm string) bool {
	for _, pat := range c.policy[role] {
		if pat == "*" || pat == perm {
			return true
		}
		if prefix, ok := strings.CutSuffix(pat, "*"); ok && strings.HasPrefix(perm, prefix) {
			return true
		}
	}
	return false
}

func (c *Checker) Any(role string, perms ...string) bool {
	for _, p := range perms {
		if c.Has(role, p) {
			return true
		}
	}
	return false
}

func (c *Checker) All(role string, perms ...string) bool {
	for _, p := range perms {
		if !c.Has(role, p) {
			return false
		}
	}
	return len(perms) > 0
}

// Permissions expands the role's patterns into the concrete permissions the API checks,
// sorted. Clients use it to decide which screens to show.
func (c *Checker) Permissions(role string) []string {
	out := []string{}
	for _, p := range AllPermissions {
		if c.Has(role, p) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
