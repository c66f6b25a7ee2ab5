package auth

import (
	"fmt"
	"strings"
)

// Role is a canonical, upper-case role name.
type Role string

const (
	RoleNewUser    Role = "NEW_USER"
	RoleClient     Role = "CLIENT"
	RoleProvider   Role = "PROVIDER"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER-ADMIN"
)

const authorityPrefix = "ROLE_"

// vocabulary is ordered by ascending rank; equal ranks keep a fixed order.
var vocabulary = []Role{RoleNewUser, RoleClient, RoleProvider, RoleAdmin, RoleSuperAdmin}

var ranks = map[Role]int{
	RoleNewUser:    0,
	RoleClient:     2,
	RoleProvider:   2,
	RoleAdmin:      3,
	RoleSuperAdmin: 4,
}

var lookupKeys = func() map[string]Role {
	m := make(map[string]Role, len(vocabulary))
	for _, r := range vocabulary {
		m[roleKey(string(r))] = r
	}
	return m
}()

// Vocabulary returns every known role in ascending rank order.
func Vocabulary() []Role {
	out := make([]Role, len(vocabulary))
	copy(out, vocabulary)
	return out
}

// ParseRole canonicalizes name. Matching ignores case, surrounding space, a ROLE_
// prefix and the difference between '_' and '-'.
func ParseRole(name string) (Role, error) {
	role, ok := lookupKeys[roleKey(name)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrRoleNotFound, strings.TrimSpace(name))
	}
	return role, nil
}

func roleKey(name string) string {
	key := strings.ToUpper(strings.TrimSpace(name))
	key = strings.TrimPrefix(key, authorityPrefix)
	return strings.ReplaceAll(key, "_", "-")
}

// Valid reports whether r is part of the vocabulary.
func (r Role) Valid() bool {
	_, ok := ranks[r]
	return ok
}

// Rank returns the numeric privilege of r, or -1 for unknown roles.
func (r Role) Rank() int {
	rank, ok := ranks[r]
	if !ok {
		return -1
	}
	return rank
}

// Authority renders r as ROLE_<NAME>.
func (r Role) Authority() string {
	return authorityPrefix + string(r)
}

// StorageName is the persisted, lower-case name (e.g. "super-admin", "new_user").
func (r Role) StorageName() string {
	return strings.ToLower(string(r))
}

func (r Role) String() string {
	return string(r)
}

// Satisfies reports whether the held roles meet required. A role satisfies itself and
// every role of strictly lower rank; distinct roles of equal rank do not satisfy each other.
func Satisfies(held []Role, required Role) bool {
	if !required.Valid() {
		return false
	}
	for _, r := range held {
		if r == required || r.Rank() > required.Rank() {
			return true
		}
	}
	return false
}

// HighestRank returns the highest rank among roles, or -1 when none is valid.
func HighestRank(roles []Role) int {
	best := -1
	for _, r := range roles {
		if rank := r.Rank(); rank > best {
			best = rank
		}
	}
	return best
}

// EffectiveRole picks the highest-ranked role held. Ties resolve to the role listed
// later in the vocabulary, so the result does not depend on input order.
func EffectiveRole(roles []Role) (Role, bool) {
	held := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		held[r] = struct{}{}
	}
	for i := len(vocabulary) - 1; i >= 0; i-- {
		if _, ok := held[vocabulary[i]]; ok {
			return vocabulary[i], true
		}
	}
	return "", false
}

// normalizeRoles drops unknown roles and duplicates and orders the rest by vocabulary.
func normalizeRoles(roles []Role) []Role {
	held := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		held[r] = struct{}{}
	}
	out := make([]Role, 0, len(held))
	for _, r := range vocabulary {
		if _, ok := held[r]; ok {
			out = append(out, r)
		}
	}
	return out
}

// parseRoleNames canonicalizes a list of user-supplied names, failing on the first unknown one.
func parseRoleNames(names []string) ([]Role, error) {
	roles := make([]Role, 0, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		role, err := ParseRole(name)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return normalizeRoles(roles), nil
}
