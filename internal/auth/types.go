package auth

import "time"

// Account is a registered user. PasswordHash never leaves the service boundary.
type Account struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	RoleIDs      []string
	ShowIDs      []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RoleRecord is the persisted form of a role.
type RoleRecord struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// AccountUpdate is a sparse update; nil fields are left untouched.
type AccountUpdate struct {
	Username     *string
	Email        *string
	PasswordHash *string
}

// IsEmpty reports whether the update changes nothing.
func (u AccountUpdate) IsEmpty() bool {
	return u.Username == nil && u.Email == nil && u.PasswordHash == nil
}

// AccountQuery selects a page of accounts. When ExcludeSoleRoleID is set, accounts
// whose only role is that role are left out.
type AccountQuery struct {
	Skip              int
	Limit             int
	ExcludeSoleRoleID string
}

// Identity is an account with its role references expanded.
type Identity struct {
	Account Account
	Roles   []Role
}

// ID returns the account identifier.
func (i Identity) ID() string {
	return i.Account.ID
}

// HasRole reports whether the identity holds role exactly.
func (i Identity) HasRole(role Role) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Rank is the rank of the highest role held, or -1 when no role is held.
func (i Identity) Rank() int {
	return HighestRank(i.Roles)
}

// Effective returns the highest-ranked role held.
func (i Identity) Effective() (Role, bool) {
	return EffectiveRole(i.Roles)
}

// Authorities lists the held roles in ROLE_<NAME> form.
func (i Identity) Authorities() []string {
	out := make([]string, 0, len(i.Roles))
	for _, r := range i.Roles {
		out = append(out, r.Authority())
	}
	return out
}

// SoleRole reports whether role is the only role held.
func (i Identity) SoleRole(role Role) bool {
	return len(i.Roles) == 1 && i.Roles[0] == role
}
