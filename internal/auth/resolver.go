package auth

import (
	"context"
	"fmt"
	"strings"
)

// Resolver turns a token subject into an Identity. Role reference data is read on every
// call; nothing is cached across requests.
type Resolver struct {
	accounts AccountStore
	roles    RoleStore
}

// NewResolver constructs a Resolver.
func NewResolver(accounts AccountStore, roles RoleStore) *Resolver {
	return &Resolver{accounts: accounts, roles: roles}
}

// Resolve loads the account for subjectID and expands its roles. An account without
// roles, or holding a role outside the vocabulary, is treated as not found.
func (r *Resolver) Resolve(ctx context.Context, subjectID string) (Identity, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return Identity{}, fmt.Errorf("%w: empty subject", ErrAccountNotFound)
	}
	acc, err := r.accounts.FindByID(ctx, subjectID)
	if err != nil {
		return Identity{}, err
	}
	index, err := r.roleIndex(ctx)
	if err != nil {
		return Identity{}, err
	}
	return expand(acc, index)
}

// ResolveAccounts expands a batch of already loaded accounts with a single role read.
// Accounts whose roles cannot be expanded are left out and their ids returned as skipped.
func (r *Resolver) ResolveAccounts(ctx context.Context, accounts []Account) (resolved []Identity, skipped []string, err error) {
	index, err := r.roleIndex(ctx)
	if err != nil {
		return nil, nil, err
	}
	resolved = make([]Identity, 0, len(accounts))
	for _, acc := range accounts {
		identity, err := expand(acc, index)
		if err != nil {
			skipped = append(skipped, acc.ID)
			continue
		}
		resolved = append(resolved, identity)
	}
	return resolved, skipped, nil
}

func (r *Resolver) roleIndex(ctx context.Context) (map[string]Role, error) {
	records, err := r.roles.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[string]Role, len(records))
	for _, rec := range records {
		role, err := ParseRole(rec.Name)
		if err != nil {
			continue
		}
		index[rec.ID] = role
	}
	return index, nil
}

func expand(acc Account, index map[string]Role) (Identity, error) {
	if len(acc.RoleIDs) == 0 {
		return Identity{}, fmt.Errorf("%w: account %s holds no roles", ErrAccountNotFound, acc.ID)
	}
	roles := make([]Role, 0, len(acc.RoleIDs))
	for _, id := range acc.RoleIDs {
		role, ok := index[id]
		if !ok {
			return Identity{}, fmt.Errorf("%w: account %s references unknown role %s", ErrAccountNotFound, acc.ID, id)
		}
		roles = append(roles, role)
	}
	return Identity{Account: acc, Roles: normalizeRoles(roles)}, nil
}
