package auth

import (
	"context"
	"fmt"
	"time"

	"tvshelf.org/internal/ids"
)

// EnsureRoles seeds every vocabulary role missing from store and returns the roles it added.
func EnsureRoles(ctx context.Context, store RoleStore) ([]Role, error) {
	count, err := store.CountAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("count roles: %w", err)
	}
	have := make(map[Role]struct{}, count)
	if count > 0 {
		existing, err := store.FindAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("list roles: %w", err)
		}
		for _, rec := range existing {
			if role, err := ParseRole(rec.Name); err == nil {
				have[role] = struct{}{}
			}
		}
	}

	now := time.Now().UTC()
	var missing []RoleRecord
	var added []Role
	for _, role := range vocabulary {
		if _, ok := have[role]; ok {
			continue
		}
		missing = append(missing, RoleRecord{ID: ids.New(), Name: role.StorageName(), CreatedAt: now})
		added = append(added, role)
	}
	if len(missing) == 0 {
		return nil, nil
	}
	if err := store.InsertMany(ctx, missing); err != nil {
		return nil, fmt.Errorf("seed roles: %w", err)
	}
	return added, nil
}
