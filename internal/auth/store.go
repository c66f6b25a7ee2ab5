package auth

import (
	"context"
	"time"
)

// AccountStore persists accounts together with their role and show references.
// Role and show reference changes must be atomic per call.
type AccountStore interface {
	FindByID(ctx context.Context, id string) (Account, error)
	// FindByCredentialKey matches key against the username or, case-insensitively, the e-mail.
	FindByCredentialKey(ctx context.Context, key string) (Account, error)
	FindAll(ctx context.Context, q AccountQuery) ([]Account, int, error)
	Create(ctx context.Context, acc Account) (Account, error)
	Update(ctx context.Context, id string, upd AccountUpdate, updatedAt time.Time) (Account, error)
	DeleteByID(ctx context.Context, id string) error
	// AddRole is insert-if-absent; adding a held role is not an error.
	AddRole(ctx context.Context, accountID, roleID string) error
	// RemoveRole fails with ErrRoleNotHeld or ErrLastRole.
	RemoveRole(ctx context.Context, accountID, roleID string) error
	AddShow(ctx context.Context, accountID, showID string) error
	RemoveShow(ctx context.Context, accountID, showID string) error
}

// RoleStore persists the role vocabulary.
type RoleStore interface {
	FindByName(ctx context.Context, name string) (RoleRecord, error)
	FindAll(ctx context.Context) ([]RoleRecord, error)
	CountAll(ctx context.Context) (int, error)
	// InsertMany skips records whose name already exists.
	InsertMany(ctx context.Context, roles []RoleRecord) error
}
