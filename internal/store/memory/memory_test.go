package memory

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tvshelf.org/internal/auth"
	"tvshelf.org/internal/catalog"
	"tvshelf.org/internal/ids"
)

func seeded(t *testing.T) (*Store, map[auth.Role]string) {
	t.Helper()
	store := New()
	_, err := auth.EnsureRoles(context.Background(), store.Roles())
	require.NoError(t, err)
	recs, err := store.Roles().FindAll(context.Background())
	require.NoError(t, err)
	byRole := make(map[auth.Role]string, len(recs))
	for _, rec := range recs {
		role, err := auth.ParseRole(rec.Name)
		require.NoError(t, err)
		byRole[role] = rec.ID
	}
	return store, byRole
}

func newAccount(t *testing.T, store *Store, username string, roleIDs ...string) auth.Account {
	t.Helper()
	acc, err := store.Accounts().Create(context.Background(), auth.Account{
		ID:       ids.New(),
		Username: username,
		Email:    username + "@example.com",
		RoleIDs:  roleIDs,
	})
	require.NoError(t, err)
	return acc
}

func TestEnsureRolesIsIdempotent(t *testing.T) {
	store, roles := seeded(t)
	assert.Len(t, roles, len(auth.Vocabulary()))

	added, err := auth.EnsureRoles(context.Background(), store.Roles())
	require.NoError(t, err)
	assert.Empty(t, added)
	count, err := store.Roles().CountAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(auth.Vocabulary()), count)
}

func TestCreateRejectsDuplicates(t *testing.T) {
	store, roles := seeded(t)
	newAccount(t, store, "alice", roles[auth.RoleNewUser])

	_, err := store.Accounts().Create(context.Background(), auth.Account{ID: ids.New(), Username: "alice", Email: "other@example.com"})
	assert.ErrorIs(t, err, auth.ErrDuplicateAccount)
	_, err = store.Accounts().Create(context.Background(), auth.Account{ID: ids.New(), Username: "bob", Email: "ALICE@example.com"})
	assert.ErrorIs(t, err, auth.ErrDuplicateAccount)
	_, err = store.Accounts().Create(context.Background(), auth.Account{ID: ids.New(), Username: "carol", Email: "c@example.com", RoleIDs: []string{"missing"}})
	assert.ErrorIs(t, err, auth.ErrRoleNotFound)
}

func TestFindByCredentialKey(t *testing.T) {
	store, roles := seeded(t)
	acc := newAccount(t, store, "alice", roles[auth.RoleNewUser])

	got, err := store.Accounts().FindByCredentialKey(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)
	got, err = store.Accounts().FindByCredentialKey(context.Background(), "Alice@Example.com")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)
	_, err = store.Accounts().FindByCredentialKey(context.Background(), "nobody")
	assert.ErrorIs(t, err, auth.ErrAccountNotFound)
}

func TestRoleMutations(t *testing.T) {
	store, roles := seeded(t)
	acc := newAccount(t, store, "alice", roles[auth.RoleNewUser])
	ctx := context.Background()

	require.NoError(t, store.Accounts().AddRole(ctx, acc.ID, roles[auth.RoleAdmin]))
	require.NoError(t, store.Accounts().AddRole(ctx, acc.ID, roles[auth.RoleAdmin]))
	got, err := store.Accounts().FindByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Len(t, got.RoleIDs, 2)

	assert.ErrorIs(t, store.Accounts().RemoveRole(ctx, acc.ID, roles[auth.RoleClient]), auth.ErrRoleNotHeld)
	require.NoError(t, store.Accounts().RemoveRole(ctx, acc.ID, roles[auth.RoleAdmin]))
	assert.ErrorIs(t, store.Accounts().RemoveRole(ctx, acc.ID, roles[auth.RoleNewUser]), auth.ErrLastRole)
	assert.ErrorIs(t, store.Accounts().AddRole(ctx, ids.New(), roles[auth.RoleAdmin]), auth.ErrAccountNotFound)
	assert.ErrorIs(t, store.Accounts().AddRole(ctx, acc.ID, "missing"), auth.ErrRoleNotFound)
}

func TestConcurrentRoleAddsAreNotLost(t *testing.T) {
	store, roles := seeded(t)
	acc := newAccount(t, store, "alice", roles[auth.RoleNewUser])
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, role := range []auth.Role{auth.RoleClient, auth.RoleProvider, auth.RoleAdmin, auth.RoleSuperAdmin} {
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func(roleID string) {
				defer wg.Done()
				assert.NoError(t, store.Accounts().AddRole(ctx, acc.ID, roleID))
			}(roles[role])
		}
	}
	wg.Wait()

	got, err := store.Accounts().FindByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		roles[auth.RoleNewUser], roles[auth.RoleClient], roles[auth.RoleProvider],
		roles[auth.RoleAdmin], roles[auth.RoleSuperAdmin],
	}, got.RoleIDs)
}

func TestFindAllExcludesSoleRole(t *testing.T) {
	store, roles := seeded(t)
	newAccount(t, store, "root", roles[auth.RoleSuperAdmin])
	newAccount(t, store, "both", roles[auth.RoleSuperAdmin], roles[auth.RoleAdmin])
	newAccount(t, store, "alice", roles[auth.RoleNewUser])

	all, total, err := store.Accounts().FindAll(context.Background(), auth.AccountQuery{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, all, 3)

	visible, total, err := store.Accounts().FindAll(context.Background(), auth.AccountQuery{Limit: 10, ExcludeSoleRoleID: roles[auth.RoleSuperAdmin]})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, acc := range visible {
		assert.NotEqual(t, "root", acc.Username)
	}

	page, total, err := store.Accounts().FindAll(context.Background(), auth.AccountQuery{Skip: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, page, 1)
}

func TestReturnedAccountsAreCopies(t *testing.T) {
	store, roles := seeded(t)
	acc := newAccount(t, store, "alice", roles[auth.RoleNewUser])

	acc.RoleIDs[0] = "tampered"
	got, err := store.Accounts().FindByID(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, roles[auth.RoleNewUser], got.RoleIDs[0])
}

func TestUpdateChecksUniqueness(t *testing.T) {
	store, roles := seeded(t)
	alice := newAccount(t, store, "alice", roles[auth.RoleNewUser])
	newAccount(t, store, "bob", roles[auth.RoleNewUser])

	taken := "bob"
	_, err := store.Accounts().Update(context.Background(), alice.ID, auth.AccountUpdate{Username: &taken}, time.Now())
	assert.ErrorIs(t, err, auth.ErrDuplicateAccount)

	same := "alice"
	updated, err := store.Accounts().Update(context.Background(), alice.ID, auth.AccountUpdate{Username: &same}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "alice", updated.Username)
}

func TestUsernameCannotShadowAnotherEmail(t *testing.T) {
	store, roles := seeded(t)
	alice := newAccount(t, store, "alice", roles[auth.RoleNewUser])
	bob := newAccount(t, store, "bob", roles[auth.RoleNewUser])
	ctx := context.Background()

	shadow := strings.ToUpper(alice.Email)
	_, err := store.Accounts().Update(ctx, bob.ID, auth.AccountUpdate{Username: &shadow}, time.Now())
	assert.ErrorIs(t, err, auth.ErrDuplicateAccount)

	byName := "alice"
	_, err = store.Accounts().Update(ctx, bob.ID, auth.AccountUpdate{Email: &byName}, time.Now())
	assert.ErrorIs(t, err, auth.ErrDuplicateAccount)

	got, err := store.Accounts().FindByCredentialKey(ctx, alice.Email)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)
}

func TestShowLinksAreWeakReferences(t *testing.T) {
	store, roles := seeded(t)
	acc := newAccount(t, store, "alice", roles[auth.RoleNewUser])
	ctx := context.Background()

	show, err := store.Shows().Create(ctx, catalog.Show{ID: ids.New(), ExternalID: 1399, Name: "GoT", OriginalName: "Game of Thrones"})
	require.NoError(t, err)
	require.NoError(t, store.Accounts().AddShow(ctx, acc.ID, show.ID))
	assert.ErrorIs(t, store.Accounts().AddShow(ctx, acc.ID, show.ID), auth.ErrAlreadyLinked)

	require.NoError(t, store.Shows().DeleteByID(ctx, show.ID))
	got, err := store.Accounts().FindByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{show.ID}, got.ShowIDs)

	shows, err := store.Shows().FindMany(ctx, got.ShowIDs)
	require.NoError(t, err)
	assert.Empty(t, shows)

	require.NoError(t, store.Accounts().RemoveShow(ctx, acc.ID, show.ID))
	assert.ErrorIs(t, store.Accounts().RemoveShow(ctx, acc.ID, show.ID), auth.ErrNotLinked)
}

func TestShowExternalIDIsUnique(t *testing.T) {
	store := New()
	ctx := context.Background()
	first, err := store.Shows().Create(ctx, catalog.Show{ID: ids.New(), ExternalID: 1, Name: "a", OriginalName: "a"})
	require.NoError(t, err)
	second, err := store.Shows().Create(ctx, catalog.Show{ID: ids.New(), ExternalID: 2, Name: "b", OriginalName: "b"})
	require.NoError(t, err)

	_, err = store.Shows().Create(ctx, catalog.Show{ID: ids.New(), ExternalID: 1, Name: "c", OriginalName: "c"})
	assert.ErrorIs(t, err, catalog.ErrConflict)

	clash := first.ExternalID
	_, err = store.Shows().Update(ctx, second.ID, catalog.ShowUpdate{ExternalID: &clash}, time.Now())
	assert.ErrorIs(t, err, catalog.ErrConflict)

	got, err := store.Shows().FindByExternalID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
}
