package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tvshelf.org/internal/catalog"
	"tvshelf.org/internal/ids"
	"tvshelf.org/internal/paging"
)

// AccountService runs guarded reads and mutations on accounts. Each entry point asks
// the Guard before it touches a store.
type AccountService struct {
	accounts AccountStore
	roles    RoleStore
	shows    catalog.Store
	resolver *Resolver
	guard    *Guard
	hash     PasswordHasher
	now      func() time.Time
}

// AccountOption configures an AccountService.
type AccountOption func(*AccountService)

// WithAccountHasher replaces the default bcrypt hasher.
func WithAccountHasher(fn PasswordHasher) AccountOption {
	return func(s *AccountService) {
		if fn != nil {
			s.hash = fn
		}
	}
}

// WithAccountClock overrides the time source.
func WithAccountClock(fn func() time.Time) AccountOption {
	return func(s *AccountService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewAccountService wires the account operations.
func NewAccountService(accounts AccountStore, roles RoleStore, shows catalog.Store, guard *Guard, opts ...AccountOption) *AccountService {
	svc := &AccountService{
		accounts: accounts,
		roles:    roles,
		shows:    shows,
		resolver: NewResolver(accounts, roles),
		guard:    guard,
		hash:     HashPassword,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// ProfilePatch is a sparse profile update; empty fields are ignored.
type ProfilePatch struct {
	Username string
	Email    string
	Password string
}

// AccountPage is one page of accounts visible to the caller. Skipped holds ids on this
// page whose roles could not be expanded; they are not counted in Total.
type AccountPage struct {
	Items   []Identity
	Total   int
	Page    paging.Page
	Skipped []string
}

// Get returns one account.
func (s *AccountService) Get(ctx context.Context, id string) (Identity, error) {
	if err := s.guard.Authorize(ctx, OpReadAccount, id); err != nil {
		return Identity{}, err
	}
	return s.resolve(ctx, id)
}

// List returns a page of accounts. Callers other than SUPER-ADMIN never see accounts
// whose only role is SUPER-ADMIN.
func (s *AccountService) List(ctx context.Context, page paging.Page) (AccountPage, error) {
	if err := s.guard.Authorize(ctx, OpListAccounts, ""); err != nil {
		return AccountPage{}, err
	}
	viewer, _ := PrincipalFromContext(ctx)
	page = page.Normalize()

	q := AccountQuery{Skip: page.Offset(), Limit: page.Limit()}
	if s.guard.HidesSuperAdmins(viewer) {
		rec, err := s.roles.FindByName(ctx, RoleSuperAdmin.StorageName())
		switch {
		case err == nil:
			q.ExcludeSoleRoleID = rec.ID
		case !errors.Is(err, ErrRoleNotFound):
			return AccountPage{}, err
		}
	}

	accounts, total, err := s.accounts.FindAll(ctx, q)
	if err != nil {
		return AccountPage{}, err
	}
	identities, skipped, err := s.resolver.ResolveAccounts(ctx, accounts)
	if err != nil {
		return AccountPage{}, err
	}
	visible := s.guard.FilterAccounts(viewer, identities)
	total -= len(accounts) - len(visible)
	return AccountPage{
		Items:   visible,
		Total:   total,
		Page:    page,
		Skipped: skipped,
	}, nil
}

// Update applies the non-empty fields of patch.
func (s *AccountService) Update(ctx context.Context, id string, patch ProfilePatch) (Identity, error) {
	if err := s.guard.Authorize(ctx, OpUpdateAccount, id); err != nil {
		return Identity{}, err
	}
	if err := checkID(id); err != nil {
		return Identity{}, err
	}
	if err := s.reachable(ctx, id); err != nil {
		return Identity{}, err
	}

	var upd AccountUpdate
	if username := strings.TrimSpace(patch.Username); username != "" {
		upd.Username = &username
	}
	if email := normalizeEmail(patch.Email); email != "" {
		if err := validateEmail(email); err != nil {
			return Identity{}, err
		}
		upd.Email = &email
	}
	if patch.Password != "" {
		hash, err := s.hash(patch.Password)
		if err != nil {
			return Identity{}, err
		}
		upd.PasswordHash = &hash
	}
	if upd.IsEmpty() {
		return s.resolve(ctx, id)
	}
	for _, key := range []*string{upd.Username, upd.Email} {
		if key == nil {
			continue
		}
		if err := s.credentialKeyFree(ctx, id, *key); err != nil {
			return Identity{}, err
		}
	}
	if _, err := s.accounts.Update(ctx, id, upd, s.now().UTC()); err != nil {
		return Identity{}, err
	}
	return s.resolve(ctx, id)
}

// Delete removes an account. Only the privileged tier may delete, including oneself.
func (s *AccountService) Delete(ctx context.Context, id string) error {
	if err := s.guard.Authorize(ctx, OpDeleteAccount, id); err != nil {
		return err
	}
	if err := checkID(id); err != nil {
		return err
	}
	if err := s.reachable(ctx, id); err != nil {
		return err
	}
	return s.accounts.DeleteByID(ctx, id)
}

// AssignRole grants roleName to the account. Granting a held role is a no-op.
func (s *AccountService) AssignRole(ctx context.Context, id, roleName string) (Identity, error) {
	if err := s.guard.Authorize(ctx, OpAssignRole, id); err != nil {
		return Identity{}, err
	}
	role, rec, err := s.grantable(ctx, roleName)
	if err != nil {
		return Identity{}, err
	}
	if err := checkID(id); err != nil {
		return Identity{}, err
	}
	if err := s.reachable(ctx, id); err != nil {
		return Identity{}, err
	}
	if err := s.accounts.AddRole(ctx, id, rec.ID); err != nil {
		return Identity{}, fmt.Errorf("assign %s: %w", role, err)
	}
	return s.resolve(ctx, id)
}

// RevokeRole removes roleName from the account. The last remaining role cannot be revoked.
func (s *AccountService) RevokeRole(ctx context.Context, id, roleName string) (Identity, error) {
	if err := s.guard.Authorize(ctx, OpRevokeRole, id); err != nil {
		return Identity{}, err
	}
	role, rec, err := s.grantable(ctx, roleName)
	if err != nil {
		return Identity{}, err
	}
	if err := checkID(id); err != nil {
		return Identity{}, err
	}
	if err := s.reachable(ctx, id); err != nil {
		return Identity{}, err
	}
	if err := s.accounts.RemoveRole(ctx, id, rec.ID); err != nil {
		return Identity{}, fmt.Errorf("revoke %s: %w", role, err)
	}
	return s.resolve(ctx, id)
}

// credentialKeyFree fails with ErrDuplicateAccount when key already signs in another
// account, either as its username or as its e-mail.
func (s *AccountService) credentialKeyFree(ctx context.Context, id, key string) error {
	other, err := s.accounts.FindByCredentialKey(ctx, key)
	switch {
	case errors.Is(err, ErrAccountNotFound):
		return nil
	case err != nil:
		return err
	case other.ID != id:
		return fmt.Errorf("%w: %s is already in use", ErrDuplicateAccount, key)
	}
	return nil
}

// reachable refuses to change an account whose effective role the caller does not
// satisfy. Passing the Guard as privileged tier does not extend to higher-ranked accounts.
func (s *AccountService) reachable(ctx context.Context, id string) error {
	target, err := s.resolve(ctx, id)
	if err != nil {
		return err
	}
	role, ok := target.Effective()
	if !ok {
		return nil
	}
	caller, _ := PrincipalFromContext(ctx)
	if !Satisfies(caller.Roles, role) {
		return fmt.Errorf("%w: account %s holds %s", ErrUnauthorized, id, role)
	}
	return nil
}

// grantable parses roleName and refuses roles the caller does not itself satisfy.
func (s *AccountService) grantable(ctx context.Context, roleName string) (Role, RoleRecord, error) {
	role, err := ParseRole(roleName)
	if err != nil {
		return "", RoleRecord{}, err
	}
	caller, _ := PrincipalFromContext(ctx)
	if !Satisfies(caller.Roles, role) {
		return "", RoleRecord{}, fmt.Errorf("%w: cannot manage role %s", ErrUnauthorized, role)
	}
	rec, err := s.roles.FindByName(ctx, role.StorageName())
	if err != nil {
		return "", RoleRecord{}, err
	}
	return role, rec, nil
}

// Shows lists the shows linked to the account. Links to deleted shows are omitted.
func (s *AccountService) Shows(ctx context.Context, id string) ([]catalog.Show, error) {
	if err := s.guard.Authorize(ctx, OpListAccountShows, id); err != nil {
		return nil, err
	}
	if err := checkID(id); err != nil {
		return nil, err
	}
	acc, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(acc.ShowIDs) == 0 {
		return []catalog.Show{}, nil
	}
	return s.shows.FindMany(ctx, acc.ShowIDs)
}

// LinkShow adds a show to the account's list.
func (s *AccountService) LinkShow(ctx context.Context, id, showID string) error {
	if err := s.guard.Authorize(ctx, OpLinkShow, id); err != nil {
		return err
	}
	return s.link(ctx, id, showID)
}

// UnlinkShow removes a show from the account's list.
func (s *AccountService) UnlinkShow(ctx context.Context, id, showID string) error {
	if err := s.guard.Authorize(ctx, OpUnlinkShow, id); err != nil {
		return err
	}
	return s.unlink(ctx, id, showID)
}

// SyncShows links every show in add and unlinks every show in remove, skipping links
// that already exist and unlinks that have nothing to remove. Every show in add is
// checked before anything changes, so an unknown show leaves the list untouched.
func (s *AccountService) SyncShows(ctx context.Context, id string, add, remove []string) ([]catalog.Show, error) {
	if len(add) > 0 {
		if err := s.guard.Authorize(ctx, OpLinkShow, id); err != nil {
			return nil, err
		}
	}
	if len(remove) > 0 {
		if err := s.guard.Authorize(ctx, OpUnlinkShow, id); err != nil {
			return nil, err
		}
	}
	if err := checkID(id); err != nil {
		return nil, err
	}
	for _, showID := range add {
		if err := s.showExists(ctx, showID); err != nil {
			return nil, err
		}
	}
	for _, showID := range add {
		if err := s.link(ctx, id, showID); err != nil && !errors.Is(err, ErrAlreadyLinked) {
			return nil, err
		}
	}
	for _, showID := range remove {
		if err := s.unlink(ctx, id, showID); err != nil && !errors.Is(err, ErrNotLinked) {
			return nil, err
		}
	}
	return s.Shows(ctx, id)
}

func (s *AccountService) link(ctx context.Context, id, showID string) error {
	if err := checkID(id); err != nil {
		return err
	}
	showID = strings.TrimSpace(showID)
	if err := s.showExists(ctx, showID); err != nil {
		return err
	}
	return s.accounts.AddShow(ctx, id, showID)
}

func (s *AccountService) showExists(ctx context.Context, showID string) error {
	showID = strings.TrimSpace(showID)
	if !ids.Valid(showID) {
		return fmt.Errorf("%w: %s", catalog.ErrNotFound, showID)
	}
	_, err := s.shows.FindByID(ctx, showID)
	return err
}

func (s *AccountService) unlink(ctx context.Context, id, showID string) error {
	if err := checkID(id); err != nil {
		return err
	}
	showID = strings.TrimSpace(showID)
	if showID == "" {
		return fmt.Errorf("%w: show id is required", ErrInvalidInput)
	}
	return s.accounts.RemoveShow(ctx, id, showID)
}

func (s *AccountService) resolve(ctx context.Context, id string) (Identity, error) {
	if err := checkID(id); err != nil {
		return Identity{}, err
	}
	return s.resolver.Resolve(ctx, id)
}

func checkID(id string) error {
	if !ids.Valid(id) {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, strings.TrimSpace(id))
	}
	return nil
}
