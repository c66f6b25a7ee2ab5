// Package memory keeps accounts, roles and shows in process memory. It backs the API
// when no database is configured and gives tests the same semantics as the PostgreSQL store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"tvshelf.org/internal/auth"
	"tvshelf.org/internal/catalog"
)

// Store holds every collection behind a single lock so that role and show reference
// updates are atomic with respect to each other.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*auth.Account
	roles    map[string]auth.RoleRecord
	shows    map[string]catalog.Show
}

// New returns an empty store.
func New() *Store {
	return &Store{
		accounts: make(map[string]*auth.Account),
		roles:    make(map[string]auth.RoleRecord),
		shows:    make(map[string]catalog.Show),
	}
}

// Accounts returns the account view of the store.
func (s *Store) Accounts() *AccountStore { return &AccountStore{s: s} }

// Roles returns the role view of the store.
func (s *Store) Roles() *RoleStore { return &RoleStore{s: s} }

// Shows returns the show view of the store.
func (s *Store) Shows() *ShowStore { return &ShowStore{s: s} }

// AccountStore implements auth.AccountStore.
type AccountStore struct{ s *Store }

var _ auth.AccountStore = (*AccountStore)(nil)

func (a *AccountStore) FindByID(_ context.Context, id string) (auth.Account, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	acc, ok := a.s.accounts[id]
	if !ok {
		return auth.Account{}, fmt.Errorf("%w: %s", auth.ErrAccountNotFound, id)
	}
	return cloneAccount(acc), nil
}

func (a *AccountStore) FindByCredentialKey(_ context.Context, key string) (auth.Account, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	key = strings.TrimSpace(key)
	for _, acc := range a.s.accounts {
		if acc.Username == key || strings.EqualFold(acc.Email, key) {
			return cloneAccount(acc), nil
		}
	}
	return auth.Account{}, fmt.Errorf("%w: %s", auth.ErrAccountNotFound, key)
}

func (a *AccountStore) FindAll(_ context.Context, q auth.AccountQuery) ([]auth.Account, int, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	matched := make([]*auth.Account, 0, len(a.s.accounts))
	for _, acc := range a.s.accounts {
		if q.ExcludeSoleRoleID != "" && len(acc.RoleIDs) == 1 && acc.RoleIDs[0] == q.ExcludeSoleRoleID {
			continue
		}
		matched = append(matched, acc)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	total := len(matched)
	start := min(max(q.Skip, 0), total)
	end := total
	if q.Limit > 0 {
		end = min(start+q.Limit, total)
	}
	out := make([]auth.Account, 0, end-start)
	for _, acc := range matched[start:end] {
		out = append(out, cloneAccount(acc))
	}
	return out, total, nil
}

func (a *AccountStore) Create(_ context.Context, acc auth.Account) (auth.Account, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if _, exists := a.s.accounts[acc.ID]; exists {
		return auth.Account{}, fmt.Errorf("%w: id %s", auth.ErrDuplicateAccount, acc.ID)
	}
	if err := a.s.checkUniqueLocked("", acc.Username, acc.Email); err != nil {
		return auth.Account{}, err
	}
	acc.RoleIDs = dedupe(acc.RoleIDs)
	for _, roleID := range acc.RoleIDs {
		if _, ok := a.s.roles[roleID]; !ok {
			return auth.Account{}, fmt.Errorf("%w: %s", auth.ErrRoleNotFound, roleID)
		}
	}
	acc.ShowIDs = dedupe(acc.ShowIDs)
	stored := cloneAccount(&acc)
	a.s.accounts[acc.ID] = &stored
	return cloneAccount(&stored), nil
}

func (a *AccountStore) Update(_ context.Context, id string, upd auth.AccountUpdate, updatedAt time.Time) (auth.Account, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	acc, ok := a.s.accounts[id]
	if !ok {
		return auth.Account{}, fmt.Errorf("%w: %s", auth.ErrAccountNotFound, id)
	}
	username, email := "", ""
	if upd.Username != nil {
		username = *upd.Username
	}
	if upd.Email != nil {
		email = *upd.Email
	}
	if err := a.s.checkUniqueLocked(id, username, email); err != nil {
		return auth.Account{}, err
	}
	if upd.Username != nil {
		acc.Username = *upd.Username
	}
	if upd.Email != nil {
		acc.Email = *upd.Email
	}
	if upd.PasswordHash != nil {
		acc.PasswordHash = *upd.PasswordHash
	}
	acc.UpdatedAt = updatedAt
	return cloneAccount(acc), nil
}

func (a *AccountStore) DeleteByID(_ context.Context, id string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if _, ok := a.s.accounts[id]; !ok {
		return fmt.Errorf("%w: %s", auth.ErrAccountNotFound, id)
	}
	delete(a.s.accounts, id)
	return nil
}

func (a *AccountStore) AddRole(_ context.Context, accountID, roleID string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	acc, ok := a.s.accounts[accountID]
	if !ok {
		return fmt.Errorf("%w: %s", auth.ErrAccountNotFound, accountID)
	}
	if _, ok := a.s.roles[roleID]; !ok {
		return fmt.Errorf("%w: %s", auth.ErrRoleNotFound, roleID)
	}
	if contains(acc.RoleIDs, roleID) {
		return nil
	}
	acc.RoleIDs = append(acc.RoleIDs, roleID)
	return nil
}

func (a *AccountStore) RemoveRole(_ context.Context, accountID, roleID string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	acc, ok := a.s.accounts[accountID]
	if !ok {
		return fmt.Errorf("%w: %s", auth.ErrAccountNotFound, accountID)
	}
	if !contains(acc.RoleIDs, roleID) {
		return fmt.Errorf("%w: %s", auth.ErrRoleNotHeld, roleID)
	}
	if len(acc.RoleIDs) == 1 {
		return auth.ErrLastRole
	}
	acc.RoleIDs = without(acc.RoleIDs, roleID)
	return nil
}

func (a *AccountStore) AddShow(_ context.Context, accountID, showID string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	acc, ok := a.s.accounts[accountID]
	if !ok {
		return fmt.Errorf("%w: %s", auth.ErrAccountNotFound, accountID)
	}
	if contains(acc.ShowIDs, showID) {
		return fmt.Errorf("%w: %s", auth.ErrAlreadyLinked, showID)
	}
	acc.ShowIDs = append(acc.ShowIDs, showID)
	return nil
}

func (a *AccountStore) RemoveShow(_ context.Context, accountID, showID string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	acc, ok := a.s.accounts[accountID]
	if !ok {
		return fmt.Errorf("%w: %s", auth.ErrAccountNotFound, accountID)
	}
	if !contains(acc.ShowIDs, showID) {
		return fmt.Errorf("%w: %s", auth.ErrNotLinked, showID)
	}
	acc.ShowIDs = without(acc.ShowIDs, showID)
	return nil
}

// checkUniqueLocked reports a duplicate when username or email would match another
// account's credential key, in either column.
func (s *Store) checkUniqueLocked(selfID, username, email string) error {
	for id, other := range s.accounts {
		if id == selfID {
			continue
		}
		if username != "" && (other.Username == username || strings.EqualFold(other.Email, username)) {
			return fmt.Errorf("%w: username %s", auth.ErrDuplicateAccount, username)
		}
		if email != "" && (strings.EqualFold(other.Email, email) || other.Username == email) {
			return fmt.Errorf("%w: email %s", auth.ErrDuplicateAccount, email)
		}
	}
	return nil
}

// RoleStore implements auth.RoleStore.
type RoleStore struct{ s *Store }

var _ auth.RoleStore = (*RoleStore)(nil)

func (r *RoleStore) FindByName(_ context.Context, name string) (auth.RoleRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, rec := range r.s.roles {
		if strings.EqualFold(rec.Name, strings.TrimSpace(name)) {
			return rec, nil
		}
	}
	return auth.RoleRecord{}, fmt.Errorf("%w: %s", auth.ErrRoleNotFound, name)
}

func (r *RoleStore) FindAll(_ context.Context) ([]auth.RoleRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]auth.RoleRecord, 0, len(r.s.roles))
	for _, rec := range r.s.roles {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *RoleStore) CountAll(_ context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.roles), nil
}

func (r *RoleStore) InsertMany(_ context.Context, roles []auth.RoleRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rec := range roles {
		exists := false
		for _, have := range r.s.roles {
			if strings.EqualFold(have.Name, rec.Name) {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		r.s.roles[rec.ID] = rec
	}
	return nil
}

func cloneAccount(acc *auth.Account) auth.Account {
	out := *acc
	out.RoleIDs = append([]string(nil), acc.RoleIDs...)
	out.ShowIDs = append([]string(nil), acc.ShowIDs...)
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func without(list []string, v string) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		if item != v {
			out = append(out, item)
		}
	}
	return out
}

func dedupe(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, item := range list {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
