package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tvshelf.org/internal/auth"
)

// AccountStore implements auth.AccountStore on PostgreSQL.
type AccountStore struct {
	db *sql.DB
}

var _ auth.AccountStore = (*AccountStore)(nil)

const accountColumns = `
	a.id, a.username, a.email, a.password_hash, a.created_at, a.updated_at,
	coalesce((select string_agg(r.role_id, ',' order by r.created_at, r.role_id) from account_roles r where r.account_id = a.id), ''),
	coalesce((select string_agg(s.show_id, ',' order by s.created_at, s.show_id) from account_shows s where s.account_id = a.id), '')`

// soleRoleFilter excludes accounts whose only role is $1 (no-op when $1 is empty).
const soleRoleFilter = `
	($1 = '' or not (
		exists (select 1 from account_roles r where r.account_id = a.id and r.role_id = $1)
		and not exists (select 1 from account_roles r where r.account_id = a.id and r.role_id <> $1)
	))`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (auth.Account, error) {
	var (
		acc            auth.Account
		roles, showIDs string
	)
	if err := row.Scan(&acc.ID, &acc.Username, &acc.Email, &acc.PasswordHash, &acc.CreatedAt, &acc.UpdatedAt, &roles, &showIDs); err != nil {
		return auth.Account{}, err
	}
	acc.RoleIDs = splitIDs(roles)
	acc.ShowIDs = splitIDs(showIDs)
	return acc, nil
}

func (s *AccountStore) FindByID(ctx context.Context, id string) (auth.Account, error) {
	if s.db == nil {
		return auth.Account{}, errNoDB
	}
	acc, err := scanAccount(s.db.QueryRowContext(ctx, `select `+accountColumns+` from accounts a where a.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Account{}, fmt.Errorf("%w: %s", auth.ErrAccountNotFound, id)
	}
	return acc, err
}

func (s *AccountStore) FindByCredentialKey(ctx context.Context, key string) (auth.Account, error) {
	if s.db == nil {
		return auth.Account{}, errNoDB
	}
	key = strings.TrimSpace(key)
	acc, err := scanAccount(s.db.QueryRowContext(ctx, `
		select `+accountColumns+`
		from accounts a
		where a.username = $1 or lower(a.email) = lower($1)
		order by a.id
		limit 1
	`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Account{}, fmt.Errorf("%w: %s", auth.ErrAccountNotFound, key)
	}
	return acc, err
}

func (s *AccountStore) FindAll(ctx context.Context, q auth.AccountQuery) ([]auth.Account, int, error) {
	if s.db == nil {
		return nil, 0, errNoDB
	}
	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from accounts a where `+soleRoleFilter, q.ExcludeSoleRoleID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+accountColumns+`
		from accounts a
		where `+soleRoleFilter+`
		order by a.id
		limit $2 offset $3
	`, q.ExcludeSoleRoleID, q.Limit, q.Skip)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []auth.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *AccountStore) Create(ctx context.Context, acc auth.Account) (auth.Account, error) {
	if s.db == nil {
		return auth.Account{}, errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return auth.Account{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into accounts (id, username, email, password_hash, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6)
	`, acc.ID, acc.Username, acc.Email, acc.PasswordHash, acc.CreatedAt, acc.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.Account{}, fmt.Errorf("%w: %s", auth.ErrDuplicateAccount, pgErr.ConstraintName)
		}
		return auth.Account{}, err
	}
	for _, roleID := range acc.RoleIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into account_roles (account_id, role_id)
			values ($1, $2)
			on conflict do nothing
		`, acc.ID, roleID); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return auth.Account{}, fmt.Errorf("%w: %s", auth.ErrRoleNotFound, roleID)
			}
			return auth.Account{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return auth.Account{}, err
	}
	acc.ShowIDs = nil
	return acc, nil
}

// The unique indexes cover each column on its own; a username may not collide with
// another account's e-mail either.
const credentialKeyTakenSQL = `select exists(
	select 1 from accounts where id <> $1 and (username = $2 or lower(email) = lower($2))
)`

func (s *AccountStore) Update(ctx context.Context, id string, upd auth.AccountUpdate, updatedAt time.Time) (auth.Account, error) {
	if s.db == nil {
		return auth.Account{}, errNoDB
	}
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Username != nil {
		sets = append(sets, fmt.Sprintf("username = $%d", idx))
		args = append(args, *upd.Username)
		idx++
	}
	if upd.Email != nil {
		sets = append(sets, fmt.Sprintf("email = $%d", idx))
		args = append(args, *upd.Email)
		idx++
	}
	if upd.PasswordHash != nil {
		sets = append(sets, fmt.Sprintf("password_hash = $%d", idx))
		args = append(args, *upd.PasswordHash)
		idx++
	}
	for _, key := range []*string{upd.Username, upd.Email} {
		if key == nil {
			continue
		}
		var taken bool
		err := s.db.QueryRowContext(ctx, credentialKeyTakenSQL, id, *key).Scan(&taken)
		if err != nil {
			return auth.Account{}, err
		}
		if taken {
			return auth.Account{}, fmt.Errorf("%w: %s", auth.ErrDuplicateAccount, *key)
		}
	}
	if len(sets) > 0 {
		sets = append(sets, fmt.Sprintf("updated_at = $%d", idx))
		args = append(args, updatedAt)
		idx++
		query := fmt.Sprintf(`update accounts set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return auth.Account{}, fmt.Errorf("%w: %s", auth.ErrDuplicateAccount, pgErr.ConstraintName)
			}
			return auth.Account{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return auth.Account{}, err
		}
		if aff == 0 {
			return auth.Account{}, fmt.Errorf("%w: %s", auth.ErrAccountNotFound, id)
		}
	}
	return s.FindByID(ctx, id)
}

func (s *AccountStore) DeleteByID(ctx context.Context, id string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from accounts where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return fmt.Errorf("%w: %s", auth.ErrAccountNotFound, id)
	}
	return nil
}

// AddRole is a single insert-if-absent statement, so concurrent grants never overwrite each other.
func (s *AccountStore) AddRole(ctx context.Context, accountID, roleID string) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		insert into account_roles (account_id, role_id)
		values ($1, $2)
		on conflict do nothing
	`, accountID, roleID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			if strings.Contains(pgErr.ConstraintName, "role_id") {
				return fmt.Errorf("%w: %s", auth.ErrRoleNotFound, roleID)
			}
			return fmt.Errorf("%w: %s", auth.ErrAccountNotFound, accountID)
		}
		return err
	}
	return nil
}

// RemoveRole locks the account row so two revocations cannot both pass the last-role check.
func (s *AccountStore) RemoveRole(ctx context.Context, accountID, roleID string) error {
	if s.db == nil {
		return errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var dummy int
	if err := tx.QueryRowContext(ctx, `select 1 from accounts where id = $1 for update`, accountID).Scan(&dummy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", auth.ErrAccountNotFound, accountID)
		}
		return err
	}

	var (
		held  int
		holds bool
	)
	if err := tx.QueryRowContext(ctx, `
		select count(*), coalesce(bool_or(role_id = $2), false)
		from account_roles
		where account_id = $1
	`, accountID, roleID).Scan(&held, &holds); err != nil {
		return err
	}
	if !holds {
		return fmt.Errorf("%w: %s", auth.ErrRoleNotHeld, roleID)
	}
	if held <= 1 {
		return auth.ErrLastRole
	}
	if _, err := tx.ExecContext(ctx, `delete from account_roles where account_id = $1 and role_id = $2`, accountID, roleID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *AccountStore) AddShow(ctx context.Context, accountID, showID string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `
		insert into account_shows (account_id, show_id)
		values ($1, $2)
		on conflict do nothing
	`, accountID, showID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: %s", auth.ErrAccountNotFound, accountID)
		}
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return fmt.Errorf("%w: %s", auth.ErrAlreadyLinked, showID)
	}
	return nil
}

func (s *AccountStore) RemoveShow(ctx context.Context, accountID, showID string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from account_shows where account_id = $1 and show_id = $2`, accountID, showID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff > 0 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `select exists (select 1 from accounts where id = $1)`, accountID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", auth.ErrAccountNotFound, accountID)
	}
	return fmt.Errorf("%w: %s", auth.ErrNotLinked, showID)
}
