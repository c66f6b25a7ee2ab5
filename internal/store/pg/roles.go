package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tvshelf.org/internal/auth"
)

// RoleStore implements auth.RoleStore on PostgreSQL.
type RoleStore struct {
	db *sql.DB
}

var _ auth.RoleStore = (*RoleStore)(nil)

func (s *RoleStore) FindByName(ctx context.Context, name string) (auth.RoleRecord, error) {
	if s.db == nil {
		return auth.RoleRecord{}, errNoDB
	}
	var rec auth.RoleRecord
	err := s.db.QueryRowContext(ctx, `select id, name, created_at from roles where lower(name) = lower($1)`, name).
		Scan(&rec.ID, &rec.Name, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.RoleRecord{}, fmt.Errorf("%w: %s", auth.ErrRoleNotFound, name)
	}
	return rec, err
}

func (s *RoleStore) FindAll(ctx context.Context) ([]auth.RoleRecord, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `select id, name, created_at from roles order by created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []auth.RoleRecord
	for rows.Next() {
		var rec auth.RoleRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *RoleStore) CountAll(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from roles`).Scan(&n)
	return n, err
}

func (s *RoleStore) InsertMany(ctx context.Context, roles []auth.RoleRecord) error {
	if s.db == nil {
		return errNoDB
	}
	if len(roles) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, rec := range roles {
		if _, err := tx.ExecContext(ctx, `
			insert into roles (id, name, created_at)
			values ($1, $2, $3)
			on conflict (name) do nothing
		`, rec.ID, rec.Name, rec.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}
