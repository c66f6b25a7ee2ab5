package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tvshelf.org/internal/catalog"
)

// ShowStore implements catalog.Store. The full record lives in a jsonb document;
// id, external_id and name are lifted into columns for lookups.
type ShowStore struct {
	db *sql.DB
}

var _ catalog.Store = (*ShowStore)(nil)

const showColumns = `id, external_id, doc, created_at, updated_at`

func scanShow(row rowScanner) (catalog.Show, error) {
	var (
		show       catalog.Show
		id         string
		externalID sql.NullInt64
		doc        []byte
		created    time.Time
		updated    time.Time
	)
	if err := row.Scan(&id, &externalID, &doc, &created, &updated); err != nil {
		return catalog.Show{}, err
	}
	if err := json.Unmarshal(doc, &show); err != nil {
		return catalog.Show{}, fmt.Errorf("decode show %s: %w", id, err)
	}
	show.ID = id
	show.ExternalID = externalID.Int64
	show.CreatedAt = created
	show.UpdatedAt = updated
	return show, nil
}

func nullableExternalID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func (s *ShowStore) FindByID(ctx context.Context, id string) (catalog.Show, error) {
	if s.db == nil {
		return catalog.Show{}, errNoDB
	}
	show, err := scanShow(s.db.QueryRowContext(ctx, `select `+showColumns+` from shows where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Show{}, fmt.Errorf("%w: %s", catalog.ErrNotFound, id)
	}
	return show, err
}

func (s *ShowStore) FindByExternalID(ctx context.Context, externalID int64) (catalog.Show, error) {
	if s.db == nil {
		return catalog.Show{}, errNoDB
	}
	show, err := scanShow(s.db.QueryRowContext(ctx, `select `+showColumns+` from shows where external_id = $1`, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Show{}, fmt.Errorf("%w: external id %d", catalog.ErrNotFound, externalID)
	}
	return show, err
}

// FindMany returns the shows that exist, in the order of ids.
func (s *ShowStore) FindMany(ctx context.Context, ids []string) ([]catalog.Show, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`select %s from shows where id in (%s)`, showColumns, strings.Join(placeholders, ", ")), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]catalog.Show, len(ids))
	for rows.Next() {
		show, err := scanShow(rows)
		if err != nil {
			return nil, err
		}
		byID[show.ID] = show
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]catalog.Show, 0, len(byID))
	for _, id := range ids {
		if show, ok := byID[id]; ok {
			out = append(out, show)
			delete(byID, id)
		}
	}
	return out, nil
}

func (s *ShowStore) List(ctx context.Context, skip, limit int) ([]catalog.Show, int, error) {
	if s.db == nil {
		return nil, 0, errNoDB
	}
	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from shows`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `select `+showColumns+` from shows order by id limit $1 offset $2`, limit, skip)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []catalog.Show
	for rows.Next() {
		show, err := scanShow(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, show)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *ShowStore) Create(ctx context.Context, show catalog.Show) (catalog.Show, error) {
	if s.db == nil {
		return catalog.Show{}, errNoDB
	}
	doc, err := json.Marshal(show)
	if err != nil {
		return catalog.Show{}, err
	}
	if _, err := s.db.ExecContext(ctx, `
		insert into shows (id, external_id, name, doc, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6)
	`, show.ID, nullableExternalID(show.ExternalID), show.Name, doc, show.CreatedAt, show.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return catalog.Show{}, fmt.Errorf("%w: external id %d", catalog.ErrConflict, show.ExternalID)
		}
		return catalog.Show{}, err
	}
	return show, nil
}

// Update applies upd under a row lock so concurrent patches compose.
func (s *ShowStore) Update(ctx context.Context, id string, upd catalog.ShowUpdate, updatedAt time.Time) (catalog.Show, error) {
	if s.db == nil {
		return catalog.Show{}, errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return catalog.Show{}, err
	}
	defer func() { _ = tx.Rollback() }()

	show, err := scanShow(tx.QueryRowContext(ctx, `select `+showColumns+` from shows where id = $1 for update`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Show{}, fmt.Errorf("%w: %s", catalog.ErrNotFound, id)
		}
		return catalog.Show{}, err
	}
	upd.Apply(&show)
	show.UpdatedAt = updatedAt
	doc, err := json.Marshal(show)
	if err != nil {
		return catalog.Show{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		update shows set external_id = $2, name = $3, doc = $4, updated_at = $5
		where id = $1
	`, id, nullableExternalID(show.ExternalID), show.Name, doc, show.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return catalog.Show{}, fmt.Errorf("%w: external id %d", catalog.ErrConflict, show.ExternalID)
		}
		return catalog.Show{}, err
	}
	if err := tx.Commit(); err != nil {
		return catalog.Show{}, err
	}
	return show, nil
}

func (s *ShowStore) DeleteByID(ctx context.Context, id string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from shows where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return fmt.Errorf("%w: %s", catalog.ErrNotFound, id)
	}
	return nil
}
