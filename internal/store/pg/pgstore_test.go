package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"tvshelf.org/internal/auth"
	"tvshelf.org/internal/catalog"
)

var accountRowCols = []string{"id", "username", "email", "password_hash", "created_at", "updated_at", "role_ids", "show_ids"}

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func TestAccountFindByIDSplitsAggregates(t *testing.T) {
	store, mock := newMock(t)
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery("from accounts a where a.id = \\$1").
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows(accountRowCols).AddRow("acc-1", "alice", "alice@example.com", "hash", now, now, "r1,r2", ""))

	acc, err := store.Accounts().FindByID(context.Background(), "acc-1")
	require.NoError(t, err)
	require.Equal(t, "alice", acc.Username)
	require.Equal(t, []string{"r1", "r2"}, acc.RoleIDs)
	require.Empty(t, acc.ShowIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountFindByIDNotFound(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("from accounts a where a.id").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := store.Accounts().FindByID(context.Background(), "missing")
	require.ErrorIs(t, err, auth.ErrAccountNotFound)
}

func TestAccountCreateMapsUniqueViolation(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("insert into accounts").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: "accounts_username_key"})
	mock.ExpectRollback()

	_, err := store.Accounts().Create(context.Background(), auth.Account{ID: "a", Username: "alice", RoleIDs: []string{"r1"}})
	require.ErrorIs(t, err, auth.ErrDuplicateAccount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountCreateInsertsRoles(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("insert into accounts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into account_roles").WithArgs("a", "r1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into account_roles").WithArgs("a", "r2").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation, ConstraintName: "account_roles_role_id_fkey"})
	mock.ExpectRollback()

	_, err := store.Accounts().Create(context.Background(), auth.Account{ID: "a", Username: "alice", RoleIDs: []string{"r1", "r2"}})
	require.ErrorIs(t, err, auth.ErrRoleNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountUpdateBuildsSparseSet(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()
	email := "new@example.com"
	mock.ExpectQuery("select exists").WithArgs("acc-1", email).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("update accounts set email = \\$1, updated_at = \\$2 where id = \\$3").
		WithArgs(email, now, "acc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("from accounts a where a.id").
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows(accountRowCols).AddRow("acc-1", "alice", email, "hash", now, now, "r1", "s1,s2"))

	acc, err := store.Accounts().Update(context.Background(), "acc-1", auth.AccountUpdate{Email: &email}, now)
	require.NoError(t, err)
	require.Equal(t, email, acc.Email)
	require.Equal(t, []string{"s1", "s2"}, acc.ShowIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountUpdateMissing(t *testing.T) {
	store, mock := newMock(t)
	name := "bob"
	mock.ExpectQuery("select exists").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("update accounts set username").WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.Accounts().Update(context.Background(), "nope", auth.AccountUpdate{Username: &name}, time.Now())
	require.ErrorIs(t, err, auth.ErrAccountNotFound)
}

func TestAccountUpdateRefusesUsernameMatchingAnotherEmail(t *testing.T) {
	store, mock := newMock(t)
	name := "alice@example.com"
	mock.ExpectQuery("username = \\$2 or lower\\(email\\) = lower\\(\\$2\\)").
		WithArgs("bob-id", name).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := store.Accounts().Update(context.Background(), "bob-id", auth.AccountUpdate{Username: &name}, time.Now())
	require.ErrorIs(t, err, auth.ErrDuplicateAccount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountFindAllCountsThenPages(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery("select count\\(\\*\\) from accounts a").WithArgs("super").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("order by a.id\\s+limit \\$2 offset \\$3").WithArgs("super", 2, 2).
		WillReturnRows(sqlmock.NewRows(accountRowCols).AddRow("c", "carol", "c@example.com", "h", now, now, "r1", ""))

	items, total, err := store.Accounts().FindAll(context.Background(), auth.AccountQuery{Skip: 2, Limit: 2, ExcludeSoleRoleID: "super"})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, items, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountAddRoleForeignKeys(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("insert into account_roles").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation, ConstraintName: "account_roles_role_id_fkey"})
	mock.ExpectExec("insert into account_roles").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation, ConstraintName: "account_roles_account_id_fkey"})

	err := store.Accounts().AddRole(context.Background(), "a", "r")
	require.ErrorIs(t, err, auth.ErrRoleNotFound)
	err = store.Accounts().AddRole(context.Background(), "a", "r")
	require.ErrorIs(t, err, auth.ErrAccountNotFound)
}

func TestAccountRemoveRoleGuardsLastRole(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from accounts where id = \\$1 for update").WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("select count\\(\\*\\), coalesce\\(bool_or").WithArgs("a", "r1").
		WillReturnRows(sqlmock.NewRows([]string{"count", "holds"}).AddRow(1, true))
	mock.ExpectRollback()

	err := store.Accounts().RemoveRole(context.Background(), "a", "r1")
	require.ErrorIs(t, err, auth.ErrLastRole)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRemoveRoleDeletes(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery("for update").WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("bool_or").WithArgs("a", "r2").
		WillReturnRows(sqlmock.NewRows([]string{"count", "holds"}).AddRow(2, true))
	mock.ExpectExec("delete from account_roles").WithArgs("a", "r2").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.Accounts().RemoveRole(context.Background(), "a", "r2"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRemoveRoleNotHeld(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery("for update").WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("bool_or").WithArgs("a", "r9").
		WillReturnRows(sqlmock.NewRows([]string{"count", "holds"}).AddRow(2, false))
	mock.ExpectRollback()

	err := store.Accounts().RemoveRole(context.Background(), "a", "r9")
	require.ErrorIs(t, err, auth.ErrRoleNotHeld)
}

func TestAccountShowLinks(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("insert into account_shows").WithArgs("a", "s").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("delete from account_shows").WithArgs("a", "s").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select exists").WithArgs("a").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	require.ErrorIs(t, store.Accounts().AddShow(context.Background(), "a", "s"), auth.ErrAlreadyLinked)
	require.ErrorIs(t, store.Accounts().RemoveShow(context.Background(), "a", "s"), auth.ErrNotLinked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleInsertManySkipsExisting(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec("on conflict \\(name\\) do nothing").WithArgs("r1", "admin", now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("on conflict \\(name\\) do nothing").WithArgs("r2", "client", now).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := store.Roles().InsertMany(context.Background(), []auth.RoleRecord{
		{ID: "r1", Name: "admin", CreatedAt: now},
		{ID: "r2", Name: "client", CreatedAt: now},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleFindByNameMissing(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("from roles where lower\\(name\\)").WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := store.Roles().FindByName(context.Background(), "ghost")
	require.ErrorIs(t, err, auth.ErrRoleNotFound)
}

func TestShowFindManyKeepsOrder(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()
	docA, _ := json.Marshal(catalog.Show{Name: "A", OriginalName: "A"})
	docB, _ := json.Marshal(catalog.Show{Name: "B", OriginalName: "B"})
	mock.ExpectQuery("from shows where id in \\(\\$1, \\$2, \\$3\\)").WithArgs("b", "gone", "a").
		WillReturnRows(sqlmock.NewRows([]string{"id", "external_id", "doc", "created_at", "updated_at"}).
			AddRow("a", nil, docA, now, now).
			AddRow("b", int64(42), docB, now, now))

	shows, err := store.Shows().FindMany(context.Background(), []string{"b", "gone", "a"})
	require.NoError(t, err)
	require.Len(t, shows, 2)
	require.Equal(t, "b", shows[0].ID)
	require.Equal(t, int64(42), shows[0].ExternalID)
	require.Equal(t, "a", shows[1].ID)
	require.Zero(t, shows[1].ExternalID)
}

func TestShowCreateConflict(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("insert into shows").WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	_, err := store.Shows().Create(context.Background(), catalog.Show{ID: "s", ExternalID: 7, Name: "x"})
	require.ErrorIs(t, err, catalog.ErrConflict)
}

func TestShowUpdateAppliesPatchUnderLock(t *testing.T) {
	store, mock := newMock(t)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	later := created.Add(time.Hour)
	doc, _ := json.Marshal(catalog.Show{Name: "Old", OriginalName: "Old", NumberOfSeasons: 1})
	mock.ExpectBegin()
	mock.ExpectQuery("from shows where id = \\$1 for update").WithArgs("s").
		WillReturnRows(sqlmock.NewRows([]string{"id", "external_id", "doc", "created_at", "updated_at"}).AddRow("s", int64(5), doc, created, created))
	mock.ExpectExec("update shows set").WithArgs("s", sqlmock.AnyArg(), "New", sqlmock.AnyArg(), later).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	name := "New"
	show, err := store.Shows().Update(context.Background(), "s", catalog.ShowUpdate{Name: &name}, later)
	require.NoError(t, err)
	require.Equal(t, "New", show.Name)
	require.Equal(t, 1, show.NumberOfSeasons)
	require.Equal(t, created, show.CreatedAt)
	require.Equal(t, later, show.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestShowDeleteMissing(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("delete from shows").WithArgs("s").WillReturnResult(sqlmock.NewResult(0, 0))

	require.ErrorIs(t, store.Shows().DeleteByID(context.Background(), "s"), catalog.ErrNotFound)
}

func TestNilDatabase(t *testing.T) {
	store := &Store{}
	require.ErrorIs(t, store.Ping(context.Background()), errNoDB)
	_, err := store.Accounts().FindByID(context.Background(), "x")
	require.ErrorIs(t, err, errNoDB)
}
