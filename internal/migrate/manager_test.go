package migrate

import (
	"context"
	"io/fs"
	"testing"
	"testing/fstest"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time { return time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC) }

func expectBookkeeping(mock sqlmock.Sqlmock) {
	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestUpAppliesPendingInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	migrations := fstest.MapFS{
		"0002_more.up.sql":   {Data: []byte("alter table t add column b int;")},
		"0001_init.up.sql":   {Data: []byte("create table t (a text default 'x;y'); create index t_a on t (a);")},
		"0001_init.down.sql": {Data: []byte("drop table t;")},
	}

	expectBookkeeping(mock)
	mock.ExpectQuery("select name from schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_init.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("alter table t add column b int").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec("insert into schema_migrations").WithArgs("0002_more.up.sql", fixedClock()).WillReturnResult(sqlmock.NewResult(0, 1))

	mgr := NewManager(db, migrations, nil, WithClock(fixedClock))
	applied, err := mgr.Up(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"0002_more.up.sql"}, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDownRunsMatchingScript(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	migrations := fstest.MapFS{
		"0001_init.up.sql":   {Data: []byte("create table t (a text);")},
		"0001_init.down.sql": {Data: []byte("drop table t;")},
	}
	expectBookkeeping(mock)
	mock.ExpectQuery("select name from schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_init.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("drop table t").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec("delete from schema_migrations where name = \\$1").WithArgs("0001_init.up.sql").WillReturnResult(sqlmock.NewResult(0, 1))

	last, err := NewManager(db, migrations, nil).Down(context.Background())
	require.NoError(t, err)
	require.Equal(t, "0001_init.up.sql", last)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDownWithNothingApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectBookkeeping(mock)
	mock.ExpectQuery("select name from schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"name"}))

	_, err = NewManager(db, fstest.MapFS{}, nil).Down(context.Background())
	require.ErrorIs(t, err, ErrNothingToRollback)
}

func TestSeedSkipsExecuted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	seeds := fstest.MapFS{
		"0001_roles.sql": {Data: []byte("insert into roles values ('1', 'admin');")},
	}
	expectBookkeeping(mock)
	mock.ExpectQuery("select name from schema_seeds").WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_roles.sql"))

	applied, err := NewManager(db, nil, seeds).Seed(context.Background())
	require.NoError(t, err)
	require.Empty(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEmbeddedFiles(t *testing.T) {
	ups, err := collectSQL(Migrations(), ".up.sql")
	require.NoError(t, err)
	require.Contains(t, ups, "0001_init.up.sql")

	_, err = fs.Stat(Migrations(), "0001_init.down.sql")
	require.NoError(t, err)

	seeds, err := collectSQL(Seeds(), ".sql")
	require.NoError(t, err)
	require.Equal(t, []string{"0001_roles.sql"}, seeds)
}

func TestSplitStatementsRespectsQuotes(t *testing.T) {
	stmts := splitStatements("select 'a;b'; select 2;\n")
	require.Len(t, stmts, 2)
	require.Equal(t, "select 'a;b';", stmts[0])
}
