package database

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateAppliesFilesInOrder(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	source := fstest.MapFS{
		"migrations/0002_second.sql": {Data: []byte("CREATE INDEX b")},
		"migrations/0001_first.sql":  {Data: []byte("CREATE TABLE a")},
	}

	mock.ExpectExec("CREATE TABLE a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX b").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, migrate(context.Background(), sqlx.NewDb(db, "sqlmock"), source))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateStopsOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	source := fstest.MapFS{
		"migrations/0001_first.sql":  {Data: []byte("CREATE TABLE a")},
		"migrations/0002_second.sql": {Data: []byte("CREATE INDEX b")},
	}
	mock.ExpectExec("CREATE TABLE a").WillReturnError(errors.New("syntax error"))

	err = migrate(context.Background(), sqlx.NewDb(db, "sqlmock"), source)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0001_first.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmbeddedSchemaHasUniqueDayIndex(t *testing.T) {
	body, err := migrationFS.ReadFile("migrations/0001_init.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "ON attendance_records (teacher_id, date)")
}
