package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/carnet-tools/internal/common"
)

func mockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &Store{
		db:   db,
		now:  time.Now,
		log:  zerolog.Nop(),
		cols: columnSet{legacyName: true, splitNames: true},
	}, mock
}

func TestInsert_RollsBackOnSQLError(t *testing.T) {
	s, mock := mockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO codigos_barras").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	ok, err := s.Insert(context.Background(), sampleRecord("ABCD12", "EMP1"))
	assert.False(t, ok)
	require.ErrorIs(t, err, common.ErrStorage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_UniqueViolationIsNotAnError(t *testing.T) {
	s, mock := mockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO codigos_barras").
		WillReturnError(errors.New("UNIQUE constraint failed: codigos_barras.codigo_barras"))
	mock.ExpectRollback()

	ok, err := s.Insert(context.Background(), sampleRecord("ABCD12", "EMP1"))
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStats_StorageError(t *testing.T) {
	s, mock := mockStore(t)
	mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("database is locked"))

	_, err := s.Stats(context.Background())
	require.ErrorIs(t, err, common.ErrStorage)
	require.NoError(t, mock.ExpectationsWereMet())
}
