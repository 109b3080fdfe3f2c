package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/customeros/mailsync/internal/enum"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return gormDB, mock
}

func TestSyncStateRepository_Get(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSyncStateRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "sync_states" WHERE account_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "last_uid", "status"}).
			AddRow("sync_1", "acc-1", 42, "idle"))

	state, err := repo.Get(context.Background(), "acc-1")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "acc-1", state.AccountID)
	assert.Equal(t, uint32(42), state.LastUID)
	assert.Equal(t, enum.SyncStatusIdle, state.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncStateRepository_Get_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSyncStateRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "sync_states"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	state, err := repo.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, state)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncStateRepository_Get_DatabaseError(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSyncStateRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "sync_states"`).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.Get(context.Background(), "acc-1")
	assert.ErrorContains(t, err, "failed to get sync state")
}

func TestSyncStateRepository_GetOrCreate_EmptyAccount(t *testing.T) {
	db, _ := setupMockDB(t)
	repo := NewSyncStateRepository(db)

	_, err := repo.GetOrCreate(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSyncStateRepository_MarkError(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSyncStateRepository(db)

	mock.ExpectExec(`UPDATE "sync_states" SET .*"last_error"=.*WHERE account_id = `).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkError(context.Background(), "acc-1", "dial tcp: timeout")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncStateRepository_MarkError_UnknownAccount(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSyncStateRepository(db)

	mock.ExpectExec(`UPDATE "sync_states"`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkError(context.Background(), "ghost", "boom")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSyncStateRepository_MarkIdle_UsesGreatest(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSyncStateRepository(db)

	mock.ExpectExec(`UPDATE "sync_states" SET .*"last_uid"=GREATEST\(last_uid, \$\d+\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkIdle(context.Background(), "acc-1", 13, nil, time.Now())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncStateRepository_MarkIdle_RetryMarker(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSyncStateRepository(db)

	mock.ExpectExec(`UPDATE "sync_states" SET .*"last_uid"=GREATEST\(last_uid, \$\d+\),"retry_after_uid"=\$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "sync_states" SET .*"retry_after_uid"=NULL`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	retryAfter := uint32(49)
	require.NoError(t, repo.MarkIdle(context.Background(), "acc-1", 100, &retryAfter, time.Now()))
	require.NoError(t, repo.MarkIdle(context.Background(), "acc-1", 100, nil, time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncStateRepository_ResetStaleSyncing(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSyncStateRepository(db)

	mock.ExpectExec(`UPDATE "sync_states" SET .*WHERE status = `).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.ResetStaleSyncing(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
