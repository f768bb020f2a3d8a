package models

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockRepository(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 logger.Discard,
	})
	require.NoError(t, err)

	return NewRepositoryFromDB(db), mock
}

func TestTransitionCampaign(t *testing.T) {
	ctx := context.Background()
	from := []CampaignStatus{CampaignDraft, CampaignScheduled}

	t.Run("moves a startable campaign", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "campaigns" SET`)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.TransitionCampaign(ctx, 4, from, CampaignSending))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("loses the race", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "campaigns" SET`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "campaigns"`)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		err := repo.TransitionCampaign(ctx, 4, from, CampaignSending)
		assert.ErrorIs(t, err, ErrConflict)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown campaign", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "campaigns" SET`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "campaigns"`)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		err := repo.TransitionCampaign(ctx, 4, from, CampaignCanceled)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestFinishCampaignRequiresSending(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "campaigns" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.FinishCampaign(context.Background(), 9, CampaignSent, 3, 0, time.Now())
	assert.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCampaignNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "campaigns"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	_, err := repo.GetCampaign(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteCampaignWhileSending(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "campaigns"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow(9, string(CampaignSending)))

	err := repo.DeleteCampaign(context.Background(), 9)
	assert.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCustomerStatusCountsScopedToBranch(t *testing.T) {
	repo, mock := newMockRepository(t)
	branch := uint(3)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT status, COUNT(*) AS count FROM customers WHERE customers.deleted_at IS NULL AND branch_id = $1 GROUP BY status ORDER BY status`)).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("consultation", 4).
			AddRow("registered", 9))

	rows, err := repo.CustomerStatusCounts(context.Background(), &branch)
	require.NoError(t, err)
	assert.Equal(t, []StatusCount{{Status: "consultation", Count: 4}, {Status: "registered", Count: 9}}, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRevenueSince(t *testing.T) {
	repo, mock := newMockRepository(t)
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(SUM(paid_amount), 0) AS amount FROM memberships`)).
		WillReturnRows(sqlmock.NewRows([]string{"amount"}).AddRow("1250.50"))

	amount, err := repo.RevenueSince(context.Background(), nil, since)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1250.5").Equal(amount))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTranslate(t *testing.T) {
	assert.NoError(t, translate(nil))
	assert.ErrorIs(t, translate(gorm.ErrRecordNotFound), ErrNotFound)
	assert.ErrorIs(t, translate(gorm.ErrDuplicatedKey), ErrDuplicate)
	assert.ErrorIs(t, translate(gorm.ErrForeignKeyViolated), ErrInUse)

	other := errors.New("connection reset")
	assert.Equal(t, other, translate(other))
}
