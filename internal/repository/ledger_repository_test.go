package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/community-resource-hub/internal/model"
)

func newLedgerFixture(t *testing.T) (*LedgerRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewLedgerRepo(db), mock
}

func beginTx(t *testing.T, db *sql.DB) *sql.Tx {
	t.Helper()
	tx, err := db.Begin()
	require.NoError(t, err)
	return tx
}

func TestBalancesReturnsEveryKind(t *testing.T) {
	repo, mock := newLedgerFixture(t)

	mock.ExpectQuery(`SELECT rb\.kind, rb\.quantity FROM resource_balances rb JOIN users u ON u\.id = rb\.user_id WHERE u\.username = \?`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"kind", "quantity"}).
			AddRow("WATER", 3).
			AddRow("BREAD", 0).
			AddRow("MEDICINE", 12))

	balances, err := repo.Balances(context.Background(), "Alice")
	require.NoError(t, err)
	assert.Equal(t, model.Balances{
		model.ResourceWater:    3,
		model.ResourceBread:    0,
		model.ResourceMedicine: 12,
	}, balances)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBalancesUnknownIdentity(t *testing.T) {
	repo, mock := newLedgerFixture(t)

	mock.ExpectQuery(`SELECT rb\.kind, rb\.quantity`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"kind", "quantity"}))

	_, err := repo.Balances(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrLedgerNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBalanceUnknownIdentity(t *testing.T) {
	repo, mock := newLedgerFixture(t)

	mock.ExpectQuery(`SELECT rb\.quantity`).
		WithArgs("ghost", "WATER").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Balance(context.Background(), "ghost", model.ResourceWater)
	assert.ErrorIs(t, err, ErrLedgerNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDebitTxRefusesToGoNegative(t *testing.T) {
	repo, mock := newLedgerFixture(t)

	// The guarded update touches zero rows, and the follow-up locked read
	// finds the row with too little in it: the balance is the problem, not
	// a missing ledger.
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE resource_balances rb .* SET rb\.quantity = rb\.quantity - \?`).
		WithArgs(5, "alice", "BREAD", 5).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT rb\.quantity .* FOR UPDATE`).
		WithArgs("alice", "BREAD").
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(2))

	tx := beginTx(t, repo.DB)
	err := repo.DebitTx(context.Background(), tx, "alice", model.ResourceBread, 5)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDebitTxUnknownIdentity(t *testing.T) {
	repo, mock := newLedgerFixture(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE resource_balances rb .* SET rb\.quantity = rb\.quantity - \?`).
		WithArgs(1, "ghost", "WATER", 1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT rb\.quantity .* FOR UPDATE`).
		WithArgs("ghost", "WATER").
		WillReturnError(sql.ErrNoRows)

	tx := beginTx(t, repo.DB)
	err := repo.DebitTx(context.Background(), tx, "ghost", model.ResourceWater, 1)
	assert.ErrorIs(t, err, ErrLedgerNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditTxUnknownIdentity(t *testing.T) {
	repo, mock := newLedgerFixture(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE resource_balances rb .* SET rb\.quantity = rb\.quantity \+ \?`).
		WithArgs(1, "ghost", "WATER").
		WillReturnResult(sqlmock.NewResult(0, 0))

	tx := beginTx(t, repo.DB)
	err := repo.CreditTx(context.Background(), tx, "ghost", model.ResourceWater, 1)
	assert.ErrorIs(t, err, ErrLedgerNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeedInsertsZeroRowForEveryKind(t *testing.T) {
	repo, mock := newLedgerFixture(t)

	for _, kind := range model.ResourceKinds {
		mock.ExpectExec(`INSERT IGNORE INTO resource_balances \(user_id, kind, quantity\) VALUES \(\?, \?, 0\)`).
			WithArgs(11, string(kind)).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	require.NoError(t, repo.Seed(context.Background(), 11))
	assert.NoError(t, mock.ExpectationsWereMet())
}
