package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/community-resource-hub/internal/model"
	"github.com/iliyamo/community-resource-hub/internal/queue"
	"github.com/iliyamo/community-resource-hub/internal/realtime"
	"github.com/iliyamo/community-resource-hub/internal/repository"
)

// Regexp fragments matched against the whitespace-collapsed queries the
// repositories issue. The balance read and the locked balance read share a
// prefix, so the FOR UPDATE suffix is what tells them apart in WithArgs order.
const (
	qRequestForUpdate = `SELECT id, public_id, requester, counterparty, kind, quantity, created_at FROM transfer_requests WHERE public_id = \? LIMIT 1 FOR UPDATE`
	qRequestGet       = `SELECT id, public_id, requester, counterparty, kind, quantity, created_at FROM transfer_requests WHERE public_id = \? LIMIT 1`
	qBalanceForUpdate = `SELECT rb\.quantity FROM resource_balances rb JOIN users u ON u\.id = rb\.user_id WHERE u\.username = \? AND rb\.kind = \? FOR UPDATE`
	qBalance          = `SELECT rb\.quantity FROM resource_balances rb JOIN users u ON u\.id = rb\.user_id WHERE u\.username = \? AND rb\.kind = \?`
	qDebit            = `UPDATE resource_balances rb JOIN users u ON u\.id = rb\.user_id SET rb\.quantity = rb\.quantity - \? WHERE u\.username = \? AND rb\.kind = \? AND rb\.quantity >= \?`
	qCredit           = `UPDATE resource_balances rb JOIN users u ON u\.id = rb\.user_id SET rb\.quantity = rb\.quantity \+ \? WHERE u\.username = \? AND rb\.kind = \?`
	qDeleteRequest    = `DELETE FROM transfer_requests WHERE public_id = \?`
	qUserExists       = `SELECT 1 FROM users WHERE username=\? AND is_active=1 LIMIT 1`
	qInsertRequest    = `INSERT INTO transfer_requests \(public_id, requester, counterparty, kind, quantity\) VALUES \(\?, \?, \?, \?, \?\)`
)

func newExchangeFixture(t *testing.T) (*ExchangeService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	hub := realtime.NewHub()
	ledger := NewLedgerService(repository.NewLedgerRepo(db), hub)
	svc := NewExchangeService(db, ledger, repository.NewTransferRepo(db), repository.NewUserRepo(db), hub)
	svc.publish = func(context.Context, queue.TransferResolvedEvent) error { return nil }
	return svc, mock
}

func requestRow(publicID, requester, counterparty string, kind model.ResourceKind, quantity uint64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "public_id", "requester", "counterparty", "kind", "quantity", "created_at"}).
		AddRow(7, publicID, requester, counterparty, string(kind), quantity, time.Now().UTC())
}

func TestApproveSettlesAndConservesQuantity(t *testing.T) {
	svc, mock := newExchangeFixture(t)

	// bob asked alice for 2 WATER; alice approves. The debit and the credit
	// carry the same amount and kind and happen inside one transaction, with
	// the balance rows locked in lexicographic order (alice before bob).
	mock.ExpectBegin()
	mock.ExpectQuery(qRequestForUpdate).WithArgs("req-1").
		WillReturnRows(requestRow("req-1", "bob", "alice", model.ResourceWater, 2))
	mock.ExpectQuery(qBalanceForUpdate).WithArgs("alice", "WATER").
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(5))
	mock.ExpectQuery(qBalanceForUpdate).WithArgs("bob", "WATER").
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(0))
	mock.ExpectExec(qDebit).WithArgs(2, "alice", "WATER", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(qCredit).WithArgs(2, "bob", "WATER").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(qDeleteRequest).WithArgs("req-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	req, err := svc.Approve(context.Background(), "req-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "bob", req.Requester)
	assert.Equal(t, model.ResourceWater, req.Kind)
	assert.Equal(t, uint64(2), req.Quantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveDeniedWhenBalanceDroppedBelowQuantity(t *testing.T) {
	svc, mock := newExchangeFixture(t)

	// The re-read under lock finds 1 < 3: the request is consumed without
	// moving any balance, the commit still happens, and the caller sees the
	// insufficiency sentinel to report a denial rather than an error.
	mock.ExpectBegin()
	mock.ExpectQuery(qRequestForUpdate).WithArgs("req-2").
		WillReturnRows(requestRow("req-2", "bob", "alice", model.ResourceBread, 3))
	mock.ExpectQuery(qBalanceForUpdate).WithArgs("alice", "BREAD").
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(1))
	mock.ExpectQuery(qBalanceForUpdate).WithArgs("bob", "BREAD").
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(9))
	mock.ExpectExec(qDeleteRequest).WithArgs("req-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	req, err := svc.Approve(context.Background(), "req-2", "alice")
	assert.ErrorIs(t, err, repository.ErrInsufficientBalance)
	assert.Equal(t, "req-2", req.PublicID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveUnknownRequestRollsBack(t *testing.T) {
	svc, mock := newExchangeFixture(t)

	mock.ExpectBegin()
	mock.ExpectQuery(qRequestForUpdate).WithArgs("gone").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := svc.Approve(context.Background(), "gone", "alice")
	assert.ErrorIs(t, err, repository.ErrRequestNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveByNonCounterpartyIsForbidden(t *testing.T) {
	svc, mock := newExchangeFixture(t)

	mock.ExpectBegin()
	mock.ExpectQuery(qRequestForUpdate).WithArgs("req-3").
		WillReturnRows(requestRow("req-3", "bob", "alice", model.ResourceMedicine, 1))
	mock.ExpectRollback()

	_, err := svc.Approve(context.Background(), "req-3", "mallory")
	assert.ErrorIs(t, err, repository.ErrForbidden)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePersistsNormalizedRequest(t *testing.T) {
	svc, mock := newExchangeFixture(t)

	mock.ExpectQuery(qUserExists).WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(qBalance).WithArgs("alice", "WATER").
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(5))
	mock.ExpectExec(qInsertRequest).
		WithArgs(sqlmock.AnyArg(), "bob", "alice", "WATER", 2).
		WillReturnResult(sqlmock.NewResult(42, 1))

	req, err := svc.Create(context.Background(), "Bob", "Alice", model.ResourceWater, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), req.ID)
	assert.NotEmpty(t, req.PublicID)
	assert.Equal(t, "bob", req.Requester)
	assert.Equal(t, "alice", req.Counterparty)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRejectsHopelessRequest(t *testing.T) {
	svc, mock := newExchangeFixture(t)

	// The advisory read already shows the counterparty cannot cover the
	// quantity, so nothing is persisted.
	mock.ExpectQuery(qUserExists).WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(qBalance).WithArgs("alice", "BREAD").
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(1))

	_, err := svc.Create(context.Background(), "bob", "alice", model.ResourceBread, 4)
	assert.ErrorIs(t, err, repository.ErrInsufficientBalance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateValidation(t *testing.T) {
	svc, mock := newExchangeFixture(t)

	_, err := svc.Create(context.Background(), "bob", "alice", model.ResourceWater, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Create(context.Background(), "bob", "alice", model.ResourceKind("GOLD"), 1)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Create(context.Background(), "bob", "Bob", model.ResourceWater, 1)
	assert.ErrorIs(t, err, repository.ErrUserNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUnknownCounterparty(t *testing.T) {
	svc, mock := newExchangeFixture(t)

	mock.ExpectQuery(qUserExists).WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := svc.Create(context.Background(), "bob", "ghost", model.ResourceWater, 1)
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRejectByCounterparty(t *testing.T) {
	svc, mock := newExchangeFixture(t)

	mock.ExpectQuery(qRequestGet).WithArgs("req-4").
		WillReturnRows(requestRow("req-4", "bob", "alice", model.ResourceWater, 1))
	mock.ExpectExec(qDeleteRequest).WithArgs("req-4").
		WillReturnResult(sqlmock.NewResult(0, 1))

	req, err := svc.Reject(context.Background(), "req-4", "alice")
	require.NoError(t, err)
	assert.Equal(t, "req-4", req.PublicID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRejectLosesRaceToConcurrentResolution(t *testing.T) {
	svc, mock := newExchangeFixture(t)

	// The read still sees the row but the delete affects zero rows: an
	// approve slipped in between, and the caller learns the request is gone.
	mock.ExpectQuery(qRequestGet).WithArgs("req-5").
		WillReturnRows(requestRow("req-5", "bob", "alice", model.ResourceWater, 1))
	mock.ExpectExec(qDeleteRequest).WithArgs("req-5").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := svc.Reject(context.Background(), "req-5", "alice")
	assert.ErrorIs(t, err, repository.ErrRequestNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawOnlyByRequester(t *testing.T) {
	svc, mock := newExchangeFixture(t)

	mock.ExpectQuery(qRequestGet).WithArgs("req-6").
		WillReturnRows(requestRow("req-6", "bob", "alice", model.ResourceWater, 1))

	_, err := svc.Withdraw(context.Background(), "req-6", "alice")
	assert.ErrorIs(t, err, repository.ErrForbidden)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawDeletesPendingRequest(t *testing.T) {
	svc, mock := newExchangeFixture(t)

	mock.ExpectQuery(qRequestGet).WithArgs("req-7").
		WillReturnRows(requestRow("req-7", "bob", "alice", model.ResourceMedicine, 2))
	mock.ExpectExec(qDeleteRequest).WithArgs("req-7").
		WillReturnResult(sqlmock.NewResult(0, 1))

	req, err := svc.Withdraw(context.Background(), "req-7", "bob")
	require.NoError(t, err)
	assert.Equal(t, model.ResourceMedicine, req.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}
