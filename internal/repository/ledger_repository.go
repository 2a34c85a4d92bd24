package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/community-resource-hub/internal/model"
)

// LedgerRepo provides access to the resource_balances table. Rows are
// keyed by user id internally but every method takes the username, the
// identity key used throughout the system, and joins through users.
//
// Only the exchange service mutates balances, and only inside its
// settlement transaction; the Tx variants exist for that caller. The
// non-negativity invariant is enforced twice: the quantity column is
// UNSIGNED, and DebitTx refuses to update a row below zero.
type LedgerRepo struct{ DB *sql.DB }

func NewLedgerRepo(db *sql.DB) *LedgerRepo { return &LedgerRepo{DB: db} }

// Seed inserts a zero balance row for every resource kind for a new user.
// Called once at registration; INSERT IGNORE makes a retry harmless.
func (r *LedgerRepo) Seed(ctx context.Context, userID uint64) error {
	const q = `INSERT IGNORE INTO resource_balances (user_id, kind, quantity) VALUES (?, ?, 0)`
	for _, kind := range model.ResourceKinds {
		if _, err := r.DB.ExecContext(ctx, q, userID, string(kind)); err != nil {
			return err
		}
	}
	return nil
}

// Balances returns every balance row for the identity. An identity with no
// rows at all yields ErrLedgerNotFound, which is distinct from holding a
// zero balance of every kind (seeded users always have three rows).
func (r *LedgerRepo) Balances(ctx context.Context, username string) (model.Balances, error) {
	const q = `SELECT rb.kind, rb.quantity
	             FROM resource_balances rb
	             JOIN users u ON u.id = rb.user_id
	            WHERE u.username = ?`
	rows, err := r.DB.QueryContext(ctx, q, NormalizeUsername(username))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	balances := make(model.Balances)
	for rows.Next() {
		var (
			kind     string
			quantity uint64
		)
		if err := rows.Scan(&kind, &quantity); err != nil {
			return nil, err
		}
		balances[model.ResourceKind(kind)] = quantity
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(balances) == 0 {
		return nil, ErrLedgerNotFound
	}
	return balances, nil
}

// Balance reads a single (identity, kind) quantity without any lock. This
// is the advisory read used at request creation time; it may be stale by
// the time the request is approved.
func (r *LedgerRepo) Balance(ctx context.Context, username string, kind model.ResourceKind) (uint64, error) {
	const q = `SELECT rb.quantity
	             FROM resource_balances rb
	             JOIN users u ON u.id = rb.user_id
	            WHERE u.username = ? AND rb.kind = ?`
	var quantity uint64
	err := r.DB.QueryRowContext(ctx, q, NormalizeUsername(username), string(kind)).Scan(&quantity)
	if err == sql.ErrNoRows {
		return 0, ErrLedgerNotFound
	}
	if err != nil {
		return 0, err
	}
	return quantity, nil
}

// BalanceForUpdateTx reads a single quantity under a row lock inside the
// given transaction. Settlement acquires its two locks through this method
// in lexicographic username order to avoid deadlock.
func (r *LedgerRepo) BalanceForUpdateTx(ctx context.Context, tx *sql.Tx, username string, kind model.ResourceKind) (uint64, error) {
	const q = `SELECT rb.quantity
	             FROM resource_balances rb
	             JOIN users u ON u.id = rb.user_id
	            WHERE u.username = ? AND rb.kind = ?
	              FOR UPDATE`
	var quantity uint64
	err := tx.QueryRowContext(ctx, q, NormalizeUsername(username), string(kind)).Scan(&quantity)
	if err == sql.ErrNoRows {
		return 0, ErrLedgerNotFound
	}
	if err != nil {
		return 0, err
	}
	return quantity, nil
}

// CreditTx adds amount to the (identity, kind) balance inside the given
// transaction. The caller guarantees amount > 0.
func (r *LedgerRepo) CreditTx(ctx context.Context, tx *sql.Tx, username string, kind model.ResourceKind, amount uint64) error {
	const q = `UPDATE resource_balances rb
	             JOIN users u ON u.id = rb.user_id
	              SET rb.quantity = rb.quantity + ?
	            WHERE u.username = ? AND rb.kind = ?`
	res, err := tx.ExecContext(ctx, q, amount, NormalizeUsername(username), string(kind))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrLedgerNotFound
	}
	return nil
}

// DebitTx subtracts amount from the (identity, kind) balance inside the
// given transaction, refusing to go below zero. The caller guarantees
// amount > 0. A zero-row update means either the row is missing or the
// balance is too low; the follow-up locked read tells the two apart.
func (r *LedgerRepo) DebitTx(ctx context.Context, tx *sql.Tx, username string, kind model.ResourceKind, amount uint64) error {
	const q = `UPDATE resource_balances rb
	             JOIN users u ON u.id = rb.user_id
	              SET rb.quantity = rb.quantity - ?
	            WHERE u.username = ? AND rb.kind = ? AND rb.quantity >= ?`
	res, err := tx.ExecContext(ctx, q, amount, NormalizeUsername(username), string(kind), amount)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, berr := r.BalanceForUpdateTx(ctx, tx, username, kind); berr != nil {
			return berr
		}
		return ErrInsufficientBalance
	}
	return nil
}
