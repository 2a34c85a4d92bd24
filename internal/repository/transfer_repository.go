package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/community-resource-hub/internal/model"
)

// TransferRepo provides access to the transfer_requests table. Rows only
// exist while a request is pending; every terminal transition deletes the
// row, and the delete's affected-row count is the tie-breaker between
// racing resolutions (zero rows affected means someone else resolved it
// first and the caller gets ErrRequestNotFound).
type TransferRepo struct{ DB *sql.DB }

func NewTransferRepo(db *sql.DB) *TransferRepo { return &TransferRepo{DB: db} }

const transferColumns = "id, public_id, requester, counterparty, kind, quantity, created_at"

// Create inserts a pending transfer request and populates the generated ID
// on the provided record. PublicID, usernames, kind and quantity must
// already be set and validated by the caller.
func (r *TransferRepo) Create(ctx context.Context, req *model.TransferRequest) error {
	const q = `INSERT INTO transfer_requests (public_id, requester, counterparty, kind, quantity)
	           VALUES (?, ?, ?, ?, ?)`
	res, err := r.DB.ExecContext(ctx, q,
		req.PublicID, req.Requester, req.Counterparty, string(req.Kind), req.Quantity)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	req.ID = uint64(id)
	return nil
}

// GetByPublicID fetches a pending request by its public UUID.
func (r *TransferRepo) GetByPublicID(ctx context.Context, publicID string) (model.TransferRequest, error) {
	const q = `SELECT ` + transferColumns + ` FROM transfer_requests WHERE public_id = ? LIMIT 1`
	return r.scanOne(r.DB.QueryRowContext(ctx, q, publicID))
}

// GetByPublicIDTx fetches a pending request under a row lock inside the
// given transaction. Settlement locks the request row first so two
// concurrent approvals of the same request serialize here.
func (r *TransferRepo) GetByPublicIDTx(ctx context.Context, tx *sql.Tx, publicID string) (model.TransferRequest, error) {
	const q = `SELECT ` + transferColumns + ` FROM transfer_requests WHERE public_id = ? LIMIT 1 FOR UPDATE`
	return r.scanOne(tx.QueryRowContext(ctx, q, publicID))
}

func (r *TransferRepo) scanOne(row *sql.Row) (model.TransferRequest, error) {
	var (
		req  model.TransferRequest
		kind string
	)
	err := row.Scan(&req.ID, &req.PublicID, &req.Requester, &req.Counterparty,
		&kind, &req.Quantity, &req.CreatedAt)
	if err == sql.ErrNoRows {
		return model.TransferRequest{}, ErrRequestNotFound
	}
	if err != nil {
		return model.TransferRequest{}, err
	}
	req.Kind = model.ResourceKind(kind)
	return req, nil
}

// Delete removes a pending request. Zero rows affected yields
// ErrRequestNotFound: the request was already resolved by someone else.
func (r *TransferRepo) Delete(ctx context.Context, publicID string) error {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM transfer_requests WHERE public_id = ?", publicID)
	if err != nil {
		return err
	}
	return checkDeleted(res)
}

// DeleteTx is Delete inside an existing transaction; settlement uses it so
// the row removal commits atomically with the balance mutations.
func (r *TransferRepo) DeleteTx(ctx context.Context, tx *sql.Tx, publicID string) error {
	res, err := tx.ExecContext(ctx,
		"DELETE FROM transfer_requests WHERE public_id = ?", publicID)
	if err != nil {
		return err
	}
	return checkDeleted(res)
}

func checkDeleted(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRequestNotFound
	}
	return nil
}

// ListInvolving returns the pending requests in which the identity is
// either requester or counterparty, newest first.
func (r *TransferRepo) ListInvolving(ctx context.Context, username string) ([]model.TransferRequest, error) {
	const q = `SELECT ` + transferColumns + `
	             FROM transfer_requests
	            WHERE requester = ? OR counterparty = ?
	            ORDER BY created_at DESC, id DESC`
	username = NormalizeUsername(username)
	rows, err := r.DB.QueryContext(ctx, q, username, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TransferRequest
	for rows.Next() {
		var (
			req  model.TransferRequest
			kind string
		)
		if err := rows.Scan(&req.ID, &req.PublicID, &req.Requester, &req.Counterparty,
			&kind, &req.Quantity, &req.CreatedAt); err != nil {
			return nil, err
		}
		req.Kind = model.ResourceKind(kind)
		out = append(out, req)
	}
	return out, rows.Err()
}
