// Package service contains the business logic that sits between the HTTP
// handlers and the repositories: the resource ledger, the transfer request
// coordinator and the audit event publisher.
package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/community-resource-hub/internal/model"
	"github.com/iliyamo/community-resource-hub/internal/realtime"
	"github.com/iliyamo/community-resource-hub/internal/repository"
)

// ErrInvalidQuantity is returned for a zero quantity or an unknown
// resource kind, before anything touches the store.
var ErrInvalidQuantity = errors.New("quantity must be a positive integer")

// LedgerService owns per-identity resource balances. Reads are served
// directly; mutations exist only as Tx variants because the exchange
// service is the sole writer and always mutates inside its settlement
// transaction so a debit+credit pair commits or vanishes together.
type LedgerService struct {
	repo *repository.LedgerRepo
	hub  *realtime.Hub
}

func NewLedgerService(repo *repository.LedgerRepo, hub *realtime.Hub) *LedgerService {
	return &LedgerService{repo: repo, hub: hub}
}

// Balances returns every kind→quantity for the identity.
// repository.ErrLedgerNotFound distinguishes a missing identity from an
// identity holding zero of everything.
func (s *LedgerService) Balances(ctx context.Context, username string) (model.Balances, error) {
	return s.repo.Balances(ctx, username)
}

// Balance is the advisory, lock-free read of one (identity, kind)
// quantity used when a transfer request is created.
func (s *LedgerService) Balance(ctx context.Context, username string, kind model.ResourceKind) (uint64, error) {
	return s.repo.Balance(ctx, username, kind)
}

// CreditTx adds amount to the balance inside the caller's transaction.
func (s *LedgerService) CreditTx(ctx context.Context, tx *sql.Tx, username string, kind model.ResourceKind, amount uint64) error {
	if amount == 0 || !kind.Valid() {
		return ErrInvalidQuantity
	}
	return s.repo.CreditTx(ctx, tx, username, kind, amount)
}

// DebitTx subtracts amount inside the caller's transaction, returning
// repository.ErrInsufficientBalance rather than ever going negative.
func (s *LedgerService) DebitTx(ctx context.Context, tx *sql.Tx, username string, kind model.ResourceKind, amount uint64) error {
	if amount == 0 || !kind.Valid() {
		return ErrInvalidQuantity
	}
	return s.repo.DebitTx(ctx, tx, username, kind, amount)
}

// NotifyUpdated broadcasts resource:updated to every connected client.
// Called after a mutating transaction commits, never before: clients react
// by refreshing their own view, so the notification is generic and
// deliberately carries no balances.
func (s *LedgerService) NotifyUpdated() {
	s.hub.Broadcast(realtime.EventResourceUpdated, nil)
}
