package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/community-resource-hub/internal/metrics"
	"github.com/iliyamo/community-resource-hub/internal/model"
	"github.com/iliyamo/community-resource-hub/internal/queue"
	"github.com/iliyamo/community-resource-hub/internal/realtime"
	"github.com/iliyamo/community-resource-hub/internal/repository"
)

// RequestEventPayload is the data carried by every request:* event and by
// the exchange API's JSON responses.
type RequestEventPayload struct {
	ID           string `json:"id"`
	Requester    string `json:"requester"`
	Counterparty string `json:"counterparty"`
	Kind         string `json:"kind"`
	Quantity     uint64 `json:"quantity"`
	CreatedAt    string `json:"created_at,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

func payloadFor(req model.TransferRequest) RequestEventPayload {
	return RequestEventPayload{
		ID:           req.PublicID,
		Requester:    req.Requester,
		Counterparty: req.Counterparty,
		Kind:         string(req.Kind),
		Quantity:     req.Quantity,
		CreatedAt:    req.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ExchangeService coordinates the lifecycle of transfer requests: a
// proposed movement of one resource kind from the counterparty's ledger to
// the requester's. Pending requests live in the store; every terminal
// transition deletes the row, notifies the parties over their live
// connections and publishes an audit event.
//
// Settlement is the only path that mutates balances. It runs in a single
// database transaction that locks the request row, then both parties'
// balance rows in lexicographic username order, re-reads the current
// quantities under those locks (never trusting the creation-time check),
// and applies debit+credit so that both are visible or neither is.
type ExchangeService struct {
	db        *sql.DB
	ledger    *LedgerService
	transfers *repository.TransferRepo
	users     *repository.UserRepo
	hub       *realtime.Hub
	publish   func(context.Context, queue.TransferResolvedEvent) error
}

func NewExchangeService(db *sql.DB, ledger *LedgerService, transfers *repository.TransferRepo, users *repository.UserRepo, hub *realtime.Hub) *ExchangeService {
	return &ExchangeService{
		db:        db,
		ledger:    ledger,
		transfers: transfers,
		users:     users,
		hub:       hub,
		publish:   PublishTransferResolved,
	}
}

// Create validates and persists a pending transfer request from requester
// asking counterparty for quantity units of kind, then notifies both
// parties. The balance check here is advisory only — a stale, lock-free
// read. It rejects requests that are already hopeless, but a request that
// passes can still be denied at approval time once the balances are
// re-read under locks.
func (s *ExchangeService) Create(ctx context.Context, requester, counterparty string, kind model.ResourceKind, quantity uint64) (model.TransferRequest, error) {
	requester = repository.NormalizeUsername(requester)
	counterparty = repository.NormalizeUsername(counterparty)
	if quantity == 0 || !kind.Valid() {
		return model.TransferRequest{}, ErrInvalidQuantity
	}
	if requester == "" || counterparty == "" || requester == counterparty {
		return model.TransferRequest{}, repository.ErrUserNotFound
	}
	ok, err := s.users.Exists(ctx, counterparty)
	if err != nil {
		return model.TransferRequest{}, fmt.Errorf("lookup counterparty: %w", err)
	}
	if !ok {
		return model.TransferRequest{}, repository.ErrUserNotFound
	}

	available, err := s.ledger.Balance(ctx, counterparty, kind)
	if err != nil {
		return model.TransferRequest{}, err
	}
	if available < quantity {
		return model.TransferRequest{}, repository.ErrInsufficientBalance
	}

	req := model.TransferRequest{
		PublicID:     uuid.NewString(),
		Requester:    requester,
		Counterparty: counterparty,
		Kind:         kind,
		Quantity:     quantity,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.transfers.Create(ctx, &req); err != nil {
		return model.TransferRequest{}, fmt.Errorf("persist request: %w", err)
	}

	s.hub.Send(counterparty, realtime.EventRequestReceived, payloadFor(req))
	s.hub.Send(requester, realtime.EventRequestSent, payloadFor(req))
	return req, nil
}

// Approve settles the request on behalf of the counterparty. The outcome
// is one of:
//   - settled: balances moved, request deleted, both parties notified;
//   - denied: the counterparty's re-read balance no longer covers the
//     quantity, so the request is deleted, the requester is notified, and
//     repository.ErrInsufficientBalance is returned — the caller reports
//     this as a processed denial, not a system error;
//   - repository.ErrRequestNotFound: someone else resolved the request
//     first; nothing changed, no notifications.
func (s *ExchangeService) Approve(ctx context.Context, requestID, approver string) (model.TransferRequest, error) {
	approver = repository.NormalizeUsername(approver)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.TransferRequest{}, fmt.Errorf("begin settlement: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	req, err := s.transfers.GetByPublicIDTx(ctx, tx, requestID)
	if err != nil {
		return model.TransferRequest{}, err
	}
	if req.Counterparty != approver {
		return model.TransferRequest{}, repository.ErrForbidden
	}

	// Lock both balance rows in lexicographic username order, then read the
	// current quantities. The creation-time check is stale by now and is
	// deliberately ignored.
	first, second := req.Requester, req.Counterparty
	if first > second {
		first, second = second, first
	}
	firstBal, err := s.ledger.repo.BalanceForUpdateTx(ctx, tx, first, req.Kind)
	if err != nil {
		return model.TransferRequest{}, err
	}
	secondBal, err := s.ledger.repo.BalanceForUpdateTx(ctx, tx, second, req.Kind)
	if err != nil {
		return model.TransferRequest{}, err
	}
	counterpartyBal := firstBal
	if req.Counterparty == second {
		counterpartyBal = secondBal
	}

	if counterpartyBal < req.Quantity {
		// Denial: the request is consumed but no balance moves.
		if err := s.transfers.DeleteTx(ctx, tx, requestID); err != nil {
			return model.TransferRequest{}, err
		}
		if err := tx.Commit(); err != nil {
			return model.TransferRequest{}, fmt.Errorf("commit denial: %w", err)
		}
		committed = true

		denied := payloadFor(req)
		denied.Reason = "insufficient resources"
		s.hub.Send(req.Requester, realtime.EventRequestDenied, denied)
		metrics.TransfersResolved.WithLabelValues("denied").Inc()
		s.audit(req, queue.OutcomeDenied)
		return req, repository.ErrInsufficientBalance
	}

	if err := s.ledger.DebitTx(ctx, tx, req.Counterparty, req.Kind, req.Quantity); err != nil {
		return model.TransferRequest{}, err
	}
	if err := s.ledger.CreditTx(ctx, tx, req.Requester, req.Kind, req.Quantity); err != nil {
		return model.TransferRequest{}, err
	}
	if err := s.transfers.DeleteTx(ctx, tx, requestID); err != nil {
		return model.TransferRequest{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.TransferRequest{}, fmt.Errorf("commit settlement: %w", err)
	}
	committed = true

	settled := payloadFor(req)
	s.hub.Send(req.Requester, realtime.EventRequestApproved, settled)
	s.hub.Send(req.Counterparty, realtime.EventRequestApproved, settled)
	s.ledger.NotifyUpdated()
	metrics.TransfersResolved.WithLabelValues("settled").Inc()
	s.audit(req, queue.OutcomeSettled)
	return req, nil
}

// Reject deletes the request without touching any balance and notifies the
// requester. Only the counterparty may reject. A request that is already
// gone yields repository.ErrRequestNotFound and no duplicate notification.
func (s *ExchangeService) Reject(ctx context.Context, requestID, caller string) (model.TransferRequest, error) {
	caller = repository.NormalizeUsername(caller)
	req, err := s.transfers.GetByPublicID(ctx, requestID)
	if err != nil {
		return model.TransferRequest{}, err
	}
	if req.Counterparty != caller {
		return model.TransferRequest{}, repository.ErrForbidden
	}
	// The delete is the authoritative step: if a concurrent approve won the
	// race between our read and here, zero rows are affected and the caller
	// learns the request was already resolved.
	if err := s.transfers.Delete(ctx, requestID); err != nil {
		return model.TransferRequest{}, err
	}

	s.hub.Send(req.Requester, realtime.EventRequestRejected, payloadFor(req))
	metrics.TransfersResolved.WithLabelValues("rejected").Inc()
	s.audit(req, queue.OutcomeRejected)
	return req, nil
}

// Withdraw deletes the request on behalf of its original requester and
// notifies both parties. Only the requester may withdraw.
func (s *ExchangeService) Withdraw(ctx context.Context, requestID, caller string) (model.TransferRequest, error) {
	caller = repository.NormalizeUsername(caller)
	req, err := s.transfers.GetByPublicID(ctx, requestID)
	if err != nil {
		return model.TransferRequest{}, err
	}
	if req.Requester != caller {
		return model.TransferRequest{}, repository.ErrForbidden
	}
	if err := s.transfers.Delete(ctx, requestID); err != nil {
		return model.TransferRequest{}, err
	}

	withdrawn := payloadFor(req)
	s.hub.Send(req.Requester, realtime.EventRequestWithdrawn, withdrawn)
	s.hub.Send(req.Counterparty, realtime.EventRequestWithdrawn, withdrawn)
	metrics.TransfersResolved.WithLabelValues("withdrawn").Inc()
	s.audit(req, queue.OutcomeWithdrawn)
	return req, nil
}

// ListInvolving returns the caller's pending requests, both directions.
func (s *ExchangeService) ListInvolving(ctx context.Context, username string) ([]model.TransferRequest, error) {
	return s.transfers.ListInvolving(ctx, username)
}

// audit publishes the terminal transition to the durable audit queue in the
// background. The request row is already gone, so this event is the only
// record of the resolution; publish failures are logged by the publisher
// but never fail the caller.
func (s *ExchangeService) audit(req model.TransferRequest, outcome string) {
	ev := queue.TransferResolvedEvent{
		RequestID:    req.PublicID,
		Requester:    req.Requester,
		Counterparty: req.Counterparty,
		Kind:         string(req.Kind),
		Quantity:     req.Quantity,
		Outcome:      outcome,
		ResolvedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.publish(ctx, ev)
	}()
}
