// Package repository is the data access layer. It defines sentinel error
// values reused across repositories so that higher layers such as handlers
// and services can branch on failure scenarios without string matching.
// ErrRequestNotFound in particular encodes the resolution tie-break: when
// approve and withdraw race, the loser's delete affects zero rows and is
// reported as already-resolved rather than retried.
package repository

import "errors"

// ErrUserNotFound is returned when no user exists for the given username
// or id. Handlers should translate this into an HTTP 404 response.
var ErrUserNotFound = errors.New("user not found")

// ErrEmailExists is returned when registration collides with an existing
// email address. Handlers should translate this into an HTTP 409 response.
var ErrEmailExists = errors.New("email already exists")

// ErrUsernameExists is returned when registration collides with an
// existing username. Handlers should translate this into an HTTP 409.
var ErrUsernameExists = errors.New("username already exists")

// ErrLedgerNotFound is returned when an identity has no ledger rows at
// all, which is distinct from holding a zero balance of every kind.
var ErrLedgerNotFound = errors.New("ledger not found")

// ErrInsufficientBalance is returned by a debit that would drive a
// balance below zero. The exchange service propagates it as a denial,
// not a system error.
var ErrInsufficientBalance = errors.New("insufficient balance")

// ErrRequestNotFound is returned when a transfer request does not exist,
// typically because a concurrent approve/reject/withdraw already resolved
// it. Callers must treat it as "already resolved", never retry blindly.
var ErrRequestNotFound = errors.New("transfer request not found")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own, such as withdrawing someone else's transfer
// request. Handlers should translate this into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")
