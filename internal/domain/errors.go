package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNoSession          = errors.New("no active session")

	// Ticket errors
	ErrTicketNotFound   = errors.New("waste not found")
	ErrCreateRejected   = errors.New("failed to create waste ticket")
	ErrNoWasteDetected  = errors.New("no waste detected")
	ErrProofRequired    = errors.New("proof photo required")

	// Lifecycle errors
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrRoleNotAllowed    = errors.New("role not allowed for this transition")
	ErrTicketClaimed     = errors.New("ticket already claimed by another collector")

	// Reward errors
	ErrInsufficientPoints = errors.New("insufficient eco points")
	ErrUnknownVoucher     = errors.New("unknown voucher")
)
