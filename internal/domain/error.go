package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Settlement errors
	ErrUnauthorized            = errors.New("unauthorized notification")
	ErrPaymentNotFound         = errors.New("payment not found")
	ErrPaymentAlreadyProcessed = errors.New("payment already processed")
	ErrPaymentNotPayable       = errors.New("payment is canceled or overdue")
	ErrMemoUnparsable          = errors.New("no payment identifier in transfer content")

	// Wallet errors
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrWalletNotFound      = errors.New("wallet not found")
)
