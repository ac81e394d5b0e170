package model

import (
	"time"

	"github.com/oklog/ulid/v2"
)

type ReconciliationReason string

const (
	ReasonUnparsableMemo  ReconciliationReason = "unparsable_memo"
	ReasonPaymentNotFound ReconciliationReason = "payment_not_found"
	ReasonUnderpaid       ReconciliationReason = "underpaid"
	ReasonNotPayable      ReconciliationReason = "not_payable" // money arrived for a CANCELED/OVERDUE payment
)

// ReconciliationFlag is a notification operations staff must look at by hand.
type ReconciliationFlag struct {
	ID             string // ULID
	Reason         ReconciliationReason
	PaymentID      *string
	ProviderRef    string
	ProviderID     int64
	Amount         int64
	ExpectedAmount *int64
	Content        string
	Note           string
	CreatedAt      time.Time
	ResolvedAt     *time.Time
	ResolvedBy     *string
}

func NewReconciliationFlag(reason ReconciliationReason, n *TransferNotification, note string) *ReconciliationFlag {
	f := &ReconciliationFlag{
		ID:        ulid.Make().String(),
		Reason:    reason,
		Note:      note,
		CreatedAt: time.Now(),
	}
	if n != nil {
		f.ProviderRef = n.ReferenceCode
		f.ProviderID = n.ID
		f.Amount = n.TransferAmount
		f.Content = n.Content
	}
	return f
}
