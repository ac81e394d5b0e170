package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"credit-settlement/internal/domain"
)

type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "UNPAID"   // created by the checkout flow, awaiting a transfer
	PaymentStatusPaid     PaymentStatus = "PAID"     // settled exactly once
	PaymentStatusCanceled PaymentStatus = "CANCELED" // canceled by the user or an admin
	PaymentStatusOverdue  PaymentStatus = "OVERDUE"  // expired before a transfer arrived
)

// IsTerminal reports whether no further transition is allowed from s.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusPaid || s == PaymentStatusCanceled || s == PaymentStatusOverdue
}

type PaymentType string

const (
	PaymentTypeCredits      PaymentType = "credits"
	PaymentTypeSubscription PaymentType = "subscription"
)

// Payment is one expected inbound bank transfer.
type Payment struct {
	ID          string        // dashless UUID, this is what the user types into the transfer memo
	UserID      string        // UUID
	Amount      int64         // expected amount in the smallest currency unit
	PaidAmount  *int64        // actual amount received, set on settlement
	Type        PaymentType   // credits | subscription
	Status      PaymentStatus // see constants above
	ProviderRef *string       // provider reference code of the settling transfer
	UpdatedBy   string        // actor tag of the last mutation, e.g. SEPAY_WEBHOOK
	CreatedAt   time.Time
	UpdatedAt   time.Time
	PaidAt      *time.Time
}

// NewPaymentID returns a memo-safe identifier. Banks strip punctuation from transfer
// content, so the id is the lowercase hex of a UUID without dashes.
func NewPaymentID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewPayment validates and constructs an UNPAID payment.
func NewPayment(userID string, amount int64, typ PaymentType) (*Payment, error) {
	if userID == "" || amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if typ != PaymentTypeCredits && typ != PaymentTypeSubscription {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Payment{
		ID:        NewPaymentID(),
		UserID:    userID,
		Amount:    amount,
		Type:      typ,
		Status:    PaymentStatusUnpaid,
		UpdatedBy: "SYSTEM",
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// SettleCheck classifies whether a payment in its current status may be settled.
// It returns nil for UNPAID, ErrPaymentAlreadyProcessed for PAID and
// ErrPaymentNotPayable for CANCELED or OVERDUE.
//
// This is only a fast-path pre-check. The authoritative guard is the conditional
// update in the payment store.
func (p *Payment) SettleCheck() error {
	switch p.Status {
	case PaymentStatusUnpaid:
		return nil
	case PaymentStatusPaid:
		return domain.ErrPaymentAlreadyProcessed
	case PaymentStatusCanceled, PaymentStatusOverdue:
		return domain.ErrPaymentNotPayable
	default:
		return domain.ErrInvalidArgument
	}
}

// MarkPaid carries the fields written by the guarded UNPAID -> PAID update.
type MarkPaid struct {
	PaymentID   string
	PaidAmount  int64
	ProviderRef string
	Actor       string
	PaidAt      time.Time
}
