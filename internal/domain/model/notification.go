package model

import "strings"

type TransferType string

const (
	TransferIn  TransferType = "in"
	TransferOut TransferType = "out"
)

// TransferNotification is the payload the bank gateway posts for every account movement.
type TransferNotification struct {
	ID              int64        `json:"id"`
	Gateway         string       `json:"gateway"`
	TransactionDate string       `json:"transactionDate"`
	AccountNumber   string       `json:"accountNumber"`
	Code            *string      `json:"code"`
	Content         string       `json:"content"`
	TransferType    TransferType `json:"transferType"`
	TransferAmount  int64        `json:"transferAmount"`
	Accumulated     int64        `json:"accumulated"`
	SubAccount      *string      `json:"subAccount"`
	ReferenceCode   string       `json:"referenceCode"`
	Description     string       `json:"description"`
}

// IsInbound reports whether the money moved into the merchant account.
func (n *TransferNotification) IsInbound() bool {
	return strings.EqualFold(strings.TrimSpace(string(n.TransferType)), string(TransferIn))
}

// Outcome is the result of processing one notification.
type Outcome string

const (
	OutcomeSettled      Outcome = "settled"
	OutcomeFallback     Outcome = "settled_fallback" // subscription payment settled as credits
	OutcomeIgnored      Outcome = "ignored"          // outbound transfer
	OutcomeUnparsable   Outcome = "unparsable"
	OutcomeNotFound     Outcome = "not_found"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeForbidden    Outcome = "forbidden" // CANCELED or OVERDUE
	OutcomeUnauthorized Outcome = "unauthorized"
	OutcomeFailed       Outcome = "failed" // transient, retry is safe
)

// SettlementResult is returned by the settlement router.
type SettlementResult struct {
	Accepted       bool
	Outcome        Outcome
	Message        string
	PaymentID      string
	UserID         string
	CreditsGranted int64
	Tier           Tier
	BillingCycle   BillingCycle
	FlaggedReview  bool // amount shortfall beyond tolerance, settled anyway
}
