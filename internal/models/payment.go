package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentType string

const (
	PaymentFull        PaymentType = "FULL"
	PaymentDownPayment PaymentType = "DOWN_PAYMENT"
)

// Payment is an append-only ledger entry keyed by quote.
type Payment struct {
	ID               string          `json:"id"`
	QuoteID          string          `json:"quoteId"`
	PaymentType      PaymentType     `json:"paymentType"`
	AmountUSD        decimal.Decimal `json:"amountUSD"`
	PaymentMethod    string          `json:"paymentMethod"`
	FinancePlanID    string          `json:"financePlanId,omitempty"`
	CaptureReference string          `json:"captureReference,omitempty"`
	RecordedBy       string          `json:"recordedBy,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// PaymentRequest is the caller-supplied part of a payment attempt.
type PaymentRequest struct {
	QuoteID       string          `json:"quoteId"`
	PaymentType   PaymentType     `json:"paymentType"`
	AmountUSD     decimal.Decimal `json:"amountUSD"`
	PaymentMethod string          `json:"paymentMethod"`
	FinancePlanID string          `json:"financePlanId,omitempty"`
}
