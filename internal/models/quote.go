package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type QuoteStatus string

const (
	QuoteEntered       QuoteStatus = "ENTERED"
	QuotePosted        QuoteStatus = "POSTED"
	QuoteApproved      QuoteStatus = "APPROVED"
	QuoteBindRequested QuoteStatus = "BIND_REQUESTED"
	QuoteBound         QuoteStatus = "BOUND"
	QuoteDeclined      QuoteStatus = "DECLINED"
)

func (s QuoteStatus) IsTerminal() bool {
	return s == QuoteBound || s == QuoteDeclined
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
)

type FeeKind string

const (
	FeeKindFee FeeKind = "FEE"
	FeeKindTax FeeKind = "TAX"
)

// FeeComponent is one declared addition to the carrier premium.
type FeeComponent struct {
	Name      string          `json:"name"`
	Kind      FeeKind         `json:"kind"`
	AmountUSD decimal.Decimal `json:"amountUSD"`
}

// Quote is a carrier-priced offer for a submission. FinalAmountUSD is
// always derived from CarrierQuoteUSD and FeeComponents.
type Quote struct {
	ID              string          `json:"id"`
	SubmissionID    string          `json:"submissionId"`
	CarrierID       string          `json:"carrierId"`
	CarrierQuoteUSD decimal.Decimal `json:"carrierQuoteUSD"`
	FeeComponents   []FeeComponent  `json:"feeComponents"`
	FinalAmountUSD  decimal.Decimal `json:"finalAmountUSD"`
	Status          QuoteStatus     `json:"status"`
	PaymentStatus   PaymentStatus   `json:"paymentStatus"`
	EnteredBy       string          `json:"enteredBy,omitempty"`
	PostedAt        *time.Time      `json:"postedAt,omitempty"`
	ApprovedAt      *time.Time      `json:"approvedAt,omitempty"`
	BoundAt         *time.Time      `json:"boundAt,omitempty"`
	DeclinedAt      *time.Time      `json:"declinedAt,omitempty"`
	DeclineReason   string          `json:"declineReason,omitempty"`
	Version         int64           `json:"version"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func (q *Quote) Clone() *Quote {
	if q == nil {
		return nil
	}
	out := *q
	out.FeeComponents = append([]FeeComponent(nil), q.FeeComponents...)
	return &out
}

// SumComponents returns carrierQuote plus every fee and tax component.
func SumComponents(carrierQuote decimal.Decimal, components []FeeComponent) decimal.Decimal {
	total := carrierQuote
	for _, c := range components {
		total = total.Add(c.AmountUSD)
	}
	return total
}
