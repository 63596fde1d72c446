package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoicePending InvoiceStatus = "pending"
	InvoicePaid    InvoiceStatus = "paid"
	InvoiceExpired InvoiceStatus = "expired"
)

func (s InvoiceStatus) String() string {
	return string(s)
}

func (s InvoiceStatus) Valid() bool {
	return s == InvoicePending || s == InvoicePaid || s == InvoiceExpired
}

// Terminal reports whether the status can never change again.
// pending -> paid and pending -> expired are the only transitions.
func (s InvoiceStatus) Terminal() bool {
	return s == InvoicePaid || s == InvoiceExpired
}

// Invoice is a subscription payment intent. The quoted amount carries a
// per-invoice fractional offset so concurrently pending invoices produce
// distinguishable on-chain amounts at a shared receiving address.
type Invoice struct {
	ID            string          `json:"id"`
	Plan          string          `json:"plan"`
	Email         string          `json:"email,omitempty"`
	QuotedAmount  decimal.Decimal `json:"quoted_amount"`
	AmountAtomic  int64           `json:"amount_atomic_units"`
	Status        InvoiceStatus   `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	ExpiresAt     time.Time       `json:"expires_at"`
	TxHash        string          `json:"tx_hash,omitempty"`
	CredentialKey string          `json:"issued_credential_key,omitempty"`
}

func (i Invoice) ExpiredAt(now time.Time) bool {
	return now.After(i.ExpiresAt)
}
