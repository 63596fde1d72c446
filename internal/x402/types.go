// Package x402 implements the per-request micropayment gate: HTTP 402
// quoting, payment-header verification, and post-success settlement.
// Cryptographic validation belongs to the external facilitator; this package
// only shapes the request/response contract.
package x402

import "context"

const ProtocolVersion = 1

// PaymentRequirements describes one accepted way to pay for a resource.
// Field names follow the x402 wire format.
type PaymentRequirements struct {
	Scheme            string `json:"scheme"`
	Network           string `json:"network"`
	MaxAmountRequired string `json:"maxAmountRequired"` // atomic units, decimal string
	Resource          string `json:"resource"`
	Description       string `json:"description,omitempty"`
	MimeType          string `json:"mimeType,omitempty"`
	PayTo             string `json:"payTo"`
	MaxTimeoutSeconds int    `json:"maxTimeoutSeconds,omitempty"`
	Asset             string `json:"asset"`
}

// QuoteResponse is the body of a 402 response; machine-readable so agents
// can retry with payment attached.
type QuoteResponse struct {
	X402Version int                   `json:"x402Version"`
	Error       string                `json:"error,omitempty"`
	Accepts     []PaymentRequirements `json:"accepts"`
}

// VerifyResult is the facilitator's verdict on a payment payload.
type VerifyResult struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResult is the outcome of capturing a verified payment.
type SettleResult struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	TxHash      string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
	Payer       string `json:"payer,omitempty"`
}

// Facilitator validates and settles payment payloads. External network
// calls; both may fail transiently.
type Facilitator interface {
	Verify(ctx context.Context, payload string, req PaymentRequirements) (VerifyResult, error)
	Settle(ctx context.Context, payload string, req PaymentRequirements) (SettleResult, error)
}
