package admission

import (
	"fmt"
	"time"

	"github.com/renderforge/render-gateway/internal/x402"
)

// Reason is the machine-readable denial taxonomy. Every reason except
// render_failure is decided before the renderer is invoked.
type Reason string

const (
	ReasonAuth            Reason = "auth_error"       // no retry without new credentials
	ReasonPaymentRequired Reason = "payment_required" // quote attached, retry with payment
	ReasonQuotaExceeded   Reason = "quota_exceeded"   // retry next period
	ReasonRateLimited     Reason = "rate_limited"     // retry after window
	ReasonBusy            Reason = "busy"             // retry shortly, no state changed
	ReasonInvalidRequest  Reason = "invalid_request"  // not retryable as-is
	ReasonRenderFailure   Reason = "render_failure"   // upstream fault, no charge incurred
)

// Denial is the admission-layer error. Quote is set only for
// payment_required; RetryAfter only where a retry time is known.
type Denial struct {
	Reason     Reason
	Message    string
	RetryAfter time.Duration
	Quote      *x402.QuoteResponse
	Err        error
}

func (d *Denial) Error() string {
	if d.Err != nil {
		return fmt.Sprintf("%s: %s: %v", d.Reason, d.Message, d.Err)
	}
	return fmt.Sprintf("%s: %s", d.Reason, d.Message)
}

func (d *Denial) Unwrap() error { return d.Err }

func deny(reason Reason, msg string) *Denial {
	return &Denial{Reason: reason, Message: msg}
}

func denyErr(reason Reason, msg string, err error) *Denial {
	return &Denial{Reason: reason, Message: msg, Err: err}
}
