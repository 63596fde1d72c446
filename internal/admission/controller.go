// Package admission composes authentication, quota accounting, rate
// limiting, concurrency control, and payment settlement into one
// admit/charge/settle decision per job request.
package admission

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/renderforge/render-gateway/internal/metrics"
	"github.com/renderforge/render-gateway/internal/model"
	"github.com/renderforge/render-gateway/internal/ratelimit"
	"github.com/renderforge/render-gateway/internal/renderer"
	"github.com/renderforge/render-gateway/internal/x402"
)

// RenderRoute is the resource micropayment quotes are issued for.
const RenderRoute = "/v1/render"

// Accounting header names returned alongside a successful render.
const (
	HeaderQuotaRemaining  = "X-Quota-Remaining"
	HeaderPaymentResponse = "X-Payment-Response"
)

// AuthContext is what the HTTP layer extracted from the request: at most
// one funding path is used, payment taking precedence.
type AuthContext struct {
	APIKey        string
	PaymentHeader string
}

// Result is a completed, accounted render.
type Result struct {
	Body        []byte
	ContentType string
	Headers     map[string]string
}

// CredentialSource is the slice of the credential store the controller
// needs.
type CredentialSource interface {
	Lookup(key string) (model.Credential, error)
	RecordUsage(ctx context.Context, key string) error
}

type Controller struct {
	creds    CredentialSource
	limiter  *ratelimit.Limiter
	admitter *Admitter
	gate     *x402.Gate
	rend     renderer.Renderer
	log      *zap.Logger
	now      func() time.Time

	// renderTimeout bounds the render call even when the client is gone;
	// the renderer runs to completion or this deadline, never cancelled by
	// a dropped connection.
	renderTimeout time.Duration
}

func NewController(
	creds CredentialSource,
	limiter *ratelimit.Limiter,
	admitter *Admitter,
	gate *x402.Gate,
	rend renderer.Renderer,
	renderTimeout time.Duration,
	log *zap.Logger,
) *Controller {
	if renderTimeout <= 0 {
		renderTimeout = 60 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		creds:         creds,
		limiter:       limiter,
		admitter:      admitter,
		gate:          gate,
		rend:          rend,
		log:           log,
		now:           time.Now,
		renderTimeout: renderTimeout,
	}
}

// QuoteForRoute exposes the gate's 402 payload for response building.
func (c *Controller) QuoteForRoute(route string) x402.QuoteResponse {
	return c.gate.Quote(route)
}

// AdmitAndRun is the single entry point: decide the funding path, admit,
// render, then charge or settle. Every admission denial happens before the
// renderer is invoked.
func (c *Controller) AdmitAndRun(ctx context.Context, job model.RenderJob, auth AuthContext) (Result, error) {
	if err := job.Validate(); err != nil {
		return Result{}, c.deny(denyErr(ReasonInvalidRequest, "malformed job", err))
	}

	var verified *x402.Verified

	switch {
	case auth.PaymentHeader != "":
		v, err := c.gate.Verify(ctx, auth.PaymentHeader, RenderRoute)
		if err != nil {
			var rej *x402.RejectedError
			if errors.As(err, &rej) {
				d := deny(ReasonPaymentRequired, rej.Reason)
				d.Quote = &rej.Quote
				return Result{}, c.deny(d)
			}
			// facilitator unreachable: the payment could not be verified,
			// ask the caller to retry with payment
			q := c.gate.Quote(RenderRoute)
			q.Error = "payment verification unavailable"
			d := denyErr(ReasonPaymentRequired, "payment verification unavailable", err)
			d.Quote = &q
			return Result{}, c.deny(d)
		}
		verified = v

	case auth.APIKey != "":
		cred, err := c.creds.Lookup(auth.APIKey)
		if err != nil {
			return Result{}, c.deny(deny(ReasonAuth, "invalid api key"))
		}

		if d := c.limiter.Allow(auth.APIKey); !d.Allowed {
			den := deny(ReasonRateLimited, "rate limit exceeded")
			den.RetryAfter = d.RetryAfter
			return Result{}, c.deny(den)
		}

		if !c.quotaAvailable(cred) {
			den := deny(ReasonQuotaExceeded, "monthly quota exhausted")
			den.RetryAfter = untilNextPeriod(c.now())
			return Result{}, c.deny(den)
		}

	default:
		// no credential, no payment: an invitation to pay, not a denial
		q := c.gate.Quote(RenderRoute)
		d := deny(ReasonPaymentRequired, "payment or api key required")
		d.Quote = &q
		return Result{}, c.deny(d)
	}

	release, ok := c.admitter.TryAdmit()
	if !ok {
		den := deny(ReasonBusy, "render capacity exhausted")
		den.RetryAfter = time.Second
		return Result{}, c.deny(den)
	}
	defer release()

	metrics.ActiveRenders.Inc()
	defer metrics.ActiveRenders.Dec()

	// Detached from the request context: a client disconnect mid-render
	// must not skip accounting, and the render itself runs to its own
	// deadline.
	dctx := context.WithoutCancel(ctx)
	rctx, cancel := context.WithTimeout(dctx, c.renderTimeout)
	defer cancel()

	res, err := c.rend.Render(rctx, job)
	if err != nil {
		metrics.RendersTotal.WithLabelValues(job.Kind.String(), "failed").Inc()
		return Result{}, c.deny(denyErr(ReasonRenderFailure, "render failed", err))
	}
	metrics.RendersTotal.WithLabelValues(job.Kind.String(), "ok").Inc()

	headers := map[string]string{}

	if verified != nil {
		c.settle(dctx, verified, headers)
	} else {
		c.recordUsage(dctx, auth.APIKey, headers)
	}

	return Result{Body: res.Body, ContentType: res.ContentType, Headers: headers}, nil
}

// quotaAvailable checks the quota as it would look after period
// normalization. The authoritative check-and-increment still happens in
// RecordUsage; this only keeps exhausted keys from consuming render slots.
func (c *Controller) quotaAvailable(cred model.Credential) bool {
	used := cred.UsedThisPeriod
	if cred.PeriodAnchor != model.PeriodTag(c.now()) {
		used = 0
	}
	return used < cred.MonthlyLimit
}

// recordUsage charges the quota after a successful render. Best-effort: a
// completed render is never withheld over lagging accounting.
func (c *Controller) recordUsage(ctx context.Context, key string, headers map[string]string) {
	if err := c.creds.RecordUsage(ctx, key); err != nil {
		c.log.Warn("usage accounting failed after successful render",
			zap.String("key", key), zap.Error(err))
		return
	}
	if cred, err := c.creds.Lookup(key); err == nil {
		headers[HeaderQuotaRemaining] = strconv.FormatInt(cred.Remaining(), 10)
	}
}

// settle captures the payment after a successful render. A settlement
// fault is an accounting discrepancy, never a request error.
func (c *Controller) settle(ctx context.Context, v *x402.Verified, headers map[string]string) {
	receipt := c.gate.Settle(ctx, v)
	if receipt == nil {
		metrics.SettlementFailuresTotal.Inc()
		return
	}
	if raw, err := json.Marshal(receipt); err == nil {
		headers[HeaderPaymentResponse] = base64.StdEncoding.EncodeToString(raw)
	}
}

func (c *Controller) deny(d *Denial) error {
	metrics.AdmissionDeniedTotal.WithLabelValues(string(d.Reason)).Inc()
	return d
}

// untilNextPeriod is the Retry-After hint for exhausted quotas.
func untilNextPeriod(now time.Time) time.Duration {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return next.Sub(now)
}
