package x402

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// GateConfig fixes the payment terms the gate quotes for every route.
type GateConfig struct {
	Scheme            string // e.g. "exact"
	Network           string // e.g. "base"
	PayTo             string // receiving address
	Asset             string // token contract address
	PriceAtomic       int64  // per-request price in atomic units
	MaxTimeoutSeconds int
}

// Gate is the request-scoped payment state machine: NoPayment -> Verifying
// -> Verified | Rejected, with QuoteRequired as the no-header terminal.
type Gate struct {
	fac Facilitator
	cfg GateConfig
	log *zap.Logger
}

func NewGate(fac Facilitator, cfg GateConfig, log *zap.Logger) *Gate {
	if cfg.Scheme == "" {
		cfg.Scheme = "exact"
	}
	if cfg.MaxTimeoutSeconds <= 0 {
		cfg.MaxTimeoutSeconds = 60
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{fac: fac, cfg: cfg, log: log}
}

// Quote builds the 402 payload for a route.
func (g *Gate) Quote(route string) QuoteResponse {
	return QuoteResponse{
		X402Version: ProtocolVersion,
		Accepts:     []PaymentRequirements{g.requirementsFor(route)},
	}
}

func (g *Gate) requirementsFor(route string) PaymentRequirements {
	return PaymentRequirements{
		Scheme:            g.cfg.Scheme,
		Network:           g.cfg.Network,
		MaxAmountRequired: strconv.FormatInt(g.cfg.PriceAtomic, 10),
		Resource:          route,
		Description:       "document render",
		PayTo:             g.cfg.PayTo,
		MaxTimeoutSeconds: g.cfg.MaxTimeoutSeconds,
		Asset:             g.cfg.Asset,
	}
}

// Verified is a payment that passed facilitator validation and is ready to
// settle once the paid action succeeds.
type Verified struct {
	Payload     string
	Requirement PaymentRequirements
	Payer       string
}

// RejectedError carries the response the HTTP layer should emit verbatim:
// a 402 with the quote re-attached and the rejection reason.
type RejectedError struct {
	Reason string
	Quote  QuoteResponse
}

func (e *RejectedError) Error() string {
	return "payment rejected: " + e.Reason
}

// Verify checks the inbound payment header against the facilitator. The
// header is opaque beyond being non-empty base64; its contents are the
// facilitator's business.
func (g *Gate) Verify(ctx context.Context, header, route string) (*Verified, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, g.reject(route, "empty payment header")
	}
	if _, err := base64.StdEncoding.DecodeString(header); err != nil {
		return nil, g.reject(route, "payment header is not valid base64")
	}

	req := g.requirementsFor(route)
	res, err := g.fac.Verify(ctx, header, req)
	if err != nil {
		return nil, fmt.Errorf("facilitator verify: %w", err)
	}
	if !res.IsValid {
		reason := res.InvalidReason
		if reason == "" {
			reason = "payment invalid"
		}
		return nil, g.reject(route, reason)
	}

	return &Verified{Payload: header, Requirement: req, Payer: res.Payer}, nil
}

// Settle captures a verified payment after the paid action succeeded.
// Returns nil on settlement failure: the caller already has its result and
// the discrepancy is only logged.
func (g *Gate) Settle(ctx context.Context, v *Verified) *SettleResult {
	res, err := g.fac.Settle(ctx, v.Payload, v.Requirement)
	if err != nil {
		g.log.Error("settlement discrepancy: facilitator settle failed",
			zap.String("payer", v.Payer), zap.Error(err))
		return nil
	}
	if !res.Success {
		g.log.Error("settlement discrepancy: facilitator declined settle",
			zap.String("payer", v.Payer), zap.String("reason", res.ErrorReason))
		return nil
	}
	return &res
}

func (g *Gate) reject(route, reason string) *RejectedError {
	q := g.Quote(route)
	q.Error = reason
	return &RejectedError{Reason: reason, Quote: q}
}
