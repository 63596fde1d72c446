// Package ledger owns the invoice lifecycle: quoting fingerprinted amounts,
// polling the chain for matching transfers, and issuing credentials on
// confirmed payment.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/renderforge/render-gateway/internal/chain"
	"github.com/renderforge/render-gateway/internal/kv"
	"github.com/renderforge/render-gateway/internal/metrics"
	"github.com/renderforge/render-gateway/internal/model"
	"github.com/renderforge/render-gateway/internal/util"
)

const invoicesBucket = "invoices"

var (
	ErrInvoiceNotFound = errors.New("invoice not found")
	ErrUnknownPlan     = errors.New("unknown or non-purchasable plan")
	ErrInvalidEmail    = errors.New("invalid email")
)

// CredentialIssuer mints a credential for a paid plan.
type CredentialIssuer interface {
	Issue(ctx context.Context, plan model.Plan, ownerHint string) (model.Credential, error)
}

type Config struct {
	ReceivingAddress  string
	TokenDecimals     int32         // atomic-unit scale, default 6
	TTL               time.Duration // default 1h
	LookbackBlocks    int64         // default 3000 (~2.5h of 3s blocks)
	ToleranceAtomic   int64         // default 1000 (0.001 token at 6 decimals)
	ReconcileInterval time.Duration // default 30s
}

func (c *Config) applyDefaults() {
	if c.TokenDecimals <= 0 {
		c.TokenDecimals = 6
	}
	if c.TTL <= 0 {
		c.TTL = time.Hour
	}
	if c.LookbackBlocks <= 0 {
		c.LookbackBlocks = 3000
	}
	if c.ToleranceAtomic <= 0 {
		c.ToleranceAtomic = 1000
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = 30 * time.Second
	}
}

// Ledger holds all invoices in memory, write-through persisted. The mutex
// covers only map mutations and persistence; chain queries run outside it.
type Ledger struct {
	mu       sync.Mutex
	invoices map[string]model.Invoice

	db    kv.Store
	creds CredentialIssuer
	chain chain.Query
	cfg   Config
	log   *zap.Logger
	now   func() time.Time
}

func New(ctx context.Context, db kv.Store, creds CredentialIssuer, chainQuery chain.Query, cfg Config, log *zap.Logger) (*Ledger, error) {
	cfg.applyDefaults()
	if log == nil {
		log = zap.NewNop()
	}

	rows, err := db.List(ctx, invoicesBucket)
	if err != nil {
		return nil, fmt.Errorf("load invoices: %w", err)
	}
	invoices := make(map[string]model.Invoice, len(rows))
	for k, raw := range rows {
		var inv model.Invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return nil, fmt.Errorf("decode invoice %s: %w", k, err)
		}
		invoices[inv.ID] = inv
	}

	return &Ledger{
		invoices: invoices,
		db:       db,
		creds:    creds,
		chain:    chainQuery,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}, nil
}

// CreateInvoice quotes a fingerprinted amount for the plan and persists the
// pending invoice immediately.
func (l *Ledger) CreateInvoice(ctx context.Context, planName, email string) (model.Invoice, error) {
	plan, ok := model.LookupPlan(planName)
	if !ok || !plan.Purchasable {
		return model.Invoice{}, ErrUnknownPlan
	}

	email = strings.TrimSpace(email)
	if len(email) > 254 || (email != "" && !strings.Contains(email, "@")) {
		return model.Invoice{}, ErrInvalidEmail
	}

	id := util.NewID()
	quoted := plan.Price.Add(amountOffset(id)).Round(2)
	atomic := quoted.Shift(l.cfg.TokenDecimals).IntPart()

	now := l.now()
	inv := model.Invoice{
		ID:           id,
		Plan:         plan.Name,
		Email:        email,
		QuotedAmount: quoted,
		AmountAtomic: atomic,
		Status:       model.InvoicePending,
		CreatedAt:    now,
		ExpiresAt:    now.Add(l.cfg.TTL),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.persist(ctx, inv); err != nil {
		return model.Invoice{}, err
	}
	l.invoices[id] = inv

	metrics.InvoicesTotal.WithLabelValues(model.InvoicePending.String()).Inc()
	return inv, nil
}

// amountOffset derives the 0.01-0.99 fingerprint from the invoice id. The
// id is hashed first so back-to-back ids (ULIDs share their timestamp bits)
// still spread across all 99 buckets.
func amountOffset(id string) decimal.Decimal {
	sum := sha256.Sum256([]byte(id))
	cents := binary.BigEndian.Uint64(sum[:8])%99 + 1
	return decimal.New(int64(cents), -2)
}

// CheckInvoice returns the invoice, first applying any state transition the
// chain justifies. Paid and expired short-circuit without a chain query.
func (l *Ledger) CheckInvoice(ctx context.Context, id string) (model.Invoice, error) {
	l.mu.Lock()
	inv, ok := l.invoices[id]
	l.mu.Unlock()
	if !ok {
		return model.Invoice{}, ErrInvoiceNotFound
	}
	if inv.Status.Terminal() {
		return inv, nil
	}
	if inv.ExpiredAt(l.now()) {
		return l.resolve(ctx, id, nil)
	}

	transfers, err := l.chain.RecentTransfers(ctx, l.cfg.ReceivingAddress, l.cfg.LookbackBlocks)
	if err != nil {
		// transient: report current state, the next poll retries
		l.log.Warn("chain query failed", zap.String("invoice", id), zap.Error(err))
		return inv, nil
	}
	return l.resolve(ctx, id, transfers)
}

// resolve applies the terminal transition for one invoice under the lock:
// expiry when past TTL, else paid on the first transfer within tolerance.
// Racing calls are safe because terminal states are never left.
func (l *Ledger) resolve(ctx context.Context, id string, transfers []chain.Transfer) (model.Invoice, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	inv, ok := l.invoices[id]
	if !ok {
		return model.Invoice{}, ErrInvoiceNotFound
	}
	if inv.Status.Terminal() {
		return inv, nil
	}

	if inv.ExpiredAt(l.now()) {
		inv.Status = model.InvoiceExpired
		if err := l.persist(ctx, inv); err != nil {
			return inv, err
		}
		l.invoices[id] = inv
		metrics.InvoicesTotal.WithLabelValues(model.InvoiceExpired.String()).Inc()
		return inv, nil
	}

	for _, t := range transfers {
		if !amountMatches(t.AmountAtomic, inv.AmountAtomic, l.cfg.ToleranceAtomic) {
			continue
		}

		plan, ok := model.LookupPlan(inv.Plan)
		if !ok {
			return inv, fmt.Errorf("invoice %s references unknown plan %q", id, inv.Plan)
		}
		cred, err := l.creds.Issue(ctx, plan, inv.Email)
		if err != nil {
			// leave pending; the next tick retries issuance
			return inv, fmt.Errorf("issue credential for invoice %s: %w", id, err)
		}

		inv.Status = model.InvoicePaid
		inv.TxHash = t.TxHash
		inv.CredentialKey = cred.Key
		if err := l.persist(ctx, inv); err != nil {
			return inv, err
		}
		l.invoices[id] = inv

		metrics.InvoicesTotal.WithLabelValues(model.InvoicePaid.String()).Inc()
		l.log.Info("invoice paid",
			zap.String("invoice", id),
			zap.String("plan", inv.Plan),
			zap.String("tx", t.TxHash))
		return inv, nil
	}

	return inv, nil
}

func amountMatches(got, want, tolerance int64) bool {
	d := got - want
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}

// Run drives periodic reconciliation until ctx is cancelled. Fully
// decoupled from request handling; CheckInvoice may race a tick on the same
// invoice, which resolve tolerates.
func (l *Ledger) Run(ctx context.Context) {
	t := time.NewTicker(l.cfg.ReconcileInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.reconcile(ctx)
		}
	}
}

// reconcile scans all pending invoices against one chain snapshot. Errors
// are swallowed; a bad poll must not lose pending state.
func (l *Ledger) reconcile(ctx context.Context) {
	l.mu.Lock()
	pending := make([]string, 0)
	for id, inv := range l.invoices {
		if inv.Status == model.InvoicePending {
			pending = append(pending, id)
		}
	}
	l.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	transfers, err := l.chain.RecentTransfers(ctx, l.cfg.ReceivingAddress, l.cfg.LookbackBlocks)
	if err != nil {
		l.log.Warn("reconcile: chain query failed", zap.Error(err))
		transfers = nil // still process expirations below
	}

	for _, id := range pending {
		if _, err := l.resolve(ctx, id, transfers); err != nil {
			l.log.Error("reconcile invoice", zap.String("invoice", id), zap.Error(err))
		}
	}
}

func (l *Ledger) persist(ctx context.Context, inv model.Invoice) error {
	raw, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	return l.db.Put(ctx, invoicesBucket, inv.ID, raw)
}

// View is the outward invoice representation, payment instructions included.
type View struct {
	ID            string `json:"id"`
	Plan          string `json:"plan"`
	Amount        string `json:"amount"`
	AmountAtomic  int64  `json:"amount_atomic_units"`
	PayTo         string `json:"pay_to"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_at"`
	ExpiresAt     string `json:"expires_at"`
	TxHash        string `json:"tx_hash,omitempty"`
	CredentialKey string `json:"api_key,omitempty"`
}

func (l *Ledger) ViewOf(inv model.Invoice) View {
	return View{
		ID:            inv.ID,
		Plan:          inv.Plan,
		Amount:        inv.QuotedAmount.StringFixed(2),
		AmountAtomic:  inv.AmountAtomic,
		PayTo:         l.cfg.ReceivingAddress,
		Status:        inv.Status.String(),
		CreatedAt:     inv.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt:     inv.ExpiresAt.UTC().Format(time.RFC3339),
		TxHash:        inv.TxHash,
		CredentialKey: inv.CredentialKey,
	}
}
