package ledger

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderforge/render-gateway/internal/chain"
	"github.com/renderforge/render-gateway/internal/kv"
	"github.com/renderforge/render-gateway/internal/model"
	"github.com/renderforge/render-gateway/internal/store"
)

type fakeChain struct {
	transfers []chain.Transfer
	err       error
	calls     atomic.Int64
}

func (f *fakeChain) RecentTransfers(ctx context.Context, addr string, lookback int64) ([]chain.Transfer, error) {
	f.calls.Add(1)
	return f.transfers, f.err
}

func newTestLedger(t *testing.T, ch chain.Query) (*Ledger, *store.CredentialStore) {
	t.Helper()
	db, err := kv.NewFileStore(t.TempDir())
	require.NoError(t, err)
	creds, err := store.NewCredentialStore(context.Background(), db)
	require.NoError(t, err)
	l, err := New(context.Background(), db, creds, ch, Config{
		ReceivingAddress: "0xreceiver",
	}, nil)
	require.NoError(t, err)
	return l, creds
}

func TestCreateInvoice_FingerprintedAmount(t *testing.T) {
	l, _ := newTestLedger(t, &fakeChain{})

	inv, err := l.CreateInvoice(context.Background(), "pro", "a@b.com")
	require.NoError(t, err)

	assert.Equal(t, model.InvoicePending, inv.Status)
	assert.Equal(t, "pro", inv.Plan)
	// 10.00 base plus a 0.01-0.99 offset, at 6 decimals
	assert.GreaterOrEqual(t, inv.AmountAtomic, int64(10_010_000))
	assert.LessOrEqual(t, inv.AmountAtomic, int64(10_990_000))
	assert.Equal(t, inv.QuotedAmount.Shift(6).IntPart(), inv.AmountAtomic)
	assert.True(t, inv.ExpiresAt.After(inv.CreatedAt))
}

func TestCreateInvoice_OffsetsSpread(t *testing.T) {
	l, _ := newTestLedger(t, &fakeChain{})

	seen := make(map[int64]bool)
	for i := 0; i < 5; i++ {
		inv, err := l.CreateInvoice(context.Background(), "starter", "")
		require.NoError(t, err)
		seen[inv.AmountAtomic] = true
	}
	assert.GreaterOrEqual(t, len(seen), 2, "back-to-back invoices should not share one amount")
}

func TestCreateInvoice_RejectsBadInput(t *testing.T) {
	l, _ := newTestLedger(t, &fakeChain{})

	_, err := l.CreateInvoice(context.Background(), "enterprise", "")
	assert.ErrorIs(t, err, ErrUnknownPlan)

	_, err = l.CreateInvoice(context.Background(), "free", "")
	assert.ErrorIs(t, err, ErrUnknownPlan, "free tier is not purchasable")

	_, err = l.CreateInvoice(context.Background(), "pro", "not-an-email")
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestCheckInvoice_PaysOnMatchingTransfer(t *testing.T) {
	ch := &fakeChain{}
	l, creds := newTestLedger(t, ch)

	inv, err := l.CreateInvoice(context.Background(), "pro", "buyer@example.com")
	require.NoError(t, err)

	// an unrelated amount must not match
	ch.transfers = []chain.Transfer{{AmountAtomic: inv.AmountAtomic + 5_000_000, TxHash: "0xother"}}
	got, err := l.CheckInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoicePending, got.Status)

	ch.transfers = append(ch.transfers, chain.Transfer{AmountAtomic: inv.AmountAtomic, TxHash: "0xpaid"})
	got, err = l.CheckInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoicePaid, got.Status)
	assert.Equal(t, "0xpaid", got.TxHash)
	require.NotEmpty(t, got.CredentialKey)

	// the issued credential carries the plan's quota
	c, err := creds.Lookup(got.CredentialKey)
	require.NoError(t, err)
	assert.Equal(t, "pro", c.Tier)
	assert.Equal(t, int64(2000), c.MonthlyLimit)
}

func TestCheckInvoice_ToleranceMatch(t *testing.T) {
	ch := &fakeChain{}
	l, _ := newTestLedger(t, ch)

	inv, err := l.CreateInvoice(context.Background(), "starter", "")
	require.NoError(t, err)

	// within the default 1000-atomic tolerance
	ch.transfers = []chain.Transfer{{AmountAtomic: inv.AmountAtomic - 999, TxHash: "0xnear"}}
	got, err := l.CheckInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoicePaid, got.Status)
}

func TestCheckInvoice_ToleranceMiss(t *testing.T) {
	ch := &fakeChain{}
	l, _ := newTestLedger(t, ch)

	inv, err := l.CreateInvoice(context.Background(), "starter", "")
	require.NoError(t, err)

	ch.transfers = []chain.Transfer{{AmountAtomic: inv.AmountAtomic + 1001, TxHash: "0xfar"}}
	got, err := l.CheckInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoicePending, got.Status)
}

func TestCheckInvoice_PaidShortCircuitsChain(t *testing.T) {
	ch := &fakeChain{}
	l, _ := newTestLedger(t, ch)

	inv, err := l.CreateInvoice(context.Background(), "pro", "")
	require.NoError(t, err)
	ch.transfers = []chain.Transfer{{AmountAtomic: inv.AmountAtomic, TxHash: "0xpaid"}}

	_, err = l.CheckInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	queriesAfterPaid := ch.calls.Load()

	got, err := l.CheckInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoicePaid, got.Status)
	assert.Equal(t, queriesAfterPaid, ch.calls.Load(), "terminal invoices never hit the chain")
}

func TestCheckInvoice_ExpiryIsTerminal(t *testing.T) {
	ch := &fakeChain{}
	l, _ := newTestLedger(t, ch)

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	inv, err := l.CreateInvoice(context.Background(), "pro", "")
	require.NoError(t, err)

	now = now.Add(l.cfg.TTL + time.Second)

	got, err := l.CheckInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceExpired, got.Status)

	// a matching transfer arriving after expiry changes nothing
	ch.transfers = []chain.Transfer{{AmountAtomic: inv.AmountAtomic, TxHash: "0xlate"}}
	got, err = l.CheckInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceExpired, got.Status)
	assert.Empty(t, got.TxHash)
	assert.Empty(t, got.CredentialKey)
}

func TestCheckInvoice_ChainErrorLeavesPending(t *testing.T) {
	ch := &fakeChain{err: errors.New("indexer down")}
	l, _ := newTestLedger(t, ch)

	inv, err := l.CreateInvoice(context.Background(), "pro", "")
	require.NoError(t, err)

	got, err := l.CheckInvoice(context.Background(), inv.ID)
	require.NoError(t, err, "transient chain failure is not an invoice error")
	assert.Equal(t, model.InvoicePending, got.Status)
}

func TestCheckInvoice_Unknown(t *testing.T) {
	l, _ := newTestLedger(t, &fakeChain{})
	_, err := l.CheckInvoice(context.Background(), "01XXXXXXXXXXXXXXXXXXXXXXXX")
	assert.ErrorIs(t, err, ErrInvoiceNotFound)
}

func TestReconcile_SettlesPendingInvoices(t *testing.T) {
	ch := &fakeChain{}
	l, _ := newTestLedger(t, ch)

	a, err := l.CreateInvoice(context.Background(), "starter", "")
	require.NoError(t, err)
	b, err := l.CreateInvoice(context.Background(), "pro", "")
	require.NoError(t, err)

	ch.transfers = []chain.Transfer{{AmountAtomic: b.AmountAtomic, TxHash: "0xb"}}
	l.reconcile(context.Background())

	gotA, err := l.CheckInvoice(context.Background(), a.ID)
	require.NoError(t, err)
	gotB, err := l.CheckInvoice(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoicePending, gotA.Status, "only the matching invoice settles")
	assert.Equal(t, model.InvoicePaid, gotB.Status)
}

func TestReconcile_ExpiresDespiteChainError(t *testing.T) {
	ch := &fakeChain{err: errors.New("indexer down")}
	l, _ := newTestLedger(t, ch)

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	inv, err := l.CreateInvoice(context.Background(), "starter", "")
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	l.reconcile(context.Background())

	l.mu.Lock()
	got := l.invoices[inv.ID]
	l.mu.Unlock()
	assert.Equal(t, model.InvoiceExpired, got.Status)
}

func TestPaidInvoice_CredentialHonorsPlanLimit(t *testing.T) {
	ch := &fakeChain{}
	l, creds := newTestLedger(t, ch)

	inv, err := l.CreateInvoice(context.Background(), "starter", "")
	require.NoError(t, err)
	ch.transfers = []chain.Transfer{{AmountAtomic: inv.AmountAtomic, TxHash: "0xpaid"}}

	got, err := l.CheckInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	require.NotEmpty(t, got.CredentialKey)

	for i := 0; i < 500; i++ {
		require.NoError(t, creds.RecordUsage(context.Background(), got.CredentialKey), "job %d", i+1)
	}
	assert.ErrorIs(t, creds.RecordUsage(context.Background(), got.CredentialKey), store.ErrLimitExceeded)
}

func TestLedger_PersistAndReload(t *testing.T) {
	dir := t.TempDir()
	db, err := kv.NewFileStore(dir)
	require.NoError(t, err)
	creds, err := store.NewCredentialStore(context.Background(), db)
	require.NoError(t, err)
	ch := &fakeChain{}

	l, err := New(context.Background(), db, creds, ch, Config{ReceivingAddress: "0xr"}, nil)
	require.NoError(t, err)
	inv, err := l.CreateInvoice(context.Background(), "pro", "a@b.com")
	require.NoError(t, err)
	ch.transfers = []chain.Transfer{{AmountAtomic: inv.AmountAtomic, TxHash: "0xpaid"}}
	_, err = l.CheckInvoice(context.Background(), inv.ID)
	require.NoError(t, err)

	db2, err := kv.NewFileStore(dir)
	require.NoError(t, err)
	l2, err := New(context.Background(), db2, creds, ch, Config{ReceivingAddress: "0xr"}, nil)
	require.NoError(t, err)

	got, err := l2.CheckInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoicePaid, got.Status)
	assert.Equal(t, "0xpaid", got.TxHash)
}

func TestViewOf(t *testing.T) {
	l, _ := newTestLedger(t, &fakeChain{})

	inv, err := l.CreateInvoice(context.Background(), "business", "")
	require.NoError(t, err)

	v := l.ViewOf(inv)
	assert.Equal(t, inv.ID, v.ID)
	assert.Equal(t, "0xreceiver", v.PayTo)
	assert.Equal(t, "pending", v.Status)
	assert.Regexp(t, `^25\.\d{2}$`, v.Amount)
}
