package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderforge/render-gateway/internal/kv"
	"github.com/renderforge/render-gateway/internal/model"
)

func newTestStore(t *testing.T) (*CredentialStore, kv.Store) {
	t.Helper()
	db, err := kv.NewFileStore(t.TempDir())
	require.NoError(t, err)
	s, err := NewCredentialStore(context.Background(), db)
	require.NoError(t, err)
	return s, db
}

func seedCredential(t *testing.T, s *CredentialStore, key string, limit int64) {
	t.Helper()
	now := time.Now().UTC()
	err := s.Upsert(context.Background(), model.Credential{
		Key:          key,
		Tier:         "starter",
		MonthlyLimit: limit,
		PeriodAnchor: model.PeriodTag(now),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	require.NoError(t, err)
}

func TestRecordUsage_ConcurrentNeverOversells(t *testing.T) {
	s, _ := newTestStore(t)
	seedCredential(t, s, "k1", 5)

	const callers = 20
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.RecordUsage(context.Background(), "k1")
		}()
	}
	wg.Wait()
	close(results)

	var granted, denied int
	for err := range results {
		switch err {
		case nil:
			granted++
		case ErrLimitExceeded:
			denied++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 5, granted, "exactly the limit is granted")
	assert.Equal(t, 15, denied)

	c, err := s.Lookup("k1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), c.UsedThisPeriod)
	assert.Equal(t, int64(0), c.Remaining())
}

func TestRecordUsage_PeriodRollover(t *testing.T) {
	s, _ := newTestStore(t)
	seedCredential(t, s, "k1", 2)

	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.RecordUsage(context.Background(), "k1"))
	require.NoError(t, s.RecordUsage(context.Background(), "k1"))
	require.ErrorIs(t, s.RecordUsage(context.Background(), "k1"), ErrLimitExceeded)

	now = time.Date(2026, 9, 1, 0, 0, 1, 0, time.UTC)

	require.NoError(t, s.RecordUsage(context.Background(), "k1"), "new month resets the counter")

	c, err := s.Lookup("k1")
	require.NoError(t, err)
	assert.Equal(t, "2026-09", c.PeriodAnchor)
	assert.Equal(t, int64(1), c.UsedThisPeriod)
}

func TestRecordUsage_DenialDoesNotMutate(t *testing.T) {
	s, _ := newTestStore(t)
	seedCredential(t, s, "k1", 1)

	require.NoError(t, s.RecordUsage(context.Background(), "k1"))
	before, err := s.Lookup("k1")
	require.NoError(t, err)

	require.ErrorIs(t, s.RecordUsage(context.Background(), "k1"), ErrLimitExceeded)

	after, err := s.Lookup("k1")
	require.NoError(t, err)
	assert.Equal(t, before.UsedThisPeriod, after.UsedThisPeriod)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func TestRecordUsage_UnknownKey(t *testing.T) {
	s, _ := newTestStore(t)
	assert.ErrorIs(t, s.RecordUsage(context.Background(), "nope"), ErrCredentialNotFound)
	_, err := s.Lookup("nope")
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestCredentialStore_PersistAndReload(t *testing.T) {
	dir := t.TempDir()
	db, err := kv.NewFileStore(dir)
	require.NoError(t, err)

	s, err := NewCredentialStore(context.Background(), db)
	require.NoError(t, err)
	seedCredential(t, s, "k1", 10)
	require.NoError(t, s.RecordUsage(context.Background(), "k1"))
	require.NoError(t, s.RecordUsage(context.Background(), "k1"))

	// fresh store over the same files sees the written-through state
	db2, err := kv.NewFileStore(dir)
	require.NoError(t, err)
	s2, err := NewCredentialStore(context.Background(), db2)
	require.NoError(t, err)

	c, err := s2.Lookup("k1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.UsedThisPeriod)
	assert.Equal(t, int64(10), c.MonthlyLimit)
}

func TestIssue_MintsUsableCredential(t *testing.T) {
	s, _ := newTestStore(t)

	plan, ok := model.LookupPlan("starter")
	require.True(t, ok)

	c, err := s.Issue(context.Background(), plan, "buyer@example.com")
	require.NoError(t, err)
	assert.Len(t, c.Key, 32, "16 random bytes hex-encoded")
	assert.Equal(t, "starter", c.Tier)
	assert.Equal(t, plan.MonthlyLimit, c.MonthlyLimit)

	require.NoError(t, s.RecordUsage(context.Background(), c.Key))

	got, err := s.Lookup(c.Key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.UsedThisPeriod)
}
