// Package store holds the authoritative in-memory credential records,
// write-through persisted to a kv.Store.
package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/renderforge/render-gateway/internal/kv"
	"github.com/renderforge/render-gateway/internal/model"
)

const credentialsBucket = "credentials"

var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrLimitExceeded      = errors.New("monthly limit exceeded")
)

// CredentialStore serializes all check-and-increment operations behind one
// mutex. The critical section covers only the in-memory mutation plus the
// write-through; the renderer never runs under this lock.
type CredentialStore struct {
	mu    sync.Mutex
	creds map[string]model.Credential
	db    kv.Store
	now   func() time.Time
}

// NewCredentialStore loads all persisted credentials into memory.
func NewCredentialStore(ctx context.Context, db kv.Store) (*CredentialStore, error) {
	rows, err := db.List(ctx, credentialsBucket)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	creds := make(map[string]model.Credential, len(rows))
	for k, raw := range rows {
		var c model.Credential
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode credential %s: %w", k, err)
		}
		creds[c.Key] = c
	}

	return &CredentialStore{creds: creds, db: db, now: time.Now}, nil
}

// Lookup returns a copy of the credential for key.
func (s *CredentialStore) Lookup(key string) (model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.creds[key]
	if !ok {
		return model.Credential{}, ErrCredentialNotFound
	}
	return c, nil
}

// RecordUsage normalizes the calendar period, then performs the atomic
// check-and-increment. On ErrLimitExceeded nothing is mutated.
func (s *CredentialStore) RecordUsage(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.creds[key]
	if !ok {
		return ErrCredentialNotFound
	}

	now := s.now()
	if tag := model.PeriodTag(now); c.PeriodAnchor != tag {
		c.UsedThisPeriod = 0
		c.PeriodAnchor = tag
	}

	if c.UsedThisPeriod >= c.MonthlyLimit {
		return ErrLimitExceeded
	}

	c.UsedThisPeriod++
	c.UpdatedAt = now

	if err := s.persist(ctx, c); err != nil {
		return err
	}
	s.creds[key] = c
	return nil
}

// Issue mints a new credential for the plan. Called by the invoice
// reconciler on confirmed payment, or by an operator.
func (s *CredentialStore) Issue(ctx context.Context, plan model.Plan, ownerHint string) (model.Credential, error) {
	key, err := newKey()
	if err != nil {
		return model.Credential{}, err
	}

	now := s.now()
	c := model.Credential{
		Key:          key,
		Tier:         plan.Name,
		MonthlyLimit: plan.MonthlyLimit,
		PeriodAnchor: model.PeriodTag(now),
		OwnerHint:    ownerHint,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persist(ctx, c); err != nil {
		return model.Credential{}, err
	}
	s.creds[key] = c
	return c, nil
}

// Upsert writes a credential verbatim; seed/operator tooling only, the
// request path never calls it.
func (s *CredentialStore) Upsert(ctx context.Context, c model.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persist(ctx, c); err != nil {
		return err
	}
	s.creds[c.Key] = c
	return nil
}

func (s *CredentialStore) persist(ctx context.Context, c model.Credential) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.db.Put(ctx, credentialsBucket, c.Key, raw)
}

func newKey() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
