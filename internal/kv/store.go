// Package kv is the flat durable key-value persistence behind the credential
// and invoice stores. Writes are write-through side effects of each mutation;
// the stores own their own locking, a Store only has to be safe for
// concurrent calls.
package kv

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("kv: key not found")

type Store interface {
	Put(ctx context.Context, bucket, key string, value []byte) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	// List returns all values in a bucket, order unspecified.
	List(ctx context.Context, bucket string) (map[string][]byte, error)
	Delete(ctx context.Context, bucket, key string) error
}
