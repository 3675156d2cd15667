// Package storage implements the client credential store: a durable key/value
// tier standing in for browser local storage, a volatile tier standing in for
// session storage, and SecureStore, which encrypts sensitive keys at rest with
// a key that only ever lives in the volatile tier.
package storage

import "context"

// KV is a flat key/value store. Get returns (nil, nil) for a missing key.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// Op is one write in a batch. A nil Value deletes the key.
type Op struct {
	Key   string
	Value []byte
}

// Batcher is implemented by stores that can apply several writes atomically.
type Batcher interface {
	Apply(ctx context.Context, ops ...Op) error
}

// apply uses the store's batch support when present and falls back to
// sequential writes.
func apply(ctx context.Context, kv KV, ops ...Op) error {
	if b, ok := kv.(Batcher); ok {
		return b.Apply(ctx, ops...)
	}
	for _, op := range ops {
		var err error
		if op.Value == nil {
			err = kv.Delete(ctx, op.Key)
		} else {
			err = kv.Set(ctx, op.Key, op.Value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
