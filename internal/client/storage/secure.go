package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"github.com/dmitrijs2005/aivedhaguard/internal/broadcast"
	"github.com/dmitrijs2005/aivedhaguard/internal/common"
	"github.com/dmitrijs2005/aivedhaguard/internal/cryptox"
	"github.com/dmitrijs2005/aivedhaguard/internal/logging"
	"github.com/dmitrijs2005/aivedhaguard/internal/metrics"
	"github.com/google/uuid"
)

const (
	shadowPrefix = "__enc_"
	markerPrefix = "__enc_flag_"
	markerValue  = "1"
)

// ShadowKey is the durable key holding the ciphertext of a sensitive key.
func ShadowKey(key string) string { return shadowPrefix + key }

// MarkerKey is the durable key recording that key is stored encrypted.
func MarkerKey(key string) string { return markerPrefix + key }

// SecureStore is the credential store. Values under sensitive keys are
// sealed with AES-256-GCM before they reach the durable tier; the master key
// lives only in the volatile tier, so ciphertext written in an earlier
// session reads as absent once that tier is gone.
//
// Crypto failures never surface as errors: the value is kept in plaintext,
// logged and counted. Errors returned by SecureStore come from the
// underlying tiers.
type SecureStore struct {
	durable   KV
	volatile  KV
	bus       broadcast.Bus
	logger    logging.Logger
	metrics   *metrics.Metrics
	origin    string
	sensitive map[string]struct{}

	mu  sync.RWMutex
	key []byte
}

// NewSecureStore wires a store over the two tiers. bus may be nil when no
// other client shares the profile.
func NewSecureStore(durable, volatile KV, bus broadcast.Bus, logger logging.Logger, m *metrics.Metrics) *SecureStore {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	s := &SecureStore{
		durable:   durable,
		volatile:  volatile,
		bus:       bus,
		logger:    logger,
		metrics:   m,
		origin:    uuid.NewString(),
		sensitive: make(map[string]struct{}, len(common.SensitiveKeys)),
	}
	for _, k := range common.SensitiveKeys {
		s.sensitive[k] = struct{}{}
	}
	return s
}

// Origin identifies this store on the broadcast bus.
func (s *SecureStore) Origin() string { return s.origin }

// Volatile exposes the session-lifetime tier for flags that must not outlive
// the session.
func (s *SecureStore) Volatile() KV { return s.volatile }

// Subscribe registers handler for changes made by other origins.
func (s *SecureStore) Subscribe(handler func(broadcast.Event)) func() {
	if s.bus == nil {
		return func() {}
	}
	return s.bus.Subscribe(func(ev broadcast.Event) {
		if ev.Origin == s.origin {
			return
		}
		handler(ev)
	})
}

// IsSensitive reports whether key is encrypted at rest.
func (s *SecureStore) IsSensitive(key string) bool {
	_, ok := s.sensitive[key]
	return ok
}

// Init loads the session key from the volatile tier, generating it when
// missing or unusable, then rewrites legacy plaintext sensitive values
// through the encrypting path.
func (s *SecureStore) Init(ctx context.Context) error {
	if err := s.loadKey(ctx); err != nil {
		return err
	}

	for key := range s.sensitive {
		marker, err := s.durable.Get(ctx, MarkerKey(key))
		if err != nil {
			return err
		}
		if string(marker) == markerValue {
			continue
		}
		plain, err := s.durable.Get(ctx, key)
		if err != nil {
			return err
		}
		if plain == nil {
			continue
		}
		if err := s.write(ctx, key, string(plain)); err != nil {
			return fmt.Errorf("migrate %s: %w", key, err)
		}
		s.logger.Debug(ctx, "migrated plaintext credential", "key", key)
	}
	return nil
}

func (s *SecureStore) loadKey(ctx context.Context) error {
	raw, err := s.volatile.Get(ctx, common.KeySessionCryptoKey)
	if err != nil {
		return err
	}

	if raw != nil {
		key, err := base64.StdEncoding.DecodeString(string(raw))
		if err == nil && len(key) == cryptox.KeySize {
			s.setKey(key)
			return nil
		}
		s.logger.Warn(ctx, "session key corrupted, generating a new one")
	}

	key, err := cryptox.NewKey()
	if err != nil {
		s.logger.Warn(ctx, "session key unavailable, sensitive values stay in plaintext", "error", err)
		s.metrics.CryptoFallbacks.WithLabelValues("keygen").Inc()
		s.setKey(nil)
		return nil
	}
	if err := s.volatile.Set(ctx, common.KeySessionCryptoKey, []byte(base64.StdEncoding.EncodeToString(key))); err != nil {
		return err
	}
	s.setKey(key)
	return nil
}

func (s *SecureStore) setKey(key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	common.WipeByteArray(s.key)
	s.key = key
}

func (s *SecureStore) subkey(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == nil {
		return nil, false
	}
	sub, err := cryptox.DeriveKey(s.key, name)
	if err != nil {
		return nil, false
	}
	return sub, true
}

// SetItem stores value under key and notifies other origins.
func (s *SecureStore) SetItem(ctx context.Context, key, value string) error {
	if err := s.write(ctx, key, value); err != nil {
		return err
	}
	s.publish(ctx, broadcast.Event{Key: key, Origin: s.origin})
	return nil
}

func (s *SecureStore) write(ctx context.Context, key, value string) error {
	if !s.IsSensitive(key) {
		return s.durable.Set(ctx, key, []byte(value))
	}

	if sub, ok := s.subkey(key); ok {
		sealed, err := cryptox.SealString(value, sub)
		common.WipeByteArray(sub)
		if err == nil {
			return apply(ctx, s.durable,
				Op{Key: ShadowKey(key), Value: []byte(sealed)},
				Op{Key: MarkerKey(key), Value: []byte(markerValue)},
				Op{Key: key},
			)
		}
		s.logger.Warn(ctx, "encrypt failed, storing plaintext", "key", key, "error", err)
	} else {
		s.logger.Warn(ctx, "no session key, storing plaintext", "key", key)
	}
	s.metrics.CryptoFallbacks.WithLabelValues("encrypt").Inc()

	return apply(ctx, s.durable,
		Op{Key: key, Value: []byte(value)},
		Op{Key: ShadowKey(key)},
		Op{Key: MarkerKey(key)},
	)
}

// GetItem returns the value under key. Encrypted values that can no longer be
// opened read as absent.
func (s *SecureStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	if !s.IsSensitive(key) {
		return s.raw(ctx, key)
	}

	marker, err := s.durable.Get(ctx, MarkerKey(key))
	if err != nil {
		return "", false, err
	}
	if string(marker) != markerValue {
		return s.raw(ctx, key)
	}

	sealed, err := s.durable.Get(ctx, ShadowKey(key))
	if err != nil || sealed == nil {
		return "", false, err
	}

	sub, ok := s.subkey(key)
	if !ok {
		s.metrics.CryptoFallbacks.WithLabelValues("decrypt").Inc()
		s.logger.Warn(ctx, "no session key, encrypted value unreadable", "key", key)
		return "", false, nil
	}
	defer common.WipeByteArray(sub)

	value, err := cryptox.OpenString(string(sealed), sub)
	if err != nil {
		s.logger.Debug(ctx, "encrypted value unreadable", "key", key, "error", err)
		return "", false, nil
	}
	return value, true, nil
}

func (s *SecureStore) raw(ctx context.Context, key string) (string, bool, error) {
	v, err := s.durable.Get(ctx, key)
	if err != nil || v == nil {
		return "", false, err
	}
	return string(v), true, nil
}

// RemoveItem deletes key together with its shadow and marker.
func (s *SecureStore) RemoveItem(ctx context.Context, key string) error {
	ops := []Op{{Key: key}}
	if s.IsSensitive(key) {
		ops = append(ops, Op{Key: ShadowKey(key)}, Op{Key: MarkerKey(key)})
	}
	if err := apply(ctx, s.durable, ops...); err != nil {
		return err
	}
	s.publish(ctx, broadcast.Event{Key: key, Origin: s.origin, Removed: true})
	return nil
}

// Keys lists logical keys. Shadows map back to their sensitive key and
// markers are hidden.
func (s *SecureStore) Keys(ctx context.Context) ([]string, error) {
	raw, err := s.durable.Keys(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(raw))
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		switch {
		case strings.HasPrefix(k, markerPrefix):
			continue
		case strings.HasPrefix(k, shadowPrefix):
			k = strings.TrimPrefix(k, shadowPrefix)
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *SecureStore) publish(ctx context.Context, ev broadcast.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.logger.Warn(ctx, "storage event not delivered", "key", ev.Key, "error", err)
	}
}
