// Package profile opens one local installation of the client: the durable
// SQLite store, the volatile tier, the change bus and the credential store
// layered on them. The CLI and the admin console both start from a Profile.
package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/aivedhaguard/internal/broadcast"
	"github.com/dmitrijs2005/aivedhaguard/internal/client/client"
	"github.com/dmitrijs2005/aivedhaguard/internal/client/config"
	"github.com/dmitrijs2005/aivedhaguard/internal/client/storage"
	"github.com/dmitrijs2005/aivedhaguard/internal/logging"
	"github.com/dmitrijs2005/aivedhaguard/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "aivedha:volatile:"
	redisChannel   = "aivedha:storage"
)

type Profile struct {
	Store   *storage.SecureStore
	API     *client.HTTPClient
	Metrics *metrics.Metrics

	db    *sql.DB
	bus   broadcast.Bus
	redis *redis.Client
}

// Open builds a profile from cfg. Without a Redis URL the volatile tier and
// the bus are process-local, so a restart starts a new browser-like session.
func Open(ctx context.Context, cfg *config.Config, logger logging.Logger, reg prometheus.Registerer) (*Profile, error) {
	m := metrics.New(reg)

	db, err := storage.OpenDatabase(ctx, cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	p := &Profile{Metrics: m, db: db}

	var volatile storage.KV
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		p.redis = redis.NewClient(opts)
		bus, err := broadcast.NewRedisBus(ctx, p.redis, redisChannel, logger)
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		p.bus = bus
		volatile = storage.NewRedisKV(p.redis, redisKeyPrefix, cfg.SessionTimeout)
	} else {
		p.bus = broadcast.NewLocalBus()
		volatile = storage.NewMemoryKV()
	}

	p.Store = storage.NewSecureStore(storage.NewSQLiteKV(db), volatile, p.bus, logger, m)
	if err := p.Store.Init(ctx); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("init credential store: %w", err)
	}

	p.API = client.NewHTTPClient(cfg.APIBaseURL, nil)
	logger.Debug(ctx, "profile opened", "state_path", cfg.StatePath, "shared_volatile", p.redis != nil)
	return p, nil
}

// Close releases the bus, the Redis client and the database.
func (p *Profile) Close() error {
	var errs []error
	if p.bus != nil {
		errs = append(errs, p.bus.Close())
	}
	if p.redis != nil {
		errs = append(errs, p.redis.Close())
	}
	if p.db != nil {
		errs = append(errs, p.db.Close())
	}
	return errors.Join(errs...)
}
