package deps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwise1/voteledger/config"
	"github.com/bwise1/voteledger/internal/db"
	"github.com/bwise1/voteledger/internal/ledger"
	"github.com/bwise1/voteledger/internal/metrics"
	"github.com/bwise1/voteledger/internal/notify"
	"github.com/bwise1/voteledger/internal/pending"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const redisDialTimeout = 5 * time.Second

type Dependencies struct {
	Store      ledger.Store
	Pending    ledger.PendingStore
	Redis      *redis.Client
	Hub        *notify.Hub
	Webhook    *notify.Webhook
	Notifier   *notify.Async
	Metrics    *metrics.Registry
	Reconciler *ledger.Reconciler
	Engine     *ledger.Engine
	Unlocker   *ledger.Unlocker
}

// New opens the store, picks the pending-unlock backend and wires the ledger
// components together.
func New(cfg *config.Config) (*Dependencies, error) {
	store, err := db.Open(db.Options{
		Driver:      cfg.StoreDriver,
		DSN:         cfg.Dsn,
		SQLitePath:  cfg.SQLitePath,
		AutoMigrate: cfg.AutoMigrate,
	})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	d := &Dependencies{
		Store:   store,
		Metrics: metrics.New(),
		Hub:     notify.NewHub(),
	}

	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
		defer cancel()
		client, err := pending.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		d.Redis = client
		d.Pending = pending.NewRedisStore(client)
		log.Info().Msg("pending share unlocks stored in redis")
	} else {
		d.Pending = pending.NewMemoryStore(ledger.RealClock{})
		log.Info().Msg("pending share unlocks stored in memory")
	}

	sinks := notify.Multi{d.Hub}
	if cfg.NotifyWebhookURL != "" {
		d.Webhook = notify.NewWebhook(notify.WebhookConfig{
			URL:     cfg.NotifyWebhookURL,
			Timeout: cfg.NotifyTimeout,
			RPS:     cfg.NotifyRPS,
		})
		sinks = append(sinks, d.Webhook)
	}
	d.Notifier = notify.NewAsync(sinks, cfg.NotifyTimeout, d.Metrics)

	loc := cfg.Location()
	d.Reconciler = ledger.NewReconciler(store, ledger.ReconcilerConfig{
		MaxAttempts: cfg.ReconcileAttempts,
		Backoff:     cfg.ReconcileBackoff,
	}, d.Metrics)
	d.Engine = ledger.NewEngine(store, d.Reconciler,
		ledger.QuotaConfig{DailyCap: cfg.DailyShareCap, Location: loc},
		ledger.WithNotifier(d.Notifier),
		ledger.WithRecorder(d.Metrics),
	)
	d.Unlocker = ledger.NewUnlocker(store, d.Pending,
		ledger.UnlockConfig{DailyCap: cfg.DailyShareCap, TTL: cfg.UnlockTTL, Location: loc},
		ledger.UnlockWithRecorder(d.Metrics),
	)

	return d, nil
}

// Close drains in-flight notifications before releasing connections.
func (d *Dependencies) Close() error {
	if d.Notifier != nil {
		d.Notifier.Wait()
	}
	if d.Hub != nil {
		d.Hub.Close()
	}
	var errs []error
	if d.Redis != nil {
		errs = append(errs, d.Redis.Close())
	}
	if d.Store != nil {
		errs = append(errs, d.Store.Close())
	}
	return errors.Join(errs...)
}
