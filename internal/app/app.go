// Package app wires the stores, the materializer and the batch runner from
// a loaded configuration. Both the server and chorlyctl start here.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"

	"github.com/dukerupert/chorly/internal/chore"
	"github.com/dukerupert/chorly/internal/config"
	"github.com/dukerupert/chorly/internal/database"
	"github.com/dukerupert/chorly/internal/email"
	"github.com/dukerupert/chorly/internal/jobs"
	"github.com/dukerupert/chorly/internal/lease"
	"github.com/dukerupert/chorly/internal/metrics"
	"github.com/dukerupert/chorly/internal/notify"
	"github.com/dukerupert/chorly/internal/schedule"
	"github.com/dukerupert/chorly/internal/store"
	ws "github.com/dukerupert/chorly/internal/websocket"
)

type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	DB      *sql.DB
	Hub     *ws.Hub
	Metrics *metrics.Recorder
	Service *chore.Service
	Runner  *jobs.Runner

	redis *redis.Client
}

type Option func(*options)

type options struct {
	realtime bool
}

// WithRealtime starts a websocket hub and publishes occurrence changes to it.
func WithRealtime() Option { return func(o *options) { o.realtime = true } }

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &App{Config: cfg, Logger: logger, DB: db}

	if a.Metrics, err = metrics.New(); err != nil {
		db.Close()
		return nil, err
	}

	tenants := store.NewTenantStore(db)
	chores := store.NewChoreStore(db)
	members := store.NewMemberStore(db)
	occurrences := store.NewOccurrenceStore(db)

	mailer := email.NewClient(cfg.PostmarkToken, cfg.MailFrom, cfg.AppBaseURL, email.WithZone(cfg.Zone))
	if !mailer.Configured() {
		logger.Warn("postmark token not set, email disabled")
	}

	mopts := []chore.Option{chore.WithRecorder(a.Metrics)}
	var sopts []chore.ServiceOption
	var fanout *notify.Fanout
	if o.realtime {
		a.Hub = ws.NewHub(logger)
		fanout = notify.NewFanout(mailer, a.Hub, logger)
		mopts = append(mopts, chore.WithEvents(a.Hub))
		sopts = append(sopts, chore.WithServiceEvents(a.Hub))
	} else {
		fanout = notify.NewFanout(mailer, nil, logger)
	}
	mopts = append(mopts, chore.WithNotifier(fanout))

	if cfg.RedisAddr != "" {
		a.redis = lease.NewClient(cfg.RedisAddr)
		if err := lease.Ping(ctx, a.redis); err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		mopts = append(mopts, chore.WithLocker(lease.NewLocker(a.redis, cfg.LeaseTTL, logger)))
	} else {
		logger.Warn("redis_addr not set, materialization runs without a lease")
	}

	m := chore.NewMaterializer(chores, members, occurrences, schedule.NewExpander(cfg.Zone), logger, mopts...)
	sopts = append(sopts, chore.WithInlineDays(cfg.InlineDaysAhead))
	a.Service = chore.NewService(chores, members, occurrences, m, cfg.Zone, logger, sopts...)

	var ropts []jobs.Option
	if cfg.TenantID != "" {
		ropts = append(ropts, jobs.WithTenant(cfg.TenantID))
	}
	a.Runner = jobs.NewRunner(jobs.Deps{
		Tenants:      tenants,
		Chores:       chores,
		Members:      members,
		Occurrences:  occurrences,
		Ledger:       store.NewLedgerStore(db),
		Sent:         store.NewNotificationStore(db),
		Sender:       fanout,
		Materializer: m,
	}, cfg.Zone, cfg.GenerateDaysAhead, logger, ropts...)

	return a, nil
}

// Close releases the database, redis and metrics provider.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Metrics != nil {
		errs = append(errs, a.Metrics.Shutdown(ctx))
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, a.DB.Close())
	return errors.Join(errs...)
}
