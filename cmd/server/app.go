package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"

	dutyhandler "dutyflow/internal/duty/handler"
	"dutyflow/internal/duty/lock"
	dutymetrics "dutyflow/internal/duty/metrics"
	"dutyflow/internal/duty/models"
	dutyservice "dutyflow/internal/duty/service"
	dutystore "dutyflow/internal/duty/store/duty"
	historystore "dutyflow/internal/duty/store/history"
	"dutyflow/internal/evidence"
	"dutyflow/internal/identity"
	notifmetrics "dutyflow/internal/notification/metrics"
	"dutyflow/internal/notification/outbox"
	"dutyflow/internal/notification/publisher"
	"dutyflow/internal/notification/relay"
	notifservice "dutyflow/internal/notification/service"
	"dutyflow/internal/platform/config"
	"dutyflow/internal/platform/kafka"
	"dutyflow/internal/platform/logger"
	"dutyflow/internal/platform/metrics"
	"dutyflow/internal/platform/middleware"
	"dutyflow/internal/platform/postgres"
	redisplatform "dutyflow/internal/platform/redis"
	userhandler "dutyflow/internal/user/handler"
	usermodels "dutyflow/internal/user/models"
	userservice "dutyflow/internal/user/service"
	userstore "dutyflow/internal/user/store"
	"dutyflow/pkg/platform/httputil"
)

type userStore interface {
	userservice.Store
	ListAdmins(ctx context.Context) ([]*usermodels.User, error)
}

type outboxStore interface {
	notifservice.Outbox
	relay.Outbox
}

// app owns every long-lived dependency of one process.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry

	db       *sql.DB
	redis    *redisplatform.Client
	producer *kgo.Client

	users   userStore
	duties  dutyservice.DutyStore
	history dutyservice.HistoryStore
	outbox  outboxStore

	notifMetrics *notifmetrics.Metrics
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger.New(cfg.Log.Level, cfg.Log.Format),
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.notifMetrics = notifmetrics.New(a.registry)

	if err := a.openStores(ctx); err != nil {
		a.Close()
		return nil, err
	}
	redisClient, err := redisplatform.New(ctx, cfg.Redis)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.redis = redisClient
	return a, nil
}

func (a *app) openStores(ctx context.Context) error {
	if a.cfg.Database.URL == "" {
		a.logger.Warn("no database configured, using in-memory stores")
		a.users = userstore.NewInMemory()
		a.duties = dutystore.NewInMemory()
		a.history = historystore.NewInMemory()
		a.outbox = outbox.NewInMemory()
		return nil
	}

	db, err := openDatabase(ctx, a.cfg.Database)
	if err != nil {
		return err
	}
	a.db = db
	a.users = userstore.NewPostgres(db)
	a.duties = dutystore.NewPostgres(db)
	a.history = historystore.NewPostgres(db)
	a.outbox = outbox.NewPostgres(db)
	return nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	return postgres.Open(ctx, postgres.Options{
		DSN:             cfg.URL,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
}

func (a *app) Close() {
	if a.producer != nil {
		a.producer.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func (a *app) userService() *userservice.Service {
	verifier := identity.NewJWTService(a.cfg.Auth.JWTSigningKey, a.cfg.Auth.Issuer, a.cfg.Auth.Audience)
	return userservice.New(a.users, verifier,
		userservice.WithLogger(a.logger),
		userservice.WithAutoProvision(a.cfg.Auth.AutoProvision),
	)
}

func (a *app) dispatcher() *notifservice.Dispatcher {
	return notifservice.New(a.users, a.outbox,
		notifservice.WithLogger(a.logger),
		notifservice.WithMetrics(a.notifMetrics),
	)
}

func (a *app) locker() (dutyservice.DutyLocker, error) {
	switch a.cfg.Duty.Locking {
	case "local":
		return lock.NewLocal(), nil
	case "redis":
		if a.redis == nil {
			return nil, errors.New("redis locking requires a redis connection")
		}
		return lock.NewRedis(a.redis.Client, a.cfg.Duty.LockTTL, a.cfg.Duty.LockWait), nil
	default:
		return nil, nil
	}
}

func (a *app) dutyService(ev dutyservice.EvidenceStore) (*dutyservice.Service, error) {
	opts := []dutyservice.Option{
		dutyservice.WithPolicy(models.ParsePolicy(a.cfg.Duty.TransitionPolicy)),
		dutyservice.WithLogger(a.logger),
		dutyservice.WithMetrics(dutymetrics.New(a.registry)),
	}
	if a.db != nil {
		opts = append(opts, dutyservice.WithTx(newDutyPostgresTx(a.db, a.duties, a.history)))
	}
	l, err := a.locker()
	if err != nil {
		return nil, err
	}
	if l != nil {
		opts = append(opts, dutyservice.WithLocker(l))
	}
	return dutyservice.New(a.duties, a.history, a.users, ev, a.dispatcher(), opts...), nil
}

// publisher returns the Kafka publisher when brokers are configured, otherwise
// one that only logs.
func (a *app) publisher(ctx context.Context) (relay.Publisher, error) {
	if len(a.cfg.Kafka.Brokers) == 0 {
		a.logger.Warn("no kafka brokers configured, notifications will only be logged")
		return publisher.NewLog(a.logger), nil
	}
	client, err := kafka.NewProducer(ctx, a.cfg.Kafka)
	if err != nil {
		return nil, err
	}
	a.producer = client
	if err := kafka.EnsureTopic(ctx, client, a.cfg.Kafka); err != nil {
		return nil, err
	}
	return publisher.NewKafka(client, a.cfg.Kafka.Topic), nil
}

func (a *app) relayWorker(ctx context.Context) (*relay.Worker, error) {
	pub, err := a.publisher(ctx)
	if err != nil {
		return nil, err
	}
	return relay.New(a.outbox, pub,
		relay.WithInterval(a.cfg.Relay.Interval),
		relay.WithBatchSize(a.cfg.Relay.BatchSize),
		relay.WithBreaker(relay.NewBreaker(a.cfg.Relay.BreakerThreshold, a.cfg.Relay.BreakerCooldown)),
		relay.WithLogger(a.logger),
		relay.WithMetrics(a.notifMetrics),
	), nil
}

// router builds the HTTP surface. Health, metrics and evidence files are public;
// everything else requires a bearer token.
func (a *app) router() (http.Handler, error) {
	store, err := evidence.NewLocalStore(a.cfg.Evidence.Dir, a.cfg.Evidence.PublicBaseURL, evidence.Limits{
		MaxBytes:     a.cfg.Evidence.MaxBytes,
		AllowedTypes: a.cfg.Evidence.AllowedTypes,
	})
	if err != nil {
		return nil, err
	}
	duties, err := a.dutyService(store)
	if err != nil {
		return nil, err
	}
	users := a.userService()
	httpMetrics := metrics.New(a.registry)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.Logger(a.logger))
	r.Use(middleware.LatencyMiddleware(httpMetrics))

	r.Get("/healthz", a.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	evidenceBase := evidenceBasePath(a.cfg.Evidence.PublicBaseURL)
	r.Handle(evidenceBase+"/"+evidence.KeyPrefix+"/*", evidence.FileServer(evidenceBase, store.Root()))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(a.cfg.Server.RequestTimeout))
		r.Use(middleware.RequireAuth(users, httpMetrics, a.logger))
		dutyhandler.New(duties, a.logger, dutyhandler.WithMaxUpload(a.cfg.Evidence.MaxBytes)).Register(r)
		userhandler.New(users, a.logger).Register(r)
	})
	return r, nil
}

// evidenceBasePath is the path component of the public base URL without a
// trailing slash. Evidence URLs are <base URL>/<key>, so objects are served
// under <base path>/evidence/.
func evidenceBasePath(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	return strings.TrimRight(u.Path, "/")
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			status["database"] = "unavailable"
			code = http.StatusServiceUnavailable
		}
	}
	if a.redis != nil {
		if err := a.redis.Health(ctx); err != nil {
			status["redis"] = "unavailable"
			code = http.StatusServiceUnavailable
		}
	}
	if code != http.StatusOK {
		status["status"] = "degraded"
	}
	httputil.WriteJSON(w, code, status)
}

func requireDatabase(cfg config.Config, cmd string) error {
	if cfg.Database.URL == "" {
		return fmt.Errorf("%s requires database.url (DUTYFLOW_DATABASE_URL)", cmd)
	}
	return nil
}
