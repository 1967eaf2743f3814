package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"rentacar/internal/api"
	"rentacar/internal/bizdate"
	"rentacar/internal/config"
	"rentacar/internal/database"
	"rentacar/internal/events"
	"rentacar/internal/lock"
	"rentacar/internal/metrics"
	"rentacar/internal/models"
	"rentacar/internal/pricing"
	"rentacar/internal/service"
	"rentacar/shared/access"
	"rentacar/shared/audit"
	"rentacar/shared/reminders"
)

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn().Err(err).Msg("failed to read .env")
	}

	cfg, err := config.Load(os.Getenv("RENTACAR_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		logger = logger.Level(level)
	} else {
		logger.Warn().Str("level", cfg.Logging.Level).Msg("unknown log level, using info")
		logger = logger.Level(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	if err := seedSuperadmins(ctx, db, cfg.Staff.Superadmins); err != nil {
		logger.Fatal().Err(err).Msg("seed superadmins")
	}

	var rdb *redis.Client
	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:                  cfg.Redis.Address,
			Password:              cfg.Redis.Password,
			DB:                    cfg.Redis.DB,
			ContextTimeoutEnabled: true,
		})
		defer rdb.Close()
		locker = lock.NewFailoverLocker(lock.NewRedisLocker(rdb, cfg.LockTTL(), cfg.LockAttemptTimeout(), &logger), locker, &logger)
		logger.Info().Str("address", cfg.Redis.Address).Msg("using redis vehicle locks")
	}

	bus := events.NewEventBus(logger)
	// reminders need to see broker failures to retry them, so they bypass the bus
	var reminderPublisher reminders.Publisher = bus
	if cfg.AMQP.Enabled {
		publisher, err := events.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect amqp")
		}
		defer publisher.Close()
		publisher.Forward(bus)
		reminderPublisher = publisher
	}

	seasons, err := config.LoadSeasons(cfg.Business.SeasonsPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Business.SeasonsPath).Msg("load seasons")
	}
	engine := pricing.NewEngine(seasons, db, cfg.PricingRates(), &logger)
	accessService := access.NewService(db, logger)
	fleet := service.NewFleetService(db, accessService, engine, &logger)

	// the first call runs synchronously, so coverage is checked at startup too
	err = config.WatchSeasons(ctx, cfg.Business.SeasonsPath, cfg.SeasonsReloadInterval(),
		func(t *pricing.SeasonTable) {
			engine.SetSeasons(t)
			logger.Info().Strs("seasons", t.Names()).Msg("seasons loaded")
			gaps, err := fleet.CheckCoverage(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("price coverage check failed")
				return
			}
			if len(gaps) > 0 {
				logger.Warn().Int("vehicles", len(gaps)).Msg("vehicles with unpriced season tiers")
			}
		},
		func(err error) {
			logger.Error().Err(err).Msg("seasons reload failed, keeping previous table")
		},
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("watch seasons")
	}

	tracer, err := service.NewLogTracer(cfg.Debug, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("conflict tracer")
	}

	bookings := service.NewBookingService(db, locker, bus, accessService, engine, service.Options{
		Buffer:   cfg.HandoverBuffer(),
		Tracer:   tracer,
		LockWait: cfg.LockWait(),
	}, &logger)

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	backups := database.NewBackupService(db, cfg.Backup, &logger)
	go backups.Start(ctx)

	if cfg.Audit.Enabled {
		auditService := audit.NewService(
			audit.Config{ExportOnStart: cfg.Audit.ExportOnStart, Location: bizdate.Location()},
			db,
			audit.NewExcelizeWriter,
			audit.DirArchiver{Dir: cfg.Audit.ArchivePath},
			db,
			audit.ZerologLogger{Logger: logger.With().Str("component", "audit").Logger()},
		)
		auditService.Start()
		defer auditService.Stop()
	}

	if cfg.Reminders.Enabled {
		reminderService := reminders.NewService(reminders.Config{
			CheckInterval: cfg.ReminderCheckInterval(),
			LeadTime:      cfg.ReminderLeadTime(),
			MaxConcurrent: cfg.Reminders.MaxConcurrent,
			RatePerSecond: cfg.Reminders.RatePerSecond,
		}, db, reminderPublisher, audit.ZerologLogger{Logger: logger.With().Str("component", "reminders").Logger()})
		reminderService.Start()
		defer reminderService.Stop()
	}

	apiServer := api.NewServer(bookings, fleet, accessService, api.Config{
		APIKey:    cfg.Server.APIKey,
		RateRPS:   cfg.Server.RateRPS,
		RateBurst: cfg.Server.RateBurst,
	}, logger)
	if cfg.Server.APIKey == "" {
		logger.Warn().Msg("server.api_key is empty, API is unauthenticated")
	}

	logger.Info().Int("port", cfg.Server.Port).Msg("rentacar API started")
	if err := serve(ctx, cfg.Server.Port, apiServer.Handler()); err != nil {
		logger.Error().Err(err).Msg("api server error")
	}
	logger.Info().Msg("shutting down")
}

func seedSuperadmins(ctx context.Context, db *database.DB, ids []int64) error {
	for _, id := range ids {
		existing, err := db.GetStaff(ctx, id)
		if err != nil {
			return err
		}
		if existing != nil && existing.Role == models.RoleSuperadmin {
			continue
		}
		if err := db.AddStaff(ctx, &models.Staff{UserID: id, Name: "bootstrap", Role: models.RoleSuperadmin}); err != nil {
			return fmt.Errorf("seed superadmin %d: %w", id, err)
		}
	}
	return nil
}

// serve runs an HTTP server until ctx is done, then drains it.
func serve(ctx context.Context, port int, handler http.Handler) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.Ready(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		// the locker falls back to local locks, so redis is reported but not fatal
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("ready (redis unavailable, local locks)"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if err := serve(ctx, port, mux); err != nil {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	if err := serve(ctx, port, mux); err != nil {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
