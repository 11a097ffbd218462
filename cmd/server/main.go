package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"starline/internal/audit/alerts"
	"starline/internal/audit/capture"
	"starline/internal/audit/detector"
	"starline/internal/audit/export"
	"starline/internal/audit/handler"
	"starline/internal/audit/recorder"
	"starline/internal/audit/report"
	"starline/internal/audit/retention"
	"starline/internal/audit/settings"
	exportstore "starline/internal/audit/store/export"
	"starline/internal/audit/store/record"
	settingsstore "starline/internal/audit/store/settings"
	"starline/internal/audit/store/violation"
	jwttoken "starline/internal/jwt_token"
	"starline/internal/platform/blob"
	"starline/internal/platform/config"
	"starline/internal/platform/httpserver"
	"starline/internal/platform/kafka"
	"starline/internal/platform/logger"
	"starline/internal/platform/mail"
	"starline/internal/platform/metrics"
	"starline/internal/platform/postgres"
	platformredis "starline/internal/platform/redis"
)

// main wires dependencies and runs the server lifecycle. Business logic lives
// in the internal/audit packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores: PostgreSQL when configured, in-memory otherwise. The in-memory
	// variant exists for local development only.
	var (
		recordStore    record.Store
		violationStore violation.Store
		settingsStore  settingsstore.Store
		exportStore    exportstore.Store
	)
	var relay *kafka.Relay
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		recordStore = record.NewPostgresStore(db)
		violationStore = violation.NewPostgresStore(db)
		settingsStore = settingsstore.NewPostgresStore(db)
		exportStore = exportstore.NewPostgresStore(db)

		if len(cfg.Kafka.Brokers) > 0 {
			producer, err := kafka.NewProducer(cfg.Kafka)
			if err != nil {
				return err
			}
			defer producer.Close()
			relay = kafka.NewRelay(db, producer,
				kafka.RelayWithLogger(log),
				kafka.RelayWithInterval(cfg.Kafka.PollInterval),
				kafka.RelayWithBatchSize(cfg.Kafka.BatchSize),
			)
		}
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		recordStore = record.NewInMemoryStore()
		violationStore = violation.NewInMemoryStore()
		settingsStore = settingsstore.NewInMemoryStore()
		exportStore = exportstore.NewInMemoryStore()
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}

	settingsOpts := []settings.Option{settings.WithLogger(log)}
	if redisClient != nil {
		defer redisClient.Close()
		settingsOpts = append(settingsOpts, settings.WithCache(redisClient.Client, 5*time.Minute))
	}
	settingsSvc := settings.New(settingsStore, settingsOpts...)

	var mailer mail.Mailer
	if cfg.SMTP.Host != "" {
		mailer = mail.NewSMTPMailer(mail.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			FromName: cfg.SMTP.FromName,
			UseTLS:   cfg.SMTP.UseTLS,
		})
	} else {
		log.Warn("SMTP_HOST not set, alerts will be logged instead of sent")
		mailer = &mail.LogMailer{Logger: log}
	}

	dispatcher := alerts.New(settingsSvc, mailer,
		alerts.WithLogger(log),
		alerts.WithMetrics(alerts.NewMetrics()),
	)

	rec := recorder.New(recordStore, settingsSvc,
		recorder.WithLogger(log),
		recorder.WithMetrics(recorder.NewMetrics()),
		recorder.WithTracer(otel.Tracer("starline/audit")),
	)
	det := detector.New(recordStore, violationStore, rec,
		detector.WithLogger(log),
		detector.WithMetrics(detector.NewMetrics()),
	)
	rec.AttachSinks(det, dispatcher)

	blobs, err := blob.NewFSStore(cfg.BlobDir)
	if err != nil {
		return err
	}
	exporter := export.New(exportStore, recordStore, blobs,
		export.WithLogger(log),
		export.WithAuditor(rec),
	)

	sweeper := retention.New(recordStore, settingsStore,
		retention.WithLogger(log),
		retention.WithExportCleaner(exporter),
	)

	reporter := report.New(recordStore, violationStore)

	tokens := jwttoken.NewJWTService(cfg.JWTSigningKey, "starline", "starline-api")
	mw := capture.NewMiddleware(rec, tokens, capture.MiddlewareWithLogger(log))

	router := chi.NewRouter()
	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Method(http.MethodGet, "/metrics", metrics.Handler())
	router.Group(func(r chi.Router) {
		r.Use(mw.Handler)
		h := handler.New(recordStore, violationStore, settingsSvc, reporter, exporter, dispatcher, log)
		h.Register(r)
	})

	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rec.Run(ctx) })
	g.Go(func() error { return dispatcher.Run(ctx) })
	g.Go(func() error { return exporter.Run(ctx) })
	g.Go(func() error { return sweeper.Run(ctx) })
	if relay != nil {
		g.Go(func() error { return relay.Run(ctx) })
	}

	g.Go(func() error {
		log.Info("starting starline audit server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("server stopped")
	return nil
}
