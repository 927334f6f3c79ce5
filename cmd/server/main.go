// Command server runs the barangay certificate service.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	certhandler "brgycert/internal/certificate/handler"
	"brgycert/internal/audit"
	"brgycert/internal/certificate/service"
	"brgycert/internal/certificate/store"
	"brgycert/internal/identity"
	"brgycert/internal/platform/config"
	"brgycert/internal/platform/httpserver"
	"brgycert/internal/platform/logger"
	"brgycert/internal/platform/metrics"
	"brgycert/internal/platform/redis"
	"brgycert/internal/render"
	"brgycert/internal/router"
	"brgycert/internal/signature"
	"brgycert/internal/template"
	"brgycert/internal/verify"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// certificateStore is the union of the store slices the services consume.
// Both the memory and the postgres implementation satisfy it.
type certificateStore interface {
	service.Store
	render.Store
	verify.Store
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	healthChecks := map[string]router.HealthCheck{}

	var (
		certStore  certificateStore
		transactor service.Transactor
		tmplStore  template.Store
		sigStore   signature.Store
		auditStore audit.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
		pg := store.NewPostgres(db)
		certStore, transactor = pg, pg
		tmplStore = template.NewPostgresStore(db)
		sigStore = signature.NewPostgresStore(db)
		auditStore = audit.NewPostgresStore(db)
		healthChecks["postgres"] = db.PingContext
		log.Info("connected to postgres")
	} else {
		mem := store.NewInMemory()
		certStore, transactor = mem, mem
		tmplStore = template.NewInMemoryStore()
		sigStore = signature.NewInMemoryStore()
		auditStore = audit.NewInMemoryStore()
		log.Warn("no DATABASE_URL set, running with in-memory stores")
	}

	publisher := audit.NewPublisher(log)
	sinks := []audit.Sink{auditStore}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return fmt.Errorf("kafka sink: %w", err)
		}
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
		log.Info("audit events also published to kafka", "topic", cfg.KafkaTopic)
	}
	worker := audit.NewWorker(publisher.Inbox(), log, sinks...)

	tmplSvc := template.New(
		tmplStore,
		filepath.Join(cfg.DataDir, "templates"),
		cfg.DefaultTemplateDir,
		cfg.TemplateMaxBytes,
		log,
		template.WithAuditPublisher(publisher),
	)
	if err := tmplSvc.Reconcile(ctx); err != nil {
		return fmt.Errorf("template reconciliation: %w", err)
	}

	sigDir := filepath.Join(cfg.DataDir, "signatures")
	sigSvc := signature.New(
		sigStore,
		sigDir,
		filepath.Join(sigDir, "default.png"),
		cfg.SignatureMaxBytes,
		log,
		signature.WithAuditPublisher(publisher),
	)

	pipeline := render.New(tmplSvc, sigSvc, certStore, log, cfg.DataDir, cfg.VerifyBaseURL, cfg.Office,
		render.WithAuditPublisher(publisher),
		render.WithMetrics(m),
	)

	certSvc := service.New(certStore, transactor, pipeline, log, cfg.Office.Barangay,
		service.WithAuditPublisher(publisher),
		service.WithMetrics(m),
	)

	verifyOpts := []verify.Option{verify.WithMetrics(m)}
	rdb, err := redis.New(cfg.RedisURL)
	if err != nil {
		log.Warn("redis unavailable, verification cache disabled", "error", err)
	} else if rdb != nil {
		defer rdb.Close()
		verifyOpts = append(verifyOpts, verify.WithCache(verify.NewRedisCache(rdb)))
		healthChecks["redis"] = rdb.Health
		log.Info("verification cache enabled")
	}
	verifySvc := verify.New(certStore, log, cfg.DataDir, verifyOpts...)

	validator := identity.NewJWTValidator(cfg.JWTSigningKey)
	handler := router.New(router.Deps{
		Logger:       log,
		Validator:    validator,
		Certificates: certhandler.New(certSvc, log),
		Templates:    template.NewHandler(tmplSvc, log),
		Signatures:   signature.NewHandler(sigSvc, log),
		Verify:       verify.NewHandler(verifySvc, cfg.VerifyBaseURL, log),
		HealthChecks: healthChecks,
	})

	srv := httpserver.New(cfg.Addr, handler)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(ctx)
	})
	g.Go(func() error {
		log.Info("listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
