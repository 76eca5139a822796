package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/shipnology/shipnology-backend/internal/auth/jwt"
	"github.com/shipnology/shipnology-backend/internal/provisioning/bootstrap"
	"github.com/shipnology/shipnology-backend/internal/provisioning/consumers"
	"github.com/shipnology/shipnology-backend/internal/provisioning/events"
	"github.com/shipnology/shipnology-backend/internal/provisioning/handler"
	"github.com/shipnology/shipnology-backend/internal/provisioning/migrations"
	"github.com/shipnology/shipnology-backend/internal/provisioning/notification"
	"github.com/shipnology/shipnology-backend/internal/provisioning/provisioner"
	"github.com/shipnology/shipnology-backend/internal/provisioning/repository"
	"github.com/shipnology/shipnology-backend/internal/provisioning/schema"
	"github.com/shipnology/shipnology-backend/internal/provisioning/service"
	"github.com/shipnology/shipnology-backend/pkg/config"
	"github.com/shipnology/shipnology-backend/pkg/database"
	"github.com/shipnology/shipnology-backend/pkg/httputil"
	"github.com/shipnology/shipnology-backend/pkg/i18n"
	"github.com/shipnology/shipnology-backend/pkg/logger"
	"github.com/shipnology/shipnology-backend/pkg/messaging"
)

const serviceName = "provisioning-service"

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.Server.Environment)
	log.Info().Msg("starting Provisioning Service")

	// Control-plane database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(migrations.FS, migrations.Dir); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate registry")
	}

	router := database.NewRouter(cfg.Database, cfg.Provisioning.StatementTimeout, log)
	defer router.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// RabbitMQ is optional: without it events are dropped and last connections are not tracked
	var rmq *messaging.RabbitMQ
	orgEvents := events.Noop(log)
	if cfg.RabbitMQ.Enabled {
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()

		if err := rmq.DeclareDeadLetterQueue(serviceName); err != nil {
			log.Fatal().Err(err).Msg("failed to declare dead letter queue")
		}

		if orgEvents, err = events.NewOrganisationEventPublisher(rmq, log); err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}

		sessions, err := consumers.NewSessionEventConsumer(rmq, repository.NewOrganisationRepository(db), log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create session consumer")
		}
		if err := sessions.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start session consumer")
		}
	} else {
		log.Warn().Msg("RabbitMQ disabled, organisation events will not be published")
	}

	var mailer notification.Mailer = notification.NewDisabledMailer(log)
	if cfg.SMTP.Enabled() {
		smtp, err := notification.NewSMTPMailer(cfg.SMTP, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to configure SMTP")
		}
		mailer = smtp
	}

	jwtManager := jwt.NewManager(&cfg.JWT)
	registry := service.NewSQLRegistry(db)
	tokens := service.NewTokenManager(registry, cfg.Provisioning.TokenTTL, cfg.Provisioning.FrontendURL, log)

	orgService := service.NewOrganisationService(service.Dependencies{
		Registry:    registry,
		Tokens:      tokens,
		Locks:       service.NewOrganisationLocks(db),
		Provisioner: provisioner.New(db, log,
			provisioner.WithTerminateWait(cfg.Provisioning.TerminateWait),
			provisioner.WithReservedNames(cfg.Database.Database)),
		Router:      router,
		Applier:     schema.NewApplier(cfg.Provisioning.Extensions, log),
		Bootstrap:   bootstrap.New(bootstrap.BcryptHasher{}, log),
		Script:      schema.NewSource(cfg.Provisioning.ScriptPath),
		Events:      orgEvents,
		Mailer:      mailer,
		Issuer:      jwtManager,
	}, service.Options{
		Timeout:        cfg.Provisioning.Timeout,
		CleanupTimeout: cfg.Provisioning.CleanupTimeout,
		DefaultPlan:    cfg.Provisioning.DefaultPlan,
		FrontendURL:    cfg.Provisioning.FrontendURL,

		ReservedDatabaseNames: []string{cfg.Database.Database},
	}, log)

	if err := handler.RegisterValidators(); err != nil {
		log.Fatal().Err(err).Msg("failed to register validators")
	}

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "Accept-Language"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(i18n.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{
			"status":   "healthy",
			"service":  serviceName,
			"database": db.Health(r.Context()),
		}
		if rmq != nil {
			body["rabbitmq"] = rmq.Health()
		}
		httputil.JSON(w, http.StatusOK, body)
	})

	r.Route("/api/v1", func(r chi.Router) {
		handler.Routes(r,
			handler.NewOrganisationHandler(orgService, log),
			handler.NewSetupHandler(orgService, log),
			handler.NewAuthenticator(jwtManager, log))
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
		// provisioning calls may run up to provisioning.timeout
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout + cfg.Provisioning.Timeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
