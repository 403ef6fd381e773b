package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dealforge/dealforge-backend/internal/db"
	"github.com/dealforge/dealforge-backend/internal/events"
	httpapi "github.com/dealforge/dealforge-backend/internal/http"
	httpH "github.com/dealforge/dealforge-backend/internal/http/handlers"
	"github.com/dealforge/dealforge-backend/internal/jobs/pipeline/cancel_job"
	"github.com/dealforge/dealforge-backend/internal/jobs/pipeline/collect_public_data"
	"github.com/dealforge/dealforge-backend/internal/jobs/pipeline/consolidate"
	"github.com/dealforge/dealforge-backend/internal/jobs/pipeline/generate_artifact"
	"github.com/dealforge/dealforge-backend/internal/jobs/pipeline/notify"
	"github.com/dealforge/dealforge-backend/internal/jobs/pipeline/process_uploads"
	"github.com/dealforge/dealforge-backend/internal/jobs/pipeline/questionnaire_build"
	"github.com/dealforge/dealforge-backend/internal/jobs/pipeline/questionnaire_complete"
	jobrt "github.com/dealforge/dealforge-backend/internal/jobs/runtime"
	"github.com/dealforge/dealforge-backend/internal/jobs/worker"
	"github.com/dealforge/dealforge-backend/internal/observability"
	"github.com/dealforge/dealforge-backend/internal/platform/envutil"
	"github.com/dealforge/dealforge-backend/internal/platform/gcs"
	"github.com/dealforge/dealforge-backend/internal/platform/logger"
	"github.com/dealforge/dealforge-backend/internal/platform/sendgrid"
	"github.com/dealforge/dealforge-backend/internal/repos"
	"github.com/dealforge/dealforge-backend/internal/services"
	"github.com/dealforge/dealforge-backend/internal/temporalx"
	"github.com/dealforge/dealforge-backend/internal/temporalx/temporalworker"
)

func main() {
	logMode := envutil.String("LOG_MODE", "development")
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "dealforge-backend",
		Environment: envutil.String("ENVIRONMENT", "development"),
		Version:     envutil.String("SERVICE_VERSION", "dev"),
	})
	if shutdownOtel != nil {
		defer func() { _ = shutdownOtel(context.Background()) }()
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up repos...")
	jobRepo := repos.NewGenerationJobRepo(thePG, log)
	companyRepo := repos.NewCompanyRepo(thePG, log)
	documentRepo := repos.NewCompanyDocumentRepo(thePG, log)
	cacheRepo := repos.NewCachedDataRepo(thePG, log)
	extractionRepo := repos.NewExtractedFinancialRepo(thePG, log)
	questionnaireRepo := repos.NewQuestionnaireRepo(thePG, log)
	assetRepo := repos.NewGeneratedAssetRepo(thePG, log)
	eventRepo := repos.NewEventRepo(thePG, log)
	stepRepo := repos.NewStepRunRepo(thePG, log)

	// Waker (optional: without Redis the workers fall back to polling)
	waker, err := events.NewRedisWaker(log)
	if err != nil {
		log.Warn("Redis waker unavailable, polling only", "error", err)
		waker = nil
	}

	// External services
	log.Info("Setting up services...")
	registryService, err := services.NewRegistryService(log)
	if err != nil {
		log.Error("Could not init RegistryService", "error", err)
		os.Exit(1)
	}
	searchService, err := services.NewWebSearchService(log)
	if err != nil {
		log.Error("Could not init WebSearchService", "error", err)
		os.Exit(1)
	}
	aiService, err := services.NewAIService(ctx, log)
	if err != nil {
		log.Error("Could not init AIService", "error", err)
		os.Exit(1)
	}
	presentationService, err := services.NewPresentationService(log)
	if err != nil {
		log.Error("Could not init PresentationService", "error", err)
		os.Exit(1)
	}
	documentStore, err := gcs.NewDocumentStore(ctx, log)
	if err != nil {
		log.Error("Could not init DocumentStore", "error", err)
		os.Exit(1)
	}
	mailer, err := sendgrid.NewFromEnv(log)
	if err != nil {
		log.Error("Could not init SendGrid client", "error", err)
		os.Exit(1)
	}
	notificationService := services.NewNotificationService(log, mailer)

	// Pipelines
	log.Info("Registering pipelines...")
	registry := jobrt.NewRegistry()
	pipelines := [][]jobrt.Subscription{
		collect_public_data.New(thePG, log, companyRepo, cacheRepo, registryService, searchService).Subscriptions(),
		process_uploads.New(thePG, log, documentRepo, extractionRepo, documentStore, aiService).Subscriptions(),
		questionnaire_build.New(thePG, log, companyRepo, cacheRepo, questionnaireRepo, aiService).Subscriptions(),
		questionnaire_complete.New(thePG, log, questionnaireRepo).Subscriptions(),
		consolidate.New(thePG, log, companyRepo, cacheRepo, extractionRepo, questionnaireRepo).Subscriptions(),
		generate_artifact.New(thePG, log, assetRepo, aiService, presentationService).Subscriptions(),
		cancel_job.New(thePG, log).Subscriptions(),
		notify.New(thePG, log, notificationService).Subscriptions(),
	}
	for _, subs := range pipelines {
		for _, sub := range subs {
			if err := registry.Register(sub); err != nil {
				log.Error("Pipeline registration failed", "event", sub.Event, "subscriber", sub.Subscriber, "error", err)
				os.Exit(1)
			}
		}
	}

	// Event bus + workers
	bus := events.NewOutboxBus(thePG, log, eventRepo, registry.Specs(), waker)
	eventWorker := worker.NewWorker(thePG, log, eventRepo, jobRepo, stepRepo, registry, bus, waker)
	eventWorker.Start(ctx)

	// Temporal watchdog (optional)
	var watchdog services.JobWatchdog
	tc, err := temporalx.NewClient(log)
	if err != nil {
		log.Error("Temporal init failed", "error", err)
		os.Exit(1)
	}
	if tc != nil {
		defer tc.Close()
		watchdog, err = temporalx.NewWatchdog(log, tc)
		if err != nil {
			log.Error("Could not init watchdog", "error", err)
			os.Exit(1)
		}
		runner, err := temporalworker.NewRunner(log, tc, thePG, jobRepo, waker)
		if err != nil {
			log.Error("Could not init Temporal worker", "error", err)
			os.Exit(1)
		}
		if err := runner.Start(ctx); err != nil {
			log.Error("Temporal worker start failed", "error", err)
			os.Exit(1)
		}
	}

	// API surface
	jobService := services.NewJobService(thePG, log, jobRepo, companyRepo, questionnaireRepo, assetRepo, bus, watchdog)
	srv := httpapi.NewServer(httpapi.RouterConfig{
		JobHandler:           httpH.NewJobHandler(jobService),
		QuestionnaireHandler: httpH.NewQuestionnaireHandler(jobService),
		HealthHandler:        httpH.NewHealthHandler(thePG),
	})

	port := envutil.String("PORT", "8080")
	log.Info("Server listening", "port", port)
	if err := srv.Run(":" + port); err != nil {
		log.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}
