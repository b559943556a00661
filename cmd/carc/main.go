package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/cache"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/config"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/database"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/jobs"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/ledger"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/llm"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/logging"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/models"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/monitoring"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/orchestrator"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/preference"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/providers"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/ratelimit"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/research"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/server"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/version"
)

func main() {
	logger := logging.NewLoggerWithService("carc")
	config.LoadEnv(logger)

	logger.Info("Starting CARC (Content Acquisition & Ranking Core)")

	dbURL := config.RequireEnv("DATABASE_URL")
	registryPath := config.GetEnv("PROVIDER_REGISTRY_PATH", "config/providers.yaml")

	dbConfig := database.DefaultConfig()
	dbConfig.URL = dbURL
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	entries, err := providers.LoadEntries(registryPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load provider registry")
	}

	costLedger := ledger.New()
	cacheTTL := time.Duration(config.GetEnvInt("PROVIDER_CACHE_TTL_SECONDS", 900)) * time.Second
	responseCache := cache.New(cache.Options{TTL: cacheTTL}, cache.MetricsHooks{})

	registry, warnings := providers.NewRegistry(entries, providers.Deps{
		Buckets: ratelimit.NewRegistry(),
		Cache:   responseCache,
		Ledger:  costLedger,
		Logger:  logger,
	})
	for _, w := range warnings {
		logger.WithError(w).Warn("Provider registry entry skipped")
	}

	prefRepo := jobs.NewPostgresPreferenceRepo(db, logger)
	prefAdapter := preference.New(prefRepo, logger)

	var researcher *research.Researcher
	llmProvider, err := llm.NewProvider(llm.LoadConfig())
	if err != nil {
		logger.WithError(err).Warn("Failed to configure LLM provider, deep research is disabled")
	} else {
		researcher = research.NewResearcher(llmProvider)
	}

	orch := orchestrator.New(registry, costLedger, prefAdapter, researcher, models.DefaultBudgetConfigs(), logger)

	jobRepo := jobs.NewPostgresJobRepo(db, logger)
	userRepo := jobs.NewPostgresUserRepo(db, logger)
	controller := jobs.NewController(jobRepo, orch, logger)

	healthChecker := monitoring.NewHealthChecker("carc", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("carc", version.Version, version.GitCommit)
	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("provider_registry", func() monitoring.CheckResult {
		if len(registry.Names()) == 0 {
			return monitoring.CheckResult{Status: monitoring.StatusUnhealthy, Message: "no provider clients registered"}
		}
		return monitoring.CheckResult{Status: monitoring.StatusHealthy}
	})

	app := server.SetupServiceRouter(logger, "carc", healthChecker, metricsCollector)
	registerJobRoutes(app, controller, userRepo, logger)

	serverConfig := server.DefaultConfig("carc", "8085")
	if err := server.Start(serverConfig, app, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}

type createJobRequest struct {
	Query       string              `json:"query" binding:"required"`
	Kind        models.RequestKind  `json:"kind" binding:"required"`
	Preferences *models.Preferences `json:"preferences"`
}

func registerJobRoutes(app *gin.Engine, controller *jobs.Controller, userRepo jobs.UserRepo, logger logging.Logger) {
	jobsGroup := app.Group("/jobs")

	jobsGroup.POST("", func(c *gin.Context) {
		owner := c.GetHeader("X-Owner-ID")
		var req createJobRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		job, err := controller.Create(c.Request.Context(), owner, req.Query, req.Kind, req.Preferences)
		if err != nil {
			logger.WithError(err).Error("Failed to create job")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create job"})
			return
		}

		tier := models.TierFree
		if owner != "" {
			if record, found, err := userRepo.GetByID(c.Request.Context(), owner); err == nil && found {
				tier = record.Tier
			}
		}
		go func() {
			if err := controller.Start(context.Background(), job.ID, tier); err != nil {
				logger.WithError(err).WithField("job_id", job.ID).Warn("Job run ended with an error")
			}
		}()

		c.JSON(http.StatusAccepted, job)
	})

	jobsGroup.GET("/:id", func(c *gin.Context) {
		job, err := controller.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusOK, job)
	})

	jobsGroup.POST("/:id/cancel", func(c *gin.Context) {
		if err := controller.Cancel(c.Request.Context(), c.Param("id")); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
	})

	jobsGroup.GET("", func(c *gin.Context) {
		owner := c.Query("owner")
		list, err := controller.ListByOwner(c.Request.Context(), owner)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
			return
		}
		c.JSON(http.StatusOK, list)
	})
}
