// cmd/casemanager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"dca-platform/internal/cases"
	"dca-platform/internal/common/aws"
	"dca-platform/internal/common/config"
	"dca-platform/internal/common/database"
	"dca-platform/internal/common/logger"
	"dca-platform/internal/common/observability"
	"dca-platform/internal/engine/allocation"
	"dca-platform/internal/engine/capacity"
	"dca-platform/internal/engine/derived"
	"dca-platform/internal/engine/scoring"
	"dca-platform/internal/engine/sla"
	"dca-platform/internal/ingestion"
	"dca-platform/internal/models"
	"dca-platform/internal/notify"
	"dca-platform/internal/prediction"
	"dca-platform/internal/reporting"
	"dca-platform/internal/repository"
	"dca-platform/internal/store"
	"dca-platform/pkg/policy"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting case manager...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("casemanager")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		// Test the connection with context
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry (reporting only) ---
	var esClient *database.ElasticsearchClient
	if cfg.Reporting.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			// Test the connection
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		// Test the connection with context
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init SNS (optional) ---
	var snsClient *aws.SNSClient
	if cfg.Notifications.SNS.Enabled {
		snsClient, err = aws.NewSNSClient(ctx, cfg.Notifications.SNS.Region)
		if err != nil {
			zapLog.Fatal("sns client failed", zap.Error(err))
		}
		zapLog.Info("SNS client initialized")
	}

	// --- Load scoring/priority policy ---
	pol := policy.Default()
	if cfg.App.PolicyFile != "" {
		pol, err = policy.Load(cfg.App.PolicyFile)
		if err != nil {
			zapLog.Fatal("policy load failed", zap.Error(err))
		}
		// The policy file overrides the equivalent config knobs for
		// allocation weights, escalation bounds and scoring weights.
		pol.ApplyToConfig(cfg)
	}

	// --- Notification fan-out ---
	var pubRedis *database.RedisClient
	if cfg.Notifications.Redis.Enabled {
		pubRedis = redis
	}
	sink := notify.NewEmitter(snsClient, cfg.Notifications.SNS.TopicARN, pubRedis, cfg.Notifications.Redis.Channel, log)

	// --- Repositories and in-memory state ---
	caseRepo := repository.NewCaseRepository(pg)
	dcaRepo := repository.NewDCARepository(pg)

	st := store.New(log)
	ledger := capacity.NewLedger()

	persisted, err := caseRepo.LoadAll(ctx)
	if err != nil {
		zapLog.Fatal("case hydration failed", zap.Error(err))
	}
	for _, c := range persisted {
		if err := st.PutCase(c); err != nil {
			zapLog.Fatal("case hydration failed", zap.Error(err), zap.String("case_id", c.ID))
		}
	}

	agencies, err := dcaRepo.LoadAll(ctx)
	if err != nil {
		zapLog.Fatal("dca hydration failed", zap.Error(err))
	}
	for _, d := range agencies {
		ledger.Register(d)
	}
	zapLog.Info("State hydrated",
		zap.Int("cases", st.Len()),
		zap.Int("dcas", len(agencies)),
	)

	// --- Reporting index (optional) ---
	var indexer *reporting.Indexer
	if cfg.Reporting.Enabled {
		indexer = reporting.NewIndexer(esClient, cfg.Database.Elasticsearch, log)
	}

	// Write-through: every committed case mutation lands in Postgres, and
	// in Elasticsearch when reporting is on.
	st.OnMutation(func(c *models.Case) {
		if err := caseRepo.Save(ctx, c); err != nil {
			log.WithError(err).Error("case write-through failed", map[string]interface{}{
				"case_id": c.ID,
			})
		}
		if indexer != nil {
			indexer.IndexCase(ctx, c)
		}
	})

	// --- Engines and services ---
	scoringWeights := policy.ScoringWeights{
		Performance: cfg.Scoring.PerformanceWeight,
		Reliability: cfg.Scoring.ReliabilityWeight,
		Efficiency:  cfg.Scoring.EfficiencyWeight,
	}

	aggregator := scoring.NewAggregator(ledger, scoringWeights, log)
	allocEngine := allocation.NewEngine(st, ledger, cfg.Allocation, sink, redis, log)
	monitor := sla.NewMonitor(st, cfg.SLA, sink, log)
	caseService := cases.NewService(st, ledger, aggregator, sink, log)
	intake := ingestion.NewService(st, ingestion.NewNumbering(redis), ingestion.NewPrioritizer(pol.Priority), log)
	inbox := ingestion.NewInbox(intake, redis, log).WithObservability(obs)
	commands := cases.NewCommandConsumer(caseService, redis, log).WithObservability(obs)
	sweeper := derived.NewSweeper(st, log)

	var predictor *prediction.Client
	if cfg.Prediction.Enabled {
		predictor = prediction.NewClient(cfg.Prediction, log)

		// Best-effort enrichment of fresh cases. Guarded on missing
		// predictions so the resulting mutation does not loop.
		st.OnMutation(func(c *models.Case) {
			if c.Status == models.CaseStatusNew && c.Predictions == nil {
				go predictor.Enrich(ctx, st, c.ID)
			}
		})
	}

	if err := monitor.Start(ctx); err != nil {
		zapLog.Fatal("sla monitor start failed", zap.Error(err))
	}
	if err := aggregator.Start(cfg.Scoring.RecomputeSchedule); err != nil {
		zapLog.Fatal("scoring aggregator start failed", zap.Error(err))
	}
	if err := sweeper.Start(cfg.App.RefreshSchedule); err != nil {
		zapLog.Fatal("derived sweeper start failed", zap.Error(err))
	}
	if err := inbox.Start(cfg.Queues.IntakeSchedule); err != nil {
		zapLog.Fatal("intake inbox start failed", zap.Error(err))
	}
	if err := commands.Start(cfg.Queues.CommandSchedule); err != nil {
		zapLog.Fatal("command consumer start failed", zap.Error(err))
	}

	flushDCAs := func() {
		for _, d := range ledger.All() {
			if err := dcaRepo.Save(ctx, d); err != nil {
				log.WithError(err).Error("dca write-through failed", map[string]interface{}{
					"dca_id": d.ID,
				})
			}
			if indexer != nil {
				indexer.IndexDCA(ctx, d)
			}
		}
	}

	jobs := cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC))
	if _, err := jobs.AddFunc(cfg.Allocation.RetrySchedule, func() {
		allocEngine.AllocatePending(ctx)
		allocEngine.RetryDeferred(ctx)
	}); err != nil {
		zapLog.Fatal("deferred retry schedule invalid", zap.Error(err))
	}
	if _, err := jobs.AddFunc("0 */5 * * * *", flushDCAs); err != nil {
		zapLog.Fatal("dca flush schedule invalid", zap.Error(err))
	}
	jobs.Start()

	zapLog.Info("Case manager started",
		zap.String("sla_sweep", cfg.SLA.SweepSchedule),
		zap.String("scoring_recompute", cfg.Scoring.RecomputeSchedule),
		zap.String("derived_refresh", cfg.App.RefreshSchedule),
		zap.String("deferred_retry", cfg.Allocation.RetrySchedule),
	)

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
				"cases":  fmt.Sprintf("%d", st.Len()),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening", zap.String("addr", cfg.App.MetricsAddr))
		if err := http.ListenAndServe(cfg.App.MetricsAddr, nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")

	<-jobs.Stop().Done()
	inbox.Stop()
	commands.Stop()
	sweeper.Stop()
	aggregator.Stop()
	monitor.Stop()

	// Final capacity/score flush before the process exits.
	flushDCAs()

	zapLog.Info("Case manager stopped gracefully")
}
