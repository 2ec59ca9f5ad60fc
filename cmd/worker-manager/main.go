// cmd/worker-manager/main.go
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
	"go.uber.org/zap"

	"grantpilot-workers/internal/common/aws"
	"grantpilot-workers/internal/common/camunda"
	"grantpilot-workers/internal/common/config"
	"grantpilot-workers/internal/common/database"
	"grantpilot-workers/internal/common/llm"
	"grantpilot-workers/internal/common/logger"
	"grantpilot-workers/internal/common/observability"

	"grantpilot-workers/internal/analyzer"
	"grantpilot-workers/internal/collector"
	"grantpilot-workers/internal/composer"
	"grantpilot-workers/internal/ledger"
	"grantpilot-workers/internal/notify"
	"grantpilot-workers/internal/revision"
	"grantpilot-workers/internal/session"
	"grantpilot-workers/internal/store"
	"grantpilot-workers/pkg/registry"

	// Drafting workers (5)
	aa "grantpilot-workers/internal/workers/drafting/analyze-announcement"
	cpt "grantpilot-workers/internal/workers/drafting/collect-profile-turn"
	cd "grantpilot-workers/internal/workers/drafting/compose-drafts"
	ndr "grantpilot-workers/internal/workers/drafting/notify-drafts-ready"
	rd "grantpilot-workers/internal/workers/drafting/revise-draft"

	// Billing workers (1)
	cp "grantpilot-workers/internal/workers/billing/confirm-payment"

	// Session workers (1)
	fs "grantpilot-workers/internal/workers/session/finalize-session"
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

	zapLog.Info("Starting worker manager...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("worker-manager", os.Getenv("JAEGER_ENDPOINT"))
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Activity registry: every enabled task type must be registered ---
	reg, err := registry.LoadRegistry(cfg.Registry.Path)
	if err != nil {
		zapLog.Fatal("activity registry load failed", zap.Error(err), zap.String("path", cfg.Registry.Path))
	}
	if err := reg.Validate(); err != nil {
		zapLog.Fatal("activity registry invalid", zap.Error(err))
	}
	var enabledTaskTypes []string
	for _, taskType := range []string{
		aa.TaskType, cpt.TaskType, cd.TaskType, rd.TaskType, ndr.TaskType, cp.TaskType, fs.TaskType,
	} {
		if cfg.Workers[taskType].Enabled {
			enabledTaskTypes = append(enabledTaskTypes, taskType)
		}
	}
	if err := reg.RequireImplemented(enabledTaskTypes...); err != nil {
		zapLog.Fatal("enabled worker missing from registry", zap.Error(err))
	}
	zapLog.Info("Activity registry validated", zap.Int("enabledWorkers", len(enabledTaskTypes)))

	// --- Init Zeebe Client with retry ---
	var camundaClient *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		camundaClient, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      10 * time.Second,
			RequestTimeout:         time.Duration(cfg.Camunda.RequestTimeout) * time.Millisecond,
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")

	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zeebeClient := camundaClient.GetClient()
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init GenAI client ---
	genai, err := llm.NewOpenAIClient(llm.OpenAIOptions{
		APIKey:         cfg.GenAI.APIKey,
		BaseURL:        cfg.GenAI.BaseURL,
		DefaultTimeout: time.Duration(cfg.GenAI.Timeout) * time.Millisecond,
	})
	if err != nil {
		zapLog.Fatal("genai client initialization failed", zap.Error(err))
	}
	zapLog.Info("GenAI client initialized")

	// --- Init AWS notification clients (only when a channel is on) ---
	var sesClient *aws.SESClient
	var snsClient *aws.SNSClient
	if cfg.Notifications.Email.Enabled {
		sesClient, err = aws.NewSESClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Fatal("ses client initialization failed", zap.Error(err))
		}
	}
	if cfg.Notifications.SMS.Enabled {
		snsClient, err = aws.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Fatal("sns client initialization failed", zap.Error(err))
		}
	}

	// --- Build domain services ---
	sessionStore := store.NewSessionStore(pg.DB)
	draftStore := store.NewDraftStore(pg.DB)
	announcementStore := store.NewAnnouncementStore(pg.DB)

	creditLedger := ledger.New(pg.DB, cfg.Drafting.Tiers, log)
	controller := session.NewController(sessionStore, log)

	callTimeout := time.Duration(cfg.GenAI.Timeout) * time.Millisecond

	announcementAnalyzer := analyzer.New(announcementStore, redis.Client, genai, analyzer.Options{
		Model:       cfg.GenAI.ReasoningModel,
		MaxTokens:   cfg.GenAI.MaxTokens,
		Temperature: cfg.GenAI.Temperature,
		CallTimeout: callTimeout,
		CacheTTL:    time.Duration(cfg.Drafting.AnalysisCacheTTL) * time.Hour,
	}, log)

	profileCollector := collector.New(genai, collector.Options{
		Model:               cfg.GenAI.ReasoningModel,
		MaxTokens:           cfg.GenAI.MaxTokens,
		Temperature:         cfg.GenAI.Temperature,
		CallTimeout:         callTimeout,
		CompletionThreshold: cfg.Drafting.CompletionThreshold,
	}, log)

	stylesByTier := make(map[string][]string, len(cfg.Drafting.Tiers))
	for name, tier := range cfg.Drafting.Tiers {
		stylesByTier[name] = tier.Styles
	}
	draftComposer := composer.New(genai, stylesByTier, composer.Options{
		Model:        cfg.GenAI.GenerationModel,
		MaxTokens:    cfg.GenAI.MaxTokens,
		Temperature:  cfg.GenAI.Temperature,
		CallTimeout:  callTimeout,
		TargetLength: cfg.Drafting.TargetLength,
	}, log)

	revisionEngine := revision.New(genai, creditLedger, draftStore, revision.Options{
		Model:       cfg.GenAI.GenerationModel,
		MaxTokens:   cfg.GenAI.MaxTokens,
		Temperature: cfg.GenAI.Temperature,
		CallTimeout: callTimeout,
	}, log)

	notifier := notify.New(sesClient, snsClient, notify.Options{
		EmailEnabled: cfg.Notifications.Email.Enabled,
		SMSEnabled:   cfg.Notifications.SMS.Enabled,
		FromEmail:    cfg.Notifications.Email.FromEmail,
	}, log)

	zapLog.Info("All domain services initialized")

	// --- Register Workers ---
	var workers []*camunda.Worker

	if wcfg := cfg.Workers[aa.TaskType]; wcfg.Enabled {
		handler := aa.NewHandler(
			&aa.Config{
				Timeout:       time.Duration(wcfg.Timeout) * time.Millisecond,
				MaxJobsActive: wcfg.MaxJobsActive,
			},
			announcementAnalyzer, controller, sessionStore, profileCollector, log,
		)
		workers = append(workers, camunda.NewWorker(zeebeClient, aa.TaskType, wcfg.MaxJobsActive, handler, zapLog))
	}

	if wcfg := cfg.Workers[cpt.TaskType]; wcfg.Enabled {
		handler := cpt.NewHandler(
			&cpt.Config{
				Timeout:       time.Duration(wcfg.Timeout) * time.Millisecond,
				MaxJobsActive: wcfg.MaxJobsActive,
			},
			announcementAnalyzer, sessionStore, profileCollector, log,
		)
		workers = append(workers, camunda.NewWorker(zeebeClient, cpt.TaskType, wcfg.MaxJobsActive, handler, zapLog))
	}

	if wcfg := cfg.Workers[cd.TaskType]; wcfg.Enabled {
		handler := cd.NewHandler(
			&cd.Config{
				Timeout:       time.Duration(wcfg.Timeout) * time.Millisecond,
				MaxJobsActive: wcfg.MaxJobsActive,
			},
			announcementAnalyzer, controller, draftComposer, draftStore, log,
		)
		workers = append(workers, camunda.NewWorker(zeebeClient, cd.TaskType, wcfg.MaxJobsActive, handler, zapLog))
	}

	if wcfg := cfg.Workers[rd.TaskType]; wcfg.Enabled {
		handler := rd.NewHandler(
			&rd.Config{
				Timeout:       time.Duration(wcfg.Timeout) * time.Millisecond,
				MaxJobsActive: wcfg.MaxJobsActive,
			},
			controller, revisionEngine, log,
		)
		workers = append(workers, camunda.NewWorker(zeebeClient, rd.TaskType, wcfg.MaxJobsActive, handler, zapLog))
	}

	if wcfg := cfg.Workers[ndr.TaskType]; wcfg.Enabled {
		handler := ndr.NewHandler(
			&ndr.Config{
				Timeout:       time.Duration(wcfg.Timeout) * time.Millisecond,
				MaxJobsActive: wcfg.MaxJobsActive,
			},
			notifier, log,
		)
		workers = append(workers, camunda.NewWorker(zeebeClient, ndr.TaskType, wcfg.MaxJobsActive, handler, zapLog))
	}

	if wcfg := cfg.Workers[cp.TaskType]; wcfg.Enabled {
		handler := cp.NewHandler(
			&cp.Config{
				Timeout:       time.Duration(wcfg.Timeout) * time.Millisecond,
				MaxJobsActive: wcfg.MaxJobsActive,
			},
			controller, creditLedger, log,
		)
		workers = append(workers, camunda.NewWorker(zeebeClient, cp.TaskType, wcfg.MaxJobsActive, handler, zapLog))
	}

	if wcfg := cfg.Workers[fs.TaskType]; wcfg.Enabled {
		handler := fs.NewHandler(
			&fs.Config{
				Timeout:       time.Duration(wcfg.Timeout) * time.Millisecond,
				MaxJobsActive: wcfg.MaxJobsActive,
			},
			controller, draftStore, log,
		)
		workers = append(workers, camunda.NewWorker(zeebeClient, fs.TaskType, wcfg.MaxJobsActive, handler, zapLog))
	}

	for _, w := range workers {
		w.Start()
	}
	zapLog.Info("All workers registered successfully", zap.Int("count", len(workers)))

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
			if err := camundaClient.HealthCheck(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{
					"status": "not ready",
					"error":  err.Error(),
				})
				return
			}
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening on :8080")
		if err := http.ListenAndServe(":8080", nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Stop(shutdownCtx)
	}

	if err := camundaClient.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}
