// memoryosd is the multi-tenant agent memory server: the HTTP API, the
// agent-pipeline task queue, nightly activation maintenance, and the
// retention reaper all run out of this one process per replica.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/sansten/memoryos/pkg/agentrunner"
	"github.com/sansten/memoryos/pkg/audit"
	"github.com/sansten/memoryos/pkg/auth"
	"github.com/sansten/memoryos/pkg/cache"
	"github.com/sansten/memoryos/pkg/cleanup"
	"github.com/sansten/memoryos/pkg/config"
	"github.com/sansten/memoryos/pkg/database"
	"github.com/sansten/memoryos/pkg/goalgraph"
	"github.com/sansten/memoryos/pkg/httpapi"
	"github.com/sansten/memoryos/pkg/mask"
	"github.com/sansten/memoryos/pkg/maintenance"
	"github.com/sansten/memoryos/pkg/memstore"
	"github.com/sansten/memoryos/pkg/notify"
	"github.com/sansten/memoryos/pkg/permission"
	"github.com/sansten/memoryos/pkg/retrieval"
	"github.com/sansten/memoryos/pkg/rollout"
	"github.com/sansten/memoryos/pkg/store"
	"github.com/sansten/memoryos/pkg/taskqueue"
	"github.com/sansten/memoryos/pkg/vectorindex"
	"github.com/sansten/memoryos/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	httpAddr := flag.String("http-addr", getEnv("HTTP_ADDR", ":8080"), "HTTP listen address")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("no .env file loaded, continuing with existing environment", "path", envPath, "error", err)
	}

	slog.Info("starting "+version.AppName, "commit", version.GitCommit, "config_dir", *configDir)

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	dbPool, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	slog.Info("connected to postgres and ran migrations")

	redisClient := cache.NewClient(cfg.Redis)
	defer redisClient.Close()

	podID := getEnv("POD_ID", hostnameOrDefault())

	app := wireApplication(ctx, cfg, dbPool, redisClient, podID)

	app.start(ctx)
	slog.Info("memoryosd ready", "http_addr", *httpAddr)

	go func() {
		if err := app.server.Start(*httpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdown(app)
}

func hostnameOrDefault() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "memoryosd"
	}
	return h
}

// application bundles every long-running component so main can start and
// stop them uniformly.
type application struct {
	server     *httpapi.Server
	taskPools  []*taskqueue.Pool
	nightlyJob *maintenance.NightlyJob
	cleanupSvc *cleanup.Service
}

func (a *application) start(ctx context.Context) {
	for _, p := range a.taskPools {
		if err := p.Start(ctx); err != nil {
			slog.Error("task pool failed to start", "error", err)
		}
	}
	a.nightlyJob.Start(ctx)
	a.cleanupSvc.Start(ctx)
}

func shutdown(a *application) {
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown failed", "error", err)
	}
	for _, p := range a.taskPools {
		p.Stop()
	}
	a.nightlyJob.Stop()
	a.cleanupSvc.Stop()
	slog.Info("shutdown complete")
}

// wireApplication constructs every repository, service, and long-running
// component from cfg and the two externally-owned connections (dbPool,
// redisClient), using flat constructor injection rather than a DI framework.
func wireApplication(ctx context.Context, cfg *config.Config, dbPool *pgxpool.Pool, redisClient *redis.Client, podID string) *application {
	memories := store.NewMemoryStore(dbPool)
	activation := store.NewActivationStore(dbPool)
	agentRuns := store.NewAgentRunStore(dbPool)
	causal := store.NewCausalHypothesisStore(dbPool)
	orgs := store.NewOrgStore(dbPool)
	sideEffects := store.NewSideEffectStore(dbPool)
	tasks := store.NewTaskStore(dbPool)

	auditLog := audit.NewLog(dbPool)
	index := vectorindex.NewMemoryIndex()

	kernel := permission.NewKernel(dbPool, redisClient)

	var slackToken string
	if cfg.Slack != nil {
		slackToken = os.Getenv(cfg.Slack.TokenEnv)
	}
	notifier := notify.NewNotifier(cfg.Slack, slackToken)

	masker := mask.NewService(cfg.Defaults.Masking)

	verifier, err := auth.NewVerifier(cfg.JWT)
	if err != nil {
		slog.Error("failed to initialize jwt verifier", "error", err)
		os.Exit(1)
	}

	memstoreSvc := memstore.NewService(dbPool, memories, activation, kernel, index, auditLog)
	searchEngine := retrieval.NewEngine(dbPool, memories, activation, tasks, kernel, index, cfg.Search)

	agents := map[string]agentrunner.Agent{
		agentrunner.AgentGraphLinking:     agentrunner.NewGraphLinkingAgent(),
		agentrunner.AgentTopicModeling:    agentrunner.NewTopicModelingAgent(),
		agentrunner.AgentPatternDetection: agentrunner.NewPatternDetectionAgent(),
		agentrunner.AgentFeedbackLearning: agentrunner.NewFeedbackLearningAgent(),
		agentrunner.AgentLogseqExport:     agentrunner.NewLogseqExportAgent(),
	}
	runner := agentrunner.NewRunner(dbPool, memories, agentRuns, sideEffects, auditLog, agents, cfg.Agent, masker)
	agentExecutor := agentrunner.NewTaskExecutor(runner)
	maintenanceExecutor := maintenance.NewExecutor(dbPool, activation)
	taskExecutor := taskqueue.NewDispatchExecutor(map[string]taskqueue.TaskExecutor{
		"access_update":       maintenanceExecutor,
		"coactivation_update": maintenanceExecutor,
	}, agentExecutor)

	nightlyJob := maintenance.NewNightlyJob(dbPool, orgs, activation, causal, 24*time.Hour)

	cleanupSvc := cleanup.NewService(cfg.Retention, dbPool, orgs, memories)

	goalStore := goalgraph.NewStore(dbPool)
	goalSvc := goalgraph.NewService(dbPool, goalStore, notifier)

	rolloutStore := rollout.NewStore(dbPool)
	rolloutSvc := rollout.NewService(dbPool, rolloutStore, notifier)

	server := httpapi.NewServer(cfg, dbPool, verifier, memstoreSvc, searchEngine, kernel)
	server.SetGoalGraph(goalSvc)
	server.SetRollout(rolloutSvc)

	var pools []*taskqueue.Pool
	orgIDs, err := orgs.ListActiveIDs(ctx)
	if err != nil {
		slog.Error("failed to list active organizations for task pool wiring", "error", err)
	}
	for _, orgID := range orgIDs {
		pools = append(pools, taskqueue.NewPool(podID, orgID, dbPool, tasks, cfg.Queue, taskExecutor, notifier))
	}

	return &application{
		server:     server,
		taskPools:  pools,
		nightlyJob: nightlyJob,
		cleanupSvc: cleanupSvc,
	}
}
