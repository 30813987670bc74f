// Command orchestrator assembles the orchestration core — Session Store,
// Agent Registry, Prompt Cache, Router Executor, Agent Executor Wrapper,
// Workflow Driver — behind the A2A JSON-RPC surface, and serves it over
// HTTP. A thin, out-of-scope assembly wrapper analogous to the teacher's
// example/cmd/assistant, stripped to flags, signal handling, and
// goa.design/clue log context setup.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.temporal.io/sdk/client"
	"goa.design/clue/log"
	"goa.design/pulse/rmap"

	"github.com/homemesh/orchestrator/internal/a2a"
	"github.com/homemesh/orchestrator/internal/cache"
	"github.com/homemesh/orchestrator/internal/cache/ollamaembed"
	"github.com/homemesh/orchestrator/internal/config"
	"github.com/homemesh/orchestrator/internal/conversation"
	"github.com/homemesh/orchestrator/internal/docstore"
	docstoremongo "github.com/homemesh/orchestrator/internal/docstore/mongostore"
	"github.com/homemesh/orchestrator/internal/driver"
	"github.com/homemesh/orchestrator/internal/engine"
	"github.com/homemesh/orchestrator/internal/engine/inmem"
	"github.com/homemesh/orchestrator/internal/engine/temporal"
	"github.com/homemesh/orchestrator/internal/invoker"
	"github.com/homemesh/orchestrator/internal/kv"
	kvinmem "github.com/homemesh/orchestrator/internal/kv/inmem"
	"github.com/homemesh/orchestrator/internal/kv/redisstore"
	"github.com/homemesh/orchestrator/internal/lifecycle"
	lifecycleinmem "github.com/homemesh/orchestrator/internal/lifecycle/inmem"
	lifecyclemongo "github.com/homemesh/orchestrator/internal/lifecycle/mongostore"
	"github.com/homemesh/orchestrator/internal/model"
	"github.com/homemesh/orchestrator/internal/model/anthropic"
	"github.com/homemesh/orchestrator/internal/model/openai"
	"github.com/homemesh/orchestrator/internal/ratelimit"
	"github.com/homemesh/orchestrator/internal/registry"
	"github.com/homemesh/orchestrator/internal/registry/memory"
	"github.com/homemesh/orchestrator/internal/router"
	"github.com/homemesh/orchestrator/internal/telemetry"
	"github.com/homemesh/orchestrator/internal/wrapper"

	"github.com/homemesh/orchestrator/stubagents/climate"
	"github.com/homemesh/orchestrator/stubagents/fallback"
	"github.com/homemesh/orchestrator/stubagents/light"
	"github.com/homemesh/orchestrator/stubagents/music"
	"github.com/homemesh/orchestrator/stubagents/timer"
)

func main() {
	var (
		configPathF = flag.String("config", "", "Path to the orchestrator YAML config file")
		addrF       = flag.String("addr", ":8080", "HTTP listen address")
		dbgF        = flag.Bool("debug", false, "Log request and response bodies")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
	}

	cfg, err := config.Load(*configPathF)
	if err != nil {
		log.Fatalf(ctx, err, "load config")
	}
	if cfg.Telemetry.LogFormat == "text" && !log.IsTerminal() {
		// honor an explicit override even when stdout isn't a terminal
		ctx = log.Context(context.Background(), log.WithFormat(log.FormatTerminal))
	}

	logger := telemetry.NewClueLogger()
	metrics := telemetry.NewClueMetrics()
	tracer := telemetry.NewClueTracer()

	sessionKV, docStore, lifecycleStore := mustBackends(ctx, cfg, logger)

	var clusterMap *rmap.Map
	if cfg.Cluster.Enabled {
		clusterMap = mustClusterMap(ctx, cfg)
	}

	conv := conversation.New(sessionKV, cfg.SessionTTL(), cfg.TaskTTL())

	promptCache, err := cache.New(sessionKV, mustEmbeddingProvider(cfg), logger, cache.Options{
		TTL:                 cfg.CacheTTL(),
		SimilarityThreshold: cfg.Cache.SimilarityThreshold,
		MaxEntries:          cfg.Cache.MaxEntries,
	})
	if err != nil {
		log.Fatalf(ctx, err, "construct prompt cache")
	}
	if !cfg.Cache.Enabled {
		promptCache = nil
	}

	modelClient, err := mustModelClient(cfg)
	if err != nil {
		log.Fatalf(ctx, err, "construct model client")
	}
	modelClient = ratelimit.NewAdaptiveRateLimiter(ctx, clusterMap, "router.model",
		cfg.Router.RateLimit.TokensPerMinute, cfg.Router.RateLimit.TokensPerMinute).Middleware()(modelClient)

	regs := memory.New()
	mustRegisterStubAgents(ctx, regs)

	routerExec, err := router.New(modelClient, promptCache, regs, logger, router.Options{
		FallbackAgent:            cfg.Fallback.AgentID,
		ConfidenceFloor:          cfg.Router.ConfidenceFloor,
		CacheAdmissionConfidence: cfg.Router.CacheAdmissionConfidence,
		Timeout:                  cfg.RouterTimeout(),
	})
	if err != nil {
		log.Fatalf(ctx, err, "construct router executor")
	}

	locals := map[string]invoker.LocalHandle{
		"light":    light.New(),
		"music":    music.New(),
		"climate":  climate.New(),
		"timer":    timer.New(),
		"fallback": fallback.New(),
	}
	inv := invoker.New(locals, nil, nil, logger, cfg.Invoker.RateLimit.RequestsPerSecond, 8)
	wrap := wrapper.New(regs, inv, logger, cfg.AgentTimeout("", 2*time.Second))

	eng, err := mustEngine(cfg, logger, metrics, tracer)
	if err != nil {
		log.Fatalf(ctx, err, "construct workflow engine")
	}

	agentTimeouts := map[string]time.Duration{}
	for name, a := range cfg.Agent {
		if a.TimeoutMs > 0 {
			agentTimeouts[name] = time.Duration(a.TimeoutMs) * time.Millisecond
		}
	}

	drv, err := driver.New(ctx, eng, routerExec, wrap, conv, logger, driver.Options{
		FallbackAgent:         cfg.Fallback.AgentID,
		Priority:              cfg.AgentPriority(),
		RequestTimeout:        cfg.RequestTimeout(),
		RouterActivityTimeout: cfg.RouterTimeout(),
		AgentTimeouts:         agentTimeouts,
		TaskQueue:             cfg.Backend.Temporal.TaskQueue,
		ClusterMap:            clusterMap,
		Lifecycle:             lifecycleStore,
		Archive:               docStore,
	})
	if err != nil {
		log.Fatalf(ctx, err, "construct workflow driver")
	}

	card := a2a.AgentCard{
		Name:               "homemesh-orchestrator",
		Description:        "Routes natural-language home-automation requests across domain agents.",
		URL:                *addrF,
		PreferredTransport: a2a.PreferredTransportJSONRPC,
		Capabilities:       a2a.Capabilities{StateTransitionHistory: true},
		DefaultInputModes:  []string{"text"},
		DefaultOutputModes: []string{"text"},
		Version:            "0.1.0",
	}
	srv := a2a.NewServer(drv, drv.TaskStore(), card)

	httpSrv := &http.Server{Addr: *addrF, Handler: srv, ReadHeaderTimeout: 60 * time.Second}

	errc := make(chan error, 1)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()
	go func() {
		log.Printf(ctx, "HTTP server listening on %q", *addrF)
		errc <- httpSrv.ListenAndServe()
	}()

	log.Printf(ctx, "exiting (%v)", <-errc)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf(ctx, "failed to shutdown cleanly: %v", err)
	}
}

func mustBackends(ctx context.Context, cfg config.Config, logger telemetry.Logger) (kv.Store, docstore.Store, lifecycle.Store) {
	var sessionKV kv.Store
	switch cfg.Backend.SessionStore {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Backend.Redis.Addr,
			DB:       cfg.Backend.Redis.DB,
			Username: cfg.Backend.Redis.Username,
			Password: cfg.Backend.Redis.Password,
		})
		sessionKV = redisstore.New(rdb)
	default:
		sessionKV = kvinmem.New()
	}

	var docStore docstore.Store
	var lifecycleStore lifecycle.Store
	switch cfg.Backend.DocumentStore {
	case "mongo":
		mongoClient := mustMongoClient(ctx, cfg.Backend.Mongo.URI)
		ds, err := docstoremongo.New(ctx, docstoremongo.Options{Client: mongoClient, Database: cfg.Backend.Mongo.Database})
		if err != nil {
			log.Fatalf(ctx, err, "construct document store")
		}
		docStore = ds
		ls, err := lifecyclemongo.New(ctx, lifecyclemongo.Options{Client: mongoClient, Database: cfg.Backend.Mongo.Database})
		if err != nil {
			log.Fatalf(ctx, err, "construct lifecycle store")
		}
		lifecycleStore = ls
	default:
		lifecycleStore = lifecycleinmem.New()
	}

	return sessionKV, docStore, lifecycleStore
}

func mustModelClient(cfg config.Config) (model.Client, error) {
	switch cfg.Router.Model.Provider {
	case "openai":
		return openai.NewFromAPIKey(os.Getenv("OPENAI_API_KEY"), firstNonEmpty(cfg.Router.Model.Model, "gpt-4o-mini"))
	case "bedrock":
		return nil, fmt.Errorf("config: backend.router.model.provider=bedrock requires an AWS runtime client; wire internal/model/bedrock.New from your own aws-sdk-go-v2 bootstrap")
	default:
		return anthropic.NewFromAPIKey(os.Getenv("ANTHROPIC_API_KEY"), firstNonEmpty(cfg.Router.Model.Model, "claude-3-5-sonnet-latest"))
	}
}

// mustEmbeddingProvider returns the configured semantic-similarity
// embedding backend for the Prompt Cache, or nil to leave the cache on
// exact-hash matching only. Unlike the other must* constructors this one
// cannot fail outright: an unrecognized provider just disables the
// semantic fallback rather than aborting startup, since the cache remains
// fully correct (only slower to warm) without it.
func mustEmbeddingProvider(cfg config.Config) cache.EmbeddingProvider {
	switch cfg.Cache.Embedding.Provider {
	case "ollama":
		return ollamaembed.New(cfg.Cache.Embedding.Model, cfg.Cache.Embedding.BaseURL)
	default:
		return nil
	}
}

func mustEngine(cfg config.Config, logger telemetry.Logger, metrics telemetry.Metrics, tracer telemetry.Tracer) (engine.Engine, error) {
	switch cfg.Backend.Engine {
	case "temporal":
		clientOpts := client.Options{
			HostPort:  firstNonEmpty(cfg.Backend.Temporal.HostPort, client.DefaultHostPort),
			Namespace: firstNonEmpty(cfg.Backend.Temporal.Namespace, client.DefaultNamespace),
		}
		return temporal.New(temporal.Options{
			ClientOptions: &clientOpts,
			Logger:        logger,
			Metrics:       metrics,
			Tracer:        tracer,
			WorkerOptions: temporal.WorkerOptions{
				TaskQueue: firstNonEmpty(cfg.Backend.Temporal.TaskQueue, "orchestrator.default"),
			},
		})
	default:
		return inmem.New(logger, metrics, tracer), nil
	}
}

func mustClusterMap(ctx context.Context, cfg config.Config) *rmap.Map {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Cluster.Redis.Addr})
	m, err := rmap.Join(ctx, "orchestrator.contexts", rdb)
	if err != nil {
		log.Fatalf(ctx, err, "join cluster replicated map")
	}
	return m
}

func mustMongoClient(ctx context.Context, uri string) *mongo.Client {
	mongoClient, err := mongo.Connect(mongooptions.Client().ApplyURI(uri))
	if err != nil {
		log.Fatalf(ctx, err, "connect to mongo")
	}
	return mongoClient
}

func mustRegisterStubAgents(ctx context.Context, regs registry.Store) {
	descs := []registry.AgentDescriptor{
		{Name: "light", Description: "Controls lighting.", Transport: registry.TransportLocal,
			Skills: []registry.Skill{{ID: "light.set", Name: "Set lights", Description: "Turn lights on/off or dim them."}}},
		{Name: "music", Description: "Controls media playback.", Transport: registry.TransportLocal,
			Skills: []registry.Skill{{ID: "music.play", Name: "Play music", Description: "Start, stop, or change music."}}},
		{Name: "climate", Description: "Controls the thermostat.", Transport: registry.TransportLocal,
			Skills: []registry.Skill{{ID: "climate.set", Name: "Set temperature", Description: "Adjust heating/cooling."}}},
		{Name: "timer", Description: "Sets timers.", Transport: registry.TransportLocal,
			Capabilities: registry.Capabilities{LongRunning: true},
			Skills:       []registry.Skill{{ID: "timer.set", Name: "Set timer", Description: "Start a countdown timer."}}},
		{Name: "fallback", Description: "General assistant fallback.", Transport: registry.TransportLocal},
	}
	for _, d := range descs {
		if err := regs.Register(ctx, d); err != nil {
			log.Fatalf(ctx, err, "register stub agent %q", d.Name)
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
