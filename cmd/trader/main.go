// Command trader serves the trade proposal agent. Alongside the run
// endpoint it exposes the continuation endpoint that feeds approval
// responses back into suspended runs.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relayhq/agents/config"
	"github.com/relayhq/agents/events"
	"github.com/relayhq/agents/httpapi"
	"github.com/relayhq/agents/llm"
	"github.com/relayhq/agents/news"
	"github.com/relayhq/agents/observability"
	"github.com/relayhq/agents/pipeline"
	"github.com/relayhq/agents/relay"
	"github.com/relayhq/agents/trader"
)

func main() {
	if err := run(); err != nil {
		slog.Error("trader failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.Options{Service: "trader", RequireNews: true})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	observability.ConfigureLogging(cfg.Logging.SlogLevel(), cfg.Logging.Structured, true)
	logger := observability.Logger("trader")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracerProvider, err := observability.InitTracing("trader", cfg.Tracing.OTLPEndpoint, cfg.Tracing.Console)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shut down tracing", slog.String("error", err.Error()))
		}
	}()

	meterProvider, err := observability.InitMetrics("trader")
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shut down metrics", slog.String("error", err.Error()))
		}
	}()

	metrics, err := observability.NewPipelineMetrics()
	if err != nil {
		return fmt.Errorf("failed to create pipeline metrics: %w", err)
	}

	client, err := relay.New(relay.Config{BaseURL: cfg.Relay.BaseURL, APIKey: cfg.Relay.APIKey})
	if err != nil {
		return err
	}
	store := relay.NewInstrumented(client, cfg.AgentID, metrics)

	model, err := llm.New(ctx, llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
		Region:   cfg.LLM.Region,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize LLM provider: %w", err)
	}
	model = llm.NewInstrumented(model, cfg.LLM.Provider, metrics)

	newsClient, err := news.NewClient(news.Config{
		BaseURL:           cfg.News.BaseURL,
		APIKey:            cfg.News.APIKey,
		RequestsPerMinute: cfg.News.RequestsPerMinute,
	})
	if err != nil {
		return err
	}

	hub := events.NewHub()
	defer hub.Close()
	feed := events.NewFeed(events.NewConsoleEmitter(false), hub)
	if len(cfg.Events.KafkaBrokers) > 0 {
		kafka, err := events.NewKafkaEmitter(events.KafkaConfig{
			Brokers: cfg.Events.KafkaBrokers,
			Topic:   cfg.Events.KafkaTopic,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to Kafka: %w", err)
		}
		defer kafka.Close()
		feed.Attach(kafka)
	}

	// Without Redis the runner falls back to a process-local lock.
	var locker pipeline.Locker
	if cfg.Redis.URL != "" {
		redisLocker, err := pipeline.NewRedisLocker(cfg.Redis.URL, 0)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer redisLocker.Close()
		locker = redisLocker
	}

	runner, err := pipeline.NewRunner(pipeline.RunnerConfig{
		AgentID: cfg.AgentID,
		Store:   store,
		Locker:  locker,
		Metrics: metrics,
		Feed:    feed,
	})
	if err != nil {
		return err
	}

	agent, err := trader.New(trader.Config{
		AgentID: cfg.AgentID,
		Store:   store,
		Model:   model,
		News:    newsClient,
		Runner:  runner,
	})
	if err != nil {
		return err
	}

	router, err := httpapi.NewRouter(httpapi.Config{
		AgentID:  cfg.AgentID,
		Run:      agent.Run,
		Continue: agent.Continue,
		Hub:      hub,
		Metrics:  true,
	})
	if err != nil {
		return err
	}

	if cfg.Schedule != "" {
		scheduler := pipeline.NewScheduler()
		if err := scheduler.Add(cfg.Schedule, "trader", agent.Run); err != nil {
			return fmt.Errorf("invalid RUN_SCHEDULE: %w", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	logger.Info("trader listening",
		slog.String("addr", cfg.Addr()),
		slog.String("agent_id", cfg.AgentID))
	return httpapi.Serve(ctx, cfg.Addr(), router)
}
