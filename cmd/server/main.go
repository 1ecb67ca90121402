package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/andresfuster1/SoonishRepo/internal/api"
	"github.com/andresfuster1/SoonishRepo/internal/auth"
	"github.com/andresfuster1/SoonishRepo/internal/config"
	"github.com/andresfuster1/SoonishRepo/internal/consumer"
	"github.com/andresfuster1/SoonishRepo/internal/domain"
	"github.com/andresfuster1/SoonishRepo/internal/engine"
	"github.com/andresfuster1/SoonishRepo/internal/notify"
	"github.com/andresfuster1/SoonishRepo/internal/persistence"
	postgres "github.com/andresfuster1/SoonishRepo/internal/persistence/postgres"
	httptransport "github.com/andresfuster1/SoonishRepo/internal/transport/http"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	repo := postgres.NewRepository(pool)
	friendGraph := persistence.NewFriendGraph(repo, cfg.FriendLookupMaxRetries, cfg.FriendLookupBaseDelay)

	producer := notify.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()
	registry := notify.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
	sink := notify.NewKafkaSink(producer, registry, cfg.NotificationsTopic)

	eng := engine.New(friendGraph, sink, domain.SystemClock(), engine.Config{
		MaxDistanceKm:     cfg.MaxDistanceKm,
		MaxTimeDeltaHours: cfg.MaxTimeDeltaHours,
		MicroPlanHorizon:  cfg.MicroPlanHorizon,
		SweepInterval:     cfg.SweepInterval,
		SweepShards:       cfg.SweepShards,
	}, engine.WithBootstrapper(repo))

	if err := eng.Start(ctx); err != nil {
		log.Fatalf("engine bootstrap failed: %v", err)
	}

	handler := api.NewHandler(eng, repo)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	// Basic request logger
	logger := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("%s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, nil)
	server := httptransport.NewServer(httptransport.DefaultConfig(cfg.HTTPAddress), authMiddleware.Wrap(logger(mux)))

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler()}
	go func() {
		log.Printf("metrics listening on %s", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	engineHandler := consumer.NewEngineHandler(eng)

	var wg sync.WaitGroup
	for _, topic := range []string{cfg.PlanEventsTopic, cfg.FriendshipEventsTopic} {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.ConsumerGroupID,
			Topic:           topic,
			MinBytes:        1e3,
			MaxBytes:        10e6,
			CommitInterval:  time.Second,
			RetentionTime:   24 * time.Hour,
			ReadLagInterval: -1,
		})

		proc := consumer.NewProcessor(reader, engineHandler)

		wg.Add(1)
		go func(topic string, r *kafka.Reader) {
			defer wg.Done()
			defer r.Close()

			log.Printf("consumer started (topic=%s, group=%s)", topic, cfg.ConsumerGroupID)
			if err := proc.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("consumer stopped with error (topic=%s): %v", topic, err)
			}
		}(topic, reader)
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("plan-sync listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	log.Println("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}

	wg.Wait()
	eng.Wait()
}
