/**
 * @description
 * This is the main entry point for the studio-service. It is responsible for
 * initializing all components of the service, including configuration, database connection,
 * external API clients, message brokers, repositories, the core application service,
 * and the HTTP server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/storage, internal/store: Internal packages for the service.
 * - pkg/affiliateclient, pkg/lemonclient, pkg/modalclient, pkg/rabbitmq: External service clients.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/proshoot/studio-service/internal/api"
	"github.com/proshoot/studio-service/internal/app"
	"github.com/proshoot/studio-service/internal/config"
	"github.com/proshoot/studio-service/internal/plans"
	"github.com/proshoot/studio-service/internal/storage"
	"github.com/proshoot/studio-service/internal/store"
	"github.com/proshoot/studio-service/pkg/affiliateclient"
	"github.com/proshoot/studio-service/pkg/lemonclient"
	"github.com/proshoot/studio-service/pkg/modalclient"
	rmrabbit "github.com/proshoot/studio-service/pkg/rabbitmq"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.LemonSigningSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"payment webhook signing secret must be configured\" env=LEMONSQUEEZY_SIGNING_SECRET")
	}

	log.Printf("level=info component=bootstrap msg=\"starting studio-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	// Configure connection pool for high-traffic scenarios
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish lifecycle and credit events.
	// This service only publishes; consumers live in the notification services.
	var producer rmrabbit.Publisher
	rabbitProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rmrabbit.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		producer = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the external service clients.
	lemonClient := lemonclient.NewClient(cfg.LemonAPIBaseURL, cfg.LemonAPIKey, cfg.LemonStoreID)
	modalClient := modalclient.NewClient(cfg.ModalAPIBaseURL, cfg.ModalKey, cfg.ModalSecret, time.Duration(cfg.DispatchTimeoutSecs)*time.Second)
	affiliateClient := affiliateclient.NewClient(cfg.FirstPromoterAPIBaseURL, cfg.FirstPromoterAPIKey)
	if !affiliateClient.Enabled() {
		log.Println("level=warn component=bootstrap msg=\"affiliate tracking not configured; sales will not be attributed\" env=FIRSTPROMOTER_API_KEY")
	}

	// Initialize the R2 presigner for headshot delivery.
	signer, err := storage.NewDeliverySigner(storage.Config{
		AccountID:  cfg.R2AccountID,
		AccessKey:  cfg.R2AccessKeyID,
		SecretKey:  cfg.R2SecretAccessKey,
		Bucket:     cfg.R2Bucket,
		PresignTTL: time.Duration(cfg.R2PresignTTLSecs) * time.Second,
	})
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"delivery signer init failed\" err=%v", err)
	}

	// Redis backs the rate limiter for credit-consuming AI actions.
	var rateLimiter app.RateLimiter
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; ai action rate limiting disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; ai action rate limiting disabled\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; ai action rate limiting disabled\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				rateLimiter = app.NewRedisAIActionRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application service with its dependencies.
	studioService := app.NewService(
		repository,
		plans.NewValidator(plans.DefaultConfig()),
		lemonClient,
		modalClient,
		affiliateClient,
		signer,
		producer,
		rateLimiter,
		app.ServiceConfig{
			EventExchange:       cfg.StudioEventExchange,
			CheckoutRedirectURL: cfg.CheckoutRedirectURL,
			SharedWebhookSecret: cfg.SharedWebhookSecret,
			RetryPolicy:         app.DefaultRetryPolicy(cfg.DispatchMaxAttempts),
			SimilarImageCost:    cfg.SimilarImageCost,
			EditImageCost:       cfg.EditImageCost,
			AIActionRateLimit:   cfg.AIActionRateLimitMin,
		},
	)

	// Initialize the API handlers.
	studioHandlers := api.NewStudioHandlers(studioService)
	webhookHandlers := api.NewWebhookHandlers(studioService, cfg.LemonSigningSecret, cfg.GenerateSecret)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/studio", api.StudioRoutes(studioHandlers, webhookHandlers, cfg.ClerkJWKSURL, cfg.DashboardOrigin))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
