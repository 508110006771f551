/**
 * @description
 * This is the main entry point for the billing-service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, payment gateway clients, the event producer, the repository, the
 * core application service, and the HTTP server. It wires everything together
 * and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/joho/godotenv: Local .env loading.
 * - github.com/redis/go-redis/v9: Redis client for payment rate limiting.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages.
 * - pkg/gatewayclient, pkg/paypalclient, pkg/rabbitmq: External service clients.
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

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/linode/manager-sub003/internal/api"
	"github.com/linode/manager-sub003/internal/app"
	"github.com/linode/manager-sub003/internal/config"
	"github.com/linode/manager-sub003/internal/store"
	"github.com/linode/manager-sub003/pkg/gatewayclient"
	"github.com/linode/manager-sub003/pkg/paypalclient"
	"github.com/linode/manager-sub003/pkg/rabbitmq"
)

func main() {
	// Load .env file for local development.
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found; using environment variables\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.GatewayAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"gateway api key must be configured\" env=GATEWAY_API_KEY")
	}

	log.Printf("level=info component=bootstrap msg=\"starting billing-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 10
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts behind poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer for payment-settled events. The service
	// stays up without a broker; publishing degrades to a logged no-op.
	var producer rabbitmq.Publisher
	eventProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rabbitmq.EventProducerFallback{}
	} else {
		defer eventProducer.Close()
		producer = eventProducer
		if err := eventProducer.DeclarePaymentQueue(cfg.PaymentEventQueue); err != nil {
			log.Printf("level=warn component=bootstrap msg=\"payment queue declare failed\" queue=%s err=%v", cfg.PaymentEventQueue, err)
		}
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Redis backs the per-account payment attempt limiter. Missing or
	// unreachable Redis disables limiting rather than blocking payments.
	var limiter app.PaymentRateLimiter
	if cfg.PaymentRateLimitPerMinute > 0 {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; payment rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; payment rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient := redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				pingErr := redisClient.Ping(pingCtx).Err()
				cancelPing()
				if pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; payment rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
				} else {
					defer redisClient.Close()
					limiter = app.NewRedisPaymentRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// Initialize the payment gateway clients and rails.
	gateway := gatewayclient.NewClient(cfg.GatewayAPIBaseURL, cfg.GatewayAPIKey)
	paypal := paypalclient.NewClient(cfg.PaypalAPIBaseURL, cfg.PaypalClientID, cfg.PaypalSecret)

	creditCardRail := app.NewCreditCardRail(gateway)
	paypalRail := app.NewPayPalRail(paypal, cfg.PaypalCancelURL, cfg.PaypalRedirectURL)
	googlePayRail := app.NewGooglePayRail(gateway)
	tokenSource := app.NewGatewayTokenSource(gateway)

	repository := store.NewPostgresRepository(dbpool)

	billingService := app.NewService(
		repository,
		creditCardRail,
		paypalRail,
		googlePayRail,
		tokenSource,
		producer,
		limiter,
		cfg.PaymentRateLimitPerMinute,
		app.BoundsFromStrings(cfg.PaymentFloorUSD, cfg.PaymentCeilingUSD),
	)

	billingHandlers := api.NewBillingHandlers(billingService)
	authOpts := api.AuthOptions{
		JWKSURL:  cfg.JWKSURL,
		Audience: cfg.AuthAudience,
		Issuer:   cfg.AuthIssuer,
	}
	router := api.BillingRoutes(billingHandlers, authOpts, cfg.CORSAllowedOrigins)

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
