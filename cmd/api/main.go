package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/event-ticket-inventory/internal/adapters/crdb"
	"github.com/robertarktes/event-ticket-inventory/internal/adapters/memory"
	mongoadapter "github.com/robertarktes/event-ticket-inventory/internal/adapters/mongo"
	"github.com/robertarktes/event-ticket-inventory/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/event-ticket-inventory/internal/adapters/redis"
	"github.com/robertarktes/event-ticket-inventory/internal/auth"
	"github.com/robertarktes/event-ticket-inventory/internal/config"
	"github.com/robertarktes/event-ticket-inventory/internal/gateway"
	httphandler "github.com/robertarktes/event-ticket-inventory/internal/http"
	"github.com/robertarktes/event-ticket-inventory/internal/idempotency"
	"github.com/robertarktes/event-ticket-inventory/internal/inventory"
	"github.com/robertarktes/event-ticket-inventory/internal/notify"
	"github.com/robertarktes/event-ticket-inventory/internal/observability"
	"github.com/robertarktes/event-ticket-inventory/internal/outbox"
	"github.com/robertarktes/event-ticket-inventory/internal/payments"
	"github.com/robertarktes/event-ticket-inventory/internal/rateLimit"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

const paymentResultQueue = "inventory.payment.result"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg, "inventory-api")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger(cfg.LogLevel)

	var (
		store   inventory.Store
		mem     *memory.Store
		relay   *outbox.Publisher
		ready   []httphandler.ReadinessCheck
		sinks   []notify.Sink
		catalog httphandler.EventCatalog
		opts    httphandler.RouterOptions
	)

	if cfg.CRDBDSN == "" {
		logger.Warn("CRDB_DSN not set, using in-memory store")
		mem = memory.NewStore()
		store = mem
	} else {
		pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
		if err != nil {
			log.Fatalf("failed to connect to crdb: %v", err)
		}
		defer pool.Close()
		if err := crdb.Migrate(context.Background(), pool); err != nil {
			log.Fatalf("failed to migrate crdb: %v", err)
		}
		repo := crdb.NewRepository(pool)
		store = repo
		ready = append(ready, httphandler.ReadinessCheck{Name: "crdb", Check: repo.Ping})
	}

	if cfg.RedisAddr != "" {
		redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		redisCache := redisadapter.NewCache(redisClient)
		opts.Idempotency = idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), cfg.IdempotencyTTL)
		opts.Limiter = rateLimit.NewRateLimiter(redisCache)
		ready = append(ready, httphandler.ReadinessCheck{Name: "redis", Check: redisCache.Ping})
	}

	if cfg.MongoURI != "" {
		mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatalf("failed to connect to mongo: %v", err)
		}
		defer mongoClient.Disconnect(context.Background())
		mongoDB := mongoClient.Database("inventory")
		mongoCatalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
		catalog = mongoCatalog
		sinks = append(sinks, mongoadapter.NewAuditLogger(mongoDB, logger), mongoCatalog)
		ready = append(ready, httphandler.ReadinessCheck{Name: "mongo", Check: func(ctx context.Context) error {
			return mongoClient.Ping(ctx, nil)
		}})
	}

	var consumer *rabbit.Consumer
	if cfg.RabbitURL != "" {
		rabbitConn, err := amqp.Dial(cfg.RabbitURL)
		if err != nil {
			log.Fatalf("failed to connect to rabbitmq: %v", err)
		}
		defer rabbitConn.Close()
		rabbitPub, err := rabbit.NewPublisher(rabbitConn)
		if err != nil {
			log.Fatalf("failed to create publisher: %v", err)
		}
		defer rabbitPub.Close()
		sinks = append(sinks, notify.NewRabbitSink(rabbitPub))
		if mem != nil {
			// no separate relay runs against the in-memory outbox
			relay = outbox.NewPublisher(mem, rabbitPub, logger, time.Second, 100)
		}

		consumer, err = rabbit.NewConsumer(rabbitConn, paymentResultQueue, payments.RoutingKey)
		if err != nil {
			log.Fatalf("failed to create consumer: %v", err)
		}
		defer consumer.Close()
	}

	var gw inventory.Gateway
	if cfg.GatewayURL != "" {
		gw = gateway.NewClient(cfg.GatewayURL, cfg.GatewayClientID, cfg.GatewaySecret, &http.Client{Timeout: 10 * time.Second})
	} else {
		logger.Warn("GATEWAY_URL not set, using simulated payment gateway")
		gw = gateway.NewSimulated()
	}

	if cfg.JWTPublicKey == "" {
		log.Fatal("JWT_PUBLIC_KEY is required")
	}
	verifier, err := auth.NewVerifier([]byte(cfg.JWTPublicKey))
	if err != nil {
		log.Fatalf("failed to parse jwt public key: %v", err)
	}
	opts.Verifier = verifier

	dispatcher := notify.NewDispatcher(logger, cfg.NotifyBuffer, sinks...)
	coord := inventory.NewCoordinator(store, gw, dispatcher, logger, inventory.Options{
		PendingTTL:        cfg.PendingTTL,
		CommitRetries:     cfg.CommitRetries,
		StrictAmountCheck: cfg.StrictAmountCheck,
		Currency:          cfg.Currency,
	})

	handlers := httphandler.NewHandlers(coord, catalog, ready...)
	r := httphandler.SetupRouter(handlers, logger, opts)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatchCtx, cancelDispatch := context.WithCancel(context.Background())
	defer cancelDispatch()
	go dispatcher.Run(dispatchCtx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	if consumer != nil {
		listener := payments.NewListener(coord, logger)
		g.Go(func() error {
			deliveries, err := consumer.Consume(gctx)
			if err != nil {
				return err
			}
			return listener.Run(gctx, deliveries)
		})
	}
	if relay != nil {
		g.Go(func() error {
			relay.Run(gctx)
			return nil
		})
	}
	if mem != nil {
		// the expiry worker cannot reach an in-process store
		g.Go(func() error {
			coord.RunSweeper(gctx, cfg.SweepInterval, cfg.SweepBatch)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown Server ...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("server stopped with error")
	}
	dispatcher.Close()
	logger.Info("Server exiting")
}
