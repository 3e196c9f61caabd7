package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/event-ticket-inventory/internal/adapters/crdb"
	"github.com/robertarktes/event-ticket-inventory/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/event-ticket-inventory/internal/adapters/redis"
	"github.com/robertarktes/event-ticket-inventory/internal/config"
	"github.com/robertarktes/event-ticket-inventory/internal/inventory"
	"github.com/robertarktes/event-ticket-inventory/internal/notify"
	"github.com/robertarktes/event-ticket-inventory/internal/observability"
)

const sweepLease = "expiry-sweep"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg, "inventory-expiry-worker")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger(cfg.LogLevel)

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	redisCache := redisadapter.NewCache(redisClient)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	rabbitPub, err := rabbit.NewPublisher(conn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}
	defer rabbitPub.Close()

	dispatcher := notify.NewDispatcher(logger, cfg.NotifyBuffer, notify.NewRabbitSink(rabbitPub))
	coord := inventory.NewCoordinator(repo, nil, dispatcher, logger, inventory.Options{
		PendingTTL:    cfg.PendingTTL,
		CommitRetries: cfg.CommitRetries,
		Currency:      cfg.Currency,
	})

	dispatchCtx, cancelDispatch := context.WithCancel(context.Background())
	defer cancelDispatch()
	go dispatcher.Run(dispatchCtx)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker := NewExpiryWorker(coord, redisCache, logger, cfg.SweepBatch)
	worker.Run(ctx, cfg.SweepInterval)

	dispatcher.Close()
	logger.Info("Shutdown expiry worker")
}

type leaser interface {
	AcquireLease(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, name, owner string) error
}

// ExpiryWorker fails Pending bookings whose payment window has passed. Only
// the replica holding the sweep lease runs a pass.
type ExpiryWorker struct {
	coord  *inventory.Coordinator
	lease  leaser
	logger observability.Logger
	batch  int
	owner  string
}

func NewExpiryWorker(coord *inventory.Coordinator, lease leaser, logger observability.Logger, batch int) *ExpiryWorker {
	return &ExpiryWorker{coord: coord, lease: lease, logger: logger, batch: batch, owner: uuid.NewString()}
}

func (w *ExpiryWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx, interval)
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context, interval time.Duration) {
	ok, err := w.lease.AcquireLease(ctx, sweepLease, w.owner, interval)
	if err != nil {
		w.logger.WithError(err).Warn("failed to acquire sweep lease")
		return
	}
	if !ok {
		return
	}
	defer func() {
		if err := w.lease.ReleaseLease(context.WithoutCancel(ctx), sweepLease, w.owner); err != nil {
			w.logger.WithError(err).Warn("failed to release sweep lease")
		}
	}()

	// Drain full batches within one lease.
	for {
		n, err := w.coord.ExpirePending(ctx, w.batch)
		if err != nil {
			w.logger.WithError(err).Error("expiry sweep failed")
			return
		}
		if n > 0 {
			w.logger.WithField("expired", n).Info("expired pending bookings")
		}
		if n < w.batch || ctx.Err() != nil {
			return
		}
	}
}
