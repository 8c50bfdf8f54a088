package main // Entry point package

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/ticket-reservation/internal/clock"
	"github.com/iliyamo/ticket-reservation/internal/config"
	"github.com/iliyamo/ticket-reservation/internal/database"
	"github.com/iliyamo/ticket-reservation/internal/engine"
	"github.com/iliyamo/ticket-reservation/internal/expiry"
	"github.com/iliyamo/ticket-reservation/internal/handler"
	"github.com/iliyamo/ticket-reservation/internal/notify"
	"github.com/iliyamo/ticket-reservation/internal/payment"
	"github.com/iliyamo/ticket-reservation/internal/queue"
	"github.com/iliyamo/ticket-reservation/internal/repository"
	"github.com/iliyamo/ticket-reservation/internal/router"
	"github.com/iliyamo/ticket-reservation/internal/store"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments use the environment
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DB.User, cfg.DB.Pass, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name)
	if err != nil {
		log.Fatalf("mysql: %v", err)
	}
	defer db.Close()

	rdb, err := config.NewRedisClient()
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	conn, err := amqp.Dial(cfg.Broker.URL)
	if err != nil {
		log.Fatalf("rabbitmq: dial: %v", err)
	}
	defer conn.Close()

	keys := store.NewKeyScheme(cfg.Hold.KeyPrefix)
	clk := clock.NewSystem()

	ledger, err := store.NewInventoryLedger(rdb, keys)
	if err != nil {
		log.Fatal(err)
	}
	seats, err := store.NewSeatLockManager(rdb, keys)
	if err != nil {
		log.Fatal(err)
	}
	records, err := store.NewReservationStore(rdb, keys, clk)
	if err != nil {
		log.Fatal(err)
	}
	deadlines, err := store.NewDeadlineIndex(rdb, keys)
	if err != nil {
		log.Fatal(err)
	}
	processed, err := store.NewProcessedSet(rdb, keys)
	if err != nil {
		log.Fatal(err)
	}

	publisher, err := queue.NewPublisher(conn)
	if err != nil {
		log.Fatalf("rabbitmq: %v", err)
	}

	eng, err := engine.New(ledger, seats, records, deadlines, publisher, clk, engine.Options{
		HoldTTL:     cfg.Hold.TTL,
		MaxPerOrder: cfg.Hold.MaxPerOrder,
	})
	if err != nil {
		log.Fatal(err)
	}

	orders := repository.NewOrderRepo(db)
	tickets := repository.NewTicketRepo(db)

	if err := warmInventory(ctx, tickets, ledger); err != nil {
		log.Fatalf("inventory warm-up: %v", err)
	}

	var payments payment.Service = payment.Disabled{}
	if cfg.Payment.BaseURL != "" {
		payments = payment.NewClient(cfg.Payment.BaseURL)
	}

	policy := queue.RetryPolicy{Attempts: cfg.Broker.RetryAttempts, Interval: cfg.Broker.RetryInterval}
	consumers := map[string]queue.Processor{
		queue.QueueReservationCreated: &queue.CreatedProcessor{Processed: processed},
		queue.QueueReservationCancelled: &queue.CancelProcessor{
			Processed: processed,
			Releaser:  eng,
		},
		queue.QueueReservationConfirmed: &queue.ConfirmProcessor{
			Processed: processed,
			Holds:     records,
			Orders:    orders,
			Tickets:   tickets,
			Seats:     seats,
			Deadlines: deadlines,
			Payments:  payments,
			Notify:    notify.LogNotifier{},
			Clock:     clk,
		},
	}
	for name, proc := range consumers {
		c, err := queue.NewConsumer(cfg.Broker.URL, name, proc, policy)
		if err != nil {
			log.Fatal(err)
		}
		go func() {
			if err := c.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("consumer exited: %v", err)
			}
		}()
	}

	sweeper := expiry.New(deadlines, records, ledger, seats, clk, cfg.Hold.SweepInterval)
	go sweeper.Run(ctx)

	e := echo.New()
	res := handler.NewReservationHandler(eng)
	ord := handler.NewOrderHandler(orders)
	tkt := handler.NewTicketHandler(tickets)
	router.RegisterRoutes(e, res, tkt)
	router.RegisterReservations(e, res, cfg.Session.Secret)
	router.RegisterOrders(e, ord, cfg.Session.Secret)

	go func() {
		<-ctx.Done()
		_ = e.Close()
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil && ctx.Err() == nil {
		log.Fatal(err)
	}
}

// warmInventory seeds the cache counter of every ticket type that does
// not have one yet, from the durable remaining view.  Counters that
// already exist are left alone: they carry in-flight holds the durable
// store knows nothing about.
func warmInventory(ctx context.Context, tickets *repository.TicketRepo, ledger *store.InventoryLedger) error {
	ids, err := tickets.ListIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		remaining, err := tickets.GetRemaining(ctx, id)
		if err != nil {
			return err
		}
		seeded, err := ledger.Seed(ctx, id, remaining)
		if err != nil {
			return err
		}
		if seeded {
			total, err := tickets.GetTotal(ctx, id)
			if err != nil {
				return err
			}
			log.Printf("inventory: seeded ticket %d: %d of %d remaining", id, remaining, total)
		}
	}
	return nil
}
