package main // Entry point package

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/opencamp/slot-reservation/internal/config"
	"github.com/opencamp/slot-reservation/internal/database"
	"github.com/opencamp/slot-reservation/internal/handler"
	"github.com/opencamp/slot-reservation/internal/ledger"
	"github.com/opencamp/slot-reservation/internal/middleware"
	"github.com/opencamp/slot-reservation/internal/queue"
	"github.com/opencamp/slot-reservation/internal/repository"
	"github.com/opencamp/slot-reservation/internal/router"
	"github.com/opencamp/slot-reservation/internal/service"
	"github.com/opencamp/slot-reservation/internal/waitingroom"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments use the environment
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(database.Config{
		User:            cfg.DBUser,
		Pass:            cfg.DBPass,
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		Name:            cfg.DBName,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	rdb, err := config.NewRedisClient()
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	// Repositories.
	users := repository.NewUserRepo(db)
	events := repository.NewEventRepo(db)
	slots := repository.NewSlotRepo(db)
	reservations := repository.NewReservationRepo(db)
	txRunner := repository.NewCapacityTxRunner(db)

	// Stock ledger: re-derive every counter from durable truth before
	// serving a single request.
	led := ledger.New(rdb)
	caps, err := slots.ListCapacities(ctx)
	if err != nil {
		log.Fatalf("list capacities: %v", err)
	}
	if err := led.SyncAll(ctx, caps); err != nil {
		log.Fatalf("ledger sync: %v", err)
	}

	// Waiting room and sweeper.
	eligibility := service.NewEligibility(users, events)
	room := waitingroom.NewRoom(waitingroom.NewStore(rdb), eligibility, waitingroom.Config{
		AdmissionWindow: cfg.AdmissionWindow,
		TokenTTL:        cfg.TokenTTL,
		HeartbeatTTL:    cfg.HeartbeatTTL,
	})
	go waitingroom.NewSweeper(room, cfg.SweepInterval).Run(ctx)

	// Confirmation pipeline.
	publisher := queue.NewPublisher(cfg.AMQPURL)
	defer publisher.Close()
	confirmer := service.NewConfirmationService(reservations, txRunner, led)
	go queue.StartConfirmConsumer(ctx, cfg.AMQPURL, cfg.ConfirmWorkers, confirmer)

	reservationSvc := service.NewReservationService(
		slots, events, users, reservations, txRunner, led, room, publisher, eligibility,
	)

	// HTTP surface.
	e := echo.New()
	e.HideBanner = true
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	router.RegisterRoutes(e, handler.NewBrowseHandler(events, slots, led))
	router.RegisterAuth(e, handler.NewAuthHandler(users, cfg.JWTSecret, cfg.AccessTTLMin, cfg.BcryptCost), cfg.JWTSecret)
	router.RegisterQueue(e, handler.NewQueueHandler(room), cfg.JWTSecret, limiter)
	router.RegisterReservations(e, handler.NewReservationHandler(reservationSvc), cfg.JWTSecret, limiter)
	router.RegisterAdmin(e, handler.NewAdminHandler(events, slots, led), cfg.JWTSecret)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	go func() {
		<-ctx.Done()
		_ = e.Shutdown(context.Background())
	}()
	if err := e.Start(addr); err != nil {
		log.Printf("server stopped: %v", err)
	}
}
