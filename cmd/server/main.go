package main // Entry point package

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/community-resource-hub/internal/config"
	"github.com/iliyamo/community-resource-hub/internal/database"
	"github.com/iliyamo/community-resource-hub/internal/handler"
	"github.com/iliyamo/community-resource-hub/internal/middleware"
	"github.com/iliyamo/community-resource-hub/internal/queue"
	"github.com/iliyamo/community-resource-hub/internal/realtime"
	"github.com/iliyamo/community-resource-hub/internal/repository"
	"github.com/iliyamo/community-resource-hub/internal/router"
	"github.com/iliyamo/community-resource-hub/internal/service"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	// Repositories
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	ledgerRepo := repository.NewLedgerRepo(db)
	transfers := repository.NewTransferRepo(db)
	messages := repository.NewMessageRepo(db)

	// Realtime core: hub directory + presence registry with the debounced
	// offline transition writing through to the users table.
	hub := realtime.NewHub()
	presence := realtime.NewPresence(hub, users, cfg.PresenceGrace)

	// Services
	ledger := service.NewLedgerService(ledgerRepo, hub)
	exchange := service.NewExchangeService(db, ledger, transfers, users, hub)

	// Background audit consumer; reconnects on its own and never brings
	// the server down.
	go func() {
		if err := queue.StartAuditConsumer(); err != nil {
			log.Printf("audit-consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable; rate limiting disabled")
	}
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens, ledgerRepo), cfg.JWTSecret)
	router.RegisterRealtime(e, handler.NewWSHandler(cfg, presence, users))
	router.RegisterCommunity(e, cfg.JWTSecret,
		handler.NewLedgerHandler(ledger),
		handler.NewExchangeHandler(exchange),
		handler.NewMessageHandler(messages, users, hub),
		handler.NewPresenceHandler(presence),
	)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
