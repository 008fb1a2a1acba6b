package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/suPer8Hu/support-chat/internal/chat"
	"github.com/suPer8Hu/support-chat/internal/config"
	"github.com/suPer8Hu/support-chat/internal/db"
	"github.com/suPer8Hu/support-chat/internal/httpapi"
	"github.com/suPer8Hu/support-chat/internal/httpapi/handlers"
	"github.com/suPer8Hu/support-chat/internal/httpapi/middleware"
	"github.com/suPer8Hu/support-chat/internal/responder"
	"github.com/suPer8Hu/support-chat/internal/store/rabbitmq"
	"github.com/suPer8Hu/support-chat/internal/store/redisstore"
)

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN, chat.Models()...)

	engine := responder.Default()
	if cfg.ResponderCatalogFile != "" {
		catalog, err := responder.LoadCatalog(cfg.ResponderCatalogFile)
		if err != nil {
			log.Fatalf("responder catalog: %v", err)
		}
		engine, err = responder.New(catalog)
		if err != nil {
			log.Fatalf("responder: %v", err)
		}
	}

	// Optional: event publishing
	var events handlers.EventPublisher
	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Fatalf("rabbit publisher: %v", err)
		}
		defer pub.Close()
		events = pub
	} else {
		log.Printf("RABBIT_URL not set, chat events are not published")
	}

	// Optional: send rate limiting
	var limiter middleware.Limiter
	if cfg.RedisAddr != "" {
		rds, err := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rds.Close()
		limiter = rds
	} else {
		log.Printf("REDIS_ADDR not set, send rate limiting is off")
	}

	h := handlers.NewHandler(gdb, cfg, engine, events)
	r := httpapi.NewRouter(cfg, h, limiter)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced to shutdown: %v", err)
	}
}
