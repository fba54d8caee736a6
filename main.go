package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/MnsrSfx/lan-chat-web/broker"
	"github.com/MnsrSfx/lan-chat-web/config"
	"github.com/MnsrSfx/lan-chat-web/metrics"
	"github.com/MnsrSfx/lan-chat-web/server"
	"github.com/MnsrSfx/lan-chat-web/services"
	"github.com/MnsrSfx/lan-chat-web/store"
	"github.com/MnsrSfx/lan-chat-web/ws"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}
	if err := config.Initialize(env); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}
	cfg := config.Get()

	// Each gateway instance gets a unique ID, stamped into broker events.
	serverID := uuid.New().String()
	log.Printf("Starting gateway instance with ID: %s", serverID)

	redisClient, err := services.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer services.CloseRedisClient(redisClient)

	userStore := store.NewRedisStore(redisClient)

	var eventBroker broker.MessageBroker
	log.Printf("Initializing message broker of type: %s", cfg.Broker.Type)
	switch strings.ToLower(cfg.Broker.Type) {
	case "redis":
		eventBroker = broker.NewRedisBroker(redisClient)
	case "kafka":
		eventBroker, err = broker.NewKafkaBroker(cfg.Broker.Kafka.Brokers, cfg.Broker.Kafka.GroupID)
		if err != nil {
			log.Fatalf("Failed to create Kafka broker: %v", err)
		}
	default:
		// Config validation catches this; checked again as a safeguard.
		log.Fatalf("Invalid broker type specified: %s", cfg.Broker.Type)
	}
	defer eventBroker.Close()

	verifier := ws.NewTokenVerifier(&cfg.Auth, userStore)

	presenceHub := ws.NewPresenceHub(
		userStore,
		eventBroker,
		cfg.Broker.Topics.Presence,
		serverID,
		time.Duration(cfg.Presence.GraceSeconds)*time.Second,
	)
	callHub := ws.NewCallHub(
		presenceHub,
		eventBroker,
		cfg.Broker.Topics.Calls,
		serverID,
		time.Duration(cfg.Call.MaxRingingSeconds)*time.Second,
	)

	handler := ws.NewHandler(presenceHub, callHub, verifier, &cfg.WebSocket, &cfg.Auth)
	mux := http.NewServeMux()
	handler.Register(mux)

	sweepInterval := time.Duration(cfg.WebSocket.PingInterval) * time.Second
	go presenceHub.Registry().RunSweeper(ctx, sweepInterval)
	go callHub.Registry().RunSweeper(ctx, sweepInterval)
	go callHub.RunSweeper(ctx, time.Duration(cfg.Call.SweepSeconds)*time.Second)

	if cfg.Metrics.Enabled {
		metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path)
	}

	addr := ":" + strconv.Itoa(cfg.Server.Port)
	srv := server.NewServer(addr, mux, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)
	go srv.Start()
	log.Println("Realtime gateway started on " + addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("Shutdown signal received")

	cancel() // stop sweepers

	callHub.Shutdown(websocket.CloseGoingAway, "server shutting down")
	presenceHub.Shutdown(websocket.CloseGoingAway, "server shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
}
