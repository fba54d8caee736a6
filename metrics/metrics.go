package metrics

import (
	"fmt"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connection metrics, labelled by endpoint ("presence" or "call").
	ActiveConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ws_connections_active",
		Help: "The current number of active WebSocket connections.",
	}, []string{"endpoint"})
	TotalConnections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_connections_total",
		Help: "The total number of WebSocket connections accepted.",
	}, []string{"endpoint"})
	ConnectionsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_connections_reaped_total",
		Help: "The total number of connections closed by the liveness sweep.",
	})

	// Presence metrics
	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "presence_online_users",
		Help: "The current number of users with at least one open connection.",
	})
	StatusBroadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "presence_status_broadcasts_total",
		Help: "The total number of online/offline status broadcasts.",
	}, []string{"status"})

	// Call metrics
	ActiveCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "call_active_total",
		Help: "The current number of live call records.",
	})
	CallsInitiated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "call_initiated_total",
		Help: "The total number of calls initiated.",
	})
	CallsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_ended_total",
		Help: "The total number of calls reaching a terminal state.",
	}, []string{"outcome"})

	// Broker metrics
	BrokerMessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_messages_published_total",
		Help: "The total number of events published to the message broker.",
	}, []string{"broker_type"})

	// Auth metrics
	AuthSuccess = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_success_total",
		Help: "The total number of successful handshake authentications.",
	})
	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_failures_total",
		Help: "The total number of failed handshake authentications.",
	}, []string{"reason"})
)

// StartServer starts the HTTP server for Prometheus metrics.
func StartServer(port int, path string) {
	http.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	log.Printf("Starting metrics server on %s%s", addr, path)

	go func() {
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Fatalf("Failed to start metrics server: %v", err)
		}
	}()
}
