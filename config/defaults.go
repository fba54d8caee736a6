package config

import "github.com/spf13/viper"

func setDefaults() {
	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 15)
	viper.SetDefault("server.writeTimeout", 15)

	// Auth
	viper.SetDefault("auth.jwtSecret", "default-secret")
	viper.SetDefault("auth.tokenQueryParam", "token")

	// Redis
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.poolSize", 100)
	viper.SetDefault("redis.poolTimeout", 5)

	// Broker
	viper.SetDefault("broker.type", "redis")
	viper.SetDefault("broker.kafka.groupID", "lan-chat-web")
	viper.SetDefault("broker.topics.presence", "presence-events")
	viper.SetDefault("broker.topics.calls", "call-events")

	// WebSocket
	viper.SetDefault("websocket.messageSizeLimit", 4096)
	viper.SetDefault("websocket.handshakeTimeout", 10)
	viper.SetDefault("websocket.pingInterval", 30)
	viper.SetDefault("websocket.writeTimeout", 10)

	// Presence
	viper.SetDefault("presence.graceSeconds", 15)

	// Call
	viper.SetDefault("call.maxRingingSeconds", 90)
	viper.SetDefault("call.sweepSeconds", 30)

	// Metrics
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", 9090)
	viper.SetDefault("metrics.path", "/metrics")
}
