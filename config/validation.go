package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func (c *AppConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.New("invalid server port")
	}

	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwtSecret must be set")
	}
	if c.Auth.TokenQueryParam == "" {
		return errors.New("auth.tokenQueryParam must be configured")
	}

	if c.Redis.Address == "" {
		return errors.New("redis address must be specified")
	}

	switch strings.ToLower(c.Broker.Type) {
	case "redis":
		// Re-uses the main Redis connection; nothing extra to check.
	case "kafka":
		if len(c.Broker.Kafka.Brokers) == 0 {
			return errors.New("kafka brokers must be specified for kafka broker")
		}
		if c.Broker.Kafka.GroupID == "" {
			return errors.New("kafka groupID must be specified for kafka broker")
		}
	default:
		return fmt.Errorf("invalid broker type: %s. Must be 'redis' or 'kafka'", c.Broker.Type)
	}
	if c.Broker.Topics.Presence == "" || c.Broker.Topics.Calls == "" {
		return errors.New("broker topics must be configured")
	}

	if c.WebSocket.HandshakeTimeout < 1 {
		return errors.New("handshake timeout must be at least 1 second")
	}
	if c.WebSocket.PingInterval < 1 {
		return errors.New("ping interval must be at least 1 second")
	}
	if c.WebSocket.WriteTimeout < 1 {
		return errors.New("write timeout must be at least 1 second")
	}

	if c.Presence.GraceSeconds < 1 {
		return errors.New("presence grace period must be at least 1 second")
	}

	if c.Call.MaxRingingSeconds < 1 {
		return errors.New("call maxRingingSeconds must be positive")
	}
	if c.Call.SweepSeconds < 1 {
		return errors.New("call sweepSeconds must be positive")
	}

	return nil
}

func bindEnvVars() {
	// Server
	viper.BindEnv("server.port", "LANCHAT_PORT")

	// Auth
	viper.BindEnv("auth.jwtSecret", "LANCHAT_AUTH_JWT_SECRET")
	viper.BindEnv("auth.tokenQueryParam", "LANCHAT_AUTH_TOKEN_PARAM")

	// Redis
	viper.BindEnv("redis.address", "LANCHAT_REDIS_ADDRESS")
	viper.BindEnv("redis.password", "LANCHAT_REDIS_PASSWORD")

	// Broker
	viper.BindEnv("broker.type", "LANCHAT_BROKER_TYPE")
	viper.BindEnv("broker.kafka.brokers", "LANCHAT_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.groupID", "LANCHAT_KAFKA_GROUPID")
	viper.BindEnv("broker.topics.presence", "LANCHAT_PRESENCE_TOPIC")
	viper.BindEnv("broker.topics.calls", "LANCHAT_CALL_TOPIC")

	// WebSocket
	viper.BindEnv("websocket.pingInterval", "LANCHAT_PING_INTERVAL")
	viper.BindEnv("websocket.writeTimeout", "LANCHAT_WRITE_TIMEOUT")

	// Presence
	viper.BindEnv("presence.graceSeconds", "LANCHAT_PRESENCE_GRACE")

	// Call
	viper.BindEnv("call.maxRingingSeconds", "LANCHAT_CALL_MAX_RINGING")
}
