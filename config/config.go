package config

import (
	"fmt"
	"sync"

	"github.com/spf13/viper"
)

type AppConfig struct {
	Server    ServerConfig
	Auth      AuthConfig
	Redis     RedisConfig
	Broker    BrokerConfig
	WebSocket WebSocketConfig
	Presence  PresenceConfig
	Call      CallConfig
	Metrics   MetricsConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  int
	WriteTimeout int
}

type AuthConfig struct {
	JWTSecret       string
	TokenQueryParam string
}

type RedisConfig struct {
	Address     string
	Password    string
	DB          int
	PoolSize    int
	PoolTimeout int
}

type BrokerConfig struct {
	Type   string // "redis" or "kafka"
	Kafka  KafkaConfig
	Topics BrokerTopics
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
}

type BrokerTopics struct {
	Presence string
	Calls    string
}

type WebSocketConfig struct {
	MessageSizeLimit int
	HandshakeTimeout int
	PingInterval     int // Seconds; also the liveness sweep period
	WriteTimeout     int // Seconds
}

type PresenceConfig struct {
	GraceSeconds int // Delay before a fully-disconnected user is marked offline
}

type CallConfig struct {
	MaxRingingSeconds int // Ringing calls older than this are reaped server-side
	SweepSeconds      int
}

type MetricsConfig struct {
	Enabled bool
	Port    int
	Path    string
}

var (
	instance *AppConfig
	once     sync.Once
)

func Initialize(env string) error {
	var initErr error
	once.Do(func() {
		viper.SetConfigName(fmt.Sprintf("config.%s", env))
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")

		viper.AutomaticEnv()
		viper.SetEnvPrefix("LANCHAT")

		setDefaults()
		bindEnvVars()

		if err := viper.ReadInConfig(); err != nil {
			// Missing file is fine; defaults plus env vars carry the config.
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				initErr = fmt.Errorf("config file error: %w", err)
				return
			}
		}

		if err := viper.Unmarshal(&instance); err != nil {
			initErr = fmt.Errorf("config unmarshal error: %w", err)
			return
		}

		if err := instance.Validate(); err != nil {
			initErr = fmt.Errorf("config validation failed: %w", err)
			return
		}
	})
	return initErr
}

func Get() *AppConfig {
	return instance
}
