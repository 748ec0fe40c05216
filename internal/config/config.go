package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode            string        `mapstructure:"mode"`
	ServerURL       string        `mapstructure:"server_url"`
	Conference      string        `mapstructure:"conference"`
	ParticipantName string        `mapstructure:"participant_name"`
	StatusPort      int           `mapstructure:"status_port"`
	CallTimeout     time.Duration `mapstructure:"call_timeout"`
	ConsumeTimeout  time.Duration `mapstructure:"consume_timeout"`
	EventBuffer     int           `mapstructure:"event_buffer"`
	PingPeriod      time.Duration `mapstructure:"ping_period"`
	ICEServers      []string      `mapstructure:"ice_servers"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("server_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("conference", "lobby")
	v.SetDefault("participant_name", "guest")
	v.SetDefault("status_port", 8090)
	v.SetDefault("call_timeout", "10s")
	v.SetDefault("consume_timeout", "15s")
	v.SetDefault("event_buffer", 32)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
