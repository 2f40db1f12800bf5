package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port              string
	LogLevel          string
	MaxMessageSize    int64
	WriteTimeout      time.Duration
	PongTimeout       time.Duration
	PingInterval      time.Duration
	// Buffer sized for burst traffic; senders drop frames when it fills
	MessageBufferSize int
}

// LoadConfig reads settings from the environment (and an optional .env
// file next to the binary), falling back to defaults.
func LoadConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("max_message_size", int64(1<<20)) // 1MB: lesson frames are tiny
	v.SetDefault("write_timeout", 5*time.Second)
	v.SetDefault("pong_timeout", 60*time.Second)
	v.SetDefault("ping_interval", 50*time.Second)
	v.SetDefault("message_buffer_size", 128)

	// load .env if it exists (ignore if it does not)
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			log.Fatalf("config: loading .env: %v", err)
		}
	}
	v.AutomaticEnv()

	return &Config{
		Port:              v.GetString("port"),
		LogLevel:          v.GetString("log_level"),
		MaxMessageSize:    v.GetInt64("max_message_size"),
		WriteTimeout:      v.GetDuration("write_timeout"),
		PongTimeout:       v.GetDuration("pong_timeout"),
		PingInterval:      v.GetDuration("ping_interval"),
		MessageBufferSize: v.GetInt("message_buffer_size"),
	}
}
