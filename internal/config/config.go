package config

import (
	"time"

	"github.com/HMasataka/fanout/internal/logging"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig   `json:"server" yaml:"server"`
	Chat    ChatConfig     `json:"chat" yaml:"chat"`
	Logging logging.Config `json:"logging" yaml:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	StaticDir       string        `json:"static_dir" yaml:"static_dir"`
}

// ChatConfig carries the hub policy knobs. The defaults are the protocol
// constants; changing them changes policy, not wire semantics.
type ChatConfig struct {
	BucketCapacity  float64       `json:"bucket_capacity" yaml:"bucket_capacity"`
	RefillPerSecond float64       `json:"refill_per_second" yaml:"refill_per_second"`
	MaxLoginsPerIP  int           `json:"max_logins_per_ip" yaml:"max_logins_per_ip"`
	MaxNameLength   int           `json:"max_name_length" yaml:"max_name_length"`
	MaxMessageRunes int           `json:"max_message_runes" yaml:"max_message_runes"`
	SweepInterval   time.Duration `json:"sweep_interval" yaml:"sweep_interval"`
	BucketStaleAge  time.Duration `json:"bucket_stale_age" yaml:"bucket_stale_age"`
	SendTimeout     time.Duration `json:"send_timeout" yaml:"send_timeout"`
	MaxFrameBytes   int64         `json:"max_frame_bytes" yaml:"max_frame_bytes"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8765,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			StaticDir:       "static",
		},
		Chat: ChatConfig{
			BucketCapacity:  8,
			RefillPerSecond: 1.0,
			MaxLoginsPerIP:  3,
			MaxNameLength:   32,
			MaxMessageRunes: 2000,
			SweepInterval:   60 * time.Second,
			BucketStaleAge:  600 * time.Second,
			SendTimeout:     5 * time.Second,
			MaxFrameBytes:   64 * 1024,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return NewConfigError("server.port", "invalid port number")
	}

	if c.Server.ReadTimeout < 0 {
		return NewConfigError("server.read_timeout", "timeout cannot be negative")
	}

	if c.Server.WriteTimeout < 0 {
		return NewConfigError("server.write_timeout", "timeout cannot be negative")
	}

	if c.Chat.BucketCapacity <= 0 {
		return NewConfigError("chat.bucket_capacity", "capacity must be positive")
	}

	if c.Chat.RefillPerSecond <= 0 {
		return NewConfigError("chat.refill_per_second", "refill rate must be positive")
	}

	if c.Chat.MaxLoginsPerIP <= 0 {
		return NewConfigError("chat.max_logins_per_ip", "login cap must be positive")
	}

	if c.Chat.MaxNameLength <= 0 {
		return NewConfigError("chat.max_name_length", "name length must be positive")
	}

	if c.Chat.MaxMessageRunes <= 0 {
		return NewConfigError("chat.max_message_runes", "message length must be positive")
	}

	if c.Chat.SweepInterval <= 0 {
		return NewConfigError("chat.sweep_interval", "sweep interval must be positive")
	}

	if c.Chat.BucketStaleAge <= 0 {
		return NewConfigError("chat.bucket_stale_age", "stale age must be positive")
	}

	return nil
}
