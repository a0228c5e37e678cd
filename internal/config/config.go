package config

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/relaylabs/chatrelay/internal/ratelimit"
)

// Default rate-limit thresholds. These are configuration, not contract;
// deployments tune them per category.
var defaultRateLimits = map[string]ratelimit.Rule{
	"join":    {Limit: 20, Window: time.Minute},
	"message": {Limit: 30, Window: time.Minute},
	"typing":  {Limit: 120, Window: time.Minute},
}

const (
	defaultSweepInterval    = 30 * time.Second
	defaultHeartbeatTimeout = 90 * time.Second
	defaultTypingTTL        = 5 * time.Second
	defaultPresenceTTL      = 300 * time.Second
)

type Config struct {
	ServerAddr       string
	DatabaseDSN      string
	RedisAddr        string
	SigningKey       []byte
	AllowedOrigins   []string
	SweepInterval    time.Duration
	HeartbeatTimeout time.Duration
	TypingTTL        time.Duration
	PresenceTTL      time.Duration
	RateLimits       map[string]ratelimit.Rule
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, redisAddr, base64Secret string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if redisAddr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		ServerAddr:       serverAddr,
		DatabaseDSN:      databaseDSN,
		RedisAddr:        redisAddr,
		SigningKey:       signingKey,
		AllowedOrigins:   allowedOrigins,
		SweepInterval:    defaultSweepInterval,
		HeartbeatTimeout: defaultHeartbeatTimeout,
		TypingTTL:        defaultTypingTTL,
		PresenceTTL:      defaultPresenceTTL,
		RateLimits:       defaultRateLimits,
	}, nil
}
