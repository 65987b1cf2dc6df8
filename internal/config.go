package internal

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"support-chat/runtime"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Config struct {
	Host                    string        `env:"HOST,default=localhost"`
	Port                    int           `env:"PORT,default=8080"`
	LogLevel                string        `env:"LOG_LEVEL,required=true"`
	SingleConnectionPerUser bool          `env:"SINGLE_CONNECTION_PER_USER,default=false"`
	RetentionWindow         time.Duration `env:"RETENTION_WINDOW,default=24h"`
	RetentionSweepCron      string        `env:"RETENTION_SWEEP_CRON,default=* * * * *"`
	MaxPayloadSize          int           `env:"MAX_PAYLOAD_SIZE,default=4096"`
	MaxSessionsPerAgent     int           `env:"MAX_SESSIONS_PER_AGENT,default=5"`
	AwayAfter               time.Duration `env:"AWAY_AFTER,default=5m"`
	PushTimeout             time.Duration `env:"PUSH_TIMEOUT,default=5s"`
	PersistBufferSize       int           `env:"PERSIST_BUFFER_SIZE,default=1024"`
	LimitMessages           *int          `env:"LIMIT_MESSAGES"`
	BadgerFilepath          string        `env:"BADGER_FILEPATH,required=true"`
	RestartInterval         time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	HealthInterval          time.Duration `env:"HEALTH_INTERVAL,default=15s"`
	JWTSecret               string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration       time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	AllowedOrigins          string        `env:"ALLOWED_ORIGINS,default=http://localhost:8080 http://localhost:8081"`
	FramesPerSecond         float64       `env:"FRAMES_PER_SECOND,default=20"`
	FrameBurst              int           `env:"FRAME_BURST,default=40"`
	WriteTimeout            time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	PingInterval            time.Duration `env:"PING_INTERVAL,default=30s"`
	DebugInspect            bool          `env:"DEBUG_INSPECT,default=false"`
}

// Load reads an optional .env file then the process environment.
// Variables already set in the environment win over the file.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	return config, nil
}

// Engine projects the settings consumed by the chat engine.
func (c Config) Engine() runtime.Config {
	return runtime.Config{
		SingleConnectionPerUser: c.SingleConnectionPerUser,
		RetentionWindow:         c.RetentionWindow,
		MaxPayloadSize:          c.MaxPayloadSize,
		MaxSessionsPerAgent:     c.MaxSessionsPerAgent,
		AwayAfter:               c.AwayAfter,
		PushTimeout:             c.PushTimeout,
	}
}

// Origins lists the origins allowed to open a WebSocket, separated by spaces.
func (c Config) Origins() []string {
	return strings.Fields(c.AllowedOrigins)
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
