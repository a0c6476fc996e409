package main

import (
	"time"

	"holdem-engine/internal/db"
	"holdem-engine/internal/logger"
	"holdem-engine/internal/redis"
	"holdem-engine/internal/server/config"
)

// CLI holds every setting of the server. Flags win over environment
// variables, which are also read from a .env file when present.
type CLI struct {
	HTTPAddr    string `name:"http-addr" env:"HTTP_ADDR" default:":8080" help:"HTTP and websocket listen address"`
	TCPAddr     string `name:"tcp-addr" env:"TCP_ADDR" default:":9090" help:"Bot line protocol listen address (empty disables)"`
	Environment string `name:"env" env:"ENV" default:"development" enum:"development,production" help:"Runtime environment"`
	Presets     string `name:"presets" env:"TABLE_PRESETS" default:"tables.hcl" help:"HCL file with table presets"`

	JWTSecret      string   `name:"jwt-secret" env:"JWT_SECRET" default:"secret" help:"HMAC secret for access tokens"`
	Admins         []string `name:"admin" env:"ADMIN_USERS" help:"User ids allowed to run operator commands"`
	AllowedOrigins []string `name:"allowed-origin" env:"ALLOWED_ORIGINS" help:"Origins allowed for websocket and CORS (empty allows all)"`

	DBDriver   string `name:"db-driver" env:"DB_DRIVER" default:"mysql" enum:"mysql,sqlite" help:"Database driver"`
	DBHost     string `name:"db-host" env:"DB_HOST" default:"localhost"`
	DBPort     string `name:"db-port" env:"DB_PORT" default:"3306"`
	DBUser     string `name:"db-user" env:"DB_USER" default:"root"`
	DBPassword string `name:"db-password" env:"DB_PASSWORD"`
	DBName     string `name:"db-name" env:"DB_NAME" default:"holdem"`
	DBPath     string `name:"db-path" env:"DB_PATH" default:"holdem.db" help:"Database file for the sqlite driver"`

	RedisHost     string `name:"redis-host" env:"REDIS_HOST" help:"Redis host; empty keeps idempotency and locks in process"`
	RedisPort     string `name:"redis-port" env:"REDIS_PORT" default:"6379"`
	RedisPassword string `name:"redis-password" env:"REDIS_PASSWORD"`
	RedisDB       int    `name:"redis-db" env:"REDIS_DB" default:"0"`

	LedgerTTL          time.Duration `name:"ledger-ttl" env:"LEDGER_TTL" default:"10m" help:"How long action request ids are remembered"`
	CheckpointInterval time.Duration `name:"checkpoint-interval" env:"CHECKPOINT_INTERVAL" default:"30s"`

	LogLevel  string `name:"log-level" env:"LOG_LEVEL" default:"info" enum:"debug,info,warn,error"`
	LogFormat string `name:"log-format" env:"LOG_FORMAT" default:"json" enum:"json,console"`
	LogFile   string `name:"log-file" env:"LOG_FILE" help:"Optional rotated log file"`
}

func (c *CLI) production() bool {
	return c.Environment == "production"
}

func (c *CLI) logger() logger.Config {
	return logger.Config{Level: c.LogLevel, Format: c.LogFormat, File: c.LogFile}
}

func (c *CLI) services() config.Options {
	opts := config.Options{
		Database: db.Config{
			Driver:   c.DBDriver,
			Host:     c.DBHost,
			Port:     c.DBPort,
			User:     c.DBUser,
			Password: c.DBPassword,
			DBName:   c.DBName,
			Path:     c.DBPath,
		},
		JWTSecret: c.JWTSecret,
		LedgerTTL: c.LedgerTTL,
	}
	if c.RedisHost != "" {
		opts.Redis = &redis.Config{
			Host:     c.RedisHost,
			Port:     c.RedisPort,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		}
	}
	return opts
}
