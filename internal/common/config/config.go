package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Debug       bool   `env:"DEBUG" envDefault:"false"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"barn-economy"`

	Server struct {
		Port            int           `env:"PORT" envDefault:"8080"`
		Origin          string        `env:"ORIGIN" envDefault:"http://localhost:3000"`
		ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	}

	Postgres struct {
		Host            string        `env:"DB_HOST" envDefault:"localhost"`
		Port            int           `env:"DB_PORT" envDefault:"5432"`
		User            string        `env:"DB_USER" envDefault:"postgres"`
		Password        string        `env:"DB_PASSWORD" envDefault:""`
		Database        string        `env:"DB_NAME" envDefault:"barn"`
		SSLMode         string        `env:"DB_SSLMODE" envDefault:"disable"`
		MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
		MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
		ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
		AutoMigrate     bool          `env:"DB_AUTO_MIGRATE" envDefault:"false"`
	}

	Redis struct {
		Addr     string `env:"REDIS_ADDR" envDefault:""`
		Password string `env:"REDIS_PASSWORD" envDefault:""`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
	}

	Lives struct {
		Mode         string        `env:"LIVES_MODE" envDefault:"lives"`
		MaxLives     int           `env:"LIVES_MAX" envDefault:"5"`
		RegenPeriod  time.Duration `env:"LIVES_REGEN_PERIOD" envDefault:"6h"`
		MaxAttempts  int           `env:"LIVES_MAX_ATTEMPTS" envDefault:"10"`
		Cooldown     time.Duration `env:"LIVES_COOLDOWN" envDefault:"24h"`
		PassDuration time.Duration `env:"LIVES_PASS_DURATION" envDefault:"24h"`
	}

	Streak struct {
		BaseReward        string        `env:"STREAK_BASE_REWARD" envDefault:"10"`
		JackpotMultiplier int64         `env:"STREAK_JACKPOT_MULTIPLIER" envDefault:"10"`
		CooldownWindow    time.Duration `env:"STREAK_COOLDOWN_WINDOW" envDefault:"20h"`
	}

	Rewards struct {
		Enabled       bool          `env:"REWARDS_ENABLED" envDefault:"true"`
		Delivery      string        `env:"REWARDS_DELIVERY" envDefault:"transfer"`
		TokenDecimals int32         `env:"REWARDS_TOKEN_DECIMALS" envDefault:"18"`
		PerPoint      string        `env:"REWARDS_PER_POINT" envDefault:"0.01"`
		Cap           string        `env:"REWARDS_CAP" envDefault:"100"`
		MinScore      int64         `env:"REWARDS_MIN_SCORE" envDefault:"100"`
		SignatureTTL  time.Duration `env:"REWARDS_SIGNATURE_TTL" envDefault:"1h"`
	}

	Leaderboard struct {
		CacheTTL        time.Duration `env:"LEADERBOARD_CACHE_TTL" envDefault:"30s"`
		CacheSize       int           `env:"LEADERBOARD_CACHE_SIZE" envDefault:"256"`
		DefaultLimit    int           `env:"LEADERBOARD_DEFAULT_LIMIT" envDefault:"50"`
		MaxLimit        int           `env:"LEADERBOARD_MAX_LIMIT" envDefault:"100"`
		DefaultGameType string        `env:"LEADERBOARD_DEFAULT_GAME_TYPE" envDefault:"barn"`
	}

	Chain struct {
		RPCURL          string        `env:"CHAIN_RPC_URL" envDefault:""`
		ChainID         int64         `env:"CHAIN_ID" envDefault:"8453"`
		DistributorKey  string        `env:"CHAIN_DISTRIBUTOR_KEY" envDefault:""`
		TokenAddress    string        `env:"CHAIN_TOKEN_ADDRESS" envDefault:""`
		ClaimContract   string        `env:"CHAIN_CLAIM_CONTRACT" envDefault:""`
		SignerKey       string        `env:"CHAIN_SIGNER_KEY" envDefault:""`
		DomainName      string        `env:"CHAIN_DOMAIN_NAME" envDefault:"BarnClaims"`
		DomainVersion   string        `env:"CHAIN_DOMAIN_VERSION" envDefault:"1"`
		TransferTimeout time.Duration `env:"CHAIN_TRANSFER_TIMEOUT" envDefault:"45s"`
	}

	RateLimit struct {
		DailyBonusLimit  int           `env:"RATE_LIMIT_DAILY_BONUS" envDefault:"5"`
		DailyBonusWindow time.Duration `env:"RATE_LIMIT_DAILY_BONUS_WINDOW" envDefault:"1m"`
		ScoreLimit       int           `env:"RATE_LIMIT_SCORES" envDefault:"30"`
		ScoreWindow      time.Duration `env:"RATE_LIMIT_SCORES_WINDOW" envDefault:"1m"`
	}

	Archive struct {
		Bucket          string `env:"ARCHIVE_BUCKET" envDefault:""`
		Endpoint        string `env:"ARCHIVE_ENDPOINT" envDefault:""`
		Region          string `env:"ARCHIVE_REGION" envDefault:"auto"`
		AccessKeyID     string `env:"ARCHIVE_ACCESS_KEY_ID" envDefault:""`
		SecretAccessKey string `env:"ARCHIVE_SECRET_ACCESS_KEY" envDefault:""`
		Prefix          string `env:"ARCHIVE_PREFIX" envDefault:"leaderboards"`
	}

	Workers struct {
		PruneInterval     time.Duration `env:"WORKER_PRUNE_INTERVAL" envDefault:"1h"`
		ReconcileInterval time.Duration `env:"WORKER_RECONCILE_INTERVAL" envDefault:"2m"`
		ReconcileBatch    int           `env:"WORKER_RECONCILE_BATCH" envDefault:"50"`
		ArchiveCron       string        `env:"WORKER_ARCHIVE_CRON" envDefault:"15 0 1 * *"`
		PaymentsStream    string        `env:"WORKER_PAYMENTS_STREAM" envDefault:"payments:events"`
		PaymentsGroup     string        `env:"WORKER_PAYMENTS_GROUP" envDefault:"barn_economy"`
		PaymentsConsumer  string        `env:"WORKER_PAYMENTS_CONSUMER" envDefault:"economy_worker_1"`
	}

	Auth struct {
		SessionCacheTTL time.Duration `env:"AUTH_SESSION_CACHE_TTL" envDefault:"5m"`
		NonceTTL        time.Duration `env:"AUTH_NONCE_TTL" envDefault:"15m"`
		AdminToken      string        `env:"ADMIN_TOKEN" envDefault:""`
	}

	GameRulesPath string `env:"GAME_RULES_PATH" envDefault:""`
}

func (c *Config) PostgresDSN() string {
	p := c.Postgres
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	// .env is optional; production sets variables directly
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Lives.Mode {
	case "lives", "attempts":
	default:
		return fmt.Errorf("LIVES_MODE must be lives or attempts, got %q", c.Lives.Mode)
	}
	if c.Lives.MaxLives <= 0 || c.Lives.MaxAttempts <= 0 {
		return fmt.Errorf("LIVES_MAX and LIVES_MAX_ATTEMPTS must be positive")
	}
	if c.Lives.RegenPeriod <= 0 {
		return fmt.Errorf("LIVES_REGEN_PERIOD must be positive")
	}
	switch c.Rewards.Delivery {
	case "transfer", "signature":
	default:
		return fmt.Errorf("REWARDS_DELIVERY must be transfer or signature, got %q", c.Rewards.Delivery)
	}
	if c.Streak.JackpotMultiplier < 1 {
		return fmt.Errorf("STREAK_JACKPOT_MULTIPLIER must be at least 1")
	}
	if c.Leaderboard.MaxLimit <= 0 || c.Leaderboard.DefaultLimit <= 0 || c.Leaderboard.DefaultLimit > c.Leaderboard.MaxLimit {
		return fmt.Errorf("invalid leaderboard limits")
	}
	return nil
}
