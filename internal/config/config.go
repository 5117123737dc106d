package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/lootview/wallet-portfolio/internal/domain"
)

// BaseConfig holds base configuration
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// EthereumConfig holds Ethereum-specific configuration
type EthereumConfig struct {
	RPCURL  string       `mapstructure:"rpc_url"`
	ChainID domain.Chain `mapstructure:"chain_id"`

	// StartBlock is the known deployment height of the earliest contract we
	// care about. When zero, transfer queries fall back to LookbackBlocks
	// behind the current head, never genesis.
	StartBlock     uint64 `mapstructure:"start_block"`
	LookbackBlocks uint64 `mapstructure:"lookback_blocks"`

	// ChunkSize is the initial block-range width for log queries; failing
	// chunks are subdivided down to MinChunkSize before being recorded as gaps.
	ChunkSize    uint64        `mapstructure:"chunk_size"`
	MinChunkSize uint64        `mapstructure:"min_chunk_size"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

// MarketplaceConfig holds the in-game marketplace sales-ledger configuration.
// An empty URL means the marketplace enrichment is disabled; retrieval then
// returns empty candidate sets without erroring.
type MarketplaceConfig struct {
	URL          string        `mapstructure:"url"`
	APIKey       string        `mapstructure:"api_key"`
	WalletWindow time.Duration `mapstructure:"wallet_window"`
	WalletLimit  int           `mapstructure:"wallet_limit"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// ListingsConfig holds the NFT listings (market reference) configuration
type ListingsConfig struct {
	URL             string        `mapstructure:"url"`
	APIKey          string        `mapstructure:"api_key"`
	Timeout         time.Duration `mapstructure:"timeout"`
	FailureCacheTTL time.Duration `mapstructure:"failure_cache_ttl"`
}

// PriceFeedConfig holds the historical price oracle configuration
type PriceFeedConfig struct {
	URL      string        `mapstructure:"url"`
	Currency string        `mapstructure:"currency"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// CacheConfig holds reconciliation cache configuration
type CacheConfig struct {
	SchemaVersion string        `mapstructure:"schema_version"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// WorkerConfig holds the portfolio batch evaluation configuration
type WorkerConfig struct {
	BatchWidth int `mapstructure:"batch_width"`
	QueueSize  int `mapstructure:"queue_size"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // in seconds
	IdleTimeout  int    `mapstructure:"idle_timeout"`  // in seconds
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTPublicKey string   `mapstructure:"jwt_public_key"`
	APIKeys      []string `mapstructure:"api_keys"`
}

// RateLimitConfig holds per-provider rate limit configuration
type RateLimitConfig struct {
	RequestsPerSecond int           `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	MaxQueueTime      time.Duration `mapstructure:"max_queue_time"`
}

// RateLimiterConfig holds the vendor-API rate limiter configuration
type RateLimiterConfig struct {
	RedisKeyPrefix          string                     `mapstructure:"redis_key_prefix"`
	MaxWorkers              int                        `mapstructure:"max_workers"`
	MaxQueueSize            int                        `mapstructure:"max_queue_size"`
	EnableLocalFallback     bool                       `mapstructure:"enable_local_fallback"`
	LocalFallbackMultiplier float64                    `mapstructure:"local_fallback_multiplier"`
	Providers               map[string]RateLimitConfig `mapstructure:"providers"`
}

// APIConfig holds configuration for the portfolio API service
type APIConfig struct {
	BaseConfig  `mapstructure:",squash"`
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Ethereum    EthereumConfig    `mapstructure:"ethereum"`
	Marketplace MarketplaceConfig `mapstructure:"marketplace"`
	Listings    ListingsConfig    `mapstructure:"listings"`
	PriceFeed   PriceFeedConfig   `mapstructure:"price_feed"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	RateLimiter RateLimiterConfig `mapstructure:"rate_limiter"`
}

// LoadAPIConfig loads configuration for the portfolio API service
func LoadAPIConfig(configFile string, envPath string) (*APIConfig, error) {
	v := configureViper("api", configFile, envPath)

	// Set defaults
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("ethereum.chain_id", "eip155:1")
	v.SetDefault("ethereum.lookback_blocks", 2_000_000)
	v.SetDefault("ethereum.chunk_size", 100_000)
	v.SetDefault("ethereum.min_chunk_size", 1_000)
	v.SetDefault("ethereum.query_timeout", "30s")
	v.SetDefault("marketplace.wallet_window", "24h")
	v.SetDefault("marketplace.wallet_limit", 100)
	v.SetDefault("marketplace.timeout", "10s")
	v.SetDefault("listings.timeout", "10s")
	v.SetDefault("listings.failure_cache_ttl", "5m")
	v.SetDefault("price_feed.currency", "usd")
	v.SetDefault("price_feed.timeout", "10s")
	v.SetDefault("cache.schema_version", "1")
	v.SetDefault("cache.ttl", "15m")
	v.SetDefault("worker.batch_width", 4)
	v.SetDefault("worker.queue_size", 256)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.idle_timeout", 60)
	v.SetDefault("rate_limiter.max_workers", 16)
	v.SetDefault("rate_limiter.max_queue_size", 512)
	v.SetDefault("rate_limiter.enable_local_fallback", true)
	v.SetDefault("rate_limiter.local_fallback_multiplier", 0.5)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, use environment variables
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config APIConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the loaded configuration for inconsistencies
func (c *APIConfig) Validate() error {
	if !domain.IsValidChain(c.Ethereum.ChainID) {
		return fmt.Errorf("invalid ethereum chain id: %s", c.Ethereum.ChainID)
	}
	if c.Ethereum.MinChunkSize == 0 || c.Ethereum.ChunkSize < c.Ethereum.MinChunkSize {
		return fmt.Errorf("invalid ethereum chunk sizes: chunk_size=%d min_chunk_size=%d",
			c.Ethereum.ChunkSize, c.Ethereum.MinChunkSize)
	}
	if c.Worker.BatchWidth <= 0 {
		return fmt.Errorf("worker batch width must be positive")
	}
	if c.Cache.SchemaVersion == "" {
		return fmt.Errorf("cache schema version must not be empty")
	}
	return nil
}

// configureViper returns a viper instance with the config file and environment variables set
func configureViper(service string, configFile string, envPath string) *viper.Viper {
	v := viper.New()

	// Load environment variables
	loadEnv(envPath, service)

	// Set config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		v.AddConfigPath("config/")
	}

	// Set environment variables
	v.SetEnvPrefix("LOOTVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind all environment variables
	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars explicitly binds all possible environment variables.
// This is required for viper to map env vars to config struct fields when no
// config file exists.
func bindAllEnvVars(v *viper.Viper) {
	keys := []string{
		"debug",
		"sentry_dsn",
		// Database
		"database.host",
		"database.port",
		"database.user",
		"database.password",
		"database.dbname",
		"database.sslmode",
		"database.max_open_conns",
		"database.max_idle_conns",
		"database.conn_max_lifetime",
		// Redis
		"redis.addr",
		"redis.password",
		"redis.db",
		// Ethereum
		"ethereum.rpc_url",
		"ethereum.chain_id",
		"ethereum.start_block",
		"ethereum.lookback_blocks",
		"ethereum.chunk_size",
		"ethereum.min_chunk_size",
		"ethereum.query_timeout",
		// Marketplace
		"marketplace.url",
		"marketplace.api_key",
		"marketplace.wallet_window",
		"marketplace.wallet_limit",
		"marketplace.timeout",
		// Listings
		"listings.url",
		"listings.api_key",
		"listings.timeout",
		"listings.failure_cache_ttl",
		// Price feed
		"price_feed.url",
		"price_feed.currency",
		"price_feed.timeout",
		// Cache
		"cache.schema_version",
		"cache.ttl",
		// Worker
		"worker.batch_width",
		"worker.queue_size",
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"server.idle_timeout",
		// Auth
		"auth.jwt_public_key",
		"auth.api_keys",
		// Rate limiter
		"rate_limiter.redis_key_prefix",
		"rate_limiter.max_workers",
		"rate_limiter.max_queue_size",
		"rate_limiter.enable_local_fallback",
		"rate_limiter.local_fallback_multiplier",
	}

	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads environment variables from the config directory
func loadEnv(envPath string, service string) {
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}

	if envPath == "" {
		envPath = "config/"
	}

	for _, envFile := range envFiles {
		candidate := filepath.Join(envPath, envFile)
		_ = godotenv.Overload(candidate) // Overload lets later files override earlier ones
	}
}

// ChdirRepoRoot changes the current working directory to the repository root
func ChdirRepoRoot() {
	cwd, _ := os.Getwd()
	for range 5 {
		if _, err := os.Stat(filepath.Join(cwd, "config")); err == nil {
			_ = os.Chdir(cwd)
			return
		}
		cwd = filepath.Dir(cwd)
	}
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
