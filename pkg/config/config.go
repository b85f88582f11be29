package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string         `yaml:"environment" default:"development" validate:"required,oneof=development staging production test"`
	Server      ServerConfig   `yaml:"server"`
	Logging     LoggingConfig  `yaml:"logging"`
	Metrics     MetricsConfig  `yaml:"metrics"`
	Engine      EngineConfig   `yaml:"engine"`
	Artifacts   ArtifactConfig `yaml:"artifacts"`
	ClickHouse  ClickHouse     `yaml:"clickhouse"`
	Bars        BarsConfig     `yaml:"bars"`
	Redis       RedisConfig    `yaml:"redis"`
	Cache       CacheConfig    `yaml:"cache"`
	Queue       QueueConfig    `yaml:"queue"`
	Kafka       KafkaConfig    `yaml:"kafka"`
	Sentiment   Sentiment      `yaml:"sentiment"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	SlowThreshold   time.Duration `yaml:"slow_threshold" default:"1s"`
	// CORSOrigins lists allowed browser origins. Empty allows any.
	CORSOrigins []string `yaml:"cors_origins"`
	RateLimit   struct {
		Capacity     float64 `yaml:"capacity" default:"20"`
		RefillPerSec float64 `yaml:"refill_per_sec" default:"10"`
	} `yaml:"rate_limit"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output string `yaml:"output" default:"stdout"`
	// Collect ships aggregated error logs to Kafka when enabled.
	Collect struct {
		Enabled        bool          `yaml:"enabled"`
		Topic          string        `yaml:"topic" default:"marketsignal.logs"`
		Interval       time.Duration `yaml:"interval" default:"30s"`
		CountThreshold int           `yaml:"count_threshold" default:"100"`
	} `yaml:"collect"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

// EngineConfig carries the scoring thresholds that are tunable per deployment.
type EngineConfig struct {
	MinHistory      int           `yaml:"min_history" default:"60" validate:"gte=1"`
	HistoryDays     int           `yaml:"history_days" default:"365" validate:"gte=1"`
	StatsWindowDays int           `yaml:"stats_window_days" default:"30" validate:"gte=2"`
	MarketIndex     string        `yaml:"market_index"`
	PipelineTimeout time.Duration `yaml:"pipeline_timeout" default:"10s"`
}

type ArtifactConfig struct {
	ModelDir   string `yaml:"model_dir" default:"ml/models"`
	AnomalyDir string `yaml:"anomaly_dir" default:"ml/models/anomaly"`
}

type ClickHouse struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host" default:"localhost" validate:"required_if=Enabled true"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"marketsignal"`
	Table            string        `yaml:"table" default:"daily_bars"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	Compress         bool          `yaml:"compress" default:"true"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
}

// BarsConfig controls bar ingestion. SeedFile, when set, is a JSON map of
// instrument code to bars loaded into the bar store at startup.
type BarsConfig struct {
	SeedFile string `yaml:"seed_file"`
}

type RedisConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Host        string        `yaml:"host" default:"localhost"`
	Port        int           `yaml:"port" default:"6379"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	PoolSize    int           `yaml:"pool_size" default:"10"`
	PoolTimeout time.Duration `yaml:"pool_timeout" default:"30s"`
	DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
	Prefix      string        `yaml:"prefix" default:"marketsignal"`
}

type CacheConfig struct {
	MemoryMaxSize int           `yaml:"memory_max_size" default:"1000"`
	MemoryTTL     time.Duration `yaml:"memory_ttl" default:"1m"`
	PredictionTTL time.Duration `yaml:"prediction_ttl" default:"5m"`
	StatsTTL      time.Duration `yaml:"stats_ttl" default:"5m"`
	SentimentTTL  time.Duration `yaml:"sentiment_ttl" default:"15m"`
}

// QueueConfig drives the redis-backed background refresh queue. It needs
// Redis to be enabled.
type QueueConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Workers       int           `yaml:"workers" default:"2" validate:"gte=1"`
	RetryLimit    int           `yaml:"retry_limit" default:"3" validate:"gte=0"`
	RetryDelay    time.Duration `yaml:"retry_delay" default:"5s"`
	Prefix        string        `yaml:"prefix" default:"marketsignal:queue"`
	Watchlist     []string      `yaml:"watchlist"`
	WatchInterval time.Duration `yaml:"watch_interval" default:"15m"`
}

type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers" validate:"required_if=Enabled true"`
	RequiredAcks int      `yaml:"required_acks" default:"-1"`
	Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
	Topics       struct {
		Requests string `yaml:"requests" default:"marketsignal.requests"`
		Signals  string `yaml:"signals" default:"marketsignal.signals"`
		Alerts   string `yaml:"alerts" default:"marketsignal.alerts"`
	} `yaml:"topics"`
	Producer struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		Linger       time.Duration `yaml:"linger" default:"50ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID     string        `yaml:"group_id" default:"marketsignal"`
		StartOffset string        `yaml:"start_offset" default:"earliest" validate:"oneof=earliest latest"`
		Workers     int           `yaml:"workers" default:"2"`
		BufferSize  int           `yaml:"buffer_size" default:"64"`
		RetryMax    int           `yaml:"retry_max" default:"3"`
		BackoffMin  time.Duration `yaml:"backoff_min" default:"50ms"`
		BackoffMax  time.Duration `yaml:"backoff_max" default:"2s"`
		DLQTopic    string        `yaml:"dlq_topic"`
		MinBytes    int           `yaml:"min_bytes" default:"1"`
		MaxBytes    int           `yaml:"max_bytes" default:"10000000"`
	} `yaml:"consumer"`
}

// Sentiment configures the remote news-sentiment service. An empty URL means
// the built-in lexicon analyzer is the only source.
type Sentiment struct {
	ServiceURL     string        `yaml:"service_url" validate:"omitempty,url"`
	Timeout        time.Duration `yaml:"timeout" default:"3s"`
	RequestsPerSec float64       `yaml:"requests_per_sec" default:"5"`
	MaxElapsed     time.Duration `yaml:"max_elapsed" default:"5s"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse applies defaults to raw YAML and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads .env (if present), the YAML file, then applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := getenv("HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := getenv("CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getenv("MODEL_DIR"); v != "" {
		c.Artifacts.ModelDir = v
	}
	if v := getenv("ANOMALY_MODEL_DIR"); v != "" {
		c.Artifacts.AnomalyDir = v
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := getenv("BARS_SEED_FILE"); v != "" {
		c.Bars.SeedFile = v
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("SENTIMENT_SERVICE_URL"); v != "" {
		c.Sentiment.ServiceURL = v
	}
	if v := getenv("WATCHLIST"); v != "" {
		c.Queue.Watchlist = strings.Split(v, ",")
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Engine.StatsWindowDays > c.Engine.HistoryDays {
		return fmt.Errorf("engine.stats_window_days (%d) must not exceed engine.history_days (%d)",
			c.Engine.StatsWindowDays, c.Engine.HistoryDays)
	}
	if c.Queue.Enabled && !c.Redis.Enabled {
		return errors.New("queue.enabled requires redis.enabled")
	}
	return nil
}
