package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DatabaseConfig holds all database configuration
type DatabaseConfig struct {
	Driver         string         `yaml:"driver"`
	MySQL          MySQLConfig    `yaml:"mysql"`
	PostgreSQL     PostgresConfig `yaml:"postgres"`
	SQLite         SQLiteConfig   `yaml:"sqlite"`
	ConnectionPool PoolConfig     `yaml:"connection_pool"`
}

// MySQLConfig holds MySQL specific configuration
type MySQLConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	DBName    string `yaml:"dbname"`
	Charset   string `yaml:"charset"`
	ParseTime bool   `yaml:"parse_time"`
	Loc       string `yaml:"loc"`
}

// PostgresConfig holds PostgreSQL specific configuration
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	TimeZone string `yaml:"timezone"`
}

// SQLiteConfig holds SQLite specific configuration
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PoolConfig holds connection pool configuration
type PoolConfig struct {
	MaxIdleConns    int `yaml:"max_idle_conns"`
	MaxOpenConns    int `yaml:"max_open_conns"`
	ConnMaxLifetime int `yaml:"conn_max_lifetime"`
}

// MigrationConfig holds migration specific configuration
type MigrationConfig struct {
	AutoMigrate    bool   `yaml:"auto_migrate"`
	MigrationTable string `yaml:"migration_table"`
	Dir            string `yaml:"dir"`
}

// LoggingConfig holds logging specific configuration
type LoggingConfig struct {
	LogFile      string `yaml:"log_file"`
	LogToConsole bool   `yaml:"log_to_console"`
	LogLevel     string `yaml:"log_level"`
}

// RabbitMQConfig describes the inbound change events and the outbound readings stream
type RabbitMQConfig struct {
	URL              string   `yaml:"url"`
	Exchange         string   `yaml:"exchange"`
	Queue            string   `yaml:"queue"`
	BindingKeys      []string `yaml:"binding_keys"`
	ReadingsExchange string   `yaml:"readings_exchange"`
	ReadingsKey      string   `yaml:"readings_routing_key"`
	Prefetch         int      `yaml:"prefetch"`
}

// RedisConfig holds the recompute progress store. An empty Addr disables it.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
	TTL       int    `yaml:"ttl_seconds"`
}

// HTTPConfig holds the admin server. An empty Addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Emit modes
const (
	EmitReadings   = "readings"
	EmitAggregates = "aggregates"
	EmitBoth       = "both"
)

// PipelineConfig tunes the recompute pipeline
type PipelineConfig struct {
	Workers          int    `yaml:"workers"`
	Emit             string `yaml:"emit"`
	PublishAttempts  int    `yaml:"publish_attempts"`
	PublishBaseDelay int    `yaml:"publish_base_delay_ms"`
	EventTimeout     int    `yaml:"event_timeout_seconds"`
}

// Config holds the complete application configuration
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Migration MigrationConfig `yaml:"migration"`
	Logging   LoggingConfig   `yaml:"logging"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Redis     RedisConfig     `yaml:"redis"`
	HTTP      HTTPConfig      `yaml:"http"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
}

// Load loads configuration from the specified YAML file, then applies
// overrides from the environment (and from a .env file when present).
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// .env is optional
	_ = godotenv.Load()
	if err := config.applyEnv(); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Parse decodes YAML and fills defaults without touching the environment.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.setDefaults()
	return &config, nil
}

func (c *Config) setDefaults() {
	if c.Logging.LogFile == "" {
		c.Logging.LogFile = "result.log"
	}
	if c.Logging.LogLevel == "" {
		c.Logging.LogLevel = "info"
	}
	if c.Migration.MigrationTable == "" {
		c.Migration.MigrationTable = "migrations"
	}
	if c.Migration.Dir == "" {
		c.Migration.Dir = "migrations"
	}

	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "sensors.exchange"
	}
	if c.RabbitMQ.Queue == "" {
		c.RabbitMQ.Queue = "virtual-sensors.formulas.q"
	}
	if len(c.RabbitMQ.BindingKeys) == 0 {
		c.RabbitMQ.BindingKeys = []string{"sensors.#"}
	}
	if c.RabbitMQ.ReadingsExchange == "" {
		c.RabbitMQ.ReadingsExchange = "readings.exchange"
	}
	if c.RabbitMQ.ReadingsKey == "" {
		c.RabbitMQ.ReadingsKey = "readings.virtual"
	}
	if c.RabbitMQ.Prefetch <= 0 {
		c.RabbitMQ.Prefetch = 1
	}

	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "recompute:"
	}
	if c.Redis.TTL <= 0 {
		c.Redis.TTL = 24 * 60 * 60
	}

	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = 8
	}
	if c.Pipeline.Emit == "" {
		c.Pipeline.Emit = EmitBoth
	}
	if c.Pipeline.PublishAttempts <= 0 {
		c.Pipeline.PublishAttempts = 5
	}
	if c.Pipeline.PublishBaseDelay <= 0 {
		c.Pipeline.PublishBaseDelay = 500
	}
	if c.Pipeline.EventTimeout <= 0 {
		c.Pipeline.EventTimeout = 600
	}
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLite.Path = v
	}
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		c.RabbitMQ.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.LogLevel = v
	}
	if v := os.Getenv("PIPELINE_WORKERS"); v != "" {
		workers, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PIPELINE_WORKERS: %w", err)
		}
		c.Pipeline.Workers = workers
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql":
		if c.Database.MySQL.Host == "" {
			return fmt.Errorf("mysql host is required")
		}
		if c.Database.MySQL.User == "" {
			return fmt.Errorf("mysql user is required")
		}
		if c.Database.MySQL.DBName == "" {
			return fmt.Errorf("mysql database name is required")
		}
	case "postgres":
		if c.Database.PostgreSQL.Host == "" {
			return fmt.Errorf("postgres host is required")
		}
		if c.Database.PostgreSQL.User == "" {
			return fmt.Errorf("postgres user is required")
		}
		if c.Database.PostgreSQL.DBName == "" {
			return fmt.Errorf("postgres database name is required")
		}
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	switch c.Pipeline.Emit {
	case EmitReadings, EmitAggregates, EmitBoth:
	default:
		return fmt.Errorf("unsupported pipeline emit mode: %s", c.Pipeline.Emit)
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline workers must be positive")
	}

	return nil
}

// GetDSN returns the database connection string based on the configured driver
func (c *Config) GetDSN() string {
	switch c.Database.Driver {
	case "mysql":
		mysql := c.Database.MySQL
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=%s",
			mysql.User, mysql.Password, mysql.Host, mysql.Port, mysql.DBName,
			mysql.Charset, mysql.ParseTime, mysql.Loc)
		return dsn
	case "postgres":
		pg := c.Database.PostgreSQL
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
			pg.Host, pg.Port, pg.User, pg.Password, pg.DBName, pg.SSLMode, pg.TimeZone)
		return dsn
	case "sqlite":
		return c.Database.SQLite.Path
	default:
		return ""
	}
}

// PublishBaseDelayDuration returns the first publish retry backoff.
func (c *Config) PublishBaseDelayDuration() time.Duration {
	return time.Duration(c.Pipeline.PublishBaseDelay) * time.Millisecond
}

// EventTimeoutDuration bounds the processing of one change event.
func (c *Config) EventTimeoutDuration() time.Duration {
	return time.Duration(c.Pipeline.EventTimeout) * time.Second
}

// RedisTTL returns how long bucket progress is kept.
func (c *Config) RedisTTL() time.Duration {
	return time.Duration(c.Redis.TTL) * time.Second
}
