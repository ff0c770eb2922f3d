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
	ReadHost        string        `mapstructure:"read_host"`          // Optional read-replica host; empty means reads go to the primary
	ReadPort        int           `mapstructure:"read_port"`          // Read-replica port; falls back to Port when zero
	MaxOpenConns    int           `mapstructure:"max_open_conns"`     // Maximum number of open connections to the database
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`     // Maximum number of idle connections in the pool
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`  // Maximum amount of time a connection may be reused (e.g., "5m", "1h")
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"` // Maximum amount of time a connection may be idle (e.g., "10m", "30m")
}

// NATSConfig holds NATS JetStream configuration
type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	StreamName     string        `mapstructure:"stream_name"`
	ConsumerName   string        `mapstructure:"consumer_name"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectionName string        `mapstructure:"connection_name"`
	AckWait        time.Duration `mapstructure:"ack_wait"`
	MaxDeliver     int           `mapstructure:"max_deliver"`
}

// SearchConfig holds search index configuration
type SearchConfig struct {
	Addresses      []string      `mapstructure:"addresses"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	IndexName      string        `mapstructure:"index_name"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ScrollPageSize int           `mapstructure:"scroll_page_size"`
}

// PricingConfig holds pricing parameters for document derivation
type PricingConfig struct {
	// EthUSDRate is the fixed ETH/USD conversion rate used for premium pricing
	EthUSDRate float64 `mapstructure:"eth_usd_rate"`
	// InitialPremiumUSD is the starting premium at the beginning of the
	// premium period
	InitialPremiumUSD float64 `mapstructure:"initial_premium_usd"`
}

// ReconcileConfig holds bulk reconciliation defaults
type ReconcileConfig struct {
	BatchSize   int `mapstructure:"batch_size"`
	Concurrency int `mapstructure:"concurrency"`
}

// SyncdConfig holds configuration for the incremental sync daemon
type SyncdConfig struct {
	BaseConfig `mapstructure:",squash"`
	Database   DatabaseConfig `mapstructure:"database"`
	NATS       NATSConfig     `mapstructure:"nats"`
	Search     SearchConfig   `mapstructure:"search"`
	Pricing    PricingConfig  `mapstructure:"pricing"`
}

// ReindexConfig holds configuration for the bulk reconciliation command
type ReindexConfig struct {
	BaseConfig `mapstructure:",squash"`
	Database   DatabaseConfig  `mapstructure:"database"`
	Search     SearchConfig    `mapstructure:"search"`
	Pricing    PricingConfig   `mapstructure:"pricing"`
	Reconcile  ReconcileConfig `mapstructure:"reconcile"`
}

// ResyncConfig holds configuration for the single-entity resync command
type ResyncConfig struct {
	BaseConfig `mapstructure:",squash"`
	Database   DatabaseConfig `mapstructure:"database"`
	Search     SearchConfig   `mapstructure:"search"`
	Pricing    PricingConfig  `mapstructure:"pricing"`
}

// AuditConfig holds configuration for the consistency audit command
type AuditConfig struct {
	BaseConfig `mapstructure:",squash"`
	Database   DatabaseConfig `mapstructure:"database"`
	NATS       NATSConfig     `mapstructure:"nats"`
	Search     SearchConfig   `mapstructure:"search"`
	Pricing    PricingConfig  `mapstructure:"pricing"`
}

// LoadSyncdConfig loads configuration for the sync daemon
func LoadSyncdConfig(configFile string, envPath string) (*SyncdConfig, error) {
	v := configureViper("syncd", configFile, envPath)

	// Set defaults
	setDatabaseDefaults(v)
	setNATSDefaults(v)
	setSearchDefaults(v)
	setPricingDefaults(v)
	v.SetDefault("nats.consumer_name", "syncd")

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var config SyncdConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateDatabase(&config.Database); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadReindexConfig loads configuration for the bulk reconciliation command
func LoadReindexConfig(configFile string, envPath string) (*ReindexConfig, error) {
	v := configureViper("reindex", configFile, envPath)

	// Set defaults
	setDatabaseDefaults(v)
	setSearchDefaults(v)
	setPricingDefaults(v)
	v.SetDefault("reconcile.batch_size", 500)
	v.SetDefault("reconcile.concurrency", 4)

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var config ReindexConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateDatabase(&config.Database); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadResyncConfig loads configuration for the single-entity resync command
func LoadResyncConfig(configFile string, envPath string) (*ResyncConfig, error) {
	v := configureViper("resync", configFile, envPath)

	// Set defaults
	setDatabaseDefaults(v)
	setSearchDefaults(v)
	setPricingDefaults(v)

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var config ResyncConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateDatabase(&config.Database); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadAuditConfig loads configuration for the consistency audit command
func LoadAuditConfig(configFile string, envPath string) (*AuditConfig, error) {
	v := configureViper("audit", configFile, envPath)

	// Set defaults
	setDatabaseDefaults(v)
	setNATSDefaults(v)
	setSearchDefaults(v)
	setPricingDefaults(v)

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var config AuditConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateDatabase(&config.Database); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDatabaseDefaults(v *viper.Viper) {
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.conn_max_idle_time", "10m")
}

func setNATSDefaults(v *viper.Viper) {
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.stream_name", "CATALOG_EVENTS")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.ack_wait", "30s")
	v.SetDefault("nats.max_deliver", 5)
}

func setSearchDefaults(v *viper.Viper) {
	v.SetDefault("search.addresses", []string{"http://localhost:9200"})
	v.SetDefault("search.index_name", "names")
	v.SetDefault("search.request_timeout", "30s")
	v.SetDefault("search.scroll_page_size", 1000)
}

func setPricingDefaults(v *viper.Viper) {
	v.SetDefault("pricing.eth_usd_rate", 2500)
	v.SetDefault("pricing.initial_premium_usd", 100000000)
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, use environment variables
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

func validateDatabase(c *DatabaseConfig) error {
	if c.Host == "" {
		return errors.New("database.host is required")
	}
	if c.DBName == "" {
		return errors.New("database.dbname is required")
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
		// Search for config.yaml in multiple locations:
		// 1. Current directory
		v.AddConfigPath(".")
		// 2. Service-specific directory (e.g., cmd/syncd/, cmd/reindex/)
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		// 3. Config directory
		v.AddConfigPath("config/")
	}

	// Set environment variables
	v.SetEnvPrefix("GRAILS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind all environment variables
	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars explicitly binds all possible environment variables
// This is required for viper to map env vars to config struct fields when no config file exists
func bindAllEnvVars(v *viper.Viper) {
	commonKeys := []string{
		"debug",
		"sentry_dsn",
		// Database
		"database.host",
		"database.port",
		"database.user",
		"database.password",
		"database.dbname",
		"database.sslmode",
		"database.read_host",
		"database.read_port",
		"database.max_open_conns",
		"database.max_idle_conns",
		"database.conn_max_lifetime",
		"database.conn_max_idle_time",
		// NATS
		"nats.url",
		"nats.stream_name",
		"nats.consumer_name",
		"nats.max_reconnects",
		"nats.reconnect_wait",
		"nats.connection_name",
		"nats.ack_wait",
		"nats.max_deliver",
		// Search
		"search.addresses",
		"search.username",
		"search.password",
		"search.index_name",
		"search.request_timeout",
		"search.scroll_page_size",
		// Pricing
		"pricing.eth_usd_rate",
		"pricing.initial_premium_usd",
		// Reconcile
		"reconcile.batch_size",
		"reconcile.concurrency",
	}

	for _, key := range commonKeys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads environment variables from the config directory
func loadEnv(envPath string, service string) {
	// Always try shared base first, then local, then optional per-service local.
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}

	// Default to config directory
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

// ReadDSN returns the read-replica database connection string. Without a
// configured read host it falls back to the primary; if ReadPort is not
// configured, it falls back to Port.
func (c *DatabaseConfig) ReadDSN() string {
	if c.ReadHost == "" {
		return c.DSN()
	}

	port := c.ReadPort
	if port == 0 {
		port = c.Port
	}

	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.ReadHost, port, c.User, c.Password, c.DBName, c.SSLMode)
}
