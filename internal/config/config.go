package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Station       StationConfig      `mapstructure:"station"`
	Storage       StorageConfig      `mapstructure:"storage"`
	Lookup        LookupConfig       `mapstructure:"lookup"`
	Sync          SyncConfig         `mapstructure:"sync"`
	Spots         SpotsConfig        `mapstructure:"spots"`
	Conditions    ConditionsConfig   `mapstructure:"conditions"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Server        ServerConfig       `mapstructure:"server"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// StationConfig identifies the operator's own station
type StationConfig struct {
	Callsign string `mapstructure:"callsign" validate:"required"`
	Grid     string `mapstructure:"grid"`
}

// StorageConfig contains database configuration
type StorageConfig struct {
	Type             string        `mapstructure:"type"` // sqlite, postgres
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
	SpotRetention    time.Duration `mapstructure:"spot_retention"`
}

// LookupConfig contains callsign lookup configuration
type LookupConfig struct {
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	QRZ            QRZXMLConfig  `mapstructure:"qrz"`
	HamDB          HamDBConfig   `mapstructure:"hamdb"`
}

// QRZXMLConfig configures the QRZ XML callbook client
type QRZXMLConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Endpoint string `mapstructure:"endpoint"`
}

// HamDBConfig configures the HamDB lookup client
type HamDBConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// SyncConfig contains logbook synchronization configuration
type SyncConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	BackendTimeout time.Duration `mapstructure:"backend_timeout"`
	DedupWindow    time.Duration `mapstructure:"dedup_window"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	QRZ            QRZSyncConfig `mapstructure:"qrz"`
	POTA           POTAConfig    `mapstructure:"pota"`
	HAMRS          HAMRSConfig   `mapstructure:"hamrs"`
	LoTW           LoTWConfig    `mapstructure:"lotw"`
	LoFi           LoFiConfig    `mapstructure:"lofi"`
}

// QRZSyncConfig configures the QRZ Logbook API backend
type QRZSyncConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
	PageSize int    `mapstructure:"page_size"`
}

// POTAConfig configures the Parks on the Air backend
type POTAConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Token    string `mapstructure:"token"`
	Endpoint string `mapstructure:"endpoint"`
}

// HAMRSConfig configures the HAMRS Pro backend
type HAMRSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoTWConfig configures the ARRL Logbook of the World backend
type LoTWConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoFiConfig configures the Ham2K LoFi backend
type LoFiConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Email    string `mapstructure:"email"`
	Token    string `mapstructure:"token"`
	Endpoint string `mapstructure:"endpoint"`
}

// SpotsConfig contains spot feed configuration
type SpotsConfig struct {
	RBN        RBNConfig       `mapstructure:"rbn"`
	POTA       POTASpotsConfig `mapstructure:"pota"`
	WatchCalls []string        `mapstructure:"watch_calls"`
	WatchBands []string        `mapstructure:"watch_bands"`
}

// RBNConfig configures the Reverse Beacon Network feed
type RBNConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Host           string        `mapstructure:"host"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
}

// POTASpotsConfig configures POTA activator spot polling
type POTASpotsConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Endpoint     string        `mapstructure:"endpoint"`
}

// ConditionsConfig contains solar conditions configuration
type ConditionsConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	Endpoint        string        `mapstructure:"endpoint"`
}

// NotificationConfig contains notification system configuration
type NotificationConfig struct {
	Enabled                    bool          `mapstructure:"enabled"`
	MaxConcurrentNotifications int           `mapstructure:"max_concurrent_notifications"`
	NotificationTimeout        time.Duration `mapstructure:"notification_timeout"`
	RetryAttempts              int           `mapstructure:"retry_attempts"`
	RetryDelay                 time.Duration `mapstructure:"retry_delay"`
	EnableEmailNotifications   bool          `mapstructure:"enable_email_notifications"`
	EnableWebhookNotifications bool          `mapstructure:"enable_webhook_notifications"`
	WebhookURL                 string        `mapstructure:"webhook_url"`
	SMTPHost                   string        `mapstructure:"smtp_host"`
	SMTPPort                   int           `mapstructure:"smtp_port"`
	SMTPUsername               string        `mapstructure:"smtp_username"`
	SMTPPassword               string        `mapstructure:"smtp_password"`
	EmailFrom                  string        `mapstructure:"email_from"`
	EmailTo                    []string      `mapstructure:"email_to"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.carrierwave")
	}

	// Set environment variable prefix
	viper.SetEnvPrefix("CARRIERWAVE")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Secrets may be supplied through plain environment variables
	if key := os.Getenv("QRZ_API_KEY"); key != "" {
		config.Sync.QRZ.APIKey = key
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.ConnectionString = dbURL
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "carrierwave")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)

	// Storage defaults
	viper.SetDefault("storage.type", "sqlite")
	viper.SetDefault("storage.connection_string", "./data/logbook.db")
	viper.SetDefault("storage.max_connections", 25)
	viper.SetDefault("storage.max_idle_time", "15m")
	viper.SetDefault("storage.spot_retention", "24h")

	// Lookup defaults
	viper.SetDefault("lookup.cache_ttl", "720h") // 30 days
	viper.SetDefault("lookup.request_timeout", "10s")
	viper.SetDefault("lookup.qrz.enabled", false)
	viper.SetDefault("lookup.qrz.endpoint", "https://xmldata.qrz.com/xml/current/")
	viper.SetDefault("lookup.hamdb.enabled", true)
	viper.SetDefault("lookup.hamdb.endpoint", "https://api.hamdb.org")

	// Sync defaults
	viper.SetDefault("sync.interval", "15m")
	viper.SetDefault("sync.backend_timeout", "120s")
	viper.SetDefault("sync.dedup_window", "15m")
	viper.SetDefault("sync.retry_attempts", 3)
	viper.SetDefault("sync.retry_delay", "5s")
	viper.SetDefault("sync.qrz.enabled", false)
	viper.SetDefault("sync.qrz.endpoint", "https://logbook.qrz.com/api")
	viper.SetDefault("sync.qrz.page_size", 2000)
	viper.SetDefault("sync.pota.enabled", false)
	viper.SetDefault("sync.pota.endpoint", "https://api.pota.app")
	viper.SetDefault("sync.hamrs.enabled", false)
	viper.SetDefault("sync.hamrs.endpoint", "https://api.hamrs.app")
	viper.SetDefault("sync.lotw.enabled", false)
	viper.SetDefault("sync.lotw.endpoint", "https://lotw.arrl.org/lotwuser/lotwreport.adi")
	viper.SetDefault("sync.lofi.enabled", false)
	viper.SetDefault("sync.lofi.endpoint", "https://lofi.ham2k.net/api")

	// Spot feed defaults
	viper.SetDefault("spots.rbn.enabled", false)
	viper.SetDefault("spots.rbn.host", "telnet.reversebeacon.net:7000")
	viper.SetDefault("spots.rbn.reconnect_delay", "30s")
	viper.SetDefault("spots.pota.enabled", false)
	viper.SetDefault("spots.pota.poll_interval", "60s")
	viper.SetDefault("spots.pota.endpoint", "https://api.pota.app")

	// Conditions defaults
	viper.SetDefault("conditions.enabled", true)
	viper.SetDefault("conditions.refresh_interval", "30m")
	viper.SetDefault("conditions.endpoint", "https://services.swpc.noaa.gov")

	// Notification defaults
	viper.SetDefault("notifications.enabled", true)
	viper.SetDefault("notifications.max_concurrent_notifications", 4)
	viper.SetDefault("notifications.notification_timeout", "30s")
	viper.SetDefault("notifications.retry_attempts", 3)
	viper.SetDefault("notifications.retry_delay", "10s")
	viper.SetDefault("notifications.enable_email_notifications", false)
	viper.SetDefault("notifications.enable_webhook_notifications", false)
	viper.SetDefault("notifications.smtp_port", 587)

	// Server defaults
	viper.SetDefault("server.port", 8073)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.enable_metrics", true)
	viper.SetDefault("server.enable_health", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Storage.Type != "sqlite" && c.Storage.Type != "postgres" {
		return fmt.Errorf("storage type must be sqlite or postgres, got %q", c.Storage.Type)
	}
	if c.Storage.ConnectionString == "" {
		return fmt.Errorf("storage connection string is required")
	}
	if c.Sync.QRZ.Enabled && c.Sync.QRZ.APIKey == "" {
		return fmt.Errorf("QRZ sync enabled but no API key configured")
	}
	if c.Sync.LoTW.Enabled && (c.Sync.LoTW.Username == "" || c.Sync.LoTW.Password == "") {
		return fmt.Errorf("LoTW sync enabled but credentials missing")
	}
	if c.Lookup.QRZ.Enabled && (c.Lookup.QRZ.Username == "" || c.Lookup.QRZ.Password == "") {
		return fmt.Errorf("QRZ lookup enabled but credentials missing")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync interval must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	return nil
}
