package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Database DatabaseConfig `mapstructure:"database"`
	Session  SessionConfig  `mapstructure:"session"`
	Server   ServerConfig   `mapstructure:"server"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

type TelegramConfig struct {
	// AdminToken is the ops bot used for alert delivery. Empty disables
	// alerting.
	AdminToken string `mapstructure:"admin_token"`
	// OpsChatID is the chat alerts are delivered to.
	OpsChatID int64 `mapstructure:"ops_chat_id"`
	// OperatorID is the user allowed to open bots that are still pending.
	OperatorID int64 `mapstructure:"operator_id"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	UseInMemory bool   `mapstructure:"use_in_memory"`
}

type SessionConfig struct {
	PollTimeout     int           `mapstructure:"poll_timeout"`
	PollRetryDelay  time.Duration `mapstructure:"poll_retry_delay"`
	MaxPollErrors   int           `mapstructure:"max_poll_errors"`
	HealthInterval  time.Duration `mapstructure:"health_interval"`
	HealthThreshold int           `mapstructure:"health_threshold"`
	StopTimeout     time.Duration `mapstructure:"stop_timeout"`
}

type ServerConfig struct {
	Addr          string        `mapstructure:"addr"`
	AdminUser     string        `mapstructure:"admin_user"`
	AdminPassHash string        `mapstructure:"admin_pass_hash"`
	JWTSecret     string        `mapstructure:"jwt_secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
}

type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	// Remove leading slash from path to get database name
	dbName := strings.TrimPrefix(u.Path, "/")

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   dbName,
		SSLMode:  "disable",
	}, nil
}

// LoadConfig reads the config file at path, if it exists, and overlays
// environment variables on top. Every key has a default so the service
// can run from environment alone; section.key maps to SECTION_KEY.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("telegram.admin_token", "")
	v.SetDefault("telegram.ops_chat_id", 0)
	v.SetDefault("telegram.operator_id", 0)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "filebotter")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.use_in_memory", false)
	v.SetDefault("session.poll_timeout", 60)
	v.SetDefault("session.poll_retry_delay", 3*time.Second)
	v.SetDefault("session.max_poll_errors", 10)
	v.SetDefault("session.health_interval", 3*time.Minute)
	v.SetDefault("session.health_threshold", 3)
	v.SetDefault("session.stop_timeout", 3*time.Second)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.admin_user", "admin")
	v.SetDefault("server.admin_pass_hash", "")
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.token_ttl", 24*time.Hour)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	// Enable environment variable support
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read the config file when present; environment-only deployments
	// run without one.
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		config.Database = dbConfig
	}

	return &config, nil
}

// Validate checks the settings the service cannot run without.
func (c *Config) Validate() error {
	if c.Server.JWTSecret == "" {
		return fmt.Errorf("server.jwt_secret is required")
	}
	if c.Server.AdminUser == "" || c.Server.AdminPassHash == "" {
		return fmt.Errorf("server.admin_user and server.admin_pass_hash are required")
	}
	if !c.Database.UseInMemory && c.Database.DBName == "" {
		return fmt.Errorf("database.dbname is required")
	}
	return nil
}
