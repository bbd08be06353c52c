package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DBFile      string `yaml:"db_file"`
	AdminAddr   string `yaml:"admin_addr"`
	APIAddr     string `yaml:"api_addr"`
	UploadsPath string `yaml:"uploads_path"`

	AuthSecret  string        `yaml:"auth_secret"`
	TokenIssuer string        `yaml:"token_issuer"`
	TokenExpiry time.Duration `yaml:"token_expiry"`

	AdminUser         string `yaml:"admin_user"`
	AdminPasswordHash string `yaml:"admin_password_hash"`

	HistoryLimit   int           `yaml:"history_limit"`
	SendQueueSize  int           `yaml:"send_queue_size"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogFile   string `yaml:"log_file"`

	VAPIDPublicKey  string `yaml:"vapid_public_key"`
	VAPIDPrivateKey string `yaml:"vapid_private_key"`
	VAPIDSubscriber string `yaml:"vapid_subscriber"`
}

func defaults() *Config {
	return &Config{
		DBFile:         "veranda.db",
		AdminAddr:      "localhost:8081",
		APIAddr:        ":8080",
		UploadsPath:    "uploads",
		TokenExpiry:    12 * time.Hour,
		AdminUser:      "admin",
		HistoryLimit:   100,
		SendQueueSize:  256,
		WriteTimeout:   10 * time.Second,
		MaxUploadBytes: 10 << 20,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Load reads defaults, then the YAML file named by VERANDA_CONFIG (if any),
// then environment overrides. cliMode relaxes the checks that only the
// server needs.
func Load(cliMode bool) (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("VERANDA_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(cliMode); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.DBFile = getEnv("VERANDA_DB", c.DBFile)
	c.AdminAddr = getEnv("ADMIN_ADDR", c.AdminAddr)
	c.APIAddr = getEnv("API_ADDR", c.APIAddr)
	c.UploadsPath = getEnv("UPLOADS_PATH", c.UploadsPath)
	c.AuthSecret = getEnv("AUTH_SECRET", c.AuthSecret)
	c.TokenIssuer = getEnv("TOKEN_ISSUER", c.TokenIssuer)
	c.AdminUser = getEnv("ADMIN_USER", c.AdminUser)
	c.AdminPasswordHash = getEnv("ADMIN_PASSWORD_HASH", c.AdminPasswordHash)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)
	c.VAPIDPublicKey = getEnv("VAPID_PUBLIC_KEY", c.VAPIDPublicKey)
	c.VAPIDPrivateKey = getEnv("VAPID_PRIVATE_KEY", c.VAPIDPrivateKey)
	c.VAPIDSubscriber = getEnv("VAPID_SUBSCRIBER", c.VAPIDSubscriber)

	var err error
	if c.TokenExpiry, err = getDuration("TOKEN_EXPIRY", c.TokenExpiry); err != nil {
		return err
	}
	if c.WriteTimeout, err = getDuration("WRITE_TIMEOUT", c.WriteTimeout); err != nil {
		return err
	}
	if c.HistoryLimit, err = getInt("HISTORY_LIMIT", c.HistoryLimit); err != nil {
		return err
	}
	if c.SendQueueSize, err = getInt("SEND_QUEUE_SIZE", c.SendQueueSize); err != nil {
		return err
	}
	maxUpload, err := getInt("MAX_UPLOAD_BYTES", int(c.MaxUploadBytes))
	if err != nil {
		return err
	}
	c.MaxUploadBytes = int64(maxUpload)
	return nil
}

func (c *Config) Validate(cliMode bool) error {
	if c.AuthSecret == "" && !cliMode {
		return fmt.Errorf("AUTH_SECRET is required")
	}

	if c.TokenExpiry <= 0 {
		return fmt.Errorf("TOKEN_EXPIRY must be greater than 0")
	}

	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be greater than 0")
	}

	if c.SendQueueSize <= 0 {
		return fmt.Errorf("SEND_QUEUE_SIZE must be greater than 0")
	}

	if c.WriteTimeout <= 0 {
		return fmt.Errorf("WRITE_TIMEOUT must be greater than 0")
	}

	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		return errors.New("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together")
	}

	return nil
}

// PushEnabled reports whether Web Push keys are configured.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
