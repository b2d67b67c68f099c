package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "ATLAS"
	defaultHTTPAddress  = "0.0.0.0:8080"
	defaultDatabasePath = "atlas.db"
	defaultStorageDir   = "storage"
	defaultLogLevel     = "info"
	defaultTokenTTL     = 7 * 24 * 60 // minutes
	defaultOCREngine    = "tesseract"
	defaultOCRWorkers   = 1
	defaultOCRQueueSize = 16
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress   string
	DatabasePath  string
	StorageDir    string
	SigningSecret string
	TokenTTL      time.Duration
	LogLevel      string
	OCREngine     string
	OCRWorkers    int
	OCRQueueSize  int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("storage.dir", defaultStorageDir)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTL)
	configViper.SetDefault("ocr.engine", defaultOCREngine)
	configViper.SetDefault("ocr.workers", defaultOCRWorkers)
	configViper.SetDefault("ocr.queue_size", defaultOCRQueueSize)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:   configViper.GetString("http.address"),
		DatabasePath:  configViper.GetString("database.path"),
		StorageDir:    configViper.GetString("storage.dir"),
		SigningSecret: configViper.GetString("auth.signing_secret"),
		TokenTTL:      time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
		LogLevel:      configViper.GetString("log.level"),
		OCREngine:     configViper.GetString("ocr.engine"),
		OCRWorkers:    configViper.GetInt("ocr.workers"),
		OCRQueueSize:  configViper.GetInt("ocr.queue_size"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.StorageDir) == "" {
		return fmt.Errorf("storage.dir is required")
	}
	if strings.TrimSpace(c.OCREngine) == "" {
		return fmt.Errorf("ocr.engine is required")
	}
	if c.OCRWorkers < 1 {
		return fmt.Errorf("ocr.workers must be at least 1")
	}
	if c.OCRQueueSize < 1 {
		return fmt.Errorf("ocr.queue_size must be at least 1")
	}
	return nil
}
