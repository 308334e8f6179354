package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/dmitrijs2005/bizkeeper/internal/common"
)

// Storage backends for the offline store.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
)

// Config holds runtime settings for the CLI.
//
// Units: RequestTimeout, OnlineCheckInterval and SyncInterval are
// time.Duration values; a zero SyncInterval disables periodic sync.
type Config struct {
	APIBaseURL          string
	RequestTimeout      time.Duration
	OnlineCheckInterval time.Duration
	SyncInterval        time.Duration

	StorageBackend string
	DatabaseDSN    string
	S3             S3Config

	TokenFile            string
	EncryptionPassphrase string

	ClientID string
	Resource string
	LogLevel string
}

type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Prefix    string
}

// LoadDefaults populates c with sensible defaults. Paths live under the XDG
// data and config directories.
func (c *Config) LoadDefaults() {
	c.APIBaseURL = "http://127.0.0.1:8080/api"
	c.RequestTimeout = 10 * time.Second
	c.OnlineCheckInterval = 3 * time.Second
	c.SyncInterval = 30 * time.Second

	c.StorageBackend = BackendSQLite
	c.DatabaseDSN = filepath.Join(xdg.DataHome, common.AppName, "offline.db")
	c.S3 = S3Config{Region: "us-east-1", Prefix: common.AppName + "/"}

	c.TokenFile = filepath.Join(xdg.ConfigHome, common.AppName, "token.jwt")

	c.ClientID = "default"
	c.Resource = "tasks"
	c.LogLevel = "info"
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendSQLite, BackendPostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("storage backend %s needs a database DSN", c.StorageBackend)
		}
	case BackendS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("storage backend s3 needs a bucket")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
	if c.APIBaseURL == "" {
		return fmt.Errorf("api base url is empty")
	}
	return nil
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJSON(cfg)
	parseFlags(cfg)
	return cfg
}
