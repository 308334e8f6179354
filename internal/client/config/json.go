package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/bizkeeper/internal/flagx"
	"github.com/dmitrijs2005/bizkeeper/internal/timex"
)

// JSONConfig is a DTO used exclusively for JSON unmarshalling. Intervals use
// timex.Duration, so they can be strings like "3s" or integer nanoseconds.
// Absent or empty values leave the current setting alone.
type JSONConfig struct {
	APIBaseURL          string          `json:"api_base_url"`
	RequestTimeout      timex.Duration  `json:"request_timeout"`
	OnlineCheckInterval timex.Duration  `json:"online_check_interval"`
	SyncInterval        *timex.Duration `json:"sync_interval"`

	StorageBackend string `json:"storage_backend"`
	DatabaseDSN    string `json:"database_dsn"`
	S3             struct {
		Bucket    string `json:"bucket"`
		Region    string `json:"region"`
		Endpoint  string `json:"endpoint"`
		AccessKey string `json:"access_key"`
		SecretKey string `json:"secret_key"`
		Prefix    string `json:"prefix"`
	} `json:"s3"`

	TokenFile            string `json:"token_file"`
	EncryptionPassphrase string `json:"encryption_passphrase"`

	ClientID string `json:"client_id"`
	Resource string `json:"resource"`
	LogLevel string `json:"log_level"`
}

// parseJSON overlays cfg with the JSON file named by -c or -config. Without
// either flag nothing happens. Read and decode errors panic, like flag errors.
func parseJSON(cfg *Config) {
	path := flagx.JSONConfigPath(os.Args[1:])
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	var jc JSONConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.APIBaseURL, jc.APIBaseURL)
	if jc.RequestTimeout.Duration > 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.OnlineCheckInterval.Duration > 0 {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	// Explicit zero is meaningful here: it turns periodic sync off.
	if jc.SyncInterval != nil {
		cfg.SyncInterval = jc.SyncInterval.Duration
	}

	setString(&cfg.StorageBackend, jc.StorageBackend)
	setString(&cfg.DatabaseDSN, jc.DatabaseDSN)
	setString(&cfg.S3.Bucket, jc.S3.Bucket)
	setString(&cfg.S3.Region, jc.S3.Region)
	setString(&cfg.S3.Endpoint, jc.S3.Endpoint)
	setString(&cfg.S3.AccessKey, jc.S3.AccessKey)
	setString(&cfg.S3.SecretKey, jc.S3.SecretKey)
	setString(&cfg.S3.Prefix, jc.S3.Prefix)

	setString(&cfg.TokenFile, jc.TokenFile)
	setString(&cfg.EncryptionPassphrase, jc.EncryptionPassphrase)

	setString(&cfg.ClientID, jc.ClientID)
	setString(&cfg.Resource, jc.Resource)
	setString(&cfg.LogLevel, jc.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
