package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/bizkeeper/internal/flagx"
)

var knownFlags = []string{"-a", "-t", "-i", "-s", "-b", "-d", "-client", "-r", "-l"}

// parseFlags populates Config fields from command-line flags.
//
//	-a string    base URL of the collection API
//	-t int       request timeout (seconds)
//	-i int       online check interval (seconds)
//	-s int       sync interval (seconds, 0 disables periodic sync)
//	-b string    storage backend: sqlite, postgres or s3
//	-d string    database DSN (sqlite path or postgres URL)
//	-client str  client id of the initial scope
//	-r string    resource of the initial scope (tasks, notes, files, checklist)
//	-l string    log level
//
// os.Args is filtered with flagx.FilterArgs first, so flags owned by other
// components (-c) do not fail the parse.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], knownFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.APIBaseURL, "a", cfg.APIBaseURL, "base URL of the collection API")
	timeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	syncInterval := fs.Int("s", int(cfg.SyncInterval.Seconds()), "sync interval (in seconds, 0 disables)")
	fs.StringVar(&cfg.StorageBackend, "b", cfg.StorageBackend, "storage backend: sqlite, postgres or s3")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "database DSN")
	fs.StringVar(&cfg.ClientID, "client", cfg.ClientID, "client id")
	fs.StringVar(&cfg.Resource, "r", cfg.Resource, "resource: tasks, notes, files or checklist")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.RequestTimeout = time.Duration(*timeout) * time.Second
	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
	cfg.SyncInterval = time.Duration(*syncInterval) * time.Second
}
