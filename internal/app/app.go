// Package app holds the start-up wiring shared by the binaries.
package app

import (
	"os"
	"strings"

	"github.com/nimasrn/debt-ledger/internal/config"
	"github.com/nimasrn/debt-ledger/internal/ledger"
	"github.com/nimasrn/debt-ledger/internal/repository"
	"github.com/nimasrn/debt-ledger/internal/store"
	"github.com/nimasrn/debt-ledger/pkg/logger"
	"github.com/nimasrn/debt-ledger/pkg/pg"
	"github.com/nimasrn/debt-ledger/pkg/prom"
	"github.com/nimasrn/debt-ledger/pkg/redis"
	"github.com/pkg/errors"
)

// EnvPath returns the file passed with --env=, or "" when none was given or
// it cannot be opened.
func EnvPath(args []string) string {
	for _, v := range args {
		if strings.HasPrefix(v, "--env=") {
			path := strings.TrimPrefix(v, "--env=")
			if _, err := os.Stat(path); err != nil {
				logger.Error("failed to open the passed env file", "path", path, "error", err)
				return ""
			}
			return path
		}
	}
	return ""
}

// Flag returns the value of --name=value in args, or def.
func Flag(args []string, name, def string) string {
	prefix := "--" + name + "="
	for _, v := range args {
		if strings.HasPrefix(v, prefix) {
			return strings.TrimPrefix(v, prefix)
		}
	}
	return def
}

func PostgresConfigs(c *config.Config) (read, write pg.Config) {
	read = pg.Config{
		User:     c.PostgresReadUser,
		Host:     c.PostgresReadHost,
		Port:     c.PostgresReadPort,
		Password: c.PostgresReadPassword,
		Database: c.PostgresReadDatabase,
	}
	write = pg.Config{
		User:     c.PostgresWriteUser,
		Host:     c.PostgresWriteHost,
		Port:     c.PostgresWritePort,
		Password: c.PostgresWritePassword,
		Database: c.PostgresWriteDatabase,
	}
	return read, write
}

// UsesPostgres reports whether the SQL tables live in postgres. Otherwise
// they live in the sqlite file at SQLITE_PATH.
func UsesPostgres(c *config.Config) bool {
	return c.LedgerStore == config.StorePostgres || c.PostgresWriteHost != ""
}

// OpenDatabase connects to the SQL database holding pending payments, the
// audit trail and, for the sql store modes, the ledger state. sqlite tables
// are created on the fly; postgres is migrated with the cli.
func OpenDatabase(c *config.Config) (*pg.DB, error) {
	debug := c.AppEnv == "dev" && c.AppDebug

	if UsesPostgres(c) {
		readConf, writeConf := PostgresConfigs(c)
		db, err := pg.CreateReadWrite(readConf, writeConf, debug)
		if err != nil {
			return nil, errors.Wrap(err, "failed connecting to postgres")
		}
		return db, nil
	}

	db, err := pg.OpenSQLite(c.SQLitePath, debug)
	if err != nil {
		return nil, errors.Wrapf(err, "failed opening sqlite database %s", c.SQLitePath)
	}
	if err := db.AutoMigrate(repository.Entities()...); err != nil {
		return nil, errors.Wrap(err, "failed migrating sqlite database")
	}
	return db, nil
}

func ConnectRedis(c *config.Config) (redis.RedisAdapter, error) {
	adapter, err := redis.NewRedisAdapter("default", c.RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{c.RedisAddr},
		ClientName: c.AppName,
		DB:         c.RedisDatabase,
		Username:   c.RedisUsername,
		Password:   c.RedisPassword,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed connecting to redis at %s", c.RedisAddr)
	}
	return adapter, nil
}

// StartMetrics registers the prometheus collectors and, when
// APP_DEBUG_METRIC_ADDR is set, serves them in the background.
func StartMetrics(c *config.Config) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if err := prom.Create(hostname, c.AppEnv, c.PromNamespace); err != nil {
		return errors.Wrap(err, "failed to create prometheus metrics")
	}

	if c.AppDebugMetricsAddr != "" {
		go prom.ListenAndServer(c.AppDebugMetricsAddr, c.AppDebugMetricsURI)
	}
	return nil
}

// LedgerBackend picks the ledger state store and the per-debt locker for
// LEDGER_STORE. The redis locker is used wherever several api instances may
// share the state.
func LedgerBackend(c *config.Config, db *pg.DB, adapter redis.RedisAdapter) (ledger.Store, ledger.Locker) {
	switch c.LedgerStore {
	case config.StoreRedis:
		return store.NewRedisStore(adapter, c.AppName), store.NewRedisLocker(adapter, c.AppName, c.LedgerLockTTL)
	case config.StorePostgres:
		return repository.NewStateRepository(db), store.NewRedisLocker(adapter, c.AppName, c.LedgerLockTTL)
	case config.StoreSQLite:
		return repository.NewStateRepository(db), ledger.NewLocalLocker()
	default:
		return store.NewMemoryStore(), ledger.NewLocalLocker()
	}
}
