package config

import (
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/nimasrn/debt-ledger/pkg/logger"
	"github.com/pkg/errors"
)

const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

var config *Config

// Config holds every setting the ledger binaries read. Only this struct may
// be used to access configuration; nothing else reads the environment.
type Config struct {
	AppEnv              string `env:"APP_ENV,default=dev"`
	AppName             string `env:"APP_NAME,default=debt_ledger"`
	AppDebug            bool   `env:"APP_DEBUG,default=false"`
	AppDebugMetricsAddr string `env:"APP_DEBUG_METRIC_ADDR"`
	AppDebugMetricsURI  string `env:"APP_DEBUG_METRIC_URI,default=/metrics"`

	HttpListenAddr     string        `env:"HTTP_LISTEN_ADDR,default=:8080"`
	HttpRequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT,default=5s"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`
	MigrationsDir         string `env:"MIGRATIONS_DIR,default=migrations"`

	SQLitePath string `env:"SQLITE_PATH,default=ledger.db"`

	RedisAddr               string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE,default=0"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX,default=ledger:"`

	PromNamespace string `env:"PROM_NAMESPACE,default=debt_ledger"`

	LedgerStore            string        `env:"LEDGER_STORE,default=memory"`
	LedgerAdmins           string        `env:"LEDGER_ADMINS"`
	LedgerRejectDuplicates bool          `env:"LEDGER_REJECT_DUPLICATES,default=false"`
	LedgerLockTTL          time.Duration `env:"LEDGER_LOCK_TTL,default=5s"`

	JWTSecret string        `env:"JWT_SECRET"`
	JWTIssuer string        `env:"JWT_ISSUER,default=debt-ledger"`
	JWTTTL    time.Duration `env:"JWT_TTL,default=1h"`

	EventStream string `env:"EVENT_STREAM,default=ledger-events"`

	QueueConsumerGroup     string        `env:"QUEUE_CONSUMER_GROUP,default=ledger-audit"`
	QueueConsumerName      string        `env:"QUEUE_CONSUMER_NAME,default=audit-1"`
	QueueConsumers         int           `env:"QUEUE_CONSUMERS,default=2"`
	QueueMaxRetries        int           `env:"QUEUE_MAX_RETRIES,default=3"`
	QueueVisibilityTimeout time.Duration `env:"QUEUE_VISIBILITY_TIMEOUT,default=30s"`
	QueuePollInterval      time.Duration `env:"QUEUE_POLL_INTERVAL,default=100ms"`
	QueueBatchSize         int64         `env:"QUEUE_BATCH_SIZE,default=10"`
	QueueMaxLen            int64         `env:"QUEUE_MAX_LEN,default=100000"`
	QueueEnableDLQ         bool          `env:"QUEUE_ENABLE_DLQ,default=true"`

	ProcessorWorkers    int    `env:"PROCESSOR_WORKERS,default=4"`
	ProcessorStatusAddr string `env:"PROCESSOR_STATUS_ADDR,default=:8081"`
}

// Admins returns the principals listed in LEDGER_ADMINS.
func (c *Config) Admins() []string {
	var out []string
	for _, p := range strings.Split(c.LedgerAdmins, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) Validate() error {
	switch c.LedgerStore {
	case StoreMemory, StoreRedis, StorePostgres, StoreSQLite:
	default:
		return errors.Errorf("unknown LEDGER_STORE %q", c.LedgerStore)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set")
	}
	if len(c.Admins()) == 0 {
		return errors.New("LEDGER_ADMINS must name at least one principal")
	}
	return nil
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	var err error
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		err = godotenv.Load(path)
		if err != nil {
			return errors.Wrapf(err, "failed to load configuration file %s", path)
		}
	}

	_, err = env.UnmarshalFromEnviron(c)
	if err != nil {
		return errors.Wrap(err, "failed to map env variables to Configuration object")
	}

	config = c
	return nil
}

// Set replaces the loaded configuration.
func Set(c *Config) {
	config = c
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}
