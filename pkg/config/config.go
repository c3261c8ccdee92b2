package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Allocation   AllocationConfig
	Cron         CronConfig
	Idempotency  IdempotencyConfig
	Import       ImportConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MCPMP_APP_ENV" required:"true"`
	Port         string `envconfig:"MCPMP_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"MCPMP_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"MCPMP_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"MCPMP_LOG_WARN_STACK" default:"false"`
	CORSOrigins  string `envconfig:"MCPMP_CORS_ORIGINS" default:"*"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AllowedOrigins splits the comma separated CORS origin list.
func (a AppConfig) AllowedOrigins() []string {
	var out []string
	for _, origin := range strings.Split(a.CORSOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

type ServiceConfig struct {
	Kind string `envconfig:"MCPMP_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MCPMP_DB_DSN"`
	Driver string `envconfig:"MCPMP_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MCPMP_DB_HOST"`
	LegacyPort     int    `envconfig:"MCPMP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MCPMP_DB_USER"`
	LegacyPassword string `envconfig:"MCPMP_DB_PASSWORD"`
	LegacyName     string `envconfig:"MCPMP_DB_NAME"`
	LegacySSLMode  string `envconfig:"MCPMP_DB_SSLMODE" default:"disable"`

	MaxOpenConns     int           `envconfig:"MCPMP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns     int           `envconfig:"MCPMP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime  time.Duration `envconfig:"MCPMP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime  time.Duration `envconfig:"MCPMP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	StatementTimeout time.Duration `envconfig:"MCPMP_DB_STATEMENT_TIMEOUT" default:"10s"`
	SlowQuery        time.Duration `envconfig:"MCPMP_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MCPMP_REDIS_URL"`
	Address      string        `envconfig:"MCPMP_REDIS_ADDR" default:"localhost:6379"`
	Password     string        `envconfig:"MCPMP_REDIS_PASSWORD"`
	DB           int           `envconfig:"MCPMP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MCPMP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MCPMP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MCPMP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MCPMP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MCPMP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MCPMP_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MCPMP_AUTO_MIGRATE" default:"false"`
	Idempotency bool `envconfig:"MCPMP_FEATURE_IDEMPOTENCY" default:"true"`
}

type AllocationConfig struct {
	// ReservationTTL is applied to run reservations when the request does not set an expiry.
	// Zero leaves run reservations open until the run is completed or canceled.
	ReservationTTL time.Duration `envconfig:"MCPMP_RESERVATION_TTL" default:"0s"`
	HoldTTL        time.Duration `envconfig:"MCPMP_HOLD_TTL" default:"168h"`
	CandidateLimit int           `envconfig:"MCPMP_MATCH_CANDIDATE_LIMIT" default:"5"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"MCPMP_CRON_INTERVAL" default:"1m"`
	LockTTL         time.Duration `envconfig:"MCPMP_CRON_LOCK_TTL" default:"2m"`
	ExpiryBatchSize int           `envconfig:"MCPMP_CRON_EXPIRY_BATCH_SIZE" default:"100"`
	RelayAttempts   int           `envconfig:"MCPMP_OUTBOX_RELAY_ATTEMPTS" default:"10"`
	OutboxRetention time.Duration `envconfig:"MCPMP_OUTBOX_RETENTION" default:"720h"`
}

type IdempotencyConfig struct {
	TTL time.Duration `envconfig:"MCPMP_IDEMPOTENCY_TTL" default:"24h"`
}

type ImportConfig struct {
	Dir string `envconfig:"MCPMP_IMPORT_DIR" default:"data"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.DSN = defaultSQLiteDSN
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
