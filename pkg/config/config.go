package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "brewmetric"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Password PasswordConfig
	Session  SessionConfig
	Policy   PolicyConfig
	Metrics  MetricsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BREWMETRIC_APP_ENV" default:"dev"`
	LogLevel     string `envconfig:"BREWMETRIC_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BREWMETRIC_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"BREWMETRIC_AUTO_MIGRATE" default:"true"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	Driver     string `envconfig:"BREWMETRIC_DB_DRIVER" default:"sqlite"`
	DSN        string `envconfig:"BREWMETRIC_DB_DSN"`
	SQLitePath string `envconfig:"BREWMETRIC_DB_SQLITE_PATH" default:"brewmetric.db"`

	Host     string `envconfig:"BREWMETRIC_DB_HOST"`
	Port     int    `envconfig:"BREWMETRIC_DB_PORT" default:"5432"`
	User     string `envconfig:"BREWMETRIC_DB_USER"`
	Password string `envconfig:"BREWMETRIC_DB_PASSWORD"`
	Name     string `envconfig:"BREWMETRIC_DB_NAME"`
	SSLMode  string `envconfig:"BREWMETRIC_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BREWMETRIC_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"BREWMETRIC_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"BREWMETRIC_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BREWMETRIC_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DriverSQLite)
}

// RedisConfig is optional; the activity feed cache is disabled when no URL
// or address is configured.
type RedisConfig struct {
	URL          string        `envconfig:"BREWMETRIC_REDIS_URL"`
	Address      string        `envconfig:"BREWMETRIC_REDIS_ADDR"`
	Password     string        `envconfig:"BREWMETRIC_REDIS_PASSWORD"`
	DB           int           `envconfig:"BREWMETRIC_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BREWMETRIC_REDIS_POOL_SIZE" default:"5"`
	DialTimeout  time.Duration `envconfig:"BREWMETRIC_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BREWMETRIC_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BREWMETRIC_REDIS_WRITE_TIMEOUT" default:"5s"`
}

func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type PasswordConfig struct {
	MinLength        int `envconfig:"BREWMETRIC_PASSWORD_MIN_LENGTH" default:"8"`
	MaxLength        int `envconfig:"BREWMETRIC_PASSWORD_MAX_LENGTH" default:"1024"`
	ArgonMemoryKB    int `envconfig:"BREWMETRIC_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"BREWMETRIC_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"BREWMETRIC_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"BREWMETRIC_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"BREWMETRIC_ARGON_KEY_LEN" default:"32"`
}

type SessionConfig struct {
	Secret     string `envconfig:"BREWMETRIC_SESSION_SECRET" default:"change-me-local-only"`
	Issuer     string `envconfig:"BREWMETRIC_SESSION_ISSUER" default:"brewmetric"`
	TTLMinutes int    `envconfig:"BREWMETRIC_SESSION_TTL_MINUTES" default:"720"`
}

// TTL returns the session handle lifetime.
func (s SessionConfig) TTL() time.Duration {
	if s.TTLMinutes <= 0 {
		return 0
	}
	return time.Duration(s.TTLMinutes) * time.Minute
}

type PolicyConfig struct {
	AuditQueryLimit  int `envconfig:"BREWMETRIC_AUDIT_QUERY_LIMIT" default:"100"`
	ActivityLimit    int `envconfig:"BREWMETRIC_ACTIVITY_LIMIT" default:"50"`
	FeedCacheSize    int `envconfig:"BREWMETRIC_FEED_CACHE_SIZE" default:"100"`
	ExpiringSoonDays int `envconfig:"BREWMETRIC_EXPIRING_SOON_DAYS" default:"7"`
	LowStockLimit    int `envconfig:"BREWMETRIC_LOW_STOCK_LIMIT" default:"10"`
}

type MetricsConfig struct {
	Enabled bool   `envconfig:"BREWMETRIC_METRICS_ENABLED" default:"false"`
	Addr    string `envconfig:"BREWMETRIC_METRICS_ADDR" default:":9465"`
}

func (db *DBConfig) ensureDSN() error {
	if db.IsSQLite() {
		if db.DSN == "" {
			db.DSN = db.SQLitePath
		}
		return nil
	}

	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	required := map[string]string{
		"BREWMETRIC_DB_HOST": db.Host,
		"BREWMETRIC_DB_USER": db.User,
		"BREWMETRIC_DB_NAME": db.Name,
	}
	for _, key := range []string{"BREWMETRIC_DB_HOST", "BREWMETRIC_DB_USER", "BREWMETRIC_DB_NAME"} {
		if required[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either BREWMETRIC_DB_DSN or %s are required", strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
