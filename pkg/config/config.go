package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "OFN"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv            = "OFN_APP_ENV"
	EnvPort              = "OFN_APP_PORT"
	EnvDBDSN             = "OFN_DB_DSN"
	EnvDBHost            = "OFN_DB_HOST"
	EnvDBUser            = "OFN_DB_USER"
	EnvDBName            = "OFN_DB_NAME"
	EnvRedisURL          = "OFN_REDIS_URL"
	EnvJWTSecret         = "OFN_JWT_SECRET"
	EnvJWTIssuer         = "OFN_JWT_ISSUER"
	EnvJWTExpMins        = "OFN_JWT_EXPIRATION_MINUTES"
	EnvGCPProjectID      = "OFN_GCP_PROJECT_ID"
	EnvPubSubCacheTopic  = "OFN_PUBSUB_PRODUCTS_CACHE_TOPIC"
	EnvPubSubCacheSub    = "OFN_PUBSUB_PRODUCTS_CACHE_SUBSCRIPTION"
	EnvCacheProductsTTL  = "OFN_CACHE_PRODUCTS_TTL"
	EnvStoreCurrency     = "OFN_STORE_CURRENCY"
	EnvPricesIncludeTax  = "OFN_STORE_PRICES_INCLUDE_TAX"
	EnvImportMaxUploadMB = "OFN_IMPORT_MAX_UPLOAD_MB"
	EnvUseSQLite         = "OFN_USE_SQLITE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Password     PasswordConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cache        CacheConfig
	Import       ImportConfig
	Store        StoreConfig
	Cron         CronConfig
	Metrics      MetricsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		if cfg.App.IsProd() {
			return nil, fmt.Errorf("%s cannot be enabled in %s", EnvUseSQLite, AppEnvProd)
		}
		cfg.DB.Driver = DriverSQLite
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Store.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"OFN_APP_ENV" required:"true"`
	Port         string `envconfig:"OFN_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"OFN_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"OFN_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"OFN_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"OFN_DB_DSN"`
	Driver string `envconfig:"OFN_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"OFN_DB_HOST"`
	LegacyPort     int    `envconfig:"OFN_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"OFN_DB_USER"`
	LegacyPassword string `envconfig:"OFN_DB_PASSWORD"`
	LegacyName     string `envconfig:"OFN_DB_NAME"`
	LegacySSLMode  string `envconfig:"OFN_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"OFN_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"OFN_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"OFN_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"OFN_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"OFN_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"OFN_REDIS_URL" required:"true"`
	Address      string        `envconfig:"OFN_REDIS_ADDR"`
	Password     string        `envconfig:"OFN_REDIS_PASSWORD"`
	DB           int           `envconfig:"OFN_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"OFN_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"OFN_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"OFN_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"OFN_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"OFN_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"OFN_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"OFN_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"OFN_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"OFN_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"OFN_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"OFN_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"OFN_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"OFN_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"OFN_ARGON_KEY_LEN" default:"32"`
}

type RateLimitConfig struct {
	LoginWindow     time.Duration `envconfig:"OFN_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginIPLimit    int           `envconfig:"OFN_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	LoginEmailLimit int           `envconfig:"OFN_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	ImportWindow    time.Duration `envconfig:"OFN_RATE_LIMIT_IMPORT_WINDOW" default:"1h"`
	ImportUserLimit int           `envconfig:"OFN_RATE_LIMIT_IMPORT_USER_LIMIT" default:"30"`
}

type CORSConfig struct {
	AllowedOrigins   []string      `envconfig:"OFN_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	AllowCredentials bool          `envconfig:"OFN_CORS_ALLOW_CREDENTIALS" default:"true"`
	MaxAge           time.Duration `envconfig:"OFN_CORS_MAX_AGE" default:"5m"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"OFN_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"OFN_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"OFN_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"OFN_GCP_PROJECT_ID" required:"true"`
}

type PubSubConfig struct {
	OrdersTopic               string `envconfig:"OFN_PUBSUB_ORDERS_TOPIC" default:"ofn-orders"`
	ProductsCacheTopic        string `envconfig:"OFN_PUBSUB_PRODUCTS_CACHE_TOPIC" default:"ofn-products-cache"`
	ProductsCacheSubscription string `envconfig:"OFN_PUBSUB_PRODUCTS_CACHE_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"OFN_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"OFN_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"OFN_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CacheConfig struct {
	ProductsTTL time.Duration `envconfig:"OFN_CACHE_PRODUCTS_TTL" default:"15m"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"OFN_CRON_INTERVAL" default:"1m"`
	LockTTL             time.Duration `envconfig:"OFN_CRON_LOCK_TTL" default:"5m"`
	OutboxRetentionDays int           `envconfig:"OFN_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	DLQRetentionDays    int           `envconfig:"OFN_CRON_DLQ_RETENTION_DAYS" default:"90"`
}

// MetricsConfig controls the /metrics listener of the background workers.
// The API serves metrics on its own router; empty Addr disables the listener.
type MetricsConfig struct {
	Addr string `envconfig:"OFN_METRICS_ADDR"`
}

type ImportConfig struct {
	MaxUploadMB int `envconfig:"OFN_IMPORT_MAX_UPLOAD_MB" default:"10"`
	MaxRows     int `envconfig:"OFN_IMPORT_MAX_ROWS" default:"5000"`
}

// StoreConfig carries the instance-wide shop settings. Services receive it
// explicitly instead of consulting a global.
type StoreConfig struct {
	Currency                   string `envconfig:"OFN_STORE_CURRENCY" default:"AUD"`
	PricesIncludeTax           bool   `envconfig:"OFN_STORE_PRICES_INCLUDE_TAX" default:"true"`
	ProductsRequireTaxCategory bool   `envconfig:"OFN_STORE_PRODUCTS_REQUIRE_TAX_CATEGORY" default:"false"`
	AllowBackorders            bool   `envconfig:"OFN_STORE_ALLOW_BACKORDERS" default:"false"`
}

func (s StoreConfig) validate() error {
	if len(strings.TrimSpace(s.Currency)) != 3 {
		return fmt.Errorf("%s must be a 3-letter ISO code", EnvStoreCurrency)
	}
	return nil
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.Driver = DriverSQLite
		db.DSN = "file:ofn.db?cache=shared"
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
