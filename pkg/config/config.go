package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App       AppConfig
	Service   ServiceConfig
	DB        DBConfig
	Redis     RedisConfig
	Cron      CronConfig
	RateLimit RateLimitConfig
	Messaging MessagingConfig
	WhatsApp  WhatsAppConfig
	OpenPix   OpenPixConfig
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
	Env          string `envconfig:"LEADLINE_APP_ENV" required:"true"`
	Port         string `envconfig:"LEADLINE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LEADLINE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LEADLINE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LEADLINE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"LEADLINE_DB_DSN"`
	Driver string `envconfig:"LEADLINE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LEADLINE_DB_HOST"`
	LegacyPort     int    `envconfig:"LEADLINE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LEADLINE_DB_USER"`
	LegacyPassword string `envconfig:"LEADLINE_DB_PASSWORD"`
	LegacyName     string `envconfig:"LEADLINE_DB_NAME"`
	LegacySSLMode  string `envconfig:"LEADLINE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LEADLINE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LEADLINE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LEADLINE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LEADLINE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"LEADLINE_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LEADLINE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LEADLINE_REDIS_ADDR"`
	Password     string        `envconfig:"LEADLINE_REDIS_PASSWORD"`
	DB           int           `envconfig:"LEADLINE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LEADLINE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LEADLINE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LEADLINE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LEADLINE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LEADLINE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// CronConfig controls the periodic worker and the HTTP sweep triggers.
type CronConfig struct {
	Secret       string        `envconfig:"LEADLINE_CRON_SECRET" required:"true"`
	Interval     time.Duration `envconfig:"LEADLINE_CRON_INTERVAL" default:"2m"`
	LockTTL      time.Duration `envconfig:"LEADLINE_CRON_LOCK_TTL" default:"10m"`
	SweepEvery   int           `envconfig:"LEADLINE_CRON_SWEEP_EVERY" default:"3"`
	DispatchOnly bool          `envconfig:"LEADLINE_CRON_DISPATCH_ONLY" default:"false"`
}

// RateLimitConfig throttles the public signup surface.
type RateLimitConfig struct {
	RegisterWindow     time.Duration `envconfig:"LEADLINE_RL_REGISTER_WINDOW" default:"1m"`
	RegisterIPLimit    int           `envconfig:"LEADLINE_RL_REGISTER_IP_LIMIT" default:"10"`
	RegisterPhoneLimit int           `envconfig:"LEADLINE_RL_REGISTER_PHONE_LIMIT" default:"3"`
}

// MessagingConfig carries every queue tunable so tests can inject their own.
type MessagingConfig struct {
	WelcomeDelay  time.Duration `envconfig:"LEADLINE_MSG_WELCOME_DELAY" default:"2m"`
	DispatchBatch int           `envconfig:"LEADLINE_MSG_DISPATCH_BATCH" default:"20"`
	ExpiryBatch   int           `envconfig:"LEADLINE_MSG_EXPIRY_BATCH" default:"50"`
	PixGrace      time.Duration `envconfig:"LEADLINE_MSG_PIX_GRACE" default:"16m"`
	Timezone      string        `envconfig:"LEADLINE_MSG_TIMEZONE" default:"America/Sao_Paulo"`
}

type WhatsAppConfig struct {
	BaseURL     string        `envconfig:"LEADLINE_WHATSAPP_BASE_URL" required:"true"`
	Token       string        `envconfig:"LEADLINE_WHATSAPP_TOKEN"`
	SendTimeout time.Duration `envconfig:"LEADLINE_WHATSAPP_SEND_TIMEOUT" default:"5s"`
}

type OpenPixConfig struct {
	BaseURL       string `envconfig:"LEADLINE_OPENPIX_BASE_URL" default:"https://api.openpix.com.br"`
	AppID         string `envconfig:"LEADLINE_OPENPIX_APP_ID"`
	WebhookSecret string `envconfig:"LEADLINE_OPENPIX_WEBHOOK_SECRET"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
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
