package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	minSigningSecretLen = 64
	encryptionKeyLen    = 32
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type SecurityConfig struct {
	JWTAccessSecret  string
	JWTRefreshSecret string
	// JWEEncryptionKey is the base64 encoding of a 32 byte AES-256 key.
	JWEEncryptionKey  string
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration
	ActivityThreshold time.Duration
	// DefaultPolicyID is the session policy applied to users without one assigned.
	DefaultPolicyID int64
	LoginRateLimit  int
	LoginRateWindow time.Duration
}

// EncryptionKey decodes JWEEncryptionKey.
func (s SecurityConfig) EncryptionKey() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s.JWEEncryptionKey))
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	if len(key) != encryptionKeyLen {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", encryptionKeyLen, len(key))
	}
	return key, nil
}

type SessionConfig struct {
	// Store selects the session backend: "postgres" or "redis".
	Store         string
	RedisPrefix   string
	SweepSchedule string
}

type CookieConfig struct {
	Name   string
	Domain string
	Path   string
}

type QueueConfig struct {
	Stream        string
	Group         string
	Consumer      string
	ClaimInterval time.Duration
	Block         time.Duration
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Security         SecurityConfig
	Session          SessionConfig
	Cookie           CookieConfig
	Queue            QueueConfig
	AllowCORSOrigins []string
}

func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

// Validate rejects configurations the token codec and session layer cannot run with.
func (c *AppConfig) Validate() error {
	var errs []error
	if len(c.Security.JWTAccessSecret) < minSigningSecretLen {
		errs = append(errs, fmt.Errorf("security.jwtaccesssecret must be at least %d bytes", minSigningSecretLen))
	}
	if len(c.Security.JWTRefreshSecret) < minSigningSecretLen {
		errs = append(errs, fmt.Errorf("security.jwtrefreshsecret must be at least %d bytes", minSigningSecretLen))
	}
	if c.Security.JWTAccessSecret != "" && c.Security.JWTAccessSecret == c.Security.JWTRefreshSecret {
		errs = append(errs, errors.New("access and refresh secrets must differ"))
	}
	if _, err := c.Security.EncryptionKey(); err != nil {
		errs = append(errs, fmt.Errorf("security.jweencryptionkey: %w", err))
	}
	if c.Security.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("security.accesstokenttl must be positive"))
	}
	if c.Security.RefreshTokenTTL <= c.Security.AccessTokenTTL {
		errs = append(errs, errors.New("security.refreshtokenttl must exceed the access token ttl"))
	}
	switch c.Session.Store {
	case "postgres", "redis":
	default:
		errs = append(errs, fmt.Errorf("session.store must be postgres or redis, got %q", c.Session.Store))
	}
	return errors.Join(errs...)
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("ADMINPANEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 3001)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 5)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("security.jwtaccesssecret", "")
	v.SetDefault("security.jwtrefreshsecret", "")
	v.SetDefault("security.jweencryptionkey", "")
	v.SetDefault("security.accesstokenttl", "900s")
	v.SetDefault("security.refreshtokenttl", "43200m") // 30 days
	v.SetDefault("security.activitythreshold", "60s")
	v.SetDefault("security.defaultpolicyid", 1)
	v.SetDefault("security.loginratelimit", 5)
	v.SetDefault("security.loginratewindow", "15m")

	v.SetDefault("session.store", "postgres")
	v.SetDefault("session.redisprefix", "adminpanel")
	v.SetDefault("session.sweepschedule", "0 */5 * * * *")

	v.SetDefault("cookie.name", "refresh_token")
	v.SetDefault("cookie.domain", "localhost")
	v.SetDefault("cookie.path", "/api/auth")

	v.SetDefault("queue.stream", "adminpanel:tasks")
	v.SetDefault("queue.group", "adminpanel-workers")
	v.SetDefault("queue.consumer", "worker-1")
	v.SetDefault("queue.claiminterval", "1m")
	v.SetDefault("queue.block", "5s")

	v.SetDefault("allowcorsorigins", []string{"http://localhost:5173"})
}
