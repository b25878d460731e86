package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App        AppSettings        `mapstructure:"app"`
	Postgres   PostgresSettings   `mapstructure:"postgres"`
	Redis      RedisSettings      `mapstructure:"redis"`
	Kafka      KafkaSettings      `mapstructure:"kafka"`
	JWT        JWTSettings        `mapstructure:"jwt"`
	Cookie     CookieSettings     `mapstructure:"cookie"`
	Telemetry  TelemetrySettings  `mapstructure:"telemetry"`
	RateLimit  RateLimitSettings  `mapstructure:"rate_limit"`
	Argon2     Argon2Settings     `mapstructure:"argon2"`
	Security   SecuritySettings   `mapstructure:"security"`
	Mail       MailSettings       `mapstructure:"mail"`
	Upload     UploadSettings     `mapstructure:"upload"`
	S3         S3Settings         `mapstructure:"s3"`
	Cloudinary CloudinarySettings `mapstructure:"cloudinary"`
	Scheduler  SchedulerSettings  `mapstructure:"scheduler"`
}

type AppSettings struct {
	Name           string   `mapstructure:"name"`
	Env            string   `mapstructure:"env"`
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	FrontURL       string   `mapstructure:"front_url"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	MigrateOnStart    bool          `mapstructure:"migrate_on_start"`
}

// DSN renders the connection string shared by the pool and the migrator.
func (p PostgresSettings) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User,
		p.Password,
		p.Host,
		p.Port,
		p.Database,
		p.SSLMode,
	)
}

// RedisSettings configures the Redis connection used for rate limiting
type RedisSettings struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	DB              int    `mapstructure:"db"`
	Password        string `mapstructure:"password"`
	TLSEnabled      bool   `mapstructure:"tls_enabled"`
	RateLimitPrefix string `mapstructure:"rate_limit_prefix"`
}

// KafkaSettings configures the optional mail outbox producer
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	MailTopic   string   `mapstructure:"mail_topic"`
}

type JWTSettings struct {
	AccessSecret    string        `mapstructure:"access_secret"`
	RefreshSecret   string        `mapstructure:"refresh_secret"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
	Issuer          string        `mapstructure:"issuer"`
}

// CookieSettings configures the refresh token cookie
type CookieSettings struct {
	RefreshName string `mapstructure:"refresh_name"`
	Path        string `mapstructure:"path"`
	Domain      string `mapstructure:"domain"`
	Secure      bool   `mapstructure:"secure"`
	SameSite    string `mapstructure:"same_site"`
}

type TelemetrySettings struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// RateLimitSettings configures the short and long windows applied per route
type RateLimitSettings struct {
	ShortWindow  time.Duration `mapstructure:"short_window"`
	LongWindow   time.Duration `mapstructure:"long_window"`
	RefreshShort int           `mapstructure:"refresh_short"`
	RefreshLong  int           `mapstructure:"refresh_long"`
	DefaultShort int           `mapstructure:"default_short"`
	DefaultLong  int           `mapstructure:"default_long"`
}

// Argon2Settings configures Argon2id hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

type SecuritySettings struct {
	FingerprintKey   string        `mapstructure:"fingerprint_key"`
	OTPTTL           time.Duration `mapstructure:"otp_ttl"`
	ResetTokenTTL    time.Duration `mapstructure:"reset_token_ttl"`
	MinPasswordScore int           `mapstructure:"min_password_score"`
}

// MailSettings selects and configures the mail transport (smtp, kafka or log)
type MailSettings struct {
	Transport string        `mapstructure:"transport"`
	Host      string        `mapstructure:"host"`
	Port      int           `mapstructure:"port"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	From      string        `mapstructure:"from"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type UploadSettings struct {
	Dir          string `mapstructure:"dir"`
	PublicPrefix string `mapstructure:"public_prefix"`
	MaxBytes     int64  `mapstructure:"max_bytes"`
	JPEGQuality  int    `mapstructure:"jpeg_quality"`
}

type S3Settings struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Endpoint        string `mapstructure:"endpoint"`
}

type CloudinarySettings struct {
	CloudName string `mapstructure:"cloud_name"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	Folder    string `mapstructure:"folder"`
}

type SchedulerSettings struct {
	SweepSpec string `mapstructure:"sweep_spec"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("SHOP")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.front_url",
		"app.allowed_origins",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"postgres.migrate_on_start",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.rate_limit_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.mail_topic",
		"jwt.access_secret",
		"jwt.refresh_secret",
		"jwt.access_token_ttl",
		"jwt.refresh_token_ttl",
		"jwt.issuer",
		"cookie.refresh_name",
		"cookie.path",
		"cookie.domain",
		"cookie.secure",
		"cookie.same_site",
		"telemetry.enabled",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"rate_limit.short_window",
		"rate_limit.long_window",
		"rate_limit.refresh_short",
		"rate_limit.refresh_long",
		"rate_limit.default_short",
		"rate_limit.default_long",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
		"security.fingerprint_key",
		"security.otp_ttl",
		"security.reset_token_ttl",
		"security.min_password_score",
		"mail.transport",
		"mail.host",
		"mail.port",
		"mail.username",
		"mail.password",
		"mail.from",
		"mail.timeout",
		"upload.dir",
		"upload.public_prefix",
		"upload.max_bytes",
		"upload.jpeg_quality",
		"s3.region",
		"s3.bucket",
		"s3.access_key_id",
		"s3.secret_access_key",
		"s3.endpoint",
		"cloudinary.cloud_name",
		"cloudinary.api_key",
		"cloudinary.api_secret",
		"cloudinary.folder",
		"scheduler.sweep_spec",
	}); err != nil {
		return nil, err
	}

	// Names used by the storefront's original .env files.
	aliases := map[string]string{
		"jwt.access_secret":     "JWT_ACCESS_SECRET",
		"jwt.refresh_secret":    "JWT_REFRESH_SECRET",
		"app.front_url":         "FRONT_URL",
		"mail.host":             "EMAIL_HOST",
		"mail.username":         "EMAIL_USERNAME",
		"mail.password":         "EMAIL_PASSWORD",
		"s3.access_key_id":      "AWS_ACCESS_KEY_ID",
		"s3.secret_access_key":  "AWS_SECRET_ACCESS_KEY",
		"s3.region":             "AWS_REGION",
		"s3.bucket":             "AWS_S3_BUCKET",
		"cloudinary.cloud_name": "CLOUDINARY_CLOUD_NAME",
		"cloudinary.api_key":    "CLOUDINARY_API_KEY",
		"cloudinary.api_secret": "CLOUDINARY_API_SECRET",
	}
	for key, env := range aliases {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "SHOP_"+envKey, envKey, env); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.JWT.AccessSecret == "" {
		errs = append(errs, errors.New("jwt.access_secret is required"))
	}
	if c.JWT.RefreshSecret == "" {
		errs = append(errs, errors.New("jwt.refresh_secret is required"))
	}
	if c.JWT.AccessSecret != "" && c.JWT.AccessSecret == c.JWT.RefreshSecret {
		errs = append(errs, errors.New("jwt access and refresh secrets must differ"))
	}
	if c.Cookie.RefreshName == "" {
		errs = append(errs, errors.New("cookie.refresh_name is required"))
	}
	switch c.Mail.Transport {
	case "smtp", "kafka", "log":
	default:
		errs = append(errs, fmt.Errorf("mail.transport %q is not one of smtp, kafka, log", c.Mail.Transport))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "storefront-auth")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 5000)
	v.SetDefault("app.front_url", "http://localhost:3000")
	v.SetDefault("app.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "shop")
	v.SetDefault("postgres.password", "shop_password")
	v.SetDefault("postgres.database", "shop")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")
	v.SetDefault("postgres.migrate_on_start", true)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.rate_limit_prefix", "shop:rate-limit")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "shop")
	v.SetDefault("kafka.mail_topic", "mail.outbound")

	v.SetDefault("jwt.access_token_ttl", "30m")
	v.SetDefault("jwt.refresh_token_ttl", "720h")
	v.SetDefault("jwt.issuer", "storefront-auth")

	v.SetDefault("cookie.refresh_name", "refresh_token")
	v.SetDefault("cookie.path", "/auth")
	v.SetDefault("cookie.domain", "")
	v.SetDefault("cookie.secure", true)
	v.SetDefault("cookie.same_site", "strict")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	v.SetDefault("telemetry.service_name", "storefront-auth")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("rate_limit.short_window", "1s")
	v.SetDefault("rate_limit.long_window", "60s")
	v.SetDefault("rate_limit.refresh_short", 1)
	v.SetDefault("rate_limit.refresh_long", 2)
	v.SetDefault("rate_limit.default_short", 2)
	v.SetDefault("rate_limit.default_long", 5)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("security.fingerprint_key", "")
	v.SetDefault("security.otp_ttl", "10m")
	v.SetDefault("security.reset_token_ttl", "10m")
	v.SetDefault("security.min_password_score", 0)

	v.SetDefault("mail.transport", "log")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.from", "no-reply@storefront.local")
	v.SetDefault("mail.timeout", "15s")

	v.SetDefault("upload.dir", "./public/uploads/images")
	v.SetDefault("upload.public_prefix", "/uploads/images")
	v.SetDefault("upload.max_bytes", 5*1024*1024)
	v.SetDefault("upload.jpeg_quality", 60)

	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("cloudinary.folder", "avatars")

	v.SetDefault("scheduler.sweep_spec", "0 6 * * *")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "SHOP_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
