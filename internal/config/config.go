package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/domain/oauth"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/password"
)

// Config contains runtime configuration values.
type Config struct {
	Environment    string   `env:"APP_ENV" env-default:"development"`
	ServiceName    string   `env:"SERVICE_NAME" env-default:"storefront-auth"`
	HTTPPort       string   `env:"HTTP_PORT" env-default:"8080"`
	PublicURL      string   `env:"PUBLIC_URL" env-default:"http://localhost:8080"`
	TrustedProxies []string `env:"TRUSTED_PROXIES" env-default:"127.0.0.1,::1"`
	DatabaseURL    string   `env:"DATABASE_URL"`
	RedisAddr      string   `env:"REDIS_ADDR"`
	RedisPassword  string   `env:"REDIS_PASSWORD"`
	RedisDB        int      `env:"REDIS_DB" env-default:"0"`
	SnowflakeNode  int64    `env:"SNOWFLAKE_NODE" env-default:"1"`
	AdminEmail     string   `env:"ADMIN_EMAIL"`
	AdminPassword  string   `env:"ADMIN_PASSWORD"`

	Session   SessionConfig
	RateLimit RateLimitConfig
	Password  PasswordConfig
	SMTP      SMTPConfig
	Google    OAuthProviderConfig `env-prefix:"GOOGLE_"`
	GitHub    OAuthProviderConfig `env-prefix:"GITHUB_"`
	Log       LogConfig
	Telemetry TelemetryConfig
	CORS      CORSConfig
}

// SessionConfig controls session lifetime and the session cookie.
type SessionConfig struct {
	Lifetime      time.Duration `env:"SESSION_LIFETIME" env-default:"720h"`
	RenewalWindow time.Duration `env:"SESSION_RENEWAL_WINDOW" env-default:"360h"`
	CookieName    string        `env:"SESSION_COOKIE_NAME" env-default:"session"`
	CookieDomain  string        `env:"SESSION_COOKIE_DOMAIN"`
}

// RateLimitConfig holds the limits applied to each gated action.
type RateLimitConfig struct {
	GlobalCapacity    int           `env:"RATE_GLOBAL_CAPACITY" env-default:"100"`
	GlobalRefill      time.Duration `env:"RATE_GLOBAL_REFILL" env-default:"1s"`
	ReadCost          int           `env:"RATE_GLOBAL_READ_COST" env-default:"1"`
	WriteCost         int           `env:"RATE_GLOBAL_WRITE_COST" env-default:"3"`
	SignInIPCapacity  int           `env:"RATE_SIGNIN_IP_CAPACITY" env-default:"20"`
	SignInIPRefill    time.Duration `env:"RATE_SIGNIN_IP_REFILL" env-default:"1s"`
	SignUpIPCapacity  int           `env:"RATE_SIGNUP_IP_CAPACITY" env-default:"3"`
	SignUpIPRefill    time.Duration `env:"RATE_SIGNUP_IP_REFILL" env-default:"10s"`
	VerifyCapacity    int           `env:"RATE_VERIFY_CAPACITY" env-default:"5"`
	VerifyWindow      time.Duration `env:"RATE_VERIFY_WINDOW" env-default:"30m"`
	ResendCapacity    int           `env:"RATE_RESEND_CAPACITY" env-default:"3"`
	ResendWindow      time.Duration `env:"RATE_RESEND_WINDOW" env-default:"10m"`
	ThrottleSeconds   []int         `env:"SIGNIN_THROTTLE_SECONDS" env-default:"1,2,4,8,16,30,60,180,300"`
	ThrottleRetention time.Duration `env:"SIGNIN_THROTTLE_RETENTION" env-default:"24h"`
	SweepInterval     time.Duration `env:"RATE_SWEEP_INTERVAL" env-default:"1m"`
}

// ThrottleSequence converts ThrottleSeconds into durations.
func (c RateLimitConfig) ThrottleSequence() []time.Duration {
	seq := make([]time.Duration, 0, len(c.ThrottleSeconds))
	for _, s := range c.ThrottleSeconds {
		seq = append(seq, time.Duration(s)*time.Second)
	}
	return seq
}

// PasswordConfig controls the password strength policy.
type PasswordConfig struct {
	MinLength        int  `env:"PASSWORD_MIN_LENGTH" env-default:"8"`
	MaxLength        int  `env:"PASSWORD_MAX_LENGTH" env-default:"255"`
	RequireUppercase bool `env:"PASSWORD_REQUIRE_UPPERCASE" env-default:"true"`
	RequireLowercase bool `env:"PASSWORD_REQUIRE_LOWERCASE" env-default:"true"`
	RequireNumber    bool `env:"PASSWORD_REQUIRE_NUMBER" env-default:"true"`
	RequireSymbol    bool `env:"PASSWORD_REQUIRE_SYMBOL" env-default:"true"`
}

// Policy builds the password policy.
func (c PasswordConfig) Policy() password.Policy {
	return password.Policy{
		MinLength:        c.MinLength,
		MaxLength:        c.MaxLength,
		RequireUppercase: c.RequireUppercase,
		RequireLowercase: c.RequireLowercase,
		RequireNumber:    c.RequireNumber,
		RequireSymbol:    c.RequireSymbol,
	}
}

// SMTPConfig configures verification mail delivery. An empty host logs codes
// instead of sending them.
type SMTPConfig struct {
	Host           string        `env:"SMTP_HOST"`
	Port           int           `env:"SMTP_PORT" env-default:"587"`
	Username       string        `env:"SMTP_USERNAME"`
	Password       string        `env:"SMTP_PASSWORD"`
	From           string        `env:"SMTP_FROM" env-default:"Vikings Store <no-reply@localhost>"`
	TLS            bool          `env:"SMTP_TLS" env-default:"false"`
	MaxConns       int           `env:"SMTP_MAX_CONNS" env-default:"4"`
	IdleTimeout    time.Duration `env:"SMTP_IDLE_TIMEOUT" env-default:"15s"`
	PoolWait       time.Duration `env:"SMTP_POOL_WAIT" env-default:"5s"`
	SendsPerSecond float64       `env:"SMTP_SENDS_PER_SECOND" env-default:"5"`
}

// OAuthProviderConfig is read once per provider with a name prefix.
type OAuthProviderConfig struct {
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	IssuerURL    string   `env:"ISSUER_URL"`
	RedirectURL  string   `env:"REDIRECT_URL"`
	Scopes       []string `env:"SCOPES"`
}

// LogConfig controls zap and optional file rotation.
type LogConfig struct {
	Level      string `env:"LOG_LEVEL" env-default:"info"`
	File       string `env:"LOG_FILE"`
	MaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" env-default:"100"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS" env-default:"5"`
	MaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" env-default:"28"`
}

// TelemetryConfig configures the OTLP trace exporter.
type TelemetryConfig struct {
	Endpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure    bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" env-default:"true"`
	SampleRatio float64 `env:"OTEL_TRACES_SAMPLE_RATIO" env-default:"1"`
}

// CORSConfig lists the storefront origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" env-default:"http://localhost:3000"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS" env-default:"GET,POST,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS" env-default:"Content-Type,X-Request-ID"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" env-default:"true"`
}

// Load reads .env if present, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints cleanenv cannot express.
func (c Config) Validate() error {
	if c.Session.Lifetime <= 0 {
		return fmt.Errorf("SESSION_LIFETIME must be positive")
	}
	if c.Session.RenewalWindow <= 0 || c.Session.RenewalWindow > c.Session.Lifetime {
		return fmt.Errorf("SESSION_RENEWAL_WINDOW must be positive and not exceed SESSION_LIFETIME")
	}
	for _, s := range c.RateLimit.ThrottleSeconds {
		if s < 0 {
			return fmt.Errorf("SIGNIN_THROTTLE_SECONDS must not contain negative values")
		}
	}
	if c.SnowflakeNode < 0 || c.SnowflakeNode > 1023 {
		return fmt.Errorf("SNOWFLAKE_NODE must be between 0 and 1023")
	}
	if (c.AdminEmail == "") != (c.AdminPassword == "") {
		return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}
	if !c.IsDevelopment() && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required outside development")
	}
	return nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(c.Environment) {
	case "development", "dev", "local", "test":
		return true
	}
	return false
}

// OAuthProviders returns the configured identity providers.
func (c Config) OAuthProviders() []oauth.ProviderConfig {
	return []oauth.ProviderConfig{
		c.Google.provider("google", c.PublicURL),
		c.GitHub.provider("github", c.PublicURL),
	}
}

func (p OAuthProviderConfig) provider(name, publicURL string) oauth.ProviderConfig {
	redirect := p.RedirectURL
	if redirect == "" {
		redirect = strings.TrimRight(publicURL, "/") + "/auth/oauth/" + name + "/callback"
	}
	return oauth.ProviderConfig{
		Name:         name,
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		IssuerURL:    p.IssuerURL,
		RedirectURL:  redirect,
		Scopes:       append([]string(nil), p.Scopes...),
	}
}
