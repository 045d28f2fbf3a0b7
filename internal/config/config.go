package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Port               string
	BaseURL            string
	Environment        string
	DatabaseURL        string
	RedisURL           string
	MigrationsDir      string
	Log                LogConfig
	JWTSecret          string
	AdminElevationCode string
	SessionTTL         time.Duration
	VerifyOTPTTL       time.Duration
	ResetOTPTTL        time.Duration
	TrustedProxies     []string
	AuditMaxLen        int64
	Email              EmailConfig
}

type LogConfig struct {
	File   string
	Format string
	Level  string
}

type EmailConfig struct {
	Provider string
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Secure   bool
	Timeout  time.Duration

	MailgunDomain  string
	MailgunAPIKey  string
	MailgunAPIBase string

	SendGridAPIKey string
}

func (e EmailConfig) Enabled() bool {
	return e.Host != "" && e.Port != 0 && e.From != ""
}

func (c Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// binding maps an environment variable onto a config key. Later names in
// env win over earlier ones.
type binding struct {
	key string
	env []string
}

var bindings = []binding{
	{key: "port", env: []string{"PORT"}},
	{key: "base_url", env: []string{"APP_BASE_URL"}},
	{key: "environment", env: []string{"NODE_ENV", "APP_ENV"}},
	{key: "database_url", env: []string{"DATABASE_URL"}},
	{key: "redis_url", env: []string{"REDIS_URL"}},
	{key: "migrations_dir", env: []string{"MIGRATIONS_DIR"}},
	{key: "log.file", env: []string{"LOG_FILE"}},
	{key: "log.format", env: []string{"LOG_FORMAT"}},
	{key: "log.level", env: []string{"LOG_LEVEL"}},
	{key: "jwt_secret", env: []string{"JWT_SECRET"}},
	{key: "admin_elevation_code", env: []string{"ADMIN_ELEVATION_CODE"}},
	{key: "session_ttl", env: []string{"SESSION_TTL"}},
	{key: "verify_otp_ttl", env: []string{"VERIFY_OTP_TTL"}},
	{key: "reset_otp_ttl", env: []string{"RESET_OTP_TTL"}},
	{key: "trusted_proxies", env: []string{"TRUSTED_PROXIES"}},
	{key: "audit_max_len", env: []string{"AUDIT_MAX_LEN"}},
	{key: "email.provider", env: []string{"EMAIL_PROVIDER"}},
	{key: "email.host", env: []string{"EMAIL_SERVER_HOST"}},
	{key: "email.port", env: []string{"EMAIL_SERVER_PORT"}},
	{key: "email.username", env: []string{"EMAIL_SERVER_USER"}},
	{key: "email.password", env: []string{"EMAIL_SERVER_PASSWORD"}},
	{key: "email.from", env: []string{"EMAIL_FROM"}},
	{key: "email.secure", env: []string{"EMAIL_SERVER_SECURE"}},
	{key: "email.timeout", env: []string{"EMAIL_TIMEOUT"}},
	{key: "email.mailgun_domain", env: []string{"MAILGUN_DOMAIN"}},
	{key: "email.mailgun_api_key", env: []string{"MAILGUN_API_KEY"}},
	{key: "email.mailgun_api_base", env: []string{"MAILGUN_API_BASE"}},
	{key: "email.sendgrid_api_key", env: []string{"SENDGRID_API_KEY"}},
}

// Options selects the optional sources layered over the defaults:
// YAML file, then environment, then flags that were set explicitly.
// Flag names use dashes ("reset-otp-ttl", "log-level").
type Options struct {
	File   string
	Flags  *pflag.FlagSet
	Lookup func(string) (string, bool)
}

// Load reads configuration from the process environment only.
func Load() (Config, error) {
	return LoadWith(Options{})
}

func LoadWith(opts Options) (Config, error) {
	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	k := koanf.New(".")
	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", opts.File, err)
		}
	}

	for _, b := range bindings {
		for _, name := range b.env {
			if val, ok := lookup(name); ok && clean(val) != "" {
				if err := k.Set(b.key, clean(val)); err != nil {
					return Config{}, err
				}
			}
		}
	}

	if opts.Flags != nil {
		changed := func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return flagKey(f.Name), posflag.FlagVal(opts.Flags, f)
		}
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, changed), nil); err != nil {
			return Config{}, fmt.Errorf("load flags: %w", err)
		}
	}

	return build(k)
}

func build(k *koanf.Koanf) (Config, error) {
	var errs []error
	dur := func(key string, def time.Duration) time.Duration {
		raw := k.String(key)
		if raw == "" {
			return def
		}
		d, err := parseDuration(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return def
		}
		return d
	}

	emailPort, err := strconv.Atoi(getDefault(k, "email.port", "587"))
	if err != nil {
		emailPort = 587
	}
	auditMaxLen, err := strconv.ParseInt(getDefault(k, "audit_max_len", "500"), 10, 64)
	if err != nil {
		auditMaxLen = 500
	}

	cfg := Config{
		Port:               getDefault(k, "port", "8080"),
		BaseURL:            getDefault(k, "base_url", "http://localhost:3000"),
		Environment:        strings.ToLower(getDefault(k, "environment", EnvDevelopment)),
		DatabaseURL:        k.String("database_url"),
		RedisURL:           getDefault(k, "redis_url", "redis://localhost:6379"),
		MigrationsDir:      k.String("migrations_dir"),
		JWTSecret:          k.String("jwt_secret"),
		AdminElevationCode: k.String("admin_elevation_code"),
		SessionTTL:         dur("session_ttl", 7*24*time.Hour),
		VerifyOTPTTL:       dur("verify_otp_ttl", 24*time.Hour),
		ResetOTPTTL:        dur("reset_otp_ttl", 24*time.Hour),
		TrustedProxies:     getList(k, "trusted_proxies"),
		AuditMaxLen:        auditMaxLen,
		Log: LogConfig{
			File:   getDefault(k, "log.file", "logs/server.log"),
			Format: strings.ToLower(getDefault(k, "log.format", "json")),
			Level:  strings.ToLower(getDefault(k, "log.level", "info")),
		},
		Email: EmailConfig{
			Provider:       strings.ToLower(getDefault(k, "email.provider", "smtp")),
			Host:           k.String("email.host"),
			Port:           emailPort,
			Username:       k.String("email.username"),
			Password:       k.String("email.password"),
			From:           k.String("email.from"),
			Secure:         parseBool(k.String("email.secure")),
			Timeout:        dur("email.timeout", 5*time.Second),
			MailgunDomain:  k.String("email.mailgun_domain"),
			MailgunAPIKey:  k.String("email.mailgun_api_key"),
			MailgunAPIBase: k.String("email.mailgun_api_base"),
			SendGridAPIKey: k.String("email.sendgrid_api_key"),
		},
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.SessionTTL <= 0 || c.VerifyOTPTTL <= 0 || c.ResetOTPTTL <= 0 {
		errs = append(errs, errors.New("ttl settings must be positive"))
	}
	switch c.Email.Provider {
	case "smtp", "mailgun", "sendgrid":
	case "log":
		if c.IsProduction() {
			errs = append(errs, errors.New("EMAIL_PROVIDER=log is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EMAIL_PROVIDER %q", c.Email.Provider))
	}
	return errors.Join(errs...)
}

// flagKey maps a flag name onto its config key: "log-level" is "log.level",
// "reset-otp-ttl" is "reset_otp_ttl".
func flagKey(name string) string {
	for _, section := range []string{"log", "email"} {
		if rest, ok := strings.CutPrefix(name, section+"-"); ok {
			return section + "." + strings.ReplaceAll(rest, "-", "_")
		}
	}
	return strings.ReplaceAll(name, "-", "_")
}

func getDefault(k *koanf.Koanf, key, def string) string {
	if val := k.String(key); val != "" {
		return val
	}
	return def
}

func getList(k *koanf.Koanf, key string) []string {
	if raw, ok := k.Get(key).(string); ok {
		return parseList(raw)
	}
	return k.Strings(key)
}

func clean(val string) string {
	return strings.Trim(val, "\"' \t\r\n")
}

func parseBool(val string) bool {
	if val == "" {
		return false
	}
	val = strings.ToLower(strings.Trim(val, "\"' "))
	return val == "1" || val == "true" || val == "yes"
}

func parseList(val string) []string {
	parts := strings.Split(val, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseDuration accepts Go durations, a day suffix ("7d") and bare seconds.
func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	return d, nil
}
