package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	DriverFile  = "file"
	DriverMongo = "mongo"
)

type Config struct {
	Port   string `mapstructure:"PORT"`
	Env    string `mapstructure:"ENV"`
	APIURL string `mapstructure:"BASE_URL"`

	JWTSecret      string `mapstructure:"JWT_SECRET"`
	GoogleClientID string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleJWKSURL  string `mapstructure:"GOOGLE_JWKS_URL"`

	StoreDriver   string `mapstructure:"STORE_DRIVER"`
	DataDir       string `mapstructure:"DATA_DIR"`
	MongoURI      string `mapstructure:"MONGO_URI"`
	MongoDatabase string `mapstructure:"MONGO_DATABASE"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUser     string `mapstructure:"SMTP_USER"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	MailFrom     string `mapstructure:"MAIL_FROM"`

	ClinicEmail   string `mapstructure:"CLINIC_EMAIL"`
	ClinicName    string `mapstructure:"CLINIC_NAME"`
	DefaultDoctor string `mapstructure:"DEFAULT_DOCTOR"`

	// TrustedProxies may set X-Forwarded-For. Empty means the peer address is
	// the client address.
	TrustedProxies []string `mapstructure:"-"`
	CORSOrigins    []string `mapstructure:"-"`

	ReminderSchedule string  `mapstructure:"REMINDER_SCHEDULE"`
	RateLimitRPS     float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int     `mapstructure:"RATE_LIMIT_BURST"`
}

var keys = []string{
	"PORT", "ENV", "BASE_URL",
	"JWT_SECRET", "GOOGLE_CLIENT_ID", "GOOGLE_JWKS_URL",
	"STORE_DRIVER", "DATA_DIR", "MONGO_URI", "MONGO_DATABASE",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASSWORD", "MAIL_FROM",
	"CLINIC_EMAIL", "CLINIC_NAME", "DEFAULT_DOCTOR",
	"CORS_ORIGINS", "TRUSTED_PROXIES", "REMINDER_SCHEDULE", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
}

// Load reads configuration from the process environment. Call
// godotenv.Load first if a .env file should be honoured.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "5000")
	v.SetDefault("ENV", "development")
	v.SetDefault("BASE_URL", "http://localhost:5000")
	v.SetDefault("STORE_DRIVER", DriverFile)
	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("MONGO_DATABASE", "docclinic")
	v.SetDefault("SMTP_HOST", "smtp.gmail.com")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("CLINIC_NAME", "DocClinic")
	v.SetDefault("DEFAULT_DOCTOR", "Dr. Rajesh Sharma")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173")
	v.SetDefault("REMINDER_SCHEDULE", "0 8 * * *")
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.TrustedProxies = splitList(v.GetString("TRUSTED_PROXIES"))
	if cfg.MailFrom == "" {
		cfg.MailFrom = cfg.SMTPUser
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.StoreDriver {
	case DriverFile:
	case DriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when STORE_DRIVER is %q", DriverMongo)
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverFile, DriverMongo, c.StoreDriver)
	}
	return nil
}

// IsDev reports whether ENV is development. Anything else runs gin in
// release mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// MailConfigured reports whether outbound email can be attempted.
func (c *Config) MailConfigured() bool {
	return c.SMTPHost != "" && c.SMTPUser != "" && c.SMTPPassword != ""
}
