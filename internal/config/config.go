package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/BurntSushi/toml"
	"github.com/julo/repayment-service/internal/models"
)

// Config holds application configuration
type Config struct {
	Port        string `toml:"port"`
	DBConn      string `toml:"db_conn"`
	LogLevel    string `toml:"log_level"`
	AutoMigrate bool   `toml:"auto_migrate"`

	JWTSecret      string `toml:"jwt_secret"`
	CallbackSecret string `toml:"callback_secret"`

	Repayment RepaymentConfig `toml:"repayment"`
	Notify    NotifyConfig    `toml:"notify"`
	Sweep     SweepConfig     `toml:"sweep"`
}

// RepaymentConfig controls allocation
type RepaymentConfig struct {
	GracePeriodDays    int  `toml:"grace_period_days"`
	MaxResolveAttempts int  `toml:"max_resolve_attempts"`
	Cascade            bool `toml:"cascade"`
	// Timezone is the IANA zone due dates are written in. A payment's paid
	// status is judged by its calendar day in this zone.
	Timezone string `toml:"timezone"`
	// AllocationOrder lists components first-paid first
	AllocationOrder []string            `toml:"allocation_order"`
	ProductOrders   map[string][]string `toml:"product_allocation_orders"`
}

// NotifyConfig holds the post-commit notification sinks. An empty URL or host
// disables the sink.
type NotifyConfig struct {
	Timeout        Duration `toml:"timeout"`
	PushURL        string   `toml:"push_url"`
	MoengageURL    string   `toml:"moengage_url"`
	MoengageAppID  string   `toml:"moengage_app_id"`
	MoengageAPIKey string   `toml:"moengage_api_key"`
	SMTPHost       string   `toml:"smtp_host"`
	SMTPPort       string   `toml:"smtp_port"`
	SMTPUsername   string   `toml:"smtp_username"`
	SMTPPassword   string   `toml:"smtp_password"`
	SenderEmail    string   `toml:"sender_email"`
}

// SweepConfig drives the unprocessed payback sweep
type SweepConfig struct {
	Schedule   string   `toml:"schedule"`
	StaleAfter Duration `toml:"stale_after"`
	Limit      int      `toml:"limit"`
}

// Duration reads "90s" or "2h" style values from TOML
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func defaults() *Config {
	return &Config{
		Port:     "8080",
		DBConn:   "host=localhost port=5436 user=test password=test dbname=repayment sslmode=disable",
		LogLevel: "INFO",
		Repayment: RepaymentConfig{
			GracePeriodDays:    5,
			MaxResolveAttempts: 3,
			Cascade:            true,
			Timezone:           "Asia/Jakarta",
			AllocationOrder:    []string{"late_fee", "interest", "principal"},
		},
		Notify: NotifyConfig{
			Timeout:  Duration{10 * time.Second},
			SMTPPort: "587",
		},
		Sweep: SweepConfig{
			Schedule:   "*/30 * * * *",
			StaleAfter: Duration{2 * time.Hour},
			Limit:      500,
		},
	}
}

// NewConfig loads configuration from an optional TOML file named by
// CONFIG_FILE, then from environment variables, which take precedence
func NewConfig() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DBConn = getEnv("DB_CONN", cfg.DBConn)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.CallbackSecret = getEnv("CALLBACK_SECRET", cfg.CallbackSecret)
	cfg.Notify.PushURL = getEnv("PUSH_URL", cfg.Notify.PushURL)
	cfg.Notify.MoengageURL = getEnv("MOENGAGE_URL", cfg.Notify.MoengageURL)
	cfg.Notify.MoengageAppID = getEnv("MOENGAGE_APP_ID", cfg.Notify.MoengageAppID)
	cfg.Notify.MoengageAPIKey = getEnv("MOENGAGE_API_KEY", cfg.Notify.MoengageAPIKey)
	cfg.Notify.SMTPHost = getEnv("SMTP_HOST", cfg.Notify.SMTPHost)
	cfg.Notify.SMTPPort = getEnv("SMTP_PORT", cfg.Notify.SMTPPort)
	cfg.Notify.SMTPUsername = getEnv("SMTP_USERNAME", cfg.Notify.SMTPUsername)
	cfg.Notify.SMTPPassword = getEnv("SMTP_PASSWORD", cfg.Notify.SMTPPassword)
	cfg.Notify.SenderEmail = getEnv("SENDER_EMAIL", cfg.Notify.SenderEmail)
	cfg.Repayment.Timezone = getEnv("REPAYMENT_TIMEZONE", cfg.Repayment.Timezone)
	cfg.Sweep.Schedule = getEnv("SWEEP_SCHEDULE", cfg.Sweep.Schedule)

	var err error
	if cfg.AutoMigrate, err = getEnvBool("AUTO_MIGRATE", cfg.AutoMigrate); err != nil {
		return nil, err
	}
	if cfg.Repayment.Cascade, err = getEnvBool("REPAYMENT_CASCADE", cfg.Repayment.Cascade); err != nil {
		return nil, err
	}
	if cfg.Repayment.GracePeriodDays, err = getEnvInt("GRACE_PERIOD_DAYS", cfg.Repayment.GracePeriodDays); err != nil {
		return nil, err
	}
	if cfg.Repayment.MaxResolveAttempts, err = getEnvInt("MAX_RESOLVE_ATTEMPTS", cfg.Repayment.MaxResolveAttempts); err != nil {
		return nil, err
	}
	if cfg.Sweep.Limit, err = getEnvInt("SWEEP_LIMIT", cfg.Sweep.Limit); err != nil {
		return nil, err
	}
	if v, ok := os.LookupEnv("ALLOCATION_ORDER"); ok {
		cfg.Repayment.AllocationOrder = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv("SWEEP_STALE_AFTER"); ok {
		if cfg.Sweep.StaleAfter.Duration, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("SWEEP_STALE_AFTER: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required values
func (c *Config) Validate() error {
	if c.DBConn == "" {
		return fmt.Errorf("DB_CONN is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.CallbackSecret == "" {
		return fmt.Errorf("CALLBACK_SECRET is required")
	}
	if c.Repayment.MaxResolveAttempts < 1 {
		return fmt.Errorf("MAX_RESOLVE_ATTEMPTS must be at least 1")
	}
	if c.Repayment.GracePeriodDays < 0 {
		return fmt.Errorf("GRACE_PERIOD_DAYS must not be negative")
	}
	if _, err := c.Repayment.Location(); err != nil {
		return fmt.Errorf("REPAYMENT_TIMEZONE: %w", err)
	}
	if c.Sweep.Limit < 1 {
		return fmt.Errorf("SWEEP_LIMIT must be at least 1")
	}
	if _, err := ParseAllocationOrder(c.Repayment.AllocationOrder); err != nil {
		return fmt.Errorf("allocation order: %w", err)
	}
	for product, order := range c.Repayment.ProductOrders {
		if _, err := ParseAllocationOrder(order); err != nil {
			return fmt.Errorf("allocation order for %s: %w", product, err)
		}
	}
	return nil
}

// Location returns the zone due dates are written in. An empty Timezone means UTC.
func (r RepaymentConfig) Location() (*time.Location, error) {
	if r.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(r.Timezone)
}

// AllocationOrders returns the default order and the per-product overrides
func (c *Config) AllocationOrders() ([]models.Component, map[string][]models.Component) {
	def, _ := ParseAllocationOrder(c.Repayment.AllocationOrder)
	byProduct := make(map[string][]models.Component, len(c.Repayment.ProductOrders))
	for product, order := range c.Repayment.ProductOrders {
		byProduct[product], _ = ParseAllocationOrder(order)
	}
	return def, byProduct
}

// ParseAllocationOrder requires each of late_fee, interest and principal exactly once
func ParseAllocationOrder(names []string) ([]models.Component, error) {
	seen := map[models.Component]bool{}
	out := make([]models.Component, 0, len(names))
	for _, n := range names {
		c := models.Component(strings.TrimSpace(strings.ToLower(n)))
		switch c {
		case models.ComponentLateFee, models.ComponentInterest, models.ComponentPrincipal:
		default:
			return nil, fmt.Errorf("unknown component %q", n)
		}
		if seen[c] {
			return nil, fmt.Errorf("component %q listed twice", c)
		}
		seen[c] = true
		out = append(out, c)
	}
	if len(out) != 3 {
		return nil, fmt.Errorf("expected 3 components, got %d", len(out))
	}
	return out, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getEnvInt(key string, defaultVal int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
