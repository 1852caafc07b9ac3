// Package config loads chorly settings from CHORLY_* environment variables,
// an optional config file and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"

	"github.com/dukerupert/chorly/internal/localtime"
)

const EnvPrefix = "CHORLY"

// Config holds all configuration values for the application.
type Config struct {
	Timezone string
	Zone     localtime.Zone

	// Batch generation horizon in local days after today.
	GenerateDaysAhead int
	// Inline materialization after create/update covers today plus this
	// many days minus one.
	InlineDaysAhead int

	DBPath    string
	Port      int
	LogLevel  string
	LogFormat string

	// Empty disables the per-chore lease.
	RedisAddr string
	LeaseTTL  time.Duration

	JobInterval    time.Duration
	ReminderHour   int
	SummaryWeekday time.Weekday

	PostmarkToken string
	MailFrom      string
	AppBaseURL    string

	// Restricts batch jobs to one tenant when set.
	TenantID string
}

// New returns a viper instance with defaults and environment binding set
// up. Callers may bind flags on it before calling FromViper.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("timezone", "Asia/Jerusalem")
	v.SetDefault("generate_days_ahead", 14)
	v.SetDefault("inline_days_ahead", 7)
	v.SetDefault("db_path", "chorly.db")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("redis_addr", "")
	v.SetDefault("lease_ttl", 30*time.Second)
	v.SetDefault("job_interval", time.Minute)
	v.SetDefault("reminder_hour", 7)
	v.SetDefault("summary_weekday", "sunday")
	v.SetDefault("postmark_token", "")
	v.SetDefault("mail_from", "chorly@localhost")
	v.SetDefault("app_base_url", "http://localhost:8080")
	v.SetDefault("tenant_id", "")

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return v
}

// Load reads the environment and, when configFile is non-empty, that file.
func Load(configFile string) (*Config, error) {
	v := New()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper validates and converts the settings held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Timezone:          v.GetString("timezone"),
		GenerateDaysAhead: v.GetInt("generate_days_ahead"),
		InlineDaysAhead:   v.GetInt("inline_days_ahead"),
		DBPath:            v.GetString("db_path"),
		Port:              v.GetInt("port"),
		LogLevel:          strings.ToLower(v.GetString("log_level")),
		LogFormat:         strings.ToLower(v.GetString("log_format")),
		RedisAddr:         v.GetString("redis_addr"),
		LeaseTTL:          v.GetDuration("lease_ttl"),
		JobInterval:       v.GetDuration("job_interval"),
		ReminderHour:      v.GetInt("reminder_hour"),
		PostmarkToken:     v.GetString("postmark_token"),
		MailFrom:          v.GetString("mail_from"),
		AppBaseURL:        strings.TrimRight(v.GetString("app_base_url"), "/"),
		TenantID:          v.GetString("tenant_id"),
	}

	var errs []error
	zone, err := localtime.Load(cfg.Timezone)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.Zone = zone

	if cfg.GenerateDaysAhead < 1 {
		errs = append(errs, fmt.Errorf("generate_days_ahead must be positive, got %d", cfg.GenerateDaysAhead))
	}
	if cfg.InlineDaysAhead < 1 {
		errs = append(errs, fmt.Errorf("inline_days_ahead must be positive, got %d", cfg.InlineDaysAhead))
	}
	if cfg.DBPath == "" {
		errs = append(errs, errors.New("db_path is required (env: CHORLY_DB_PATH)"))
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", cfg.Port))
	}
	if cfg.LeaseTTL <= 0 {
		errs = append(errs, fmt.Errorf("lease_ttl must be positive, got %v", cfg.LeaseTTL))
	}
	if cfg.JobInterval <= 0 {
		errs = append(errs, fmt.Errorf("job_interval must be positive, got %v", cfg.JobInterval))
	}
	if cfg.ReminderHour < 0 || cfg.ReminderHour > 23 {
		errs = append(errs, fmt.Errorf("reminder_hour must be within 0..23, got %d", cfg.ReminderHour))
	}
	if cfg.SummaryWeekday, err = parseWeekday(v.GetString("summary_weekday")); err != nil {
		errs = append(errs, err)
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", cfg.LogFormat))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func parseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(s, d.String()) || strings.EqualFold(s, d.String()[:3]) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid summary_weekday %q", s)
}
