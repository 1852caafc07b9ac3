package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Zone.String() != "Asia/Jerusalem" {
		t.Errorf("expected zone Asia/Jerusalem, got %s", cfg.Zone)
	}
	if cfg.GenerateDaysAhead != 14 {
		t.Errorf("expected GenerateDaysAhead 14, got %d", cfg.GenerateDaysAhead)
	}
	if cfg.InlineDaysAhead != 7 {
		t.Errorf("expected InlineDaysAhead 7, got %d", cfg.InlineDaysAhead)
	}
	if cfg.DBPath != "chorly.db" {
		t.Errorf("expected DBPath chorly.db, got %s", cfg.DBPath)
	}
	if cfg.Addr() != ":8080" {
		t.Errorf("expected Addr :8080, got %s", cfg.Addr())
	}
	if cfg.LeaseTTL != 30*time.Second {
		t.Errorf("expected LeaseTTL 30s, got %v", cfg.LeaseTTL)
	}
	if cfg.JobInterval != time.Minute {
		t.Errorf("expected JobInterval 1m, got %v", cfg.JobInterval)
	}
	if cfg.ReminderHour != 7 {
		t.Errorf("expected ReminderHour 7, got %d", cfg.ReminderHour)
	}
	if cfg.SummaryWeekday != time.Sunday {
		t.Errorf("expected SummaryWeekday Sunday, got %v", cfg.SummaryWeekday)
	}
	if cfg.RedisAddr != "" || cfg.TenantID != "" {
		t.Errorf("expected empty redis addr and tenant, got %q %q", cfg.RedisAddr, cfg.TenantID)
	}
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	t.Setenv("CHORLY_TIMEZONE", "UTC")
	t.Setenv("CHORLY_GENERATE_DAYS_AHEAD", "21")
	t.Setenv("CHORLY_DB_PATH", "/tmp/x.db")
	t.Setenv("CHORLY_PORT", "9090")
	t.Setenv("CHORLY_LEASE_TTL", "1m")
	t.Setenv("CHORLY_REMINDER_HOUR", "6")
	t.Setenv("CHORLY_SUMMARY_WEEKDAY", "Fri")
	t.Setenv("CHORLY_LOG_FORMAT", "JSON")
	t.Setenv("CHORLY_APP_BASE_URL", "https://chorly.example/")
	t.Setenv("CHORLY_TENANT_ID", "t1")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Zone.String() != "UTC" {
		t.Errorf("expected zone UTC, got %s", cfg.Zone)
	}
	if cfg.GenerateDaysAhead != 21 {
		t.Errorf("expected GenerateDaysAhead 21, got %d", cfg.GenerateDaysAhead)
	}
	if cfg.DBPath != "/tmp/x.db" || cfg.Port != 9090 {
		t.Errorf("got DBPath %s, Port %d", cfg.DBPath, cfg.Port)
	}
	if cfg.LeaseTTL != time.Minute {
		t.Errorf("expected LeaseTTL 1m, got %v", cfg.LeaseTTL)
	}
	if cfg.ReminderHour != 6 || cfg.SummaryWeekday != time.Friday {
		t.Errorf("got ReminderHour %d, SummaryWeekday %v", cfg.ReminderHour, cfg.SummaryWeekday)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("expected LogFormat json, got %s", cfg.LogFormat)
	}
	if cfg.AppBaseURL != "https://chorly.example" {
		t.Errorf("expected trimmed base url, got %s", cfg.AppBaseURL)
	}
	if cfg.TenantID != "t1" {
		t.Errorf("expected TenantID t1, got %s", cfg.TenantID)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		env  string
		val  string
		want string
	}{
		{"CHORLY_TIMEZONE", "Mars/Olympus", "load time zone"},
		{"CHORLY_GENERATE_DAYS_AHEAD", "0", "generate_days_ahead"},
		{"CHORLY_INLINE_DAYS_AHEAD", "-1", "inline_days_ahead"},
		{"CHORLY_REMINDER_HOUR", "24", "reminder_hour"},
		{"CHORLY_SUMMARY_WEEKDAY", "someday", "summary_weekday"},
		{"CHORLY_LOG_FORMAT", "xml", "log_format"},
		{"CHORLY_PORT", "70000", "invalid port"},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv(tt.env, tt.val)
			_, err := Load("")
			if err == nil {
				t.Fatalf("expected error for %s=%s", tt.env, tt.val)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chorly.yaml")
	content := "timezone: UTC\ngenerate_days_ahead: 3\nredis_addr: localhost:6379\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CHORLY_GENERATE_DAYS_AHEAD", "5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("expected redis addr from file, got %q", cfg.RedisAddr)
	}
	if cfg.GenerateDaysAhead != 5 {
		t.Errorf("env should win over file, got %d", cfg.GenerateDaysAhead)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
