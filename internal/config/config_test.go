package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: \"9090\"\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("unexpected port %q", cfg.Server.Port)
	}
	if cfg.Scheduler.Timezone != "Europe/Moscow" || cfg.Scheduler.Campaign != "default" {
		t.Fatalf("unexpected scheduler defaults %+v", cfg.Scheduler)
	}
	if !cfg.LateFire() {
		t.Fatalf("late fire must default to on")
	}
	if cfg.Schedule.Source != ScheduleSourceFile || cfg.Schedule.Path != "config/schedule.yaml" {
		t.Fatalf("unexpected schedule defaults %+v", cfg.Schedule)
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
redis:
  addr: localhost:6379
  ttl: 48h
scheduler:
  poll_interval: 500ms
  late_fire: false
  reset_fired_on_boot: true
  campaign: spring
transport:
  send_timeout: 3s
  admin_ids: ["42", "43"]
media:
  s3:
    endpoint: https://r2.example.com
    presign_ttl: 20m
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LateFire() || !cfg.Scheduler.ResetFiredOnBoot || cfg.Scheduler.Campaign != "spring" {
		t.Fatalf("unexpected scheduler %+v", cfg.Scheduler)
	}
	if got := TTLDuration(cfg.Scheduler.PollInterval, time.Second); got != 500*time.Millisecond {
		t.Fatalf("unexpected poll interval %s", got)
	}
	if got := TTLDuration(cfg.Media.S3.PresignTTL, time.Minute); got != 20*time.Minute {
		t.Fatalf("unexpected presign ttl %s", got)
	}
	if len(cfg.Transport.AdminIDs) != 2 || cfg.Transport.AdminIDs[1] != "43" {
		t.Fatalf("unexpected admins %v", cfg.Transport.AdminIDs)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("QUIZ_POSTGRES_URL", "postgres://env")
	t.Setenv("QUIZ_ADMIN_TOKEN", "secret")
	t.Setenv("QUIZ_ADMIN_IDS", " 1, 2 ,,3")

	cfg, err := Load(writeConfig(t, "postgres:\n  url: postgres://file\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Postgres.URL != "postgres://env" || cfg.Transport.AdminToken != "secret" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if len(cfg.Transport.AdminIDs) != 3 || cfg.Transport.AdminIDs[2] != "3" {
		t.Fatalf("unexpected admin ids %v", cfg.Transport.AdminIDs)
	}
}

func TestValidateScheduleSource(t *testing.T) {
	if _, err := Load(writeConfig(t, "schedule:\n  source: postgres\n")); err == nil {
		t.Fatalf("expected error without postgres url")
	}
	if _, err := Load(writeConfig(t, "schedule:\n  source: ftp\n")); err == nil {
		t.Fatalf("expected error for unknown source")
	}
}

func TestTTLDurationFallback(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %s", got)
	}
	if got := TTLDuration("soon", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback for garbage, got %s", got)
	}
}
