package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Logging struct {
		Directory  string `yaml:"directory"`
		Level      string `yaml:"level"`
		MaxSize    int    `yaml:"max_size"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logging"`
	Scheduler struct {
		PollInterval     string `yaml:"poll_interval"`
		Timezone         string `yaml:"timezone"`
		LateFire         *bool  `yaml:"late_fire"`
		ResetFiredOnBoot bool   `yaml:"reset_fired_on_boot"`
		Campaign         string `yaml:"campaign"`
		Concurrency      int    `yaml:"concurrency"`
		Heartbeat        string `yaml:"heartbeat"`
	} `yaml:"scheduler"`
	Schedule struct {
		Path   string `yaml:"path"`
		Source string `yaml:"source"`
	} `yaml:"schedule"`
	Transport struct {
		SendTimeout string   `yaml:"send_timeout"`
		Mailbox     int      `yaml:"mailbox"`
		AdminIDs    []string `yaml:"admin_ids"`
		AdminToken  string   `yaml:"admin_token"`
	} `yaml:"transport"`
	Media struct {
		Root string `yaml:"root"`
		S3   struct {
			Endpoint        string `yaml:"endpoint"`
			Region          string `yaml:"region"`
			AccessKeyID     string `yaml:"access_key_id"`
			SecretAccessKey string `yaml:"secret_access_key"`
			PathStyle       bool   `yaml:"path_style"`
			PresignTTL      string `yaml:"presign_ttl"`
		} `yaml:"s3"`
	} `yaml:"media"`
	Status struct {
		TTL   string `yaml:"ttl"`
		Limit int    `yaml:"limit"`
	} `yaml:"status"`
}

const (
	ScheduleSourceFile     = "file"
	ScheduleSourcePostgres = "postgres"
)

// Load reads YAML config from path and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Secrets and endpoints are usually injected through the environment (.env).
func (c *Config) applyEnv() {
	overrides := []struct {
		env    string
		target *string
	}{
		{"QUIZ_POSTGRES_URL", &c.Postgres.URL},
		{"QUIZ_REDIS_ADDR", &c.Redis.Addr},
		{"QUIZ_REDIS_PASSWORD", &c.Redis.Password},
		{"QUIZ_ADMIN_TOKEN", &c.Transport.AdminToken},
		{"QUIZ_S3_ACCESS_KEY_ID", &c.Media.S3.AccessKeyID},
		{"QUIZ_S3_SECRET_ACCESS_KEY", &c.Media.S3.SecretAccessKey},
		{"QUIZ_S3_ENDPOINT", &c.Media.S3.Endpoint},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}
	if v := os.Getenv("QUIZ_ADMIN_IDS"); v != "" {
		c.Transport.AdminIDs = splitList(v)
	}
}

func (c *Config) applyDefaults() {
	if c.Scheduler.Timezone == "" {
		c.Scheduler.Timezone = "Europe/Moscow"
	}
	if c.Scheduler.Campaign == "" {
		c.Scheduler.Campaign = "default"
	}
	if c.Scheduler.LateFire == nil {
		lateFire := true
		c.Scheduler.LateFire = &lateFire
	}
	if c.Schedule.Source == "" {
		c.Schedule.Source = ScheduleSourceFile
	}
	if c.Schedule.Path == "" && c.Schedule.Source == ScheduleSourceFile {
		c.Schedule.Path = "config/schedule.yaml"
	}
	if c.Media.Root == "" {
		c.Media.Root = "media"
	}
}

// Validate reports configuration that cannot start a campaign.
func (c Config) Validate() error {
	switch c.Schedule.Source {
	case ScheduleSourceFile:
	case ScheduleSourcePostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("schedule source %q requires postgres.url", c.Schedule.Source)
		}
	default:
		return fmt.Errorf("unknown schedule source %q", c.Schedule.Source)
	}
	if c.Scheduler.Concurrency < 0 {
		return fmt.Errorf("scheduler.concurrency must not be negative")
	}
	return nil
}

// LateFire reports whether elapsed stages are still broadcast.
func (c Config) LateFire() bool {
	return c.Scheduler.LateFire == nil || *c.Scheduler.LateFire
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
