package config

import (
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv()
	if cfg.Addr != "127.0.0.1:8080" {
		t.Fatalf("addr default: %q", cfg.Addr)
	}
	if cfg.ProbeInterval != 15*time.Minute {
		t.Fatalf("probe interval default: %s", cfg.ProbeInterval)
	}
	if cfg.ProbeConcurrency != 8 {
		t.Fatalf("concurrency default: %d", cfg.ProbeConcurrency)
	}
	if !cfg.AutoMute {
		t.Fatal("auto-mute must default on")
	}
	if cfg.HealthChecksDisabled {
		t.Fatal("kill switch must default off")
	}
	if cfg.ContactURL != "https://github.com/mirrorwatch/mirrorwatch" {
		t.Fatalf("contact URL default: %q", cfg.ContactURL)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("PROBE_INTERVAL", "5m")
	t.Setenv("PROBE_CONCURRENCY", "3")
	t.Setenv("AUTO_MUTE", "false")
	t.Setenv("PROFILE_NAME", "@other")

	cfg := FromEnv()
	if cfg.ProbeInterval != 5*time.Minute {
		t.Fatalf("probe interval: %s", cfg.ProbeInterval)
	}
	if cfg.ProbeConcurrency != 3 {
		t.Fatalf("concurrency: %d", cfg.ProbeConcurrency)
	}
	if cfg.AutoMute {
		t.Fatal("auto-mute must be off")
	}
	if cfg.ProfileName != "@other" {
		t.Fatalf("profile name: %q", cfg.ProfileName)
	}
}

func TestFromEnv_BadValuesFallBack(t *testing.T) {
	t.Setenv("PROBE_INTERVAL", "soon")
	t.Setenv("PROBE_CONCURRENCY", "many")
	cfg := FromEnv()
	if cfg.ProbeInterval != 15*time.Minute || cfg.ProbeConcurrency != 8 {
		t.Fatalf("unparseable values must fall back to defaults: %s %d",
			cfg.ProbeInterval, cfg.ProbeConcurrency)
	}
}

func TestValidate_Rejections(t *testing.T) {
	base := FromEnv()

	cases := []struct {
		name  string
		wreck func(*Config)
	}{
		{"zero interval", func(c *Config) { c.ProbeInterval = 0 }},
		{"zero concurrency", func(c *Config) { c.ProbeConcurrency = 0 }},
		{"zero retention", func(c *Config) { c.ErrorRetentionPerHost = 0 }},
		{"bad path", func(c *Config) { c.ProfilePath = "jack" }},
		{"empty registry", func(c *Config) { c.RegistryURL = "" }},
		{"empty contact", func(c *Config) { c.ContactURL = "" }},
		{"empty git url", func(c *Config) { c.UpstreamGitURL = "" }},
		{"empty branch", func(c *Config) { c.UpstreamGitBranch = "" }},
		{"bad rss regex", func(c *Config) { c.RSSContent = "(" }},
	}
	for _, tc := range cases {
		cfg := base
		tc.wreck(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: want validation error", tc.name)
		}
	}
}
