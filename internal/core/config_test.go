package core

import (
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() error = %v", err)
	}
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Search.Limit != 3 {
		t.Errorf("Search.Limit = %d, expected 3", cfg.Search.Limit)
	}
	if cfg.Search.MaxRetries != 12 {
		t.Errorf("Search.MaxRetries = %d, expected 12", cfg.Search.MaxRetries)
	}
	if cfg.Search.CallBudget != 100*time.Second {
		t.Errorf("Search.CallBudget = %v, expected 100s", cfg.Search.CallBudget)
	}
	if cfg.Match.MatchThreshold != 75.0 || cfg.Match.LowConfidenceThreshold != 60.0 {
		t.Errorf("thresholds = %v/%v, expected 75/60",
			cfg.Match.MatchThreshold, cfg.Match.LowConfidenceThreshold)
	}
	if cfg.Pipeline.Concurrency != 5 || cfg.Pipeline.BatchSize != 20 {
		t.Errorf("pipeline = %d/%d, expected 5/20",
			cfg.Pipeline.Concurrency, cfg.Pipeline.BatchSize)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero concurrency", func(c *Config) { c.Pipeline.Concurrency = 0 }},
		{"negative concurrency", func(c *Config) { c.Pipeline.Concurrency = -1 }},
		{"zero batch size", func(c *Config) { c.Pipeline.BatchSize = 0 }},
		{"zero search limit", func(c *Config) { c.Search.Limit = 0 }},
		{"negative retries", func(c *Config) { c.Search.MaxRetries = -1 }},
		{"zero base delay", func(c *Config) { c.Search.RetryBaseDelay = 0 }},
		{"base above max delay", func(c *Config) {
			c.Search.RetryBaseDelay = 2 * time.Minute
		}},
		{"zero call budget", func(c *Config) { c.Search.CallBudget = 0 }},
		{"weights not summing to one", func(c *Config) {
			c.Match.TitleWeight = 0.7
			c.Match.ArtistWeight = 0.5
		}},
		{"weight out of range", func(c *Config) {
			c.Match.TitleWeight = 1.5
			c.Match.ArtistWeight = -0.5
		}},
		{"threshold above 100", func(c *Config) { c.Match.MatchThreshold = 150 }},
		{"low threshold above match threshold", func(c *Config) {
			c.Match.LowConfidenceThreshold = 80
			c.Match.MatchThreshold = 75
		}},
		{"cache enabled without size", func(c *Config) {
			c.Match.CacheEnabled = true
			c.Match.CacheSize = 0
		}},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"unknown log level", func(c *Config) { c.Log.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, expected an error")
			}
		})
	}
}

func TestValidateAccepts(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"defaults", func(*Config) {}},
		{"cache disabled ignores size", func(c *Config) {
			c.Match.CacheEnabled = false
			c.Match.CacheSize = 0
		}},
		{"zero retries", func(c *Config) { c.Search.MaxRetries = 0 }},
		{"equal thresholds", func(c *Config) {
			c.Match.LowConfidenceThreshold = 75
			c.Match.MatchThreshold = 75
		}},
		{"warning alias", func(c *Config) { c.Log.Level = "warning" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate() error = %v, expected nil", err)
			}
		})
	}
}
