package core

import (
	"fmt"
	"time"
)

// weightSumTolerance absorbs float rounding when validating that the title and
// artist weights sum to one.
const weightSumTolerance = 1e-6

type Config struct {
	Spotify  SpotifyConfig
	Search   SearchConfig
	Match    MatchConfig
	Pipeline PipelineConfig
	Server   ServerConfig
	Log      LogConfig
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TokenPath    string
}

// SearchConfig holds the outbound request discipline for the catalog client.
type SearchConfig struct {
	// Limit is the number of candidates requested per song.
	Limit int
	// MaxRetries caps retries per logical call; total requests issued for
	// one call never exceed MaxRetries+1.
	MaxRetries int
	// RetryBaseDelay and RetryMaxDelay bound the exponential backoff.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	// CallBudget is the total wall-clock budget per logical call, retries
	// and backoff sleeps included.
	CallBudget time.Duration
}

type MatchConfig struct {
	TitleWeight            float64
	ArtistWeight           float64
	BracketWeight          float64
	KeywordBonus           float64
	MatchThreshold         float64
	LowConfidenceThreshold float64
	ArtistExactMatchFloor  float64
	CacheEnabled           bool
	CacheSize              int
}

type PipelineConfig struct {
	// Concurrency bounds both the worker count and the number of in-flight
	// catalog requests.
	Concurrency int
	// BatchSize is the parser fan-out hint; the input queue is sized at
	// twice this value.
	BatchSize int
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// ThrottlePerMinute limits API requests per client per minute.
	ThrottlePerMinute int
}

type LogConfig struct {
	Level  string
	Format string
}

func DefaultConfig() *Config {
	return &Config{
		Spotify: SpotifyConfig{
			RedirectURL: "http://localhost:8080/callback",
			TokenPath:   ".cache",
		},
		Search: SearchConfig{
			Limit:          3,
			MaxRetries:     12,
			RetryBaseDelay: 3 * time.Second,
			RetryMaxDelay:  60 * time.Second,
			CallBudget:     100 * time.Second,
		},
		Match: MatchConfig{
			TitleWeight:            0.7,
			ArtistWeight:           0.3,
			BracketWeight:          0.3,
			KeywordBonus:           5.0,
			MatchThreshold:         75.0,
			LowConfidenceThreshold: 60.0,
			ArtistExactMatchFloor:  80.0,
			CacheEnabled:           true,
			CacheSize:              4096,
		},
		Pipeline: PipelineConfig{
			Concurrency: 5,
			BatchSize:   20,
		},
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      30 * time.Second,
			ThrottlePerMinute: 30,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate fails fast on invalid tunables so a misconfigured process never
// starts the pipeline.
func (c *Config) Validate() error {
	if c.Pipeline.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Pipeline.Concurrency)
	}
	if c.Pipeline.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1, got %d", c.Pipeline.BatchSize)
	}
	if c.Search.Limit < 1 {
		return fmt.Errorf("search limit must be at least 1, got %d", c.Search.Limit)
	}
	if c.Search.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", c.Search.MaxRetries)
	}
	if c.Search.RetryBaseDelay <= 0 || c.Search.RetryMaxDelay <= 0 {
		return fmt.Errorf("retry delays must be positive")
	}
	if c.Search.RetryBaseDelay > c.Search.RetryMaxDelay {
		return fmt.Errorf("retry base delay %v exceeds max delay %v",
			c.Search.RetryBaseDelay, c.Search.RetryMaxDelay)
	}
	if c.Search.CallBudget <= 0 {
		return fmt.Errorf("call budget must be positive, got %v", c.Search.CallBudget)
	}

	m := &c.Match
	if diff := m.TitleWeight + m.ArtistWeight - 1.0; diff > weightSumTolerance || diff < -weightSumTolerance {
		return fmt.Errorf("title weight %v and artist weight %v must sum to 1",
			m.TitleWeight, m.ArtistWeight)
	}
	for name, w := range map[string]float64{
		"title weight":   m.TitleWeight,
		"artist weight":  m.ArtistWeight,
		"bracket weight": m.BracketWeight,
	} {
		if w < 0 || w > 1 {
			return fmt.Errorf("%s must be in [0, 1], got %v", name, w)
		}
	}
	for name, v := range map[string]float64{
		"match threshold":          m.MatchThreshold,
		"low confidence threshold": m.LowConfidenceThreshold,
		"artist exact match floor": m.ArtistExactMatchFloor,
		"keyword bonus":            m.KeywordBonus,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("%s must be in [0, 100], got %v", name, v)
		}
	}
	if m.LowConfidenceThreshold > m.MatchThreshold {
		return fmt.Errorf("low confidence threshold %v exceeds match threshold %v",
			m.LowConfidenceThreshold, m.MatchThreshold)
	}
	if m.CacheEnabled && m.CacheSize < 1 {
		return fmt.Errorf("cache size must be at least 1 when the cache is enabled, got %d", m.CacheSize)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}

	return nil
}
