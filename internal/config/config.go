// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Network  NetworkConfig  `mapstructure:"network" yaml:"network"`
	Scenario ScenarioConfig `mapstructure:"scenario" yaml:"scenario"`
	Detect   DetectConfig   `mapstructure:"detect" yaml:"detect"`
	Fix      FixConfig      `mapstructure:"fix" yaml:"fix"`
	Search   SearchConfig   `mapstructure:"search" yaml:"search"`
	Acquire  AcquireConfig  `mapstructure:"acquire" yaml:"acquire"`
	Report   ReportConfig   `mapstructure:"report" yaml:"report"`

	// Run gets its marching orders from CLI flags, not the config file.
	Run RunConfig `mapstructure:"-" yaml:"-"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the headless browser instances.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string `mapstructure:"args" yaml:"args"`
	ViewportWidth   int      `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight  int      `mapstructure:"viewport_height" yaml:"viewport_height"`

	// PoolSize bounds scenario-level parallelism. Within one session
	// everything is strictly sequential.
	PoolSize int `mapstructure:"pool_size" yaml:"pool_size"`
}

// NetworkConfig tunes timeouts for blocking operations.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	StepTimeout       time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// ScenarioConfig locates the declarative scenario set.
type ScenarioConfig struct {
	File          string `mapstructure:"file" yaml:"file"`
	ScreenshotDir string `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
}

// DetectConfig tunes the issue detectors.
type DetectConfig struct {
	// Performance thresholds; anything above is flagged.
	MaxLoadTimeMs float64 `mapstructure:"max_load_time_ms" yaml:"max_load_time_ms"`
	MaxLCPMs      float64 `mapstructure:"max_lcp_ms" yaml:"max_lcp_ms"`
	MaxDOMNodes   int     `mapstructure:"max_dom_nodes" yaml:"max_dom_nodes"`
	MaxTransferKB float64 `mapstructure:"max_transfer_kb" yaml:"max_transfer_kb"`

	// IgnorableConsolePatterns lists substrings of console messages that
	// never become issues (browser noise, extension chatter).
	IgnorableConsolePatterns []string `mapstructure:"ignorable_console_patterns" yaml:"ignorable_console_patterns"`
}

// FixConfig controls the auto-fix subsystem.
type FixConfig struct {
	Enabled             bool    `mapstructure:"enabled" yaml:"enabled"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
	RulesFile           string  `mapstructure:"rules_file" yaml:"rules_file"`
}

// SearchConfig configures the primary content-search provider.
type SearchConfig struct {
	Endpoint  string  `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey    string  `mapstructure:"api_key" yaml:"-"`
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst     int     `mapstructure:"burst" yaml:"burst"`

	// FallbackURL is the page the browser-driven fallback source scrapes,
	// with %s substituted by the URL-escaped query.
	FallbackURL string `mapstructure:"fallback_url" yaml:"fallback_url"`
}

// AcquireConfig configures the download and upload stages.
type AcquireConfig struct {
	DownloadDir    string        `mapstructure:"download_dir" yaml:"download_dir"`
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"`
	BackoffBase    time.Duration `mapstructure:"backoff_base" yaml:"backoff_base"`
	Concurrency    int           `mapstructure:"concurrency" yaml:"concurrency"`
	MinWidth       int           `mapstructure:"min_width" yaml:"min_width"`
	MinHeight      int           `mapstructure:"min_height" yaml:"min_height"`
	MinAspectRatio float64       `mapstructure:"min_aspect_ratio" yaml:"min_aspect_ratio"`
	MaxAspectRatio float64       `mapstructure:"max_aspect_ratio" yaml:"max_aspect_ratio"`

	// MinRelevance drops candidates whose description matches too little of
	// the query. Zero admits everything.
	MinRelevance float64 `mapstructure:"min_relevance" yaml:"min_relevance"`

	Count          int    `mapstructure:"count" yaml:"count"`
	UploadPath     string `mapstructure:"upload_path" yaml:"upload_path"`
	UploadSelector string `mapstructure:"upload_selector" yaml:"upload_selector"`
	GalleryPath    string `mapstructure:"gallery_path" yaml:"gallery_path"`
}

// ReportConfig configures report output.
type ReportConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// RunConfig holds settings populated from CLI flags for a specific run.
type RunConfig struct {
	Target        string
	Mode          string
	AutoFix       bool
	FixConfidence float64
	Concurrency   int
	ReportDir     string
	FailOn        string
	Query         string
	Category      string
	Tags          []string
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "vigil")
	v.SetDefault("logger.log_file", "vigil.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 800)
	v.SetDefault("browser.pool_size", 1)

	// -- Network --
	v.SetDefault("network.navigation_timeout", "60s")
	v.SetDefault("network.step_timeout", "30s")
	v.SetDefault("network.request_timeout", "30s")

	// -- Scenarios --
	v.SetDefault("scenario.file", "scenarios.yaml")
	v.SetDefault("scenario.screenshot_dir", "screenshots")

	// -- Detectors --
	v.SetDefault("detect.max_load_time_ms", 5000)
	v.SetDefault("detect.max_lcp_ms", 2500)
	v.SetDefault("detect.max_dom_nodes", 1500)
	v.SetDefault("detect.max_transfer_kb", 3000)
	v.SetDefault("detect.ignorable_console_patterns", []string{
		"favicon.ico",
		"DevTools",
		"chrome-extension",
		"React DevTools",
		"webpack-dev-server",
	})

	// -- Fix --
	v.SetDefault("fix.enabled", true)
	v.SetDefault("fix.confidence_threshold", 0.95)
	v.SetDefault("fix.rules_file", "")

	// -- Search --
	v.SetDefault("search.endpoint", "https://api.unsplash.com/search/photos")
	v.SetDefault("search.rate_limit", 0.8)
	v.SetDefault("search.burst", 1)
	v.SetDefault("search.fallback_url", "https://duckduckgo.com/?q=%s&iax=images&ia=images")

	// -- Acquire --
	v.SetDefault("acquire.download_dir", "downloads")
	v.SetDefault("acquire.max_retries", 3)
	v.SetDefault("acquire.backoff_base", "1s")
	v.SetDefault("acquire.concurrency", 4)
	v.SetDefault("acquire.min_width", 800)
	v.SetDefault("acquire.min_height", 600)
	v.SetDefault("acquire.min_aspect_ratio", 0.5)
	v.SetDefault("acquire.max_aspect_ratio", 2.5)
	v.SetDefault("acquire.min_relevance", 0.0)
	v.SetDefault("acquire.count", 20)
	v.SetDefault("acquire.upload_path", "/admin/media/new")
	v.SetDefault("acquire.upload_selector", `input[type="file"]`)
	v.SetDefault("acquire.gallery_path", "/admin/media")

	// -- Report --
	v.SetDefault("report.dir", "reports")
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	if err := v.BindEnv("search.api_key", "VIGIL_SEARCH_API_KEY"); err != nil {
		return nil, fmt.Errorf("binding search.api_key: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Browser.PoolSize < 1 || c.Browser.PoolSize > 4 {
		return fmt.Errorf("browser.pool_size must be between 1 and 4, got %d", c.Browser.PoolSize)
	}
	if c.Fix.ConfidenceThreshold < 0.0 || c.Fix.ConfidenceThreshold > 1.0 {
		return fmt.Errorf("fix.confidence_threshold must be between 0.0 and 1.0, got %g", c.Fix.ConfidenceThreshold)
	}
	if c.Acquire.MaxRetries < 1 {
		return fmt.Errorf("acquire.max_retries must be a positive integer, got %d", c.Acquire.MaxRetries)
	}
	if c.Acquire.Concurrency < 1 {
		return fmt.Errorf("acquire.concurrency must be a positive integer, got %d", c.Acquire.Concurrency)
	}
	if c.Acquire.MinAspectRatio <= 0 || c.Acquire.MaxAspectRatio < c.Acquire.MinAspectRatio {
		return fmt.Errorf("acquire aspect ratio band [%g, %g] is invalid", c.Acquire.MinAspectRatio, c.Acquire.MaxAspectRatio)
	}
	if c.Acquire.MinRelevance < 0.0 || c.Acquire.MinRelevance > 1.0 {
		return fmt.Errorf("acquire.min_relevance must be between 0.0 and 1.0, got %g", c.Acquire.MinRelevance)
	}
	if c.Network.StepTimeout <= 0 {
		return fmt.Errorf("network.step_timeout must be a positive duration")
	}
	if c.Network.NavigationTimeout <= 0 {
		return fmt.Errorf("network.navigation_timeout must be a positive duration")
	}
	if c.Search.RateLimit <= 0 {
		return fmt.Errorf("search.rate_limit must be positive, got %g", c.Search.RateLimit)
	}
	return nil
}
