package model

import "time"

// Config holds the complete signalwatch configuration
type Config struct {
	HTTP        HTTPConfig        `yaml:"http" mapstructure:"http"`
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Resilience  ResilienceConfig  `yaml:"resilience" mapstructure:"resilience"`
	Sources     []SourceConfig    `yaml:"sources" mapstructure:"sources"`
	ML          MLConfig          `yaml:"ml" mapstructure:"ml"`
	Escalation  EscalationConfig  `yaml:"escalation" mapstructure:"escalation"`
	Correlation CorrelationConfig `yaml:"correlation" mapstructure:"correlation"`
	Run         RunConfig         `yaml:"run" mapstructure:"run"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
	Metrics     MetricsConfig     `yaml:"metrics" mapstructure:"metrics"`
}

// HTTPConfig configures outbound fetches
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	HTTPProxy     string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"` // memory, sqlite, postgres
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// ResilienceConfig sets defaults for every named external dependency
type ResilienceConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold" mapstructure:"success_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout" mapstructure:"open_timeout"`
	HalfOpenMaxCalls int           `yaml:"half_open_max_calls" mapstructure:"half_open_max_calls"`
	CallTimeout      time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`

	Retry RetryConfig `yaml:"retry" mapstructure:"retry"`

	Dependencies map[string]DependencyConfig `yaml:"dependencies" mapstructure:"dependencies"`
}

// RetryConfig configures backoff-retry for outbound fetches
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay       time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
	MaxDelay        time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
	ExponentialBase float64       `yaml:"exponential_base" mapstructure:"exponential_base"`
	JitterFraction  float64       `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// DependencyConfig overrides breaker settings and adds a quota for one dependency.
// Zero values fall back to the ResilienceConfig defaults; RequestsPerSecond 0 means no limiter.
type DependencyConfig struct {
	FailureThreshold  int           `yaml:"failure_threshold,omitempty" mapstructure:"failure_threshold"`
	SuccessThreshold  int           `yaml:"success_threshold,omitempty" mapstructure:"success_threshold"`
	OpenTimeout       time.Duration `yaml:"open_timeout,omitempty" mapstructure:"open_timeout"`
	HalfOpenMaxCalls  int           `yaml:"half_open_max_calls,omitempty" mapstructure:"half_open_max_calls"`
	CallTimeout       time.Duration `yaml:"call_timeout,omitempty" mapstructure:"call_timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second,omitempty" mapstructure:"requests_per_second"`
	Burst             int           `yaml:"burst,omitempty" mapstructure:"burst"`
	MaxWait           time.Duration `yaml:"max_wait,omitempty" mapstructure:"max_wait"`
}

// SourceConfig declares one agent
type SourceConfig struct {
	Name         string            `yaml:"name" mapstructure:"name"`
	Kind         string            `yaml:"kind" mapstructure:"kind"`               // feed, listing
	SourceType   string            `yaml:"source_type" mapstructure:"source_type"` // gao, oig, bill, press, news, court, ...
	URL          string            `yaml:"url" mapstructure:"url"`
	Dependency   string            `yaml:"dependency,omitempty" mapstructure:"dependency"` // defaults to the URL host
	EventType    string            `yaml:"event_type,omitempty" mapstructure:"event_type"`
	Lookback     time.Duration     `yaml:"lookback,omitempty" mapstructure:"lookback"`
	RefPatterns  map[string]string `yaml:"ref_patterns,omitempty" mapstructure:"ref_patterns"`
	ItemClass    string            `yaml:"item_class,omitempty" mapstructure:"item_class"` // listing agents only
	Jurisdiction string            `yaml:"jurisdiction,omitempty" mapstructure:"jurisdiction"`
	Disabled     bool              `yaml:"disabled,omitempty" mapstructure:"disabled"`
}

// MLConfig configures the optional severity scorer
type MLConfig struct {
	Provider string        `yaml:"provider" mapstructure:"provider"` // "", openai, http
	Model    string        `yaml:"model,omitempty" mapstructure:"model"`
	APIKey   string        `yaml:"-" mapstructure:"api_key"`
	BaseURL  string        `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
	CacheTTL time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	CacheDir string        `yaml:"cache_dir,omitempty" mapstructure:"cache_dir"`
}

// EscalationConfig points at an optional signal library file
type EscalationConfig struct {
	SignalsFile string `yaml:"signals_file,omitempty" mapstructure:"signals_file"`
}

// CorrelationConfig controls the post-ingestion correlation pass
type CorrelationConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	RulesFile string `yaml:"rules_file,omitempty" mapstructure:"rules_file"`
}

// RunConfig bounds agent runs
type RunConfig struct {
	AgentDeadline   time.Duration `yaml:"agent_deadline" mapstructure:"agent_deadline"`
	DefaultLookback time.Duration `yaml:"default_lookback" mapstructure:"default_lookback"`
}

// LogConfig configures logrus
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json, text
}

// MetricsConfig configures the prometheus endpoint used by watch mode
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty" mapstructure:"addr"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Timeout:       30 * time.Second,
			UserAgent:     "signalwatch/0.3 (+https://github.com/ppiankov/signalwatch)",
			MaxBodyBytes:  5_000_000,
			RespectRobots: true,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    "signalwatch.db",
		},
		Resilience: ResilienceConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			OpenTimeout:      60 * time.Second,
			HalfOpenMaxCalls: 1,
			CallTimeout:      30 * time.Second,
			Retry: RetryConfig{
				MaxAttempts:     3,
				BaseDelay:       time.Second,
				MaxDelay:        30 * time.Second,
				ExponentialBase: 2,
				JitterFraction:  0.1,
			},
			Dependencies: map[string]DependencyConfig{},
		},
		ML: MLConfig{
			Timeout:  20 * time.Second,
			CacheTTL: 24 * time.Hour,
		},
		Correlation: CorrelationConfig{
			Enabled: true,
		},
		Run: RunConfig{
			AgentDeadline:   5 * time.Minute,
			DefaultLookback: 7 * 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
