package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make network requests.
type HTTPConfig struct {
	// Timeout is the per-request deadline, covering headers and body.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// ProxyConfig describes the institutional EZProxy gateway.
type ProxyConfig struct {
	// LoginURL is the proxy login base. Candidate URLs are wrapped as
	// LoginURL + "?url=" + encoded target, and the login form posts here.
	LoginURL string `json:"login_url" yaml:"login_url" mapstructure:"login_url"`
}

// AcquisitionConfig holds settings for the PDF acquisition engine and batch runner.
type AcquisitionConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// DownloadDir receives PDFs and instruction files.
	DownloadDir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// Delay is the pause between consecutive attempts of a batch (default
	// 2s). A negative value disables pacing.
	Delay time.Duration `json:"delay" yaml:"delay" mapstructure:"delay"`

	// Reauthenticate replays the proxy login before credential-session fetches.
	Reauthenticate bool `json:"reauthenticate" yaml:"reauthenticate" mapstructure:"reauthenticate"`

	// FollowLandingPages lets the engine try a citation_pdf_url found on an
	// HTML candidate response before moving to the next candidate.
	FollowLandingPages bool `json:"follow_landing_pages" yaml:"follow_landing_pages" mapstructure:"follow_landing_pages"`
}

// BrowserSessionConfig holds settings for the browser session store.
type BrowserSessionConfig struct {
	// File is the JSON file holding the session table.
	File string `json:"file" yaml:"file" mapstructure:"file"`

	// MaxAge is how long a captured session stays usable (default 2h).
	MaxAge time.Duration `json:"max_age" yaml:"max_age" mapstructure:"max_age"`
}

// PubMedConfig holds settings for the E-utilities client.
type PubMedConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// APIKey is an optional NCBI API key (raises the rate limit to 10 req/s).
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// MaxResults is the default number of search results (default 50).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`
}

// ServerConfig holds settings for the HTTP API.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`

	// Workers is the number of batch jobs that may run at once (distinct sessions only).
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`
}

// StoreDriver selects the record store implementation.
type StoreDriver string

const (
	StoreMemory StoreDriver = "memory"
	StoreSQLite StoreDriver = "sqlite"
)

// StoreConfig holds settings for the record store.
type StoreConfig struct {
	Driver StoreDriver `json:"driver" yaml:"driver" mapstructure:"driver"`
	Path   string      `json:"path" yaml:"path" mapstructure:"path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is "console" or "json".
	Format string `json:"format" yaml:"format" mapstructure:"format"`

	// File, when set, receives a rotated JSON copy of the log.
	File       string `json:"file,omitempty" yaml:"file,omitempty" mapstructure:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days" mapstructure:"max_age_days"`
}

// Config groups all component configurations.
type Config struct {
	Proxy           ProxyConfig          `json:"proxy" yaml:"proxy" mapstructure:"proxy"`
	Download        AcquisitionConfig    `json:"download" yaml:"download" mapstructure:"download"`
	BrowserSessions BrowserSessionConfig `json:"browser_sessions" yaml:"browser_sessions" mapstructure:"browser_sessions"`
	PubMed          PubMedConfig         `json:"pubmed" yaml:"pubmed" mapstructure:"pubmed"`
	Server          ServerConfig         `json:"server" yaml:"server" mapstructure:"server"`
	Store           StoreConfig          `json:"store" yaml:"store" mapstructure:"store"`
	Log             LogConfig            `json:"log" yaml:"log" mapstructure:"log"`
}
