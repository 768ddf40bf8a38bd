package config

import (
	"net/url"
	"time"
)

const (
	// DefaultBaseURL is the gallery host that detail-page and asset hrefs are resolved against
	DefaultBaseURL = "https://webbtelescope.org"
	// DefaultChunkSize is the read buffer used when streaming asset downloads to disk
	DefaultChunkSize = 4096
	// DefaultManifestFilename is the run report written to the output directory when enabled
	DefaultManifestFilename = "manifest.yaml"
	// DefaultUserAgent is sent with every request unless overridden
	DefaultUserAgent = "webb-archiver/1.0"
)

// listingQuery selects NIRCam observations, first page only
var listingQuery = url.Values{
	"itemsPerPage": {"15"},
	"Type":         {"Observations"},
	"keyword":      {"NIRCam"},
}

// AssetLabelFilters are the substrings a link label must all contain to be downloaded
var AssetLabelFilters = []string{"Full Res", "TIF"}

// Target identifies the gallery being archived. It is fixed for the program and is not
// read from YAML; tests point it at a local server.
type Target struct {
	BaseURL    string
	ListingURL string
}

// DefaultTarget returns the Webb telescope NIRCam observations gallery
func DefaultTarget() Target {
	return Target{
		BaseURL:    DefaultBaseURL,
		ListingURL: DefaultBaseURL + "/resource-gallery/images?" + listingQuery.Encode(),
	}
}

// AppConfig holds the application configuration
type AppConfig struct {
	Target             Target           `yaml:"-"`
	OutputDir          string           `yaml:"output_dir,omitempty"`
	UserAgent          string           `yaml:"user_agent,omitempty"`
	ChunkSize          int              `yaml:"chunk_size,omitempty"`
	MaxDownloadBytes   int64            `yaml:"max_download_bytes,omitempty"` // 0 = unlimited
	AbortOnError       bool             `yaml:"abort_on_error,omitempty"`     // Stop the whole run on the first failed entry
	DelayPerRequest    time.Duration    `yaml:"delay_per_request,omitempty"`
	RespectRobotsTxt   bool             `yaml:"respect_robots_txt,omitempty"`
	MaxRetries         int              `yaml:"max_retries,omitempty"`
	InitialRetryDelay  time.Duration    `yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay      time.Duration    `yaml:"max_retry_delay,omitempty"`
	GlobalRunTimeout   time.Duration    `yaml:"global_run_timeout,omitempty"` // 0 = no timeout
	EnableManifest     bool             `yaml:"enable_manifest,omitempty"`
	ManifestFilename   string           `yaml:"manifest_filename,omitempty"`
	HTTPClientSettings HTTPClientConfig `yaml:"http_client_settings,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout (0 = none; asset downloads can be large)
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout,omitempty"` // Wait for status line + headers; bounds a stalled server when timeout is 0
	MaxRedirects          int           `yaml:"max_redirects,omitempty"`           // Redirect hops allowed per request
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
}

// Default returns a configuration with the fixed target and all defaults applied
func Default() *AppConfig {
	cfg := &AppConfig{Target: DefaultTarget()}
	cfg.Validate()
	return cfg
}

// GetEffectiveManifestFilename returns the manifest filename, falling back to the default
func GetEffectiveManifestFilename(cfg AppConfig) string {
	if cfg.ManifestFilename != "" {
		return cfg.ManifestFilename
	}
	return DefaultManifestFilename
}
