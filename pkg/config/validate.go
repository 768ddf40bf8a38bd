package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"webb-archiver/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// Target (never from YAML, but tests and callers can override it)
	if c.Target.BaseURL == "" && c.Target.ListingURL == "" {
		c.Target = DefaultTarget()
	}
	for _, raw := range []string{c.Target.BaseURL, c.Target.ListingURL} {
		u, parseErr := url.ParseRequestURI(raw)
		if parseErr != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return warnings, fmt.Errorf("%w: invalid target URL '%s'", utils.ErrConfigValidation, raw)
		}
	}

	// OutputDir
	if c.OutputDir == "" {
		c.OutputDir = "."
	}

	// UserAgent
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}

	// ChunkSize
	if c.ChunkSize <= 0 {
		if c.ChunkSize < 0 {
			warnings = append(warnings, fmt.Sprintf("chunk_size cannot be negative, defaulting to %d", DefaultChunkSize))
		}
		c.ChunkSize = DefaultChunkSize
	}

	// MaxDownloadBytes
	if c.MaxDownloadBytes < 0 {
		warnings = append(warnings, "max_download_bytes cannot be negative, setting to 0 (unlimited)")
		c.MaxDownloadBytes = 0
	}

	// DelayPerRequest
	if c.DelayPerRequest < 0 {
		warnings = append(warnings, "delay_per_request cannot be negative, disabling delay")
		c.DelayPerRequest = 0
	}

	// MaxRetries (0 = single attempt)
	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}

	// Retry delays (only if retries enabled)
	if c.MaxRetries > 0 {
		if c.InitialRetryDelay <= 0 {
			c.InitialRetryDelay = 1 * time.Second
		}
		if c.MaxRetryDelay <= 0 {
			c.MaxRetryDelay = 30 * time.Second
		}
	}

	// InitialRetryDelay > MaxRetryDelay check
	if c.InitialRetryDelay > c.MaxRetryDelay && c.MaxRetryDelay > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			c.InitialRetryDelay, c.MaxRetryDelay))
		c.InitialRetryDelay = c.MaxRetryDelay
	}

	// GlobalRunTimeout
	if c.GlobalRunTimeout < 0 {
		warnings = append(warnings, "global_run_timeout cannot be negative, disabling timeout")
		c.GlobalRunTimeout = 0
	}

	// Manifest filename must stay inside the output directory
	if c.EnableManifest {
		if c.ManifestFilename == "" {
			c.ManifestFilename = DefaultManifestFilename
		} else if filepath.Base(c.ManifestFilename) != c.ManifestFilename || strings.HasPrefix(c.ManifestFilename, ".") {
			warnings = append(warnings, fmt.Sprintf(
				"manifest_filename '%s' must be a plain file name, defaulting to '%s'",
				c.ManifestFilename, DefaultManifestFilename))
			c.ManifestFilename = DefaultManifestFilename
		}
	}

	// HTTPClientSettings defaults
	warnings = append(warnings, c.validateHTTPClientSettings()...)

	return warnings, nil
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() (warnings []string) {
	h := &c.HTTPClientSettings
	if h.Timeout < 0 {
		warnings = append(warnings, "http_client_settings.timeout cannot be negative, disabling timeout")
		h.Timeout = 0
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 10
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.ResponseHeaderTimeout <= 0 {
		h.ResponseHeaderTimeout = 60 * time.Second
	}
	if h.MaxRedirects <= 0 {
		h.MaxRedirects = 10
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
	return warnings
}
