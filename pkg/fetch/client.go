package fetch

import (
	"fmt"
	"net"
	"net/http"

	"github.com/sirupsen/logrus"

	"webb-archiver/pkg/config"
)

// NewClient creates the HTTP client shared by page fetches and asset downloads.
//
// Full-resolution TIFFs run to hundreds of megabytes, so the overall Timeout is normally 0
// and a stalled server is caught by ResponseHeaderTimeout instead. Transparent gzip is
// disabled: it would hide Content-Length from the max_download_bytes check and the assets
// are already compressed.
func NewClient(cfg config.HTTPClientConfig, log *logrus.Entry) *http.Client {
	client := &http.Client{
		Timeout:       cfg.Timeout,
		Transport:     newTransport(cfg),
		CheckRedirect: redirectPolicy(cfg.MaxRedirects, log),
	}
	log.WithFields(logrus.Fields{
		"timeout":                 cfg.Timeout,
		"response_header_timeout": cfg.ResponseHeaderTimeout,
		"max_redirects":           cfg.MaxRedirects,
	}).Debug("HTTP client initialized")
	return client
}

func newTransport(cfg config.HTTPClientConfig) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   cfg.DialerTimeout,
		KeepAlive: cfg.DialerKeepAlive,
	}
	transport := &http.Transport{
		Proxy:                  http.ProxyFromEnvironment,
		DialContext:            dialer.DialContext,
		ForceAttemptHTTP2:      true,
		MaxIdleConns:           cfg.MaxIdleConns,
		MaxIdleConnsPerHost:    cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:        cfg.IdleConnTimeout,
		TLSHandshakeTimeout:    cfg.TLSHandshakeTimeout,
		ExpectContinueTimeout:  cfg.ExpectContinueTimeout,
		ResponseHeaderTimeout:  cfg.ResponseHeaderTimeout,
		DisableCompression:     true,
		MaxResponseHeaderBytes: 1 << 20,
	}
	if cfg.ForceAttemptHTTP2 != nil {
		transport.ForceAttemptHTTP2 = *cfg.ForceAttemptHTTP2
	}
	return transport
}

// redirectPolicy follows at most maxRedirects hops; 0 or less means the net/http default of 10
func redirectPolicy(maxRedirects int, log *logrus.Entry) func(*http.Request, []*http.Request) error {
	if maxRedirects <= 0 {
		maxRedirects = 10
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		log.Debugf("Redirecting: %s -> %s (hop %d)", via[len(via)-1].URL, req.URL, len(via))
		return nil
	}
}
