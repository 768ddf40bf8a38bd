package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"webb-archiver/pkg/config"
	"webb-archiver/pkg/parse"
	"webb-archiver/pkg/utils"
)

// HTTPFetcher is the network surface the crawler and archiver depend on
type HTTPFetcher interface {
	FetchDocument(ctx context.Context, pageURL string) (*Page, error)
	Download(ctx context.Context, assetURL, destBase string) (*DownloadResult, error)
}

// Page is a fetched HTML page: the raw markup plus its parsed document
type Page struct {
	URL        string
	StatusCode int
	Raw        string // Regex-based extraction works on the undecoded markup
	Doc        *goquery.Document
}

// DownloadResult describes an asset streamed to disk
type DownloadResult struct {
	Path  string
	Bytes int64
}

// Fetcher handles making HTTP requests with retry, politeness, and streaming downloads
type Fetcher struct {
	client      *http.Client
	cfg         *config.AppConfig
	rateLimiter *RateLimiter
	robots      *RobotsHandler // nil unless respect_robots_txt is set
	log         *logrus.Entry
}

// NewFetcher creates a new Fetcher instance
func NewFetcher(client *http.Client, cfg *config.AppConfig, log *logrus.Entry) *Fetcher {
	f := &Fetcher{
		client:      client,
		cfg:         cfg,
		rateLimiter: NewRateLimiter(cfg.DelayPerRequest, log),
		log:         log,
	}
	if cfg.RespectRobotsTxt {
		f.robots = NewRobotsHandler(f, log)
	}
	return f
}

// drainAndClose discards what is left of a response body so the connection can be reused
func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// backoffDelay returns initial * 2^(attempt-1) capped at maxDelay, with +/- 10% jitter
func backoffDelay(attempt int, initial, maxDelay time.Duration) time.Duration {
	delay := time.Duration(float64(initial) * math.Pow(2, float64(attempt-1)))
	if delay <= 0 || delay > maxDelay {
		delay = maxDelay
	}
	var jitter time.Duration
	if jitterRange := int64(delay) / 5; jitterRange > 0 {
		jitter = time.Duration(rand.Int63n(jitterRange)) - (delay / 10)
	}
	if final := delay + jitter; final > 0 {
		return final
	}
	return 0
}

// FetchWithRetry performs req, retrying network errors, 5xx and 429 with exponential backoff.
// On 2xx the caller owns the body. Other 4xx, unexpected statuses, and a 5xx/429 that is still
// failing after the last retry are returned with both the response and a wrapped error, and the
// caller must close that body too. Only network failures and cancellation yield a nil response.
func (f *Fetcher) FetchWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error
	reqLog := f.log.WithField("url", req.URL.String())
	maxRetries := f.cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			reqLog.Warnf("Context cancelled before attempt %d: %v", attempt, err)
			if lastErr != nil {
				return nil, fmt.Errorf("context cancelled (%v) during retry backoff after error: %w", err, lastErr)
			}
			return nil, fmt.Errorf("context cancelled before first attempt: %w", err)
		}

		if attempt > 0 {
			delay := backoffDelay(attempt, f.cfg.InitialRetryDelay, f.cfg.MaxRetryDelay)
			reqLog.WithFields(logrus.Fields{"attempt": attempt, "max_retries": maxRetries, "delay": delay}).Warn("Retrying request...")

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				reqLog.Warnf("Context cancelled during retry sleep: %v", ctx.Err())
				return nil, fmt.Errorf("context cancelled (%v) during retry delay after error: %w", ctx.Err(), lastErr)
			}
		}

		resp, err := f.client.Do(req.WithContext(ctx))
		if err != nil {
			drainAndClose(resp)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				reqLog.Warnf("Context cancelled/timed out during HTTP request execution: %v", err)
				return nil, err
			}
			reqLog.WithField("attempt", attempt).Errorf("Network error: %v", err)
			lastErr = err
			continue
		}

		statusCode := resp.StatusCode
		resLog := reqLog.WithFields(logrus.Fields{"status_code": statusCode, "attempt": attempt})

		switch {
		case statusCode >= 200 && statusCode < 300:
			resLog.Debug("Successfully fetched")
			return resp, nil

		case statusCode >= 500:
			resLog.Warn("Server error")
			lastErr = fmt.Errorf("%w: status %d %s", utils.ErrServerHTTPError, statusCode, resp.Status)

		case statusCode == http.StatusTooManyRequests:
			resLog.Warn("Received 429 Too Many Requests")
			lastErr = fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, resp.Status)

		case statusCode >= 400:
			resLog.Warn("Client error (4xx), not retrying")
			return resp, fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, resp.Status)

		default:
			resLog.Warnf("Non-retryable/unexpected status: %d", statusCode)
			return resp, fmt.Errorf("%w: status %d %s", utils.ErrOtherHTTPError, statusCode, resp.Status)
		}

		if attempt == maxRetries {
			// The final retryable response is handed back open so pages can still be parsed
			reqLog.Errorf("All %d fetch attempts failed. Last error: %v", maxRetries+1, lastErr)
			return resp, fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
		}
		drainAndClose(resp)
	}

	reqLog.Errorf("All %d fetch attempts failed. Last error: %v", maxRetries+1, lastErr)
	return nil, fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
}

// newRequest builds a GET carrying the configured user agent, refusing robots-disallowed URLs
func (f *Fetcher) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: '%s': %w", utils.ErrRequestCreation, rawURL, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	if f.robots != nil && !f.robots.TestAgent(ctx, req.URL, f.cfg.UserAgent) {
		return nil, fmt.Errorf("%w: %s", utils.ErrRobotsDisallowed, rawURL)
	}
	return req, nil
}

// send applies the per-host delay around FetchWithRetry
func (f *Fetcher) send(ctx context.Context, req *http.Request) (*http.Response, error) {
	host := req.URL.Hostname()
	f.rateLimiter.ApplyDelay(ctx, host, f.cfg.DelayPerRequest)
	resp, err := f.FetchWithRetry(ctx, req)
	f.rateLimiter.UpdateLastRequestTime(host)
	return resp, err
}

// FetchDocument retrieves and parses an HTML page.
// Any non-2xx response, including a 5xx that outlasted the retries, is logged and parsed anyway.
// Only a failure that produced no response at all is returned as an error.
func (f *Fetcher) FetchDocument(ctx context.Context, pageURL string) (*Page, error) {
	pageLog := f.log.WithField("url", pageURL)

	req, err := f.newRequest(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	resp, err := f.send(ctx, req)
	if err != nil {
		if resp == nil {
			return nil, fmt.Errorf("fetch failed for '%s': %w", pageURL, err)
		}
		pageLog.WithError(err).Warnf("Unexpected status %d, parsing body anyway", resp.StatusCode)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: '%s': %w", utils.ErrResponseBodyRead, pageURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: HTML from '%s': %w", utils.ErrParsing, pageURL, err)
	}

	return &Page{
		URL:        pageURL,
		StatusCode: resp.StatusCode,
		Raw:        string(body),
		Doc:        doc,
	}, nil
}

// Download streams assetURL to destBase plus the extension taken from the URL's filename.
// The body is copied in chunk_size pieces. A partially written file is removed on failure.
func (f *Fetcher) Download(ctx context.Context, assetURL, destBase string) (*DownloadResult, error) {
	ext, err := parse.ExtensionFromURL(assetURL)
	if err != nil {
		return nil, err
	}
	destPath := destBase + "." + ext
	dlLog := f.log.WithFields(logrus.Fields{"url": assetURL, "path": destPath})

	req, err := f.newRequest(ctx, assetURL)
	if err != nil {
		return nil, err
	}
	resp, err := f.send(ctx, req)
	if err != nil {
		drainAndClose(resp)
		return nil, fmt.Errorf("fetch failed for asset '%s': %w", assetURL, err)
	}
	defer resp.Body.Close()

	maxBytes := f.cfg.MaxDownloadBytes
	if maxBytes > 0 && resp.ContentLength > maxBytes {
		return nil, fmt.Errorf("%w: '%s' declares %d bytes (limit %d)", utils.ErrDownloadTooLarge, assetURL, resp.ContentLength, maxBytes)
	}

	outFile, err := os.Create(destPath)
	if err != nil {
		return nil, fmt.Errorf("%w: creating '%s': %w", utils.ErrFilesystem, destPath, err)
	}

	var src io.Reader = resp.Body
	if maxBytes > 0 {
		src = io.LimitReader(resp.Body, maxBytes+1) // One extra byte detects an oversized body
	}
	chunkSize := f.cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = config.DefaultChunkSize
	}
	// Wrapping both ends hides ReaderFrom/WriterTo so the chunk buffer is actually used
	written, copyErr := io.CopyBuffer(struct{ io.Writer }{outFile}, struct{ io.Reader }{src}, make([]byte, chunkSize))
	closeErr := outFile.Close()

	switch {
	case copyErr != nil:
		os.Remove(destPath)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("download of '%s' interrupted: %w", assetURL, ctx.Err())
		}
		return nil, fmt.Errorf("%w: streaming '%s' to '%s': %w", utils.ErrResponseBodyRead, assetURL, destPath, copyErr)
	case maxBytes > 0 && written > maxBytes:
		os.Remove(destPath)
		return nil, fmt.Errorf("%w: '%s' exceeded %d bytes", utils.ErrDownloadTooLarge, assetURL, maxBytes)
	case closeErr != nil:
		os.Remove(destPath)
		return nil, fmt.Errorf("%w: closing '%s': %w", utils.ErrFilesystem, destPath, closeErr)
	}

	dlLog.WithField("bytes", written).Debug("Download complete")
	return &DownloadResult{Path: destPath, Bytes: written}, nil
}
