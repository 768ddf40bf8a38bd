package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"webb-archiver/pkg/config"
	"webb-archiver/pkg/utils"
)

// testConfig returns an AppConfig with fast retry delays for testing
func testConfig(maxRetries int) *config.AppConfig {
	return &config.AppConfig{
		UserAgent:         "webb-archiver-test/1.0",
		ChunkSize:         config.DefaultChunkSize,
		MaxRetries:        maxRetries,
		InitialRetryDelay: 10 * time.Millisecond,
		MaxRetryDelay:     50 * time.Millisecond,
	}
}

// testLogger returns a logger that discards output
func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// testClient returns an http.Client suitable for testing
func testClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// mockServer creates an httptest.Server that returns status codes in sequence.
// Returns the server and an atomic counter tracking request attempts.
func mockServer(t *testing.T, statusCodes []int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	attemptCount := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx := int(attemptCount.Add(1)) - 1
		if idx >= len(statusCodes) {
			idx = len(statusCodes) - 1 // repeat last status
		}
		w.WriteHeader(statusCodes[idx])
	}))
	t.Cleanup(server.Close)
	return server, attemptCount
}

func TestFetchWithRetry_StatusSequences(t *testing.T) {
	tests := []struct {
		name         string
		statusCodes  []int
		maxRetries   int
		wantStatus   int   // status of the returned response
		wantErr      error // nil when success is expected
		exhausted    bool  // retries ran out, so ErrRetryFailed must wrap the error
		wantAttempts int32
	}{
		{"200 OK", []int{200}, 3, 200, nil, false, 1},
		{"204 No Content", []int{204}, 3, 204, nil, false, 1},
		{"5xx then success", []int{500, 500, 200}, 3, 200, nil, false, 3},
		{"429 then success", []int{429, 200}, 3, 200, nil, false, 2},
		{"mixed retryable then success", []int{500, 429, 503, 200}, 3, 200, nil, false, 4},
		{"5xx exhausts retries", []int{500}, 3, 500, utils.ErrServerHTTPError, true, 4},
		{"429 exhausts retries", []int{429}, 2, 429, utils.ErrClientHTTPError, true, 3},
		{"zero retries", []int{502}, 0, 502, utils.ErrServerHTTPError, true, 1},
		{"404 not retried", []int{404, 200}, 3, 404, utils.ErrClientHTTPError, false, 1},
		{"403 not retried", []int{403}, 3, 403, utils.ErrClientHTTPError, false, 1},
		{"3xx is other status", []int{304}, 3, 304, utils.ErrOtherHTTPError, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, attempts := mockServer(t, tt.statusCodes)
			fetcher := NewFetcher(testClient(), testConfig(tt.maxRetries), testLogger())
			req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

			resp, err := fetcher.FetchWithRetry(context.Background(), req)
			if resp != nil {
				defer resp.Body.Close()
			}

			if tt.wantErr == nil && err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got: %v", tt.wantErr, err)
			}
			if got := errors.Is(err, utils.ErrRetryFailed); got != tt.exhausted {
				t.Errorf("expected ErrRetryFailed wrapped = %v, got error: %v", tt.exhausted, err)
			}
			if resp == nil || resp.StatusCode != tt.wantStatus {
				t.Errorf("expected status %d, got response %v", tt.wantStatus, resp)
			}
			if got := attempts.Load(); got != tt.wantAttempts {
				t.Errorf("expected %d attempts, got %d", tt.wantAttempts, got)
			}
		})
	}
}

func TestFetchWithRetry_ExhaustedKeepsLastBody(t *testing.T) {
	attemptCount := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attemptCount.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "attempt %d", n)
	}))
	t.Cleanup(server.Close)

	fetcher := NewFetcher(testClient(), testConfig(2), testLogger())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	resp, err := fetcher.FetchWithRetry(context.Background(), req)
	if !errors.Is(err, utils.ErrRetryFailed) {
		t.Fatalf("expected ErrRetryFailed, got: %v", err)
	}
	if resp == nil {
		t.Fatal("expected the final response to be returned")
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		t.Fatalf("reading final body: %v", readErr)
	}
	if string(body) != "attempt 3" {
		t.Errorf("expected body of the last attempt, got %q", body)
	}
}

func TestFetchWithRetry_ContextCancelled_BeforeAttempt(t *testing.T) {
	server, attempts := mockServer(t, []int{200})

	fetcher := NewFetcher(testClient(), testConfig(3), testLogger())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := fetcher.FetchWithRetry(ctx, req)
	if resp != nil {
		resp.Body.Close()
		t.Error("expected nil response for cancelled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
	if attempts.Load() != 0 {
		t.Errorf("expected 0 attempts, got %d", attempts.Load())
	}
}

func TestFetchWithRetry_ContextTimeout_DuringBackoff(t *testing.T) {
	server, attempts := mockServer(t, []int{500})

	cfg := testConfig(3)
	cfg.InitialRetryDelay = 10 * time.Second
	cfg.MaxRetryDelay = 10 * time.Second
	fetcher := NewFetcher(testClient(), cfg, testLogger())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	resp, err := fetcher.FetchWithRetry(ctx, req)

	if err == nil {
		t.Fatal("expected error for timed out context")
	}
	if resp != nil {
		resp.Body.Close()
		t.Error("expected nil response")
	}
	if !errors.Is(err, utils.ErrServerHTTPError) {
		t.Errorf("expected last attempt's error to be wrapped, got: %v", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt before timeout, got %d", attempts.Load())
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("backoff did not honour context: took %v", elapsed)
	}
}

func TestFetchWithRetry_ContextTimeout_DuringRequest(t *testing.T) {
	slowServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(slowServer.Close)

	fetcher := NewFetcher(testClient(), testConfig(3), testLogger())
	req, _ := http.NewRequest(http.MethodGet, slowServer.URL, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	resp, err := fetcher.FetchWithRetry(ctx, req)
	if resp != nil {
		resp.Body.Close()
		t.Error("expected nil response")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got: %v", err)
	}
}

func TestFetchWithRetry_NetworkError_RetrySuccess(t *testing.T) {
	attemptCount := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attemptCount.Add(1) == 1 {
			// Drop the connection to simulate a network error
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Error("server doesn't support hijacking")
				return
			}
			conn, _, _ := hj.Hijack()
			conn.Close()
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	fetcher := NewFetcher(testClient(), testConfig(3), testLogger())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	resp, err := fetcher.FetchWithRetry(context.Background(), req)
	if err != nil {
		t.Fatalf("expected success after retry, got: %v", err)
	}
	defer resp.Body.Close()

	if attemptCount.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", attemptCount.Load())
	}
}

func TestFetchDocument(t *testing.T) {
	var gotUA atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.UserAgent())
		switch r.URL.Path {
		case "/ok":
			io.WriteString(w, `<html><head><meta property="og:title" content="Cosmic Cliffs"></head><body></body></html>`)
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `<html><body><h1>Not here</h1></body></html>`)
		default:
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, `<html><head><meta property="og:title" content="Pillars of Creation"></head><body></body></html>`)
		}
	}))
	t.Cleanup(server.Close)

	fetcher := NewFetcher(testClient(), testConfig(0), testLogger())

	t.Run("parses 2xx page", func(t *testing.T) {
		page, err := fetcher.FetchDocument(context.Background(), server.URL+"/ok")
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if page.StatusCode != http.StatusOK {
			t.Errorf("expected status 200, got %d", page.StatusCode)
		}
		if content, _ := page.Doc.Find(`meta[property="og:title"]`).Attr("content"); content != "Cosmic Cliffs" {
			t.Errorf("expected og:title 'Cosmic Cliffs', got %q", content)
		}
		if !strings.Contains(page.Raw, "og:title") {
			t.Error("expected raw markup to be kept")
		}
		if gotUA.Load() != "webb-archiver-test/1.0" {
			t.Errorf("expected configured user agent, got %v", gotUA.Load())
		}
	})

	t.Run("parses 4xx body anyway", func(t *testing.T) {
		page, err := fetcher.FetchDocument(context.Background(), server.URL+"/missing")
		if err != nil {
			t.Fatalf("expected no error for 4xx page, got: %v", err)
		}
		if page.StatusCode != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", page.StatusCode)
		}
		if page.Doc.Find("h1").Text() != "Not here" {
			t.Error("expected 4xx body to be parsed")
		}
	})

	t.Run("parses 5xx body after retries", func(t *testing.T) {
		page, err := fetcher.FetchDocument(context.Background(), server.URL+"/broken")
		if err != nil {
			t.Fatalf("expected no error for 5xx page, got: %v", err)
		}
		if page.StatusCode != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", page.StatusCode)
		}
		if content, _ := page.Doc.Find(`meta[property="og:title"]`).Attr("content"); content != "Pillars of Creation" {
			t.Errorf("expected 5xx body to be parsed, got og:title %q", content)
		}
	})

	t.Run("unreachable host is an error", func(t *testing.T) {
		closed := httptest.NewServer(http.NotFoundHandler())
		closedURL := closed.URL
		closed.Close()

		_, err := fetcher.FetchDocument(context.Background(), closedURL+"/ok")
		if !errors.Is(err, utils.ErrRetryFailed) {
			t.Errorf("expected ErrRetryFailed, got: %v", err)
		}
	})
}

func assetServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestDownload_WritesFileWithURLExtension(t *testing.T) {
	payload := strings.Repeat("TIFFDATA", 2000) // Spans several chunks
	server := assetServer(t, payload, http.StatusOK)
	dir := t.TempDir()

	fetcher := NewFetcher(testClient(), testConfig(0), testLogger())
	result, err := fetcher.Download(context.Background(), server.URL+"/files/live/sites/webb/files/home/STScI-01G7JJADTH90FR98AKKJFKSS0B.tif", filepath.Join(dir, "Cosmic_Cliffs"))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	wantPath := filepath.Join(dir, "Cosmic_Cliffs.tif")
	if result.Path != wantPath {
		t.Errorf("expected path %s, got %s", wantPath, result.Path)
	}
	if result.Bytes != int64(len(payload)) {
		t.Errorf("expected %d bytes, got %d", len(payload), result.Bytes)
	}
	data, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("reading downloaded file: %v", err)
	}
	if string(data) != payload {
		t.Error("downloaded content does not match served payload")
	}
}

func TestDownload_NonSuccessStatus(t *testing.T) {
	server := assetServer(t, "gone", http.StatusNotFound)
	dir := t.TempDir()

	fetcher := NewFetcher(testClient(), testConfig(0), testLogger())
	_, err := fetcher.Download(context.Background(), server.URL+"/image.tif", filepath.Join(dir, "Gone"))

	if !errors.Is(err, utils.ErrClientHTTPError) {
		t.Errorf("expected ErrClientHTTPError, got: %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "Gone.tif")); !os.IsNotExist(statErr) {
		t.Error("expected no file to be created for a failed download")
	}
}

func TestDownload_NoExtension(t *testing.T) {
	server := assetServer(t, "data", http.StatusOK)

	fetcher := NewFetcher(testClient(), testConfig(0), testLogger())
	_, err := fetcher.Download(context.Background(), server.URL+"/download", filepath.Join(t.TempDir(), "x"))

	if !errors.Is(err, utils.ErrParsing) {
		t.Errorf("expected ErrParsing, got: %v", err)
	}
}

func TestDownload_TooLarge(t *testing.T) {
	tests := []struct {
		name          string
		declareLength bool
	}{
		{"declared content length", true},
		{"chunked body", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := strings.Repeat("x", 1024)
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.declareLength {
					w.Header().Set("Content-Length", "1024")
				}
				io.WriteString(w, payload[:512])
				if f, ok := w.(http.Flusher); ok && !tt.declareLength {
					f.Flush() // Forces chunked transfer, no Content-Length
				}
				io.WriteString(w, payload[512:])
			}))
			t.Cleanup(server.Close)

			cfg := testConfig(0)
			cfg.MaxDownloadBytes = 100
			dir := t.TempDir()
			fetcher := NewFetcher(testClient(), cfg, testLogger())

			_, err := fetcher.Download(context.Background(), server.URL+"/big.tif", filepath.Join(dir, "Big"))
			if !errors.Is(err, utils.ErrDownloadTooLarge) {
				t.Fatalf("expected ErrDownloadTooLarge, got: %v", err)
			}
			if _, statErr := os.Stat(filepath.Join(dir, "Big.tif")); !os.IsNotExist(statErr) {
				t.Error("expected oversized partial file to be removed")
			}
		})
	}
}
