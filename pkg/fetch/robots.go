package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// RobotsHandler fetches, parses, and caches robots.txt per host
type RobotsHandler struct {
	fetcher       *Fetcher
	robotsCache   map[string]*robotstxt.RobotsData // hostname -> parsed data (or nil)
	robotsCacheMu sync.Mutex
	log           *logrus.Entry
}

// NewRobotsHandler creates a RobotsHandler
func NewRobotsHandler(fetcher *Fetcher, log *logrus.Entry) *RobotsHandler {
	return &RobotsHandler{
		fetcher:     fetcher,
		robotsCache: make(map[string]*robotstxt.RobotsData),
		log:         log,
	}
}

func (rh *RobotsHandler) store(host string, data *robotstxt.RobotsData) *robotstxt.RobotsData {
	rh.robotsCacheMu.Lock()
	rh.robotsCache[host] = data
	rh.robotsCacheMu.Unlock()
	return data
}

// GetRobotsData retrieves robots.txt data for the targetURL's host, using cache or fetching.
// Returns nil on any error, 4xx, or missing file
func (rh *RobotsHandler) GetRobotsData(ctx context.Context, targetURL *url.URL) *robotstxt.RobotsData {
	host := targetURL.Hostname()

	rh.robotsCacheMu.Lock()
	robotsData, found := rh.robotsCache[host]
	rh.robotsCacheMu.Unlock()
	if found {
		return robotsData
	}

	robotsURL := &url.URL{Scheme: targetURL.Scheme, Host: targetURL.Host, Path: "/robots.txt"}
	robotsLog := rh.log.WithFields(logrus.Fields{"host": host, "robots_url": robotsURL.String()})
	robotsLog.Info("Fetching robots.txt...")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		robotsLog.Errorf("Error creating request: %v", err)
		return rh.store(host, nil)
	}
	req.Header.Set("User-Agent", rh.fetcher.cfg.UserAgent)

	resp, err := rh.fetcher.send(ctx, req)
	if err != nil {
		drainAndClose(resp)
		robotsLog.Warnf("Fetching robots.txt failed, assuming allowed: %v", err)
		return rh.store(host, nil)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		robotsLog.Errorf("Error reading body: %v", err)
		return rh.store(host, nil)
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		robotsLog.Errorf("Error parsing content: %v", err)
		return rh.store(host, nil)
	}

	robotsLog.Debug("Parsed robots.txt")
	return rh.store(host, data)
}

// TestAgent reports whether userAgent may fetch targetURL.
// Returns true when robots.txt could not be obtained
func (rh *RobotsHandler) TestAgent(ctx context.Context, targetURL *url.URL, userAgent string) bool {
	robotsData := rh.GetRobotsData(ctx, targetURL)
	if robotsData == nil {
		return true
	}
	return robotsData.TestAgent(targetURL.RequestURI(), userAgent)
}
