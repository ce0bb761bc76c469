package agent

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/temoto/robotstxt"

	"github.com/ppiankov/signalwatch/internal/resilience"
)

// RobotsChecker checks robots.txt compliance for listing pages.
// Parsed files are cached per host for a day. Fetches go through the
// shared Fetcher, so they count against the page's dependency.
type RobotsChecker struct {
	cache     *gocache.Cache
	fetcher   *Fetcher
	userAgent string
}

// NewRobotsChecker creates a new robots.txt checker
func NewRobotsChecker(userAgent string, fetcher *Fetcher) *RobotsChecker {
	return &RobotsChecker{
		cache:     gocache.New(24*time.Hour, time.Hour),
		fetcher:   fetcher,
		userAgent: normalizeUserAgent(userAgent),
	}
}

// CanFetch checks if the URL can be fetched according to robots.txt.
// Returns (allowed, crawlDelay). An unreachable robots.txt allows the fetch.
func (r *RobotsChecker) CanFetch(ctx context.Context, dependency, rawURL string) (bool, time.Duration, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false, 0, fmt.Errorf("parse URL: %w", err)
	}

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", parsed.Scheme, parsed.Host)

	data, err := r.getRobotsData(ctx, dependency, parsed.Host, robotsURL)
	if err != nil {
		return true, 0, nil
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	allowed := data.TestAgent(path, r.userAgent)

	crawlDelay := time.Duration(0)
	if group := data.FindGroup(r.userAgent); group != nil {
		crawlDelay = group.CrawlDelay
	}

	return allowed, crawlDelay, nil
}

func (r *RobotsChecker) getRobotsData(ctx context.Context, dependency, host, robotsURL string) (*robotstxt.RobotsData, error) {
	if cached, found := r.cache.Get(host); found {
		return cached.(*robotstxt.RobotsData), nil
	}

	status, body := 200, []byte(nil)
	result, err := r.fetcher.Fetch(ctx, dependency, robotsURL)
	if err != nil {
		// a 4xx robots.txt means no rules; anything else is unreachable
		var statusErr *resilience.HTTPStatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode >= 500 {
			return nil, fmt.Errorf("fetch robots.txt: %w", err)
		}
		status = statusErr.StatusCode
	} else {
		body = result.Body
	}

	data, err := robotstxt.FromStatusAndBytes(status, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	r.cache.SetDefault(host, data)
	return data, nil
}

// normalizeUserAgent keeps the product token for robots.txt group matching
func normalizeUserAgent(ua string) string {
	parts := strings.Fields(ua)
	if len(parts) > 0 {
		return strings.Split(parts[0], "/")[0]
	}
	return ua
}
