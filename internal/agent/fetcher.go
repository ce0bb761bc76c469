package agent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ppiankov/signalwatch/internal/model"
	"github.com/ppiankov/signalwatch/internal/resilience"
	"github.com/sirupsen/logrus"
)

// Fetcher performs outbound HTTP fetches for agents. Every request runs
// through the dependency's limiter and breaker, with backoff-retry around it.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	deps       *resilience.Dependencies
	retry      resilience.RetryPolicy
	log        logrus.FieldLogger
}

// NewFetcher creates a new Fetcher with the given configuration
func NewFetcher(cfg model.HTTPConfig, deps *resilience.Dependencies, log logrus.FieldLogger) *Fetcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	maxBytes := cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 5_000_000
	}

	f := &Fetcher{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:               newProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy),
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		userAgent: cfg.UserAgent,
		maxBytes:  maxBytes,
		deps:      deps,
		retry:     deps.RetryPolicy(),
		log:       log,
	}

	f.retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		f.log.WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay.Round(time.Millisecond).String(),
		}).WithError(err).Warn("fetch failed, retrying")
	}
	return f
}

// FetchResult contains the fetched body and metadata
type FetchResult struct {
	Body         []byte
	ContentType  string
	LastModified string
	FinalURL     string
}

// Fetch retrieves rawURL as one guarded call to dependency, retrying transient failures
func (f *Fetcher) Fetch(ctx context.Context, dependency, rawURL string) (*FetchResult, error) {
	if dependency == "" {
		dependency = DependencyFor(rawURL)
	}

	var result *FetchResult
	err := resilience.Retry(ctx, f.retry, func(ctx context.Context) error {
		// each attempt hands its result over its own channel; a timed-out
		// attempt may still finish in the background
		out := make(chan *FetchResult, 1)
		err := f.deps.Guard(ctx, dependency, func(ctx context.Context) error {
			r, err := f.fetchOnce(ctx, rawURL)
			if err != nil {
				return err
			}
			out <- r
			return nil
		})
		if err != nil {
			return err
		}
		result = <-out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml,application/atom+xml,application/xml;q=0.9,text/html;q=0.8,*/*;q=0.5")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &resilience.HTTPStatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	// Read body with size limit
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &FetchResult{
		Body:         body,
		ContentType:  resp.Header.Get("Content-Type"),
		LastModified: resp.Header.Get("Last-Modified"),
		FinalURL:     resp.Request.URL.String(),
	}, nil
}

// DependencyFor names the dependency a URL belongs to: its host
func DependencyFor(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Host
}

// newProxyFunc creates a proxy function based on configuration.
// If no proxy URLs are provided, falls back to environment variables.
func newProxyFunc(httpProxy, httpsProxy string) func(*http.Request) (*url.URL, error) {
	if httpProxy == "" && httpsProxy == "" {
		return http.ProxyFromEnvironment
	}

	return func(req *http.Request) (*url.URL, error) {
		if req.URL.Scheme == "https" && httpsProxy != "" {
			return url.Parse(httpsProxy)
		}
		if httpProxy != "" {
			return url.Parse(httpProxy)
		}
		return http.ProxyFromEnvironment(req)
	}
}
