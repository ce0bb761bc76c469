package mlscore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/ppiankov/signalwatch/internal/model"
	"github.com/ppiankov/signalwatch/internal/resilience"
)

// HTTPScorer posts events to a scoring service at BaseURL/score
type HTTPScorer struct {
	endpoint   string
	httpClient *http.Client
	executor   failsafe.Executor[*model.MLAssessment]
}

// NewHTTPScorer creates a scorer from config. Transient failures are retried
// twice with backoff.
func NewHTTPScorer(cfg model.MLConfig) (*HTTPScorer, error) {
	return newHTTPScorer(cfg, 250*time.Millisecond, 2*time.Second)
}

func newHTTPScorer(cfg model.MLConfig, baseDelay, maxDelay time.Duration) (*HTTPScorer, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("ml base_url is required for the http provider")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	retry := retrypolicy.NewBuilder[*model.MLAssessment]().
		WithBackoff(baseDelay, maxDelay).
		WithMaxRetries(2).
		WithJitterFactor(0.1).
		HandleIf(func(_ *model.MLAssessment, err error) bool {
			return resilience.IsTransient(err)
		}).
		Build()

	return &HTTPScorer{
		endpoint:   strings.TrimSuffix(cfg.BaseURL, "/") + "/score",
		httpClient: &http.Client{Timeout: timeout},
		executor:   failsafe.With[*model.MLAssessment](retry),
	}, nil
}

func (s *HTTPScorer) Name() string {
	return "http"
}

func (s *HTTPScorer) Score(ctx context.Context, req Request) (*model.MLAssessment, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	a, err := s.executor.WithContext(ctx).Get(func() (*model.MLAssessment, error) {
		return s.post(ctx, body)
	})
	if err != nil {
		return nil, fmt.Errorf("score request: %w", err)
	}
	return a, nil
}

func (s *HTTPScorer) post(ctx context.Context, body []byte) (*model.MLAssessment, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &resilience.HTTPStatusError{URL: s.endpoint, StatusCode: resp.StatusCode}
	}

	var a model.MLAssessment
	if err := json.Unmarshal(respBody, &a); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if err := validate(&a); err != nil {
		return nil, err
	}
	return &a, nil
}
