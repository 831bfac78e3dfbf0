package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrMalformedResponse marks a provider reply that could not be parsed.
var ErrMalformedResponse = errors.New("malformed provider response")

const maxErrorBody = 512

// Prediction is one detection returned by the provider.
type Prediction struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	Confidence  float64 `json:"confidence"`
	Class       string  `json:"class"`
	ClassID     int     `json:"class_id"`
	DetectionID string  `json:"detection_id"`
}

// Request is a single inference call. Image holds the encoded bytes to classify.
type Request struct {
	Image      []byte
	ModelID    string
	Confidence float64
}

// Provider runs remote inference.
type Provider interface {
	Infer(ctx context.Context, req Request) ([]Prediction, error)
}

// StatusError is a non-2xx reply from the provider.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider response status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether repeating the call may succeed.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type ClientConfig struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	MaxRetries    int
	RetryInterval time.Duration
}

// HostedClient talks to a hosted detection API that accepts base64 images.
type HostedClient struct {
	baseURL       string
	apiKey        string
	maxRetries    int
	retryInterval time.Duration
	httpClient    *http.Client
}

func NewHostedClient(cfg ClientConfig) *HostedClient {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 500 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &HostedClient{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		maxRetries:    cfg.MaxRetries,
		retryInterval: cfg.RetryInterval,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
	}
}

// Infer posts the image and returns predictions in provider order.
// Transport failures, 429 and 5xx replies are retried up to the configured limit.
func (c *HostedClient) Infer(ctx context.Context, req Request) ([]Prediction, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	bounded := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxRetries)), ctx)

	var predictions []Prediction
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		var err error
		predictions, err = c.inferOnce(ctx, req)
		if err == nil {
			return nil
		}
		var statusErr *StatusError
		if errors.Is(err, ErrMalformedResponse) || (errors.As(err, &statusErr) && !statusErr.Retryable()) {
			return backoff.Permanent(err)
		}
		log.Printf("provider attempt %d for model %s failed: %v", attempt, req.ModelID, err)
		return err
	}, bounded)
	if err != nil {
		return nil, err
	}
	return predictions, nil
}

func (c *HostedClient) inferOnce(ctx context.Context, req Request) ([]Prediction, error) {
	query := url.Values{}
	query.Set("api_key", c.apiKey)
	query.Set("confidence", strconv.FormatFloat(req.Confidence*100, 'f', -1, 64))
	query.Set("format", "json")
	endpoint := c.baseURL + "/" + strings.Trim(req.ModelID, "/") + "?" + query.Encode()

	body := base64.StdEncoding.EncodeToString(req.Image)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader([]byte(body)))
	if err != nil {
		return nil, fmt.Errorf("build provider request failed: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", stripAPIKey(err, c.apiKey))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read provider response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		text := strings.TrimSpace(string(raw))
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: text}
	}

	var parsed struct {
		Predictions []Prediction `json:"predictions"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if parsed.Predictions == nil {
		parsed.Predictions = []Prediction{}
	}
	return parsed.Predictions, nil
}

// stripAPIKey keeps the key out of url.Error messages, which embed the request URL.
func stripAPIKey(err error, key string) error {
	if key == "" || !strings.Contains(err.Error(), key) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), key, "***"))
}
