// Package facegate talks to the external face recognition service. The
// service owns all face signatures; this API never stores or processes
// biometric data itself.
package facegate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/facetrack/facetrack-api/pkg/config"
	appErrors "github.com/facetrack/facetrack-api/pkg/errors"
)

// Match is a recognition verdict: the enrolled subject the gateway matched
// and the similarity score it reported.
type Match struct {
	SubjectID  string  `json:"subject_id"`
	Similarity float64 `json:"similarity"`
}

// Client calls the recognition gateway over HTTP.
type Client struct {
	baseURL           string
	apiKey            string
	skip              bool
	threshold         float64
	fallbackThreshold float64
	httpClient        *http.Client
	logger            *zap.Logger
}

// NewClient builds a gateway client from configuration.
func NewClient(cfg config.FaceGateConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:           strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:            cfg.APIKey,
		skip:              cfg.Skip,
		threshold:         cfg.Threshold,
		fallbackThreshold: cfg.FallbackThreshold,
		httpClient:        &http.Client{Timeout: timeout},
		logger:            logger,
	}
}

// Skipped reports whether recognition is disabled by configuration. In skip
// mode captures fall back to explicit student selection.
func (c *Client) Skipped() bool {
	return c.skip
}

type searchRequest struct {
	Image     string  `json:"image"`
	Threshold float64 `json:"threshold"`
	Limit     int     `json:"limit"`
}

type searchResponse struct {
	Matches []Match `json:"matches"`
}

// Search submits an image and returns the best match, trying the primary
// similarity threshold first and the fallback threshold when nothing
// clears it. A nil match with a nil error means no enrolled face matched.
func (c *Client) Search(ctx context.Context, imageBase64 string) (*Match, error) {
	match, err := c.searchOnce(ctx, imageBase64, c.threshold)
	if err != nil {
		return nil, err
	}
	if match != nil {
		return match, nil
	}
	if c.fallbackThreshold > 0 && c.fallbackThreshold < c.threshold {
		c.logger.Debug("no match at primary threshold, retrying",
			zap.Float64("threshold", c.fallbackThreshold))
		return c.searchOnce(ctx, imageBase64, c.fallbackThreshold)
	}
	return nil, nil
}

func (c *Client) searchOnce(ctx context.Context, imageBase64 string, threshold float64) (*Match, error) {
	payload := searchRequest{Image: imageBase64, Threshold: threshold, Limit: 1}
	var result searchResponse
	if err := c.post(ctx, "/api/v1/recognition/search", payload, &result); err != nil {
		return nil, err
	}
	if len(result.Matches) == 0 {
		return nil, nil
	}
	best := result.Matches[0]
	return &best, nil
}

type enrollRequest struct {
	SubjectID string `json:"subject_id"`
	Image     string `json:"image"`
}

// Enroll registers a face image under the given subject id.
func (c *Client) Enroll(ctx context.Context, subjectID, imageBase64 string) error {
	if c.skip {
		return nil
	}
	return c.post(ctx, "/api/v1/recognition/subjects", enrollRequest{SubjectID: subjectID, Image: imageBase64}, nil)
}

// Delete removes every face signature stored for the subject.
func (c *Client) Delete(ctx context.Context, subjectID string) error {
	if c.skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/v1/recognition/subjects/"+subjectID, nil)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	return c.do(req, nil)
}

// Health probes the gateway.
func (c *Client) Health(ctx context.Context) error {
	if c.skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	return c.do(req, nil)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode gateway request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("recognition gateway unreachable", zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrGatewayUnavailable.Code, appErrors.ErrGatewayUnavailable.Status, appErrors.ErrGatewayUnavailable.Message)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("recognition gateway error",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body))
		return appErrors.Clone(appErrors.ErrGatewayUnavailable, fmt.Sprintf("face recognition service returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway rejected request: %d %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}
