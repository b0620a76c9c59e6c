package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/trogdorcult/burninator/internal/pkg/env"
)

const (
	defaultBaseURL      = "https://api.replicate.com/v1"
	DefaultModel        = "black-forest-labs/flux-1.1-pro"
	defaultTimeout      = 120 * time.Second
	defaultPollInterval = 2 * time.Second
)

var (
	ErrNotConfigured = errors.New("REPLICATE_API_TOKEN is not configured")
	ErrNoOutput      = errors.New("generation returned no image")
)

// Prediction is the provider's view of one generation.
type Prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

func (p *Prediction) done() bool {
	switch p.Status {
	case "succeeded", "failed", "canceled":
		return true
	}
	return false
}

// ImageURL accepts both a single URL and a list of URLs as output.
func (p *Prediction) ImageURL() (string, error) {
	if len(p.Output) == 0 || string(p.Output) == "null" {
		return "", ErrNoOutput
	}
	var single string
	if err := json.Unmarshal(p.Output, &single); err == nil && single != "" {
		return single, nil
	}
	var many []string
	if err := json.Unmarshal(p.Output, &many); err == nil && len(many) > 0 && many[0] != "" {
		return many[0], nil
	}
	return "", ErrNoOutput
}

// Client calls a Replicate-compatible prediction API.
type Client struct {
	Token        string
	Model        string
	BaseURL      string
	PollInterval time.Duration
	HTTPClient   *http.Client
}

func NewClientFromEnv() *Client {
	return &Client{
		Token:        strings.TrimSpace(env.GetEnv("REPLICATE_API_TOKEN", "")),
		Model:        env.GetEnv("REPLICATE_MODEL", DefaultModel),
		BaseURL:      strings.TrimRight(env.GetEnv("REPLICATE_BASE_URL", defaultBaseURL), "/"),
		PollInterval: defaultPollInterval,
		HTTPClient:   &http.Client{Timeout: env.GetEnvDuration("REPLICATE_TIMEOUT", defaultTimeout)},
	}
}

func (c *Client) ModelName() string { return c.Model }

// Generate runs one prediction to completion and returns it.
func (c *Client) Generate(ctx context.Context, prompt string) (*Prediction, error) {
	if c.Token == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(map[string]any{
		"input": map[string]any{
			"prompt":           prompt,
			"aspect_ratio":     "1:1",
			"output_format":    "png",
			"output_quality":   90,
			"safety_tolerance": 2,
		},
	})
	if err != nil {
		return nil, err
	}

	var pred Prediction
	path := "/models/" + c.Model + "/predictions"
	if err := c.do(ctx, http.MethodPost, c.BaseURL+path, body, &pred); err != nil {
		return nil, err
	}

	for !pred.done() {
		if pred.URLs.Get == "" {
			return nil, fmt.Errorf("prediction %s pending without poll url", pred.ID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.PollInterval):
		}
		if err := c.do(ctx, http.MethodGet, pred.URLs.Get, nil, &pred); err != nil {
			return nil, err
		}
	}

	if pred.Status != "succeeded" {
		return &pred, fmt.Errorf("prediction %s %s: %v", pred.ID, pred.Status, pred.Error)
	}
	return &pred, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")
	if method == http.MethodPost {
		req.Header.Set("Prefer", "wait")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("replicate %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warnf("[ImageGen] Provider returned %d", resp.StatusCode)
		return fmt.Errorf("replicate %s failed: status=%d body=%s", method, resp.StatusCode, string(raw))
	}
	return json.Unmarshal(raw, out)
}
