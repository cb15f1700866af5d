package generative

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
)

// Options are the sampling parameters sent with each request.
type Options struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

// Client speaks the Ollama HTTP API.
type Client struct {
	http    *http.Client
	baseURL string
	model   string
}

// NewClient builds a client for baseURL (for example http://localhost:11434/api).
func NewClient(httpClient *http.Client, baseURL, model string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
	}
}

// Model reports the configured model name.
func (c *Client) Model() string { return c.model }

// Probe checks that the service answers GET {base}/tags.
func (c *Client) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("probe status %d", resp.StatusCode)
	}
	return nil
}

// Generate posts a non-streaming completion request and returns the raw
// response text.
func (c *Client) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	payload := map[string]interface{}{
		"model":   c.model,
		"prompt":  prompt,
		"stream":  false,
		"options": opts,
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("generate status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var wrapper struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		return "", err
	}
	if strings.TrimSpace(wrapper.Response) == "" {
		return "", errors.New("empty generate response")
	}
	return wrapper.Response, nil
}
