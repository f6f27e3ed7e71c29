// Package gemini implements llm.Provider for Google Gemini.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"wayfarer/pkg/config"
)

// Client implements llm.Provider for Google Gemini.
type Client struct {
	genaiClient *genai.Client
	apiKey      string
	modelName   string
	retries     int

	mu sync.RWMutex
}

// NewClient creates a new Gemini client.
func NewClient(cfg config.LLMConfig) (*Client, error) {
	c := &Client{}
	if err := c.Configure(cfg); err != nil {
		return nil, err
	}
	return c, nil
}

// Configure updates the client with new settings.
func (c *Client) Configure(cfg config.LLMConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.apiKey = cfg.Key
	c.modelName = cfg.Model
	c.retries = cfg.Retries

	if c.modelName == "" {
		c.modelName = "gemini-2.5-flash"
	}
	if c.retries <= 0 {
		c.retries = 5
	}

	if c.apiKey == "" {
		// Can't initialize without key.
		c.genaiClient = nil
		return nil
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: c.apiKey,
	})
	if err != nil {
		return fmt.Errorf("failed to create genai client: %w", err)
	}
	c.genaiClient = client
	return nil
}

// Close cleans up resources.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.genaiClient = nil
}

// HealthCheck verifies that the provider is configured and reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	client := c.genaiClient
	name := c.modelName
	c.mu.RUnlock()

	if client == nil {
		return fmt.Errorf("gemini client not configured")
	}
	if !strings.HasPrefix(name, "models/") {
		name = "models/" + name
	}
	if _, err := client.Models.Get(ctx, name, nil); err != nil {
		return fmt.Errorf("gemini model check failed: %w", err)
	}
	return nil
}

// GenerateText sends a prompt and returns the text response.
func (c *Client) GenerateText(ctx context.Context, name, prompt string) (string, error) {
	resp, err := c.generate(ctx, name, prompt, nil)
	if err != nil {
		return "", err
	}
	return getResponseText(resp)
}

// GenerateJSON sends a prompt and unmarshals the response into the target struct.
func (c *Client) GenerateJSON(ctx context.Context, name, prompt string, target any) error {
	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	resp, err := c.generate(ctx, name, prompt, cfg)
	if err != nil {
		return err
	}
	text, err := getResponseText(resp)
	if err != nil {
		return err
	}

	// Sanitize Markdown JSON blocks if present
	cleaned := cleanJSONBlock(text)
	if err := json.Unmarshal([]byte(cleaned), target); err != nil {
		return fmt.Errorf("failed to unmarshal JSON response: %w. Response: %s", err, cleaned)
	}
	return nil
}

// generate issues the call with exponential backoff on rate limits, overload,
// and connection errors.
func (c *Client) generate(ctx context.Context, name, prompt string, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	c.mu.RLock()
	client := c.genaiClient
	modelName := c.modelName
	retries := c.retries
	c.mu.RUnlock()

	if client == nil {
		return nil, fmt.Errorf("gemini client not configured")
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<(attempt-1)) * time.Second
			slog.Warn("gemini call failed, retrying", "intent", name, "attempt", attempt+1, "delay", delay, "error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := client.Models.GenerateContent(ctx, modelName, genai.Text(prompt), cfg)
		if err == nil {
			return resp, nil
		}
		if !transient(err) {
			return nil, fmt.Errorf("generate content error: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("gemini retries exhausted: %w", lastErr)
}

// transient reports whether an error is worth retrying: rate limiting (429),
// overload (529), server errors, and connection failures.
func transient(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.Code
		return code == 429 || code == 529 || (code >= 500 && code < 600)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return strings.Contains(err.Error(), "connection")
}

func getResponseText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}

func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimSuffix(text, "```")
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
	}
	return strings.TrimSpace(text)
}
