// Package compose generates post and reply text through an OpenAI-style
// chat completions endpoint (OpenRouter by default). All calls go through
// a shared rate limiter and a retry loop that honors Retry-After.
package compose

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"starling/internal/config"
	"starling/internal/metrics"
	"starling/internal/util"
)

// ErrUnavailable reports that the model endpoint kept failing after retries.
var ErrUnavailable = errors.New("model unavailable")

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client is a thin chat-completions client with rate limiting and retries.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	referer     string
	title       string
	limiter     *rate.Limiter
	maxAttempts int
	baseBackoff time.Duration
}

// NewClient builds a Client from config. Missing limits fall back to
// defaults so a partially filled config still works.
func NewClient(cfg config.LLMConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 20
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		referer:     cfg.Referer,
		title:       cfg.Title,
		limiter:     rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 2),
		maxAttempts: getEnvInt("STARLING_LLM_MAX_ATTEMPTS", 5),
		baseBackoff: 500 * time.Millisecond,
	}
}

// Complete sends one system+user exchange and returns the assistant text
// with surrounding quotes stripped.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("llm api key not set")
	}
	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", err
	}
	resp, err := c.postWithRetry(ctx, c.baseURL+"/chat/completions", payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("llm status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode llm response: %w", err)
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return "", fmt.Errorf("llm error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}
	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	text = util.StripSurroundingQuotes(text)
	if text == "" {
		return "", fmt.Errorf("llm returned empty text")
	}
	return text, nil
}

// postWithRetry sends the payload, retrying on 429 and 5xx with
// exponential backoff. The request is rebuilt each attempt so the body
// can be resent. Other statuses are returned to the caller as-is.
func (c *Client) postWithRetry(ctx context.Context, url string, payload []byte) (*http.Response, error) {
	var resp *http.Response
	var err error
	backoff := c.baseBackoff
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err = c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		var req *http.Request
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		if c.referer != "" {
			req.Header.Set("HTTP-Referer", c.referer)
		}
		if c.title != "" {
			req.Header.Set("X-Title", c.title)
		}
		resp, err = c.httpClient.Do(req)
		if err == nil && resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			return resp, nil
		}
		// compute wait: Retry-After or backoff
		wait := backoff
		if resp != nil {
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, perr := strconv.Atoi(ra); perr == nil {
					wait = time.Duration(secs) * time.Second
				} else if t, perr2 := http.ParseTime(ra); perr2 == nil {
					wait = time.Until(t)
				}
			}
			resp.Body.Close()
		}
		if wait < 0 {
			wait = 0
		}
		// jitter +/-20%
		jitter := time.Duration(float64(wait) * 0.2)
		if jitter > 0 {
			wait = wait - jitter + time.Duration(time.Now().UnixNano()%int64(2*jitter))
		}
		metrics.IncLLMRetry("chat")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	if err == nil && resp != nil {
		err = fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrUnavailable, c.maxAttempts, err)
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
