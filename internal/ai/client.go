package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// ErrInvalidJSON is returned when the model content looks like JSON but does not parse.
var ErrInvalidJSON = errors.New("invalid json in model output")

type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CallParams struct {
	APIURL            string
	APIKey            string
	Model             string
	Messages          []Message
	Temperature       float64
	Timeout           time.Duration
	UseResponseFormat bool
}

// HTTPError is a non-2xx response from the provider.
type HTTPError struct {
	Status     int
	StatusText string
	URL        string
	RequestID  string
	Body       string
}

func (e *HTTPError) Error() string {
	st := e.StatusText
	if st == "" {
		st = "unknown"
	}
	return fmt.Sprintf("AI HTTP %d (%s)", e.Status, st)
}

// Client posts chat-completion style requests to an OpenAI compatible endpoint.
type Client struct {
	httpc Doer
}

func NewClient(httpc Doer) *Client {
	if httpc == nil {
		httpc = &http.Client{}
	}
	return &Client{httpc: httpc}
}

// Call sends one request and returns the JSON object extracted from the
// assistant content. When no JSON is found the raw content string is
// returned, and when the payload carries no content the payload itself.
// A 400 rejecting the temperature is retried once with the allowed value.
func (c *Client) Call(ctx context.Context, p CallParams) (any, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	v, err := c.do(ctx, p, p.Temperature)
	if err == nil {
		return v, nil
	}
	var herr *HTTPError
	if !errors.As(err, &herr) {
		return nil, err
	}
	allowed, ok := allowedTemperature(herr.Status, herr.Body)
	if !ok || allowed == p.Temperature {
		return nil, err
	}
	return c.do(ctx, p, allowed)
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

func (c *Client) do(ctx context.Context, p CallParams, temperature float64) (any, error) {
	body := chatRequest{Model: p.Model, Messages: p.Messages, Temperature: temperature}
	if p.UseResponseFormat {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.APIURL, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		rid := resp.Header.Get("X-Request-Id")
		if rid == "" {
			rid = resp.Header.Get("X-Correlation-Id")
		}
		return nil, &HTTPError{
			Status:     resp.StatusCode,
			StatusText: strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprint(resp.StatusCode))),
			URL:        p.APIURL,
			RequestID:  rid,
			Body:       string(raw),
		}
	}

	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode provider response: %w", err)
	}
	content, ok := extractContent(payload)
	if !ok {
		return payload, nil
	}
	text, ok := extractJSON(content)
	if !ok {
		return content, nil
	}
	var out any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return out, nil
}

// extractContent takes the first present, non-null field among
// choices[0].message.content, choices[0].text, content and output. Content
// that is not a non-empty string yields false.
func extractContent(payload any) (string, bool) {
	m, ok := payload.(map[string]any)
	if !ok {
		return "", false
	}
	var candidates []any
	if choices, ok := m["choices"].([]any); ok && len(choices) > 0 {
		if first, ok := choices[0].(map[string]any); ok {
			if msg, ok := first["message"].(map[string]any); ok {
				candidates = append(candidates, msg["content"])
			}
			candidates = append(candidates, first["text"])
		}
	}
	candidates = append(candidates, m["content"], m["output"])
	for _, c := range candidates {
		if c == nil {
			continue
		}
		s, ok := c.(string)
		return s, ok && s != ""
	}
	return "", false
}

var fencedJSON = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")

func extractJSON(text string) (string, bool) {
	t := strings.TrimSpace(text)
	if strings.HasPrefix(t, "{") && strings.HasSuffix(t, "}") {
		return t, true
	}
	if m := fencedJSON.FindStringSubmatch(t); m != nil && strings.TrimSpace(m[1]) != "" {
		return strings.TrimSpace(m[1]), true
	}
	first, last := strings.Index(t, "{"), strings.LastIndex(t, "}")
	if first >= 0 && last > first {
		return t[first : last+1], true
	}
	return "", false
}
