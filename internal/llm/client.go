package llm

import (
	"bufio"
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

// Streamer issues one streaming chat call. The handler receives ordered
// chunks for a single logical request; a stream is not restartable once
// any chunk has been delivered.
type Streamer interface {
	StreamChat(ctx context.Context, req *ChatRequest, handler StreamHandler) error
}

// Client talks to an OpenAI-compatible chat/completions endpoint.
type Client struct {
	// baseURL points to the gateway, with or without /chat/completions.
	baseURL string
	// apiKey is sent as a bearer token, if provided.
	apiKey string
	// httpClient executes requests with timeouts.
	httpClient *http.Client
}

// NewClient constructs a client for the given gateway.
func NewClient(baseURL string, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// StreamChat executes a streaming chat/completions request, invoking the
// handler once per SSE event.
func (c *Client) StreamChat(ctx context.Context, req *ChatRequest, handler StreamHandler) error {
	if handler == nil {
		return errors.New("stream handler is required")
	}
	if req == nil {
		return errors.New("chat request is required")
	}

	req.Stream = true
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.completionsURL(),
		bytes.NewReader(payload),
	)
	if err != nil {
		return fmt.Errorf("create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("read stream error body: %w", readErr)
		}
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	reader := bufio.NewReader(resp.Body)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		data, err := readSSEEvent(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read stream event: %w", err)
		}
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return nil
		}
		var event StreamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return fmt.Errorf("parse stream event: %w", err)
		}
		if err := handler(event); err != nil {
			return err
		}
	}
}

// completionsURL normalizes the base URL to a chat/completions endpoint.
func (c *Client) completionsURL() string {
	if strings.HasSuffix(c.baseURL, "/chat/completions") {
		return c.baseURL
	}
	return c.baseURL + "/chat/completions"
}

// readSSEEvent reads a single SSE event payload.
func readSSEEvent(reader *bufio.Reader) (string, error) {
	var builder strings.Builder
	for {
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if builder.Len() == 0 {
				if errors.Is(err, io.EOF) {
					return "", io.EOF
				}
				continue
			}
			return strings.TrimSuffix(builder.String(), "\n"), nil
		}
		if strings.HasPrefix(line, "data:") {
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			builder.WriteString(payload)
			builder.WriteByte('\n')
		}
		if errors.Is(err, io.EOF) {
			if builder.Len() == 0 {
				return "", io.EOF
			}
			return strings.TrimSuffix(builder.String(), "\n"), nil
		}
	}
}
