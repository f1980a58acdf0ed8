package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/mapsmith/mapsmith/internal/state"
)

// Remote delegates generation and execution to an HTTP script runtime
// exposing POST /generate and POST /execute. Transport failures and 5xx
// responses are retried; script errors reported in the response body are not.
type Remote struct {
	baseURL string
	token   string
	client  *retryablehttp.Client
}

// NewRemote creates a remote backend rooted at baseURL.
func NewRemote(baseURL, token string, retryMax int, timeout time.Duration, logger *slog.Logger) *Remote {
	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = timeout
	client.Logger = nil
	if logger != nil {
		client.Logger = logger
	}

	return &Remote{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

type generateRequest struct {
	RequestID    string         `json:"requestId"`
	Language     string         `json:"language"`
	SourceFormat string         `json:"sourceFormat,omitempty"`
	TargetFormat string         `json:"targetFormat,omitempty"`
	State        state.MapState `json:"state"`
}

type executeRequest struct {
	RequestID string `json:"requestId"`
	Language  string `json:"language"`
	Code      string `json:"code"`
	Input     string `json:"input"`
}

type remoteResponse struct {
	Code   string `json:"code,omitempty"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (r *Remote) Generate(ctx context.Context, s state.MapState, language string) (string, error) {
	req := generateRequest{
		RequestID:    uuid.NewString(),
		Language:     NormalizeLanguage(language),
		SourceFormat: s.SourceFormat,
		TargetFormat: s.TargetFormat,
		State:        s,
	}
	var resp remoteResponse
	if err := r.post(ctx, "/generate", req, &resp); err != nil {
		return "", fmt.Errorf("remote generate: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("remote generate: %w", errors.New(resp.Error))
	}
	return resp.Code, nil
}

func (r *Remote) Execute(ctx context.Context, language, code, payload string) (string, error) {
	req := executeRequest{
		RequestID: uuid.NewString(),
		Language:  NormalizeLanguage(language),
		Code:      code,
		Input:     payload,
	}
	var resp remoteResponse
	if err := r.post(ctx, "/execute", req, &resp); err != nil {
		return "", fmt.Errorf("remote execute: %w", err)
	}
	if resp.Error != "" {
		return "", errors.New(resp.Error)
	}
	return resp.Output, nil
}

func (r *Remote) post(ctx context.Context, path string, body any, out *remoteResponse) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, data)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(raw, out) == nil && out.Error != "" {
			return fmt.Errorf("status %d: %s", resp.StatusCode, out.Error)
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
