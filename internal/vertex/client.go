package vertex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/auth"
	"cloud.google.com/go/auth/oauth2adapt"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/genai"
)

// Scope is the OAuth scope both engines are called with.
const Scope = "https://www.googleapis.com/auth/cloud-platform"

const maxResponseBytes = 8 << 20

// Client is the shared transport for the managed optimization and
// generation endpoints of one project/location. Every request carries a
// token from the same source, refreshed as it expires.
type Client struct {
	baseURL  string
	project  string
	location string
	http     *http.Client
	genai    *genai.Client
}

// DefaultTokenSource resolves Application Default Credentials.
func DefaultTokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	ts, err := google.DefaultTokenSource(ctx, Scope)
	if err != nil {
		return nil, fmt.Errorf("find default credentials: %w", err)
	}
	return ts, nil
}

func NewClient(ctx context.Context, baseURL, project, location string, ts oauth2.TokenSource) (*Client, error) {
	hc := oauth2.NewClient(ctx, ts)
	hc.Timeout = 5 * time.Minute

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend:  genai.BackendVertexAI,
		Project:  project,
		Location: location,
		Credentials: auth.NewCredentials(&auth.CredentialsOptions{
			TokenProvider: oauth2adapt.TokenProviderFromTokenSource(ts),
		}),
		HTTPClient:  hc,
		HTTPOptions: genai.HTTPOptions{BaseURL: strings.TrimRight(baseURL, "/") + "/"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Client{
		baseURL:  baseURL,
		project:  project,
		location: location,
		http:     hc,
		genai:    gc,
	}, nil
}

func (c *Client) resourcePath() string {
	return fmt.Sprintf("projects/%s/locations/%s", c.project, c.location)
}

func (c *Client) buildURL(version, resource string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + version + "/" + resource
	return u.String(), nil
}

// post sends a JSON request on the authenticated transport. The genai SDK
// has no method for optimizePrompt, so that endpoint goes through here.
func (c *Client) post(ctx context.Context, target string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	log.Debug().
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Int("bytes", len(respBody)).
		Dur("duration", time.Since(start)).
		Msg("vertex call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: snippet(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 300 {
		s = s[:300] + "..."
	}
	return s
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

func (c content) text() string {
	var sb strings.Builder
	for _, p := range c.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}
