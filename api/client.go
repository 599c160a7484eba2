package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-session-client/users"
	"github.com/rs/zerolog"
)

// maxErrorBody bounds how much of an error response is kept
const maxErrorBody = 64 << 10

// Client talks JSON to the console backend
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     zerolog.Logger
}

type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client, e.g. with one whose Transport authorizes requests
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the API rooted at baseURL (e.g. "https://host/api")
func NewClient(baseURL string, options ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("[api.NewClient] invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("[api.NewClient] base URL %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{},
		logger:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Endpoint resolves a path against the base URL
func (c *Client) Endpoint(path string) string {
	u := *c.baseURL
	rel, err := url.Parse(path)
	if err != nil {
		u.Path = u.Path + "/" + strings.TrimLeft(path, "/")
		return u.String()
	}
	u.Path = u.Path + "/" + strings.TrimLeft(rel.Path, "/")
	u.RawQuery = rel.RawQuery
	return u.String()
}

// Login posts the credential to /auth/login
func (c *Client) Login(ctx context.Context, credential users.Credential) Result[*AuthResponse] {
	return c.authCall(ctx, PathLogin, credential)
}

// Register posts the profile to /auth/register
func (c *Client) Register(ctx context.Context, profile users.Profile) Result[*AuthResponse] {
	return c.authCall(ctx, PathRegister, profile)
}

// Refresh exchanges a refresh token for a new pair at /auth/refresh
func (c *Client) Refresh(ctx context.Context, refreshToken string) Result[*AuthResponse] {
	return c.authCall(ctx, PathRefresh, RefreshRequest{RefreshToken: refreshToken})
}

func (c *Client) authCall(ctx context.Context, path string, body any) Result[*AuthResponse] {
	var resp AuthResponse
	if err := c.Post(ctx, path, body, &resp); err != nil {
		return Fail[*AuthResponse](err)
	}
	if resp.Pair.Empty() {
		return Fail[*AuthResponse](fmt.Errorf("[api.%s] response carried no access token", strings.TrimPrefix(path, "/auth/")))
	}
	return Ok(&resp)
}

// Get decodes the JSON response of GET path into out (which may be nil)
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

// Post sends body as JSON and decodes the response into out
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, body, out)
}

// Put sends body as JSON and decodes the response into out
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, http.MethodPut, path, body, out)
}

// Delete issues DELETE path and decodes any response into out
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodDelete, path, nil, out)
}

// File is one part of a multipart upload
type File struct {
	Field    string
	Name     string
	Contents []byte
}

// PostMultipart uploads fields and files as multipart/form-data
func (c *Client) PostMultipart(ctx context.Context, path string, fields map[string]string, files []File, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return fmt.Errorf("[api.PostMultipart] write field %s: %w", k, err)
		}
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.Field, f.Name)
		if err != nil {
			return fmt.Errorf("[api.PostMultipart] create part %s: %w", f.Field, err)
		}
		if _, err := part.Write(f.Contents); err != nil {
			return fmt.Errorf("[api.PostMultipart] write part %s: %w", f.Field, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("[api.PostMultipart] close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(path), bytes.NewReader(buf.Bytes()))
	if err != nil {
		return fmt.Errorf("[api.PostMultipart] new request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("[api.%s] encode body: %w", method, err)
		}
		// bytes.Reader lets http.NewRequest set GetBody, so the request can be replayed
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.Endpoint(path), reader)
	if err != nil {
		return fmt.Errorf("[api.%s] new request: %w", method, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Msg("api response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return newError(resp.StatusCode, body)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("[api.%s] decode response: %w", req.Method, err)
	}
	return nil
}
