package interceptor

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-client/api"
	sessionerrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// RequestIDHeader carries the id logged for each round trip
const RequestIDHeader = "X-Request-ID"

// DefaultExemptPaths are never decorated with a token nor retried
var DefaultExemptPaths = []string{api.PathLogin, api.PathRegister, api.PathRefresh}

// Session is the part of auth.Service the transport depends on
type Session interface {
	GetToken() string
	GetRefreshToken() string
	Refresh(ctx context.Context) (*api.AuthResponse, error)
	Logout() error
}

// Transport attaches the bearer token to outbound requests and, on a 401, refreshes
// the session and replays the request once.
type Transport struct {
	base        http.RoundTripper
	session     Session
	exemptPaths []string
	logger      zerolog.Logger
}

var _ http.RoundTripper = (*Transport)(nil)

// Option configures a Transport
type Option func(*Transport)

// WithBase sets the RoundTripper requests are sent through. Defaults to http.DefaultTransport.
func WithBase(base http.RoundTripper) Option {
	return func(t *Transport) {
		t.base = base
	}
}

// WithExemptPaths replaces the path substrings that bypass authorization
func WithExemptPaths(paths ...string) Option {
	return func(t *Transport) {
		t.exemptPaths = paths
	}
}

// WithLogger sets the logger for round trip and refresh events. Defaults to zerolog.Nop().
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// New returns a Transport authorizing requests with the tokens held by session
func New(session Session, options ...Option) *Transport {
	t := &Transport{
		base:        http.DefaultTransport,
		session:     session,
		exemptPaths: DefaultExemptPaths,
		logger:      zerolog.Nop(),
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// Client returns an http.Client using the transport. A zero timeout means none.
func (t *Transport) Client(timeout time.Duration) *http.Client {
	return &http.Client{Transport: t, Timeout: timeout}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.exempt(req) {
		return t.base.RoundTrip(req)
	}

	requestID := req.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	logger := t.logger.With().
		Str("request_id", requestID).
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Logger()

	sentToken := t.session.GetToken()
	resp, err := t.base.RoundTrip(authorize(req, req.Body, sentToken, requestID))
	if err != nil {
		return nil, err
	}
	logger.Debug().Int("status", resp.StatusCode).Bool("token", sentToken != "").Msg("round trip")

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	if t.session.GetRefreshToken() == "" {
		logger.Debug().Msg("401 without refresh token")
		return resp, nil
	}
	if !replayable(req) {
		logger.Warn().Msg("401 on a request whose body cannot be replayed")
		return resp, nil
	}

	// Another request may already have refreshed while this one was in flight
	currentToken := t.session.GetToken()
	if currentToken == sentToken {
		if _, err := t.session.Refresh(req.Context()); err != nil {
			// The caller gave up; the shared refresh is still running and may succeed
			if ctxErr := req.Context().Err(); ctxErr != nil && sessionerrors.Is(err, ctxErr) {
				logger.Debug().Err(err).Msg("caller left during refresh")
				drain(resp)
				return nil, err
			}
			logger.Info().Err(err).Msg("refresh failed, logging out")
			if err := t.session.Logout(); err != nil {
				logger.Warn().Err(err).Msg("logout left a stored session behind")
			}
			return resp, nil
		}
		currentToken = t.session.GetToken()
	}

	body, err := replayBody(req)
	if err != nil {
		logger.Warn().Err(err).Msg("cannot replay request")
		return resp, nil
	}
	drain(resp)

	resp, err = t.base.RoundTrip(authorize(req, body, currentToken, requestID))
	if err != nil {
		return nil, err
	}
	logger.Debug().Int("status", resp.StatusCode).Msg("retried round trip")
	return resp, nil
}

func (t *Transport) exempt(req *http.Request) bool {
	for _, p := range t.exemptPaths {
		if strings.Contains(req.URL.Path, p) {
			return true
		}
	}
	return false
}

// authorize clones req with the given body and, when accessToken is set, a bearer header
func authorize(req *http.Request, body io.ReadCloser, accessToken, requestID string) *http.Request {
	out := req.Clone(req.Context())
	out.Body = body
	out.Header.Set(RequestIDHeader, requestID)
	if accessToken != "" {
		(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}).SetAuthHeader(out)
	}
	return out
}

func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func replayBody(req *http.Request) (io.ReadCloser, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return req.Body, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, sessionerrors.Wrapf(sessionerrors.ErrBodyNotReplayable, "%v", err)
	}
	return body, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
