package auth

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jrsteele09/go-session-client/api"
	sessionerrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/sessions"
	"github.com/jrsteele09/go-session-client/token"
	"github.com/jrsteele09/go-session-client/token/store"
	"github.com/jrsteele09/go-session-client/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultExpiryThreshold is how close to exp a token counts as expiring soon
	DefaultExpiryThreshold = 5 * time.Minute

	// DefaultLoginRoute is where Logout navigates when no route is configured
	DefaultLoginRoute = "/auth/login"

	refreshKey = "refresh"
)

// Backend is the remote API the service authenticates against. *api.Client satisfies it.
type Backend interface {
	Login(ctx context.Context, credential users.Credential) api.Result[*api.AuthResponse]
	Register(ctx context.Context, profile users.Profile) api.Result[*api.AuthResponse]
	Refresh(ctx context.Context, refreshToken string) api.Result[*api.AuthResponse]
}

// Navigator redirects to a named route with optional query parameters
type Navigator interface {
	Navigate(route string, query url.Values)
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func(route string, query url.Values)

func (f NavigatorFunc) Navigate(route string, query url.Values) {
	f(route, query)
}

// Service owns the token store and session state and is the single source of truth
// for the authentication lifecycle.
type Service struct {
	backend         Backend
	store           *store.Store
	state           *sessions.State
	navigator       Navigator
	loginRoute      string
	expiryThreshold time.Duration
	loginTimeout    time.Duration
	nowTime         func() time.Time // nowTime function (injectable for testing)
	logger          zerolog.Logger
	refreshGroup    singleflight.Group
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// WithLogger sets the logger for session events. Defaults to zerolog.Nop().
func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithNavigator makes Logout redirect to loginRoute. An empty route keeps DefaultLoginRoute.
func WithNavigator(navigator Navigator, loginRoute string) ServiceOption {
	return func(s *Service) {
		s.navigator = navigator
		if loginRoute != "" {
			s.loginRoute = loginRoute
		}
	}
}

// WithExpiryThreshold sets the window used by NeedsRefresh and the token source
func WithExpiryThreshold(threshold time.Duration) ServiceOption {
	return func(s *Service) {
		s.expiryThreshold = threshold
	}
}

// WithLoginTimeout bounds login and register calls. Zero means no bound.
func WithLoginTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		s.loginTimeout = timeout
	}
}

// NewService creates the service and seeds the session state from the store.
func NewService(backend Backend, st *store.Store, state *sessions.State, options ...ServiceOption) (*Service, error) {
	if backend == nil {
		return nil, errors.New("[NewService] backend is required")
	}
	if st == nil {
		return nil, errors.New("[NewService] store is required")
	}
	if state == nil {
		return nil, errors.New("[NewService] session state is required")
	}

	s := &Service{
		backend:         backend,
		store:           st,
		state:           state,
		loginRoute:      DefaultLoginRoute,
		expiryThreshold: DefaultExpiryThreshold,
		nowTime:         time.Now,
		logger:          zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}

	if user := st.User(); user != nil {
		state.Set(user)
	}
	return s, nil
}

// Login authenticates the credential and establishes the session.
// Backend errors are returned unchanged.
func (s *Service) Login(ctx context.Context, credential users.Credential) (*api.AuthResponse, error) {
	if err := credential.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := s.withLoginTimeout(ctx)
	defer cancel()

	result := s.backend.Login(ctx, credential)
	if !result.Succeeded() {
		s.logger.Info().Int("status", api.StatusCode(result.Err)).Msg("login failed")
		return nil, result.Err
	}
	if err := s.establish(result.Value, result.Value.User); err != nil {
		return nil, errors.Wrap(err, "[Service.Login] persist session")
	}
	s.logger.Info().Str("user_id", userID(result.Value.User)).Msg("logged in")
	return result.Value, nil
}

// Register creates the account and establishes a session exactly as Login does.
func (s *Service) Register(ctx context.Context, profile users.Profile) (*api.AuthResponse, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := s.withLoginTimeout(ctx)
	defer cancel()

	result := s.backend.Register(ctx, profile)
	if !result.Succeeded() {
		s.logger.Info().Int("status", api.StatusCode(result.Err)).Msg("registration failed")
		return nil, result.Err
	}
	if err := s.establish(result.Value, result.Value.User); err != nil {
		return nil, errors.Wrap(err, "[Service.Register] persist session")
	}
	s.logger.Info().Str("user_id", userID(result.Value.User)).Msg("registered")
	return result.Value, nil
}

// Logout tears down the local session and navigates to the login route.
// The backend is not contacted. The error is the one reported by EndSession; the
// navigation happens regardless.
func (s *Service) Logout() error {
	err := s.EndSession()
	if s.navigator != nil {
		s.navigator.Navigate(s.loginRoute, nil)
	}
	return err
}

// EndSession clears the store and the session state without navigating.
//
// The in-memory state is always cleared, so the process is signed out even when the
// store cannot be cleared. That failure is returned: the stored pair may still be
// there for the next NewService to seed from.
func (s *Service) EndSession() error {
	var err error
	if clearErr := s.store.Clear(); clearErr != nil {
		s.logger.Warn().Err(clearErr).Msg("clearing stored session")
		err = errors.Wrap(clearErr, "[Service.EndSession] clear store")
	}
	s.state.Clear()
	return err
}

// Refresh exchanges the stored refresh token for a new pair.
//
// Concurrent callers share a single in-flight request and its result. A caller whose
// ctx ends stops waiting, but the request itself runs to completion. Any failure ends
// the session; a 4xx answer is reported as ErrRefreshRejected.
func (s *Service) Refresh(ctx context.Context) (*api.AuthResponse, error) {
	if s.store.RefreshToken() == "" {
		return nil, sessionerrors.ErrNoRefreshToken
	}

	detached := context.WithoutCancel(ctx)
	ch := s.refreshGroup.DoChan(refreshKey, func() (any, error) {
		return s.refresh(detached)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*api.AuthResponse), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) refresh(ctx context.Context) (*api.AuthResponse, error) {
	// Re-read under the flight; a previous flight may have rotated the token
	refreshToken := s.store.RefreshToken()
	if refreshToken == "" {
		return nil, sessionerrors.ErrNoRefreshToken
	}

	result := s.backend.Refresh(ctx, refreshToken)
	if !result.Succeeded() {
		_ = s.EndSession()
		s.logger.Info().Int("status", api.StatusCode(result.Err)).Msg("refresh failed, session ended")
		if api.IsClientError(result.Err) {
			return nil, fmt.Errorf("%w: %w", sessionerrors.ErrRefreshRejected, result.Err)
		}
		return nil, errors.Wrap(result.Err, "[Service.Refresh] refresh request")
	}

	user := result.Value.User
	if user == nil {
		user = s.state.Current()
	}
	if err := s.establish(result.Value, user); err != nil {
		return nil, errors.Wrap(err, "[Service.Refresh] persist session")
	}
	s.logger.Debug().Msg("session refreshed")
	return result.Value, nil
}

// establish persists the pair and user and then publishes the user. A failed write
// leaves neither the store nor the state holding a session.
func (s *Service) establish(resp *api.AuthResponse, user *users.User) error {
	if err := s.store.Save(resp.Pair, user); err != nil {
		_ = s.EndSession()
		return err
	}
	s.state.Set(user)
	return nil
}

// IsAuthenticated is true iff an access token is stored. Expiry is not checked.
func (s *Service) IsAuthenticated() bool {
	return s.store.AccessToken() != ""
}

// IsTokenExpired is true for an absent or malformed token or one whose exp has passed
func (s *Service) IsTokenExpired() bool {
	return token.Expired(s.store.AccessToken(), s.nowTime())
}

// IsTokenExpiringSoon is true when the token expires within threshold
func (s *Service) IsTokenExpiringSoon(threshold time.Duration) bool {
	return token.ExpiringSoon(s.store.AccessToken(), threshold, s.nowTime())
}

// NeedsRefresh is true when the token is expired or expiring within the configured threshold
func (s *Service) NeedsRefresh() bool {
	return s.IsTokenExpired() || s.IsTokenExpiringSoon(s.expiryThreshold)
}

// GetTokenExpirationTime returns the time left on the access token, or nil without one
func (s *Service) GetTokenExpirationTime() *time.Duration {
	return token.Remaining(s.store.AccessToken(), s.nowTime())
}

// GetCurrentUser reads the in-memory session state
func (s *Service) GetCurrentUser() *users.User {
	return s.state.Current()
}

// GetToken returns the stored access token, or "" when signed out
func (s *Service) GetToken() string {
	return s.store.AccessToken()
}

// GetRefreshToken returns the stored refresh token, or "" when none was issued
func (s *Service) GetRefreshToken() string {
	return s.store.RefreshToken()
}

// Subscribe registers l for session changes; see sessions.State.Subscribe
func (s *Service) Subscribe(l sessions.Listener) (unsubscribe func()) {
	return s.state.Subscribe(l)
}

func (s *Service) withLoginTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.loginTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.loginTimeout)
}

func userID(u *users.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}
