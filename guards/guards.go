package guards

import (
	"context"
	"net/url"

	"github.com/jrsteele09/go-session-client/api"
	"github.com/jrsteele09/go-session-client/auth"
	sessionerrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/rs/zerolog"
)

const (
	// DefaultLoginRoute and DefaultLandingRoute are used unless overridden by options
	DefaultLoginRoute   = auth.DefaultLoginRoute
	DefaultLandingRoute = "/dashboard"

	// ReturnURLParam carries the attempted URL to the login route
	ReturnURLParam = "returnUrl"
)

// Session is the part of auth.Service the guards depend on
type Session interface {
	IsAuthenticated() bool
	IsTokenExpired() bool
	NeedsRefresh() bool
	Refresh(ctx context.Context) (*api.AuthResponse, error)
	EndSession() error
}

type options struct {
	loginRoute   string
	landingRoute string
	logger       zerolog.Logger
}

// Option configures a Private or Public guard
type Option func(*options)

// WithLoginRoute sets where Private sends unauthenticated users
func WithLoginRoute(route string) Option {
	return func(o *options) {
		o.loginRoute = route
	}
}

// WithLandingRoute sets where Public sends users who are already signed in
func WithLandingRoute(route string) Option {
	return func(o *options) {
		o.landingRoute = route
	}
}

// WithLogger sets the logger for guard decisions. Defaults to zerolog.Nop().
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func newOptions(opts []Option) options {
	o := options{
		loginRoute:   DefaultLoginRoute,
		landingRoute: DefaultLandingRoute,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Private admits authenticated users to protected routes, refreshing tokens that are
// expired or about to expire.
type Private struct {
	session   Session
	navigator auth.Navigator
	options
}

// NewPrivate returns a guard for routes that need a signed-in user
func NewPrivate(session Session, navigator auth.Navigator, opts ...Option) *Private {
	return &Private{session: session, navigator: navigator, options: newOptions(opts)}
}

// CanActivate decides whether attemptedURL may be entered. The decision is immediate
// unless the token needs a refresh, in which case it resolves when the refresh does.
// If ctx ends first the outcome is a denial without a redirect; the refresh itself
// keeps running.
func (g *Private) CanActivate(ctx context.Context, attemptedURL string) *Outcome {
	if !g.session.IsAuthenticated() {
		g.redirectToLogin(attemptedURL)
		return decided(false)
	}
	if !g.session.NeedsRefresh() {
		return decided(true)
	}

	outcome := pending()
	go func() {
		if _, err := g.session.Refresh(ctx); err != nil {
			if ctx.Err() != nil && sessionerrors.Is(err, ctx.Err()) {
				g.logger.Debug().Err(err).Str("url", attemptedURL).Msg("activation abandoned during refresh")
				outcome.resolve(false)
				return
			}
			g.logger.Info().Err(err).Str("url", attemptedURL).Msg("refresh before activation failed")
			g.redirectToLogin(attemptedURL)
			outcome.resolve(false)
			return
		}
		outcome.resolve(true)
	}()
	return outcome
}

func (g *Private) redirectToLogin(attemptedURL string) {
	g.navigator.Navigate(g.loginRoute, url.Values{ReturnURLParam: {attemptedURL}})
}

// Public keeps signed-in users off the login and register pages.
type Public struct {
	session   Session
	navigator auth.Navigator
	options
}

// NewPublic returns a guard for the login and register routes
func NewPublic(session Session, navigator auth.Navigator, opts ...Option) *Public {
	return &Public{session: session, navigator: navigator, options: newOptions(opts)}
}

// CanActivate always decides immediately. An expired session is ended and the route allowed.
func (g *Public) CanActivate(context.Context) *Outcome {
	if !g.session.IsAuthenticated() {
		return decided(true)
	}
	if g.session.IsTokenExpired() {
		g.logger.Debug().Msg("ending expired session on public route")
		if err := g.session.EndSession(); err != nil {
			g.logger.Warn().Err(err).Msg("expired session left in store")
		}
		return decided(true)
	}
	g.navigator.Navigate(g.landingRoute, nil)
	return decided(false)
}
