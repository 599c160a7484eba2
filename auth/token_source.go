package auth

import (
	"context"

	sessionerrors "github.com/jrsteele09/go-session-client/internal/errors"
	"golang.org/x/oauth2"
)

// TokenSource exposes the session as an oauth2.TokenSource. Each Token call refreshes
// first when the stored token is expired or expiring soon and a refresh token exists.
func (s *Service) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &serviceTokenSource{ctx: ctx, service: s}
}

type serviceTokenSource struct {
	ctx     context.Context
	service *Service
}

func (ts *serviceTokenSource) Token() (*oauth2.Token, error) {
	s := ts.service
	if !s.IsAuthenticated() {
		return nil, sessionerrors.ErrNotAuthenticated
	}
	if s.NeedsRefresh() && s.GetRefreshToken() != "" {
		if _, err := s.Refresh(ts.ctx); err != nil {
			return nil, err
		}
	}
	return s.store.Pair().ToOAuth2(), nil
}
