package auth_test

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-client/api"
	"github.com/jrsteele09/go-session-client/auth"
	"github.com/jrsteele09/go-session-client/internal/apitest"
	sessionerrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/sessions"
	"github.com/jrsteele09/go-session-client/token"
	"github.com/jrsteele09/go-session-client/token/store"
	storerepofake "github.com/jrsteele09/go-session-client/token/store/repofake"
	"github.com/jrsteele09/go-session-client/users"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "a@b.com"
	testPassword = "secret1"
)

// testFixture holds all test dependencies
type testFixture struct {
	backend *apitest.Backend
	repo    *storerepofake.FakeStoreRepo
	store   *store.Store
	state   *sessions.State
	service *auth.Service
}

func setupFixture(t *testing.T, options ...apitest.Option) *testFixture {
	t.Helper()

	backend := apitest.NewBackend(t, options...)
	backend.AddUser("Ann", testEmail, testPassword, users.RoleAdmin)

	client, err := api.NewClient(backend.BaseURL())
	require.NoError(t, err)

	repo := storerepofake.NewFakeStoreRepo()
	st := store.New(repo)
	state := sessions.NewState(nil)

	service, err := auth.NewService(client, st, state)
	require.NoError(t, err)

	return &testFixture{backend: backend, repo: repo, store: st, state: state, service: service}
}

func (f *testFixture) login(t *testing.T) *api.AuthResponse {
	t.Helper()
	resp, err := f.service.Login(context.Background(), users.Credential{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	return resp
}

// stubBackend answers every call from its fields and counts calls
type stubBackend struct {
	response *api.AuthResponse
	err      error
	calls    atomic.Int32
}

func (b *stubBackend) answer() api.Result[*api.AuthResponse] {
	b.calls.Add(1)
	if b.err != nil {
		return api.Fail[*api.AuthResponse](b.err)
	}
	return api.Ok(b.response)
}

func (b *stubBackend) Login(context.Context, users.Credential) api.Result[*api.AuthResponse] {
	return b.answer()
}

func (b *stubBackend) Register(context.Context, users.Profile) api.Result[*api.AuthResponse] {
	return b.answer()
}

func (b *stubBackend) Refresh(context.Context, string) api.Result[*api.AuthResponse] {
	return b.answer()
}

func TestNewService_RequiresDependencies(t *testing.T) {
	st := store.New(storerepofake.NewFakeStoreRepo())
	state := sessions.NewState(nil)

	_, err := auth.NewService(nil, st, state)
	require.Error(t, err)
	_, err = auth.NewService(&stubBackend{}, nil, state)
	require.Error(t, err)
	_, err = auth.NewService(&stubBackend{}, st, nil)
	require.Error(t, err)
}

func TestNewService_SeedsStateFromStore(t *testing.T) {
	st := store.New(storerepofake.NewFakeStoreRepo())
	stored := &users.User{ID: "u-1", Email: testEmail}
	require.NoError(t, st.Save(token.Pair{AccessToken: "T0", RefreshToken: "R0"}, stored))

	state := sessions.NewState(nil)
	service, err := auth.NewService(&stubBackend{}, st, state)
	require.NoError(t, err)

	require.Equal(t, stored, service.GetCurrentUser())
	require.True(t, service.IsAuthenticated())
}

func TestLogin_Scenario(t *testing.T) {
	backend := &stubBackend{response: &api.AuthResponse{
		User: &users.User{Email: testEmail},
		Pair: token.Pair{AccessToken: "T1", RefreshToken: "R1"},
	}}
	repo := storerepofake.NewFakeStoreRepo()
	service, err := auth.NewService(backend, store.New(repo), sessions.NewState(nil))
	require.NoError(t, err)

	resp, err := service.Login(context.Background(), users.Credential{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	require.Equal(t, "T1", resp.AccessToken)

	require.Equal(t, "T1", service.GetToken())
	require.Equal(t, "R1", service.GetRefreshToken())
	require.Equal(t, testEmail, service.GetCurrentUser().Email)

	raw, err := repo.Get(store.AccessTokenKey)
	require.NoError(t, err)
	require.Equal(t, "T1", raw)
}

func TestLogin_PersistsAndPublishes(t *testing.T) {
	f := setupFixture(t)

	var published []*users.User
	unsubscribe := f.service.Subscribe(func(u *users.User) { published = append(published, u) })
	defer unsubscribe()

	resp := f.login(t)

	require.Equal(t, resp.AccessToken, f.store.AccessToken())
	require.Equal(t, resp.RefreshToken, f.store.RefreshToken())
	require.Equal(t, resp.User, f.store.User())
	require.Equal(t, resp.User, f.state.Current())
	require.False(t, f.service.IsTokenExpired())

	claims, err := token.Decode(f.service.GetToken())
	require.NoError(t, err)
	require.Equal(t, resp.User.ID, claims.Sub)
	require.Equal(t, string(users.RoleAdmin), claims.Role)
	require.Equal(t, []string{string(users.RoleAdmin)}, claims.Roles)

	require.Len(t, published, 2, "current value on subscribe, then the login")
	require.Nil(t, published[0])
	require.Equal(t, testEmail, published[1].Email)
}

func TestLogin_RejectedPropagatesUnchanged(t *testing.T) {
	f := setupFixture(t)

	_, err := f.service.Login(context.Background(), users.Credential{Email: testEmail, Password: "wrong-pw1"})
	require.Error(t, err)

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 401, apiErr.StatusCode)
	require.Equal(t, "Invalid credentials", apiErr.Message)

	require.False(t, f.service.IsAuthenticated())
	require.Nil(t, f.service.GetCurrentUser())
	require.Equal(t, 1, f.backend.LoginCalls())
}

func TestLogin_InvalidCredentialMakesNoCall(t *testing.T) {
	f := setupFixture(t)

	_, err := f.service.Login(context.Background(), users.Credential{Email: "not-an-email", Password: testPassword})
	var validationErr *users.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "email", validationErr.Field)
	require.Zero(t, f.backend.LoginCalls())
}

func TestLogin_PersistFailureLeavesNoSession(t *testing.T) {
	f := setupFixture(t)
	f.repo.FailWrites = true

	_, err := f.service.Login(context.Background(), users.Credential{Email: testEmail, Password: testPassword})
	require.ErrorIs(t, err, storerepofake.ErrWriteFailed)
	require.False(t, f.service.IsAuthenticated())
	require.Nil(t, f.service.GetCurrentUser())
}

func TestLogin_Timeout(t *testing.T) {
	backend := apitest.NewBackend(t)
	client, err := api.NewClient(backend.BaseURL())
	require.NoError(t, err)

	slow := &blockingBackend{Backend: client}
	service, err := auth.NewService(slow, store.New(storerepofake.NewFakeStoreRepo()), sessions.NewState(nil),
		auth.WithLoginTimeout(20*time.Millisecond))
	require.NoError(t, err)

	_, err = service.Login(context.Background(), users.Credential{Email: testEmail, Password: testPassword})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// blockingBackend waits for ctx on login
type blockingBackend struct {
	auth.Backend
}

func (b *blockingBackend) Login(ctx context.Context, _ users.Credential) api.Result[*api.AuthResponse] {
	<-ctx.Done()
	return api.Fail[*api.AuthResponse](ctx.Err())
}

func TestRegister_EstablishesSession(t *testing.T) {
	f := setupFixture(t)

	resp, err := f.service.Register(context.Background(), users.Profile{Name: "Bob", Email: "bob@b.com", Password: "secret2"})
	require.NoError(t, err)
	require.Equal(t, "bob@b.com", resp.User.Email)
	require.Equal(t, resp.AccessToken, f.service.GetToken())
	require.Equal(t, resp.User, f.service.GetCurrentUser())
}

func TestRegister_Conflict(t *testing.T) {
	f := setupFixture(t)

	_, err := f.service.Register(context.Background(), users.Profile{Name: "Ann", Email: testEmail, Password: "secret2"})
	require.Equal(t, 409, api.StatusCode(err))
	require.False(t, f.service.IsAuthenticated())
}

func TestRegister_WeakPasswordMakesNoCall(t *testing.T) {
	f := setupFixture(t)

	_, err := f.service.Register(context.Background(), users.Profile{Name: "Bob", Email: "bob@b.com", Password: "short"})
	var validationErr *users.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "password", validationErr.Field)
	require.Zero(t, f.backend.RegisterCalls())
}

func TestLogout(t *testing.T) {
	f := setupFixture(t)

	var navigated []string
	nav := auth.NavigatorFunc(func(route string, query url.Values) { navigated = append(navigated, route) })
	service, err := auth.NewService(&stubBackend{}, f.store, f.state, auth.WithNavigator(nav, "/signin"))
	require.NoError(t, err)

	f.login(t)
	require.True(t, service.IsAuthenticated())

	require.NoError(t, service.Logout())

	for _, key := range store.Keys {
		require.False(t, f.repo.Has(key), key)
	}
	require.Nil(t, f.state.Current())
	require.Equal(t, []string{"/signin"}, navigated)
}

func TestEndSession_DoesNotNavigate(t *testing.T) {
	f := setupFixture(t)

	navigated := 0
	nav := auth.NavigatorFunc(func(string, url.Values) { navigated++ })
	service, err := auth.NewService(&stubBackend{}, f.store, f.state, auth.WithNavigator(nav, ""))
	require.NoError(t, err)

	f.login(t)
	require.NoError(t, service.EndSession())
	require.False(t, service.IsAuthenticated())
	require.Zero(t, navigated)
}

func TestEndSession_ReportsStoreFailure(t *testing.T) {
	f := setupFixture(t)

	var navigated []string
	nav := auth.NavigatorFunc(func(route string, _ url.Values) { navigated = append(navigated, route) })
	service, err := auth.NewService(&stubBackend{}, f.store, f.state, auth.WithNavigator(nav, ""))
	require.NoError(t, err)
	f.login(t)
	require.NotNil(t, f.state.Current())

	f.repo.FailWrites = true
	err = service.EndSession()
	require.ErrorIs(t, err, storerepofake.ErrWriteFailed)
	require.Nil(t, f.state.Current(), "in-memory state is cleared regardless")
	require.True(t, f.repo.Has(store.AccessTokenKey), "stored pair survives the failed clear")

	err = service.Logout()
	require.ErrorIs(t, err, storerepofake.ErrWriteFailed)
	require.Equal(t, []string{auth.DefaultLoginRoute}, navigated, "logout still navigates")
}

func TestRefresh_NoRefreshTokenMakesNoCall(t *testing.T) {
	backend := &stubBackend{}
	service, err := auth.NewService(backend, store.New(storerepofake.NewFakeStoreRepo()), sessions.NewState(nil))
	require.NoError(t, err)

	_, err = service.Refresh(context.Background())
	require.ErrorIs(t, err, sessionerrors.ErrNoRefreshToken)
	require.Zero(t, backend.calls.Load())
}

func TestRefresh_ReplacesPairAndRepublishes(t *testing.T) {
	f := setupFixture(t)
	first := f.login(t)

	var published []*users.User
	unsubscribe := f.service.Subscribe(func(u *users.User) { published = append(published, u) })
	defer unsubscribe()

	resp, err := f.service.Refresh(context.Background())
	require.NoError(t, err)

	require.NotEqual(t, first.AccessToken, resp.AccessToken)
	require.NotEqual(t, first.RefreshToken, resp.RefreshToken)
	require.Equal(t, resp.AccessToken, f.service.GetToken())
	require.Equal(t, resp.RefreshToken, f.service.GetRefreshToken())
	require.Len(t, published, 2)
	require.Equal(t, testEmail, published[1].Email)
	require.Equal(t, 1, f.backend.RefreshCalls())
}

func TestRefresh_KeepsUserWhenResponseOmitsIt(t *testing.T) {
	backend := &stubBackend{response: &api.AuthResponse{Pair: token.Pair{AccessToken: "T2", RefreshToken: "R2"}}}
	st := store.New(storerepofake.NewFakeStoreRepo())
	existing := &users.User{ID: "u-1", Email: testEmail}
	require.NoError(t, st.Save(token.Pair{AccessToken: "T1", RefreshToken: "R1"}, existing))

	service, err := auth.NewService(backend, st, sessions.NewState(nil))
	require.NoError(t, err)

	_, err = service.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "T2", service.GetToken())
	require.Equal(t, existing, service.GetCurrentUser())
	require.Equal(t, existing, st.User())
}

func TestRefresh_RejectedEndsSession(t *testing.T) {
	f := setupFixture(t)
	f.login(t)
	f.backend.RevokeRefreshTokens()

	_, err := f.service.Refresh(context.Background())
	require.ErrorIs(t, err, sessionerrors.ErrRefreshRejected)
	require.True(t, api.IsUnauthorized(err))

	for _, key := range store.Keys {
		require.False(t, f.repo.Has(key), key)
	}
	require.Nil(t, f.state.Current())
	require.False(t, f.service.IsAuthenticated())
}

func TestRefresh_TransportErrorEndsSession(t *testing.T) {
	transportErr := errors.New("connection reset")
	backend := &stubBackend{err: transportErr}
	st := store.New(storerepofake.NewFakeStoreRepo())
	require.NoError(t, st.Save(token.Pair{AccessToken: "T1", RefreshToken: "R1"}, &users.User{ID: "u-1"}))

	service, err := auth.NewService(backend, st, sessions.NewState(nil))
	require.NoError(t, err)

	_, err = service.Refresh(context.Background())
	require.ErrorIs(t, err, transportErr)
	require.NotErrorIs(t, err, sessionerrors.ErrRefreshRejected)
	require.False(t, service.IsAuthenticated())
	require.Nil(t, service.GetCurrentUser())
}

func TestRefresh_ConcurrentCallsShareOneRequest(t *testing.T) {
	f := setupFixture(t, apitest.WithRefreshDelay(100*time.Millisecond))
	f.login(t)

	const callers = 8
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := f.service.Refresh(context.Background())
			errs[i] = err
			if err == nil {
				tokens[i] = resp.AccessToken
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, tokens[0], tokens[i])
	}
	require.Equal(t, 1, f.backend.RefreshCalls())
	require.True(t, f.service.IsAuthenticated())
}

func TestRefresh_CallerCancelDoesNotAbortRequest(t *testing.T) {
	f := setupFixture(t, apitest.WithRefreshDelay(100*time.Millisecond))
	first := f.login(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.service.Refresh(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.Eventually(t, func() bool {
		return f.service.GetToken() != first.AccessToken
	}, 2*time.Second, 10*time.Millisecond)
	require.True(t, f.service.IsAuthenticated())
}

func TestTokenChecks(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := store.New(storerepofake.NewFakeStoreRepo())
	service, err := auth.NewService(&stubBackend{}, st, sessions.NewState(nil), auth.WithNowTime(func() time.Time { return now }))
	require.NoError(t, err)

	require.False(t, service.IsAuthenticated())
	require.True(t, service.IsTokenExpired())
	require.Nil(t, service.GetTokenExpirationTime())

	save := func(exp time.Time) {
		require.NoError(t, st.Save(token.Pair{AccessToken: apitest.SignAccessToken("u-1", testEmail, exp), RefreshToken: "R1"}, nil))
	}

	save(now.Add(-10 * time.Second))
	require.True(t, service.IsAuthenticated(), "presence only")
	require.True(t, service.IsTokenExpired())
	require.Equal(t, time.Duration(0), *service.GetTokenExpirationTime())
	require.True(t, service.NeedsRefresh())

	save(now.Add(1800 * time.Second))
	require.False(t, service.IsTokenExpired())
	require.False(t, service.IsTokenExpiringSoon(auth.DefaultExpiryThreshold))
	require.True(t, service.IsTokenExpiringSoon(time.Hour))
	require.Equal(t, 1800*time.Second, *service.GetTokenExpirationTime())
	require.False(t, service.NeedsRefresh())

	save(now.Add(2 * time.Minute))
	require.True(t, service.IsTokenExpiringSoon(auth.DefaultExpiryThreshold))
	require.True(t, service.NeedsRefresh())

	require.NoError(t, st.Save(token.Pair{AccessToken: "garbage"}, nil))
	require.True(t, service.IsAuthenticated())
	require.True(t, service.IsTokenExpired())
	require.False(t, service.IsTokenExpiringSoon(auth.DefaultExpiryThreshold))
}
