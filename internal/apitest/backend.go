// Package apitest runs an in-process stand-in for the console API so packages can
// exercise login, registration, refresh rotation and bearer-protected resources end to end.
package apitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-client/api"
	"github.com/jrsteele09/go-session-client/users"
)

// Paths served in addition to the auth endpoints
const (
	PathDevices     = "/devices"
	PathAlways401   = "/always-401"
	PathServerError = "/boom"
	PathUpload      = "/devices/import"
)

type account struct {
	user     users.User
	password string
}

// Backend is a stub console API. All counters are safe for concurrent use.
type Backend struct {
	Server *httptest.Server

	mu            sync.Mutex
	accounts      map[string]*account // by email
	refreshTokens map[string]string   // refresh token -> email
	accessTTL     time.Duration
	refreshDelay  time.Duration
	rotate        bool
	rejectRefresh bool
	nowTime       func() time.Time

	loginCalls    int
	registerCalls int
	refreshCalls  int
	resourceAuth  []string // Authorization header of every protected request
}

type Option func(*Backend)

// WithAccessTTL sets how long issued access tokens live; negative issues already-expired tokens
func WithAccessTTL(ttl time.Duration) Option {
	return func(b *Backend) {
		b.accessTTL = ttl
	}
}

// WithRefreshDelay holds every refresh response for d
func WithRefreshDelay(d time.Duration) Option {
	return func(b *Backend) {
		b.refreshDelay = d
	}
}

// WithoutRotation keeps refresh tokens valid after use
func WithoutRotation() Option {
	return func(b *Backend) {
		b.rotate = false
	}
}

// NewBackend starts the stub and shuts it down with the test
func NewBackend(t *testing.T, options ...Option) *Backend {
	t.Helper()

	b := &Backend{
		accounts:      make(map[string]*account),
		refreshTokens: make(map[string]string),
		accessTTL:     30 * time.Minute,
		rotate:        true,
		nowTime:       time.Now,
	}
	for _, opt := range options {
		opt(b)
	}

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post(api.PathLogin, b.login)
		r.Post(api.PathRegister, b.register)
		r.Post(api.PathRefresh, b.refresh)
		r.Get(PathAlways401, b.always401)
		r.Get(PathServerError, b.serverError)

		r.Group(func(r chi.Router) {
			r.Use(b.requireBearer)
			r.Get(PathDevices, b.listDevices)
			r.Post(PathDevices, b.createDevice)
			r.Post(PathUpload, b.upload)
		})
	})

	b.Server = httptest.NewServer(r)
	t.Cleanup(b.Server.Close)
	return b
}

// BaseURL is the API root to hand to api.NewClient
func (b *Backend) BaseURL() string {
	return b.Server.URL + "/api"
}

// AddUser registers an account directly
func (b *Backend) AddUser(name, email, password string, role users.RoleType) users.User {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addUserLocked(name, email, password, role)
}

// IssueRefreshToken mints a refresh token for an existing account
func (b *Backend) IssueRefreshToken(email string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	rt := uuid.NewString()
	b.refreshTokens[rt] = email
	return rt
}

// RevokeRefreshTokens invalidates every outstanding refresh token
func (b *Backend) RevokeRefreshTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshTokens = make(map[string]string)
}

// RejectRefresh makes every refresh answer 401
func (b *Backend) RejectRefresh(reject bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejectRefresh = reject
}

// SetAccessTTL changes the lifetime of tokens issued from now on
func (b *Backend) SetAccessTTL(ttl time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accessTTL = ttl
}

func (b *Backend) LoginCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loginCalls
}

func (b *Backend) RegisterCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registerCalls
}

func (b *Backend) RefreshCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshCalls
}

// ResourceAuthHeaders returns the Authorization header of every protected request seen
func (b *Backend) ResourceAuthHeaders() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.resourceAuth...)
}

func (b *Backend) addUserLocked(name, email, password string, role users.RoleType) users.User {
	now := b.nowTime().UTC().Truncate(time.Second)
	u := users.User{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	b.accounts[email] = &account{user: u, password: password}
	return u
}

// issueLocked creates a fresh pair for the account
func (b *Backend) issueLocked(acct *account) api.AuthResponse {
	now := b.nowTime()
	access := signUserToken(acct.user, now, now.Add(b.accessTTL))
	rt := uuid.NewString()
	b.refreshTokens[rt] = acct.user.Email
	u := acct.user
	resp := api.AuthResponse{User: &u}
	resp.AccessToken = access
	resp.RefreshToken = rt
	return resp
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	var cred users.Credential
	if err := json.NewDecoder(r.Body).Decode(&cred); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.loginCalls++

	acct, ok := b.accounts[cred.Email]
	if !ok || acct.password != cred.Password {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, b.issueLocked(acct))
}

func (b *Backend) register(w http.ResponseWriter, r *http.Request) {
	var profile users.Profile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.registerCalls++

	if _, exists := b.accounts[profile.Email]; exists {
		writeError(w, http.StatusConflict, "Email already registered")
		return
	}
	b.addUserLocked(profile.Name, profile.Email, profile.Password, users.RoleEmployee)
	writeJSON(w, http.StatusCreated, b.issueLocked(b.accounts[profile.Email]))
}

func (b *Backend) refresh(w http.ResponseWriter, r *http.Request) {
	var req api.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	b.mu.Lock()
	b.refreshCalls++
	delay := b.refreshDelay
	b.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	email, ok := b.refreshTokens[req.RefreshToken]
	if !ok || b.rejectRefresh {
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	if b.rotate {
		delete(b.refreshTokens, req.RefreshToken)
	}
	writeJSON(w, http.StatusOK, b.issueLocked(b.accounts[email]))
}

func (b *Backend) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")

		b.mu.Lock()
		b.resourceAuth = append(b.resourceAuth, header)
		now := b.nowTime()
		b.mu.Unlock()

		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}
		parsed, err := jwtlib.Parse(raw, func(*jwtlib.Token) (any, error) { return signingKey, nil },
			jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
			jwtlib.WithTimeFunc(func() time.Time { return now }),
		)
		if err != nil || !parsed.Valid {
			writeError(w, http.StatusUnauthorized, "Token expired or invalid")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Device is the resource served by the protected endpoints
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (b *Backend) listDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []Device{{ID: "d-1", Name: "Scanner"}, {ID: "d-2", Name: "Printer"}})
}

func (b *Backend) createDevice(w http.ResponseWriter, r *http.Request) {
	var d Device
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	d.ID = uuid.NewString()
	writeJSON(w, http.StatusCreated, d)
}

func (b *Backend) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()
	writeJSON(w, http.StatusOK, map[string]any{
		"filename": header.Filename,
		"size":     header.Size,
		"group":    r.FormValue("group"),
	})
}

func (b *Backend) always401(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.resourceAuth = append(b.resourceAuth, r.Header.Get("Authorization"))
	b.mu.Unlock()
	writeError(w, http.StatusUnauthorized, "Never authorized")
}

func (b *Backend) serverError(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusInternalServerError, "boom")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
