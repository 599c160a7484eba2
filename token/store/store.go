package store

import (
	"encoding/json"

	"github.com/jrsteele09/go-session-client/token"
	"github.com/jrsteele09/go-session-client/users"
	"github.com/pkg/errors"
)

// Store maps the persisted session onto a Repo. It holds no logic beyond get/set/clear.
type Store struct {
	repo Repo
}

func New(repo Repo) *Store {
	return &Store{repo: repo}
}

// AccessToken returns the stored access token or "" when absent
func (s *Store) AccessToken() string {
	return s.get(AccessTokenKey)
}

// RefreshToken returns the stored refresh token or "" when absent
func (s *Store) RefreshToken() string {
	return s.get(RefreshTokenKey)
}

// Pair returns both stored tokens
func (s *Store) Pair() token.Pair {
	return token.Pair{AccessToken: s.AccessToken(), RefreshToken: s.RefreshToken()}
}

// User decodes the stored user record. A missing or undecodable record yields nil.
func (s *Store) User() *users.User {
	raw := s.get(UserKey)
	if raw == "" || raw == "null" {
		return nil
	}
	var u users.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil
	}
	return &u
}

// Save writes the pair and the user record in a single write
func (s *Store) Save(pair token.Pair, user *users.User) error {
	userJSON, err := json.Marshal(user)
	if err != nil {
		return errors.Wrap(err, "[Store.Save] json.Marshal user")
	}
	values := map[string]string{
		AccessTokenKey:  pair.AccessToken,
		RefreshTokenKey: pair.RefreshToken,
		UserKey:         string(userJSON),
	}
	if err := s.repo.SetMany(values); err != nil {
		return errors.Wrap(err, "[Store.Save] SetMany")
	}
	return nil
}

// Clear removes all three session keys
func (s *Store) Clear() error {
	if err := s.repo.Delete(Keys...); err != nil {
		return errors.Wrap(err, "[Store.Clear] Delete")
	}
	return nil
}

func (s *Store) get(key string) string {
	v, err := s.repo.Get(key)
	if err != nil {
		// ErrNotFound and backend failures both mean "no usable value"
		return ""
	}
	return v
}
