package store

// Fixed storage keys. They must stay stable across releases so existing sessions survive upgrades.
const (
	AccessTokenKey  = "auth_token"
	RefreshTokenKey = "refresh_token"
	UserKey         = "user_data"
)

// Keys lists every key the session occupies
var Keys = []string{AccessTokenKey, RefreshTokenKey, UserKey}

// Repo is durable key-value storage for the session.
// Get returns errors.ErrNotFound for an absent key. SetMany and Delete apply all
// keys in one write so a crash cannot leave half a session behind.
type Repo interface {
	Get(key string) (string, error)
	SetMany(values map[string]string) error
	Delete(keys ...string) error
}
