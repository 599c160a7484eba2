package storerepofake

import (
	"errors"
	"sync"

	sessionerrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/token/store"
)

var _ store.Repo = (*FakeStoreRepo)(nil)

// ErrWriteFailed is returned by failing writes when WriteErr is unset
var ErrWriteFailed = errors.New("fake store write failed")

// FakeStoreRepo is an in-memory Repo. It also backs STORE_BACKEND=memory.
type FakeStoreRepo struct {
	values map[string]string
	lock   sync.RWMutex

	// FailWrites makes SetMany and Delete return WriteErr
	FailWrites bool
	WriteErr   error
}

func NewFakeStoreRepo() *FakeStoreRepo {
	return &FakeStoreRepo{
		values: make(map[string]string),
	}
}

func (r *FakeStoreRepo) Get(key string) (string, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	v, ok := r.values[key]
	if !ok {
		return "", sessionerrors.ErrNotFound
	}
	return v, nil
}

func (r *FakeStoreRepo) SetMany(values map[string]string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.FailWrites {
		return r.writeErr()
	}
	for k, v := range values {
		r.values[k] = v
	}
	return nil
}

func (r *FakeStoreRepo) Delete(keys ...string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.FailWrites {
		return r.writeErr()
	}
	for _, k := range keys {
		delete(r.values, k)
	}
	return nil
}

// Has reports whether key is present
func (r *FakeStoreRepo) Has(key string) bool {
	r.lock.RLock()
	defer r.lock.RUnlock()
	_, ok := r.values[key]
	return ok
}

// Len returns the number of stored keys
func (r *FakeStoreRepo) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.values)
}

func (r *FakeStoreRepo) writeErr() error {
	if r.WriteErr != nil {
		return r.WriteErr
	}
	return ErrWriteFailed
}
