package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	sessionerrors "github.com/jrsteele09/go-session-client/internal/errors"
)

const sessionFileName = "session.json"

var _ Repo = (*FileRepo)(nil)

// FileRepo keeps the session in a single JSON file under a data folder.
// Every write replaces the whole file via rename.
type FileRepo struct {
	path   string
	mu     sync.RWMutex
	values map[string]string
}

// NewFileRepo opens (or creates) the session file inside folder
func NewFileRepo(folder string) (*FileRepo, error) {
	if err := os.MkdirAll(folder, 0o700); err != nil {
		return nil, sessionerrors.Wrapf(err, "[NewFileRepo] failed to create data folder")
	}
	r := &FileRepo{
		path:   filepath.Join(folder, sessionFileName),
		values: make(map[string]string),
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

// Path returns the file backing the repo
func (r *FileRepo) Path() string {
	return r.path
}

func (r *FileRepo) Get(key string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[key]
	if !ok {
		return "", sessionerrors.ErrNotFound
	}
	return v, nil
}

func (r *FileRepo) SetMany(values map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]string, len(r.values)+len(values))
	for k, v := range r.values {
		next[k] = v
	}
	for k, v := range values {
		next[k] = v
	}
	if err := r.write(next); err != nil {
		return err
	}
	r.values = next
	return nil
}

func (r *FileRepo) Delete(keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]string, len(r.values))
	for k, v := range r.values {
		next[k] = v
	}
	for _, k := range keys {
		delete(next, k)
	}
	if err := r.write(next); err != nil {
		return err
	}
	r.values = next
	return nil
}

func (r *FileRepo) load() error {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return sessionerrors.Wrapf(err, "[FileRepo.load] failed to read %s", r.path)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &r.values); err != nil {
		return sessionerrors.Wrapf(err, "[FileRepo.load] failed to decode %s", r.path)
	}
	return nil
}

func (r *FileRepo) write(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return sessionerrors.Wrapf(err, "[FileRepo.write] failed to encode session")
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), sessionFileName+".*.tmp")
	if err != nil {
		return sessionerrors.Wrapf(err, "[FileRepo.write] failed to create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return sessionerrors.Wrapf(err, "[FileRepo.write] failed to write temp file")
	}
	if err := tmp.Close(); err != nil {
		return sessionerrors.Wrapf(err, "[FileRepo.write] failed to close temp file")
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return sessionerrors.Wrapf(err, "[FileRepo.write] failed to chmod temp file")
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return sessionerrors.Wrapf(err, "[FileRepo.write] failed to replace %s", r.path)
	}
	return nil
}
