package client

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/iliyamo/pet-care-marketplace/internal/session"
)

// StateFile keeps the session and small key/value state in one YAML file.
// It is both the client's SessionStore and the resolver's LocalStore.
type StateFile struct {
	path string

	mu   sync.Mutex
	data stateDoc
	read bool
}

type stateDoc struct {
	Session *session.Session  `yaml:"session,omitempty"`
	Values  map[string]string `yaml:"values,omitempty"`
}

var (
	_ SessionStore       = (*StateFile)(nil)
	_ session.LocalStore = (*StateFile)(nil)
)

func NewStateFile(path string) *StateFile { return &StateFile{path: path} }

// DefaultStatePath is ~/.petcare/state.yaml.
func DefaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".petcare-state.yaml"
	}
	return filepath.Join(home, ".petcare", "state.yaml")
}

func (f *StateFile) load() error {
	if f.read {
		return nil
	}
	bs, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		f.read = true
		return nil
	}
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(bs, &f.data); err != nil {
		return err
	}
	f.read = true
	return nil
}

func (f *StateFile) save() error {
	bs, err := yaml.Marshal(&f.data)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, bs, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *StateFile) LoadSession() (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return nil, err
	}
	if f.data.Session == nil {
		return nil, nil
	}
	s := *f.data.Session
	return &s, nil
}

func (f *StateFile) SaveSession(s *session.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return err
	}
	if s == nil {
		f.data.Session = nil
	} else {
		cp := *s
		f.data.Session = &cp
	}
	return f.save()
}

func (f *StateFile) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return "", false
	}
	v, ok := f.data.Values[key]
	return v, ok
}

func (f *StateFile) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return err
	}
	if f.data.Values == nil {
		f.data.Values = map[string]string{}
	}
	f.data.Values[key] = value
	return f.save()
}

func (f *StateFile) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return err
	}
	if _, ok := f.data.Values[key]; !ok {
		return nil
	}
	delete(f.data.Values, key)
	return f.save()
}
