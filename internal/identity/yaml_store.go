package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/giantswarm/tandem/internal/api"
)

// UsersFileName is the name of the identity list file inside the data dir.
const UsersFileName = "users.yaml"

// usersFile is the on-disk document.
type usersFile struct {
	// Active is the id of the last active user.
	Active string `yaml:"active,omitempty"`
	// Users is the list of all users in creation order.
	Users []api.User `yaml:"users,omitempty"`
}

func (f *usersFile) index(id string) int {
	for i := range f.Users {
		if f.Users[i].ID == id {
			return i
		}
	}
	return -1
}

// YAMLStore provides thread-safe access to the users.yaml file.
type YAMLStore struct {
	mu      sync.RWMutex
	dataDir string
	now     Clock
}

// NewYAMLStore creates a store that keeps users.yaml in dataDir.
func NewYAMLStore(dataDir string) *YAMLStore {
	return &YAMLStore{dataDir: dataDir, now: defaultClock}
}

// WithClock overrides the time source. Intended for tests.
func (s *YAMLStore) WithClock(now Clock) *YAMLStore {
	s.now = now
	return s
}

// Path returns the full path of the users file.
func (s *YAMLStore) Path() string {
	return filepath.Join(s.dataDir, UsersFileName)
}

// loadLocked reads the file. A missing file is an empty list.
func (s *YAMLStore) loadLocked() (*usersFile, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &usersFile{}, nil
		}
		return nil, fmt.Errorf("failed to read users file: %w", err)
	}

	var f usersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse users file: %w", err)
	}
	return &f, nil
}

// saveLocked writes through a temp file so readers never see a partial document.
func (s *YAMLStore) saveLocked(f *usersFile) error {
	if err := os.MkdirAll(s.dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal users: %w", err)
	}

	tmp := s.Path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write users file: %w", err)
	}
	if err := os.Rename(tmp, s.Path()); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace users file: %w", err)
	}
	return nil
}

// List returns all users.
func (s *YAMLStore) List() ([]api.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	return append(make([]api.User, 0, len(f.Users)), f.Users...), nil
}

// GetUser returns the user with the given id.
func (s *YAMLStore) GetUser(id string) (*api.User, error) {
	id, err := normalizeID("get_user", id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	i := f.index(id)
	if i < 0 {
		return nil, api.UnknownUser("get_user", id)
	}
	u := f.Users[i]
	return &u, nil
}

// Create adds a new user.
func (s *YAMLStore) Create(name string) (*api.User, error) {
	name, err := ValidateName(name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.loadLocked()
	if err != nil {
		return nil, err
	}

	u := api.User{
		ID:         uuid.NewString(),
		Name:       name,
		LastActive: s.now(),
	}
	f.Users = append(f.Users, u)
	if err := s.saveLocked(f); err != nil {
		return nil, err
	}
	return &u, nil
}

// Rename changes a user's display name.
func (s *YAMLStore) Rename(id, name string) (*api.User, error) {
	name, err := ValidateName(name)
	if err != nil {
		return nil, err
	}
	return s.Update(id, func(u *api.User) { u.Name = name })
}

// Update applies mutate to the user and saves. The id cannot be changed.
func (s *YAMLStore) Update(id string, mutate func(*api.User)) (*api.User, error) {
	id, err := normalizeID("update_user", id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	i := f.index(id)
	if i < 0 {
		return nil, api.UnknownUser("update_user", id)
	}

	mutate(&f.Users[i])
	f.Users[i].ID = id

	if err := s.saveLocked(f); err != nil {
		return nil, err
	}
	u := f.Users[i]
	return &u, nil
}

// Remove deletes a user.
func (s *YAMLStore) Remove(id string) error {
	id, err := normalizeID("remove_user", id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.loadLocked()
	if err != nil {
		return err
	}
	i := f.index(id)
	if i < 0 {
		return api.UnknownUser("remove_user", id)
	}

	f.Users = append(f.Users[:i], f.Users[i+1:]...)
	if f.Active == id {
		f.Active = ""
	}
	return s.saveLocked(f)
}

// Active returns the last active user id.
func (s *YAMLStore) Active() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := s.loadLocked()
	if err != nil {
		return "", err
	}
	return f.Active, nil
}

// SetActive records the last active user.
func (s *YAMLStore) SetActive(id string) error {
	id = api.NormalizeUserID(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.loadLocked()
	if err != nil {
		return err
	}
	if id != "" && f.index(id) < 0 {
		return api.UnknownUser("set_active", id)
	}

	f.Active = id
	return s.saveLocked(f)
}

var _ Store = (*YAMLStore)(nil)
