// Package creds persists proxy credentials as bcrypt hashes in a JSON
// file. A Store plugs into the listener's credential check and is
// safe for concurrent use, so the console can mutate it while the
// proxy serves.
package creds

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Store maps usernames to bcrypt password hashes.
type Store struct {
	mu    sync.RWMutex
	users map[string]string
}

// storeFile is the on-disk layout.
type storeFile struct {
	Users map[string]string `json:"users"`
}

// NewStore returns an empty credential store.
func NewStore() *Store {
	return &Store{users: make(map[string]string)}
}

// LoadFrom replaces the store contents with the file at path.
func (s *Store) LoadFrom(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read credential file: %w", err)
	}

	var file storeFile
	if err := json.Unmarshal(b, &file); err != nil {
		return fmt.Errorf("parse credential file %s: %w", path, err)
	}
	if file.Users == nil {
		file.Users = make(map[string]string)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = file.Users
	return nil
}

// StoreTo writes the store contents to the file at path with
// owner-only permissions.
func (s *Store) StoreTo(path string) error {
	s.mu.RLock()
	b, err := json.MarshalIndent(storeFile{Users: s.users}, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode credential file: %w", err)
	}

	if err := os.WriteFile(path, b, 0600); err != nil {
		return fmt.Errorf("write credential file: %w", err)
	}
	return nil
}

// Add hashes password and stores it under username, replacing any
// previous credential for that user. Usernames follow the wire limit
// of 1 to 255 bytes.
func (s *Store) Add(username, password string) error {
	if username == "" {
		return errors.New("empty username")
	}
	if len(username) > 255 {
		return errors.New("username longer than 255 bytes")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = string(hash)
	return nil
}

// Remove deletes username from the store. It reports whether the user
// existed.
func (s *Store) Remove(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[username]
	delete(s.users, username)
	return ok
}

// Names lists the stored usernames in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.users))
	for name := range s.users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Verify reports whether password matches the stored credential for
// username. Unknown users verify false.
func (s *Store) Verify(username, password string) bool {
	s.mu.RLock()
	hash, ok := s.users[username]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
