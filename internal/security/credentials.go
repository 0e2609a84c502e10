// Package security holds the secrets of the process and keeps them out of
// logs and subprocesses: the credential store, the redactor, the audit
// log, rate limits, payload checks and the bash sandbox.
package security

import (
	"maps"
	"strings"
	"sync"
)

// CredentialStore is the set of secrets the process knows: configured
// values read at startup and the API key of each live session. Names are
// dotted; ScopedName builds the name of a secret owned by a scope.
type CredentialStore struct {
	mu       sync.RWMutex
	creds    map[string]string
	watchers []func()
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{creds: make(map[string]string)}
}

// ScopedName returns the name of key inside scope.
func ScopedName(scope, key string) string {
	return scope + "." + key
}

// Watch registers fn to run after every change. Watchers run outside the
// lock and may read the store.
func (s *CredentialStore) Watch(fn func()) {
	s.mu.Lock()
	s.watchers = append(s.watchers, fn)
	s.mu.Unlock()
}

// update applies fn under the write lock and notifies the watchers when
// fn reports a change.
func (s *CredentialStore) update(fn func(creds map[string]string) bool) {
	s.mu.Lock()
	changed := fn(s.creds)
	watchers := s.watchers
	s.mu.Unlock()
	if !changed {
		return
	}
	for _, w := range watchers {
		w()
	}
}

func (s *CredentialStore) Set(name, value string) {
	s.update(func(creds map[string]string) bool {
		if prev, ok := creds[name]; ok && prev == value {
			return false
		}
		creds[name] = value
		return true
	})
}

func (s *CredentialStore) Get(name string) (string, bool) {
	s.mu.RLock()
	v, ok := s.creds[name]
	s.mu.RUnlock()
	return v, ok
}

func (s *CredentialStore) Has(name string) bool {
	_, ok := s.Get(name)
	return ok
}

// Values returns every non-empty secret, unordered.
func (s *CredentialStore) Values() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.creds))
	for v := range maps.Values(s.creds) {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (s *CredentialStore) Delete(name string) {
	s.update(func(creds map[string]string) bool {
		_, ok := creds[name]
		delete(creds, name)
		return ok
	})
}

// DeleteScope removes the secrets of scope and returns how many there
// were. "session.s1" does not match "session.s10.api_key".
func (s *CredentialStore) DeleteScope(scope string) int {
	prefix := scope + "."
	n := 0
	s.update(func(creds map[string]string) bool {
		maps.DeleteFunc(creds, func(name, _ string) bool {
			if strings.HasPrefix(name, prefix) {
				n++
				return true
			}
			return false
		})
		return n > 0
	})
	return n
}

func (s *CredentialStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.creds)
}
