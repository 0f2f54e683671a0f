// Package session holds the trading credentials shared by operations within
// one process. It is the only mutable state the engine shares across calls.
package session

import (
	"sync"

	"github.com/alanyoungcy/polyonboard/internal/domain"
)

// State caches credentials per (signer, funder) scope. Writers take the
// exclusive lock, so a reader never observes a half-applied reset.
type State struct {
	mu    sync.RWMutex
	creds map[domain.CredentialScope]domain.TradingCredentials
}

// New returns an empty State.
func New() *State {
	return &State{creds: make(map[domain.CredentialScope]domain.TradingCredentials)}
}

// Get returns the credentials for scope. Credentials cached for the same
// signer but a different funder are never returned.
func (s *State) Get(scope domain.CredentialScope) (domain.TradingCredentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creds[scope]
	return c, ok
}

// Set stores creds under their own scope.
func (s *State) Set(creds domain.TradingCredentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[creds.Scope] = creds
}

// Swap replaces the credentials for creds.Scope and returns the previous
// value, if any.
func (s *State) Swap(creds domain.TradingCredentials) (domain.TradingCredentials, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.creds[creds.Scope]
	s.creds[creds.Scope] = creds
	return prev, ok
}

// Delete forgets the credentials for scope.
func (s *State) Delete(scope domain.CredentialScope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, scope)
}

// Scopes lists the scopes that currently hold credentials.
func (s *State) Scopes() []domain.CredentialScope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CredentialScope, 0, len(s.creds))
	for sc := range s.creds {
		out = append(out, sc)
	}
	return out
}
