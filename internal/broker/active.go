package broker

import (
	"sync"

	"github.com/semmy-space/dirctl/internal/vault"
)

// ActiveSet holds the credential each identity currently calls the API with.
// It lives only in memory and is never evicted.
type ActiveSet struct {
	mu    sync.RWMutex
	creds map[string]vault.Credential
}

// NewActiveSet returns an empty ActiveSet.
func NewActiveSet() *ActiveSet {
	return &ActiveSet{creds: make(map[string]vault.Credential)}
}

// Set makes cred the active credential for identity.
func (s *ActiveSet) Set(identity string, cred vault.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[identity] = cred
}

// Get returns the active credential for identity.
func (s *ActiveSet) Get(identity string) (vault.Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.creds[identity]
	return cred, ok
}

// Has reports whether identity has an active credential.
func (s *ActiveSet) Has(identity string) bool {
	_, ok := s.Get(identity)
	return ok
}
