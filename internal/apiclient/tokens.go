package apiclient

import "sync"

// Tokens is a signed-in session
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (t Tokens) Empty() bool { return t.AccessToken == "" && t.RefreshToken == "" }

// TokenStore holds the current session for a Client
type TokenStore interface {
	Get() Tokens
	Set(Tokens)
	Clear()
}

// MemoryTokenStore keeps tokens for the life of the process
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens Tokens
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Get() Tokens {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens
}

func (s *MemoryTokenStore) Set(t Tokens) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = t
}

func (s *MemoryTokenStore) Clear() {
	s.Set(Tokens{})
}
