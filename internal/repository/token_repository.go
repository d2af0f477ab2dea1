package repository

import (
	"sort"
	"sync"
	"time"
)

// DeviceToken represents a registered device token
type DeviceToken struct {
	Token        string    `json:"token"`
	Platform     string    `json:"platform"` // "android" or "ios"
	RegisteredAt time.Time `json:"registeredAt"`
}

// TokenRepository manages device tokens for trigger alerts
type TokenRepository struct {
	tokens map[string]*DeviceToken
	mu     sync.RWMutex
}

func NewTokenRepository() *TokenRepository {
	return &TokenRepository{
		tokens: make(map[string]*DeviceToken),
	}
}

// RegisterToken adds a device token or refreshes its platform.
func (r *TokenRepository) RegisterToken(token, platform string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.tokens[token]; ok {
		existing.Platform = platform
		return
	}
	r.tokens[token] = &DeviceToken{
		Token:        token,
		Platform:     platform,
		RegisteredAt: at,
	}
}

// UnregisterToken removes device tokens. Unknown tokens are ignored.
func (r *TokenRepository) UnregisterToken(tokens ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range tokens {
		delete(r.tokens, t)
	}
}

// GetAllTokens returns every registered token, oldest registration first.
func (r *TokenRepository) GetAllTokens() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*DeviceToken, 0, len(r.tokens))
	for _, t := range r.tokens {
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].RegisteredAt.Equal(all[j].RegisteredAt) {
			return all[i].Token < all[j].Token
		}
		return all[i].RegisteredAt.Before(all[j].RegisteredAt)
	})

	tokens := make([]string, len(all))
	for i, t := range all {
		tokens[i] = t.Token
	}
	return tokens
}

// GetTokenCount returns the number of registered tokens
func (r *TokenRepository) GetTokenCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.tokens)
}
