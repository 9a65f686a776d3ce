// Package auth provides micropub.TokenVerifier implementations: a static
// token table for development, an IndieAuth token endpoint client and a
// shared-secret JWT verifier.
package auth

import (
	"context"
	"sync"

	"github.com/tendant/simple-micropub/pkg/micropub"
)

// StaticVerifier accepts a fixed set of tokens
type StaticVerifier struct {
	mu     sync.RWMutex
	tokens map[string]micropub.AuthContext
}

// NewStaticVerifier creates an empty static verifier
func NewStaticVerifier() *StaticVerifier {
	return &StaticVerifier{tokens: make(map[string]micropub.AuthContext)}
}

// Add registers token with the given identity
func (v *StaticVerifier) Add(token string, auth micropub.AuthContext) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tokens[token] = auth
}

func (v *StaticVerifier) Verify(ctx context.Context, token string) (*micropub.AuthContext, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	auth, ok := v.tokens[token]
	if !ok {
		return nil, micropub.ErrInvalidToken
	}
	auth.Scopes = append([]string(nil), auth.Scopes...)
	return &auth, nil
}
