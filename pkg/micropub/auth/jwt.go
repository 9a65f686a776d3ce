package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/tendant/simple-micropub/pkg/micropub"
)

// JWTVerifier accepts HS256 JWTs signed with a shared secret.
// The subject claim carries the profile URL; client_id and scope are private claims.
type JWTVerifier struct {
	auth *jwtauth.JWTAuth
}

// NewJWTVerifier creates a verifier for tokens signed with secret
func NewJWTVerifier(secret string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &JWTVerifier{auth: jwtauth.New("HS256", []byte(secret), nil)}, nil
}

func (v *JWTVerifier) Verify(ctx context.Context, token string) (*micropub.AuthContext, error) {
	parsed, err := jwtauth.VerifyToken(v.auth, token)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, micropub.ErrInvalidToken)
	}

	auth := &micropub.AuthContext{
		Me:       parsed.Subject(),
		IssuedAt: parsed.IssuedAt(),
	}
	if auth.Me == "" {
		return nil, fmt.Errorf("token has no subject: %w", micropub.ErrInvalidToken)
	}
	if clientID, ok := parsed.Get("client_id"); ok {
		auth.ClientID, _ = clientID.(string)
	}
	if scope, ok := parsed.Get("scope"); ok {
		if s, ok := scope.(string); ok {
			auth.Scopes = micropub.ParseScopes(s)
		}
	}
	return auth, nil
}

// Issue signs a token for me and clientID with the given scopes.
// A zero ttl issues a token without expiry.
func (v *JWTVerifier) Issue(me, clientID string, scopes []string, ttl time.Duration) (string, error) {
	claims := map[string]interface{}{
		"sub":       me,
		"client_id": clientID,
		"scope":     strings.Join(scopes, " "),
	}
	jwtauth.SetIssuedNow(claims)
	if ttl > 0 {
		jwtauth.SetExpiryIn(claims, ttl)
	}

	_, tokenString, err := v.auth.Encode(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}
