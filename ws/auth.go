package ws

import (
	"context"
	"fmt"
	"log"

	"github.com/golang-jwt/jwt/v5"

	"github.com/MnsrSfx/lan-chat-web/config"
	"github.com/MnsrSfx/lan-chat-web/metrics"
	"github.com/MnsrSfx/lan-chat-web/store"
)

// Close reason codes for handshake failures. These ride in the close frame
// rather than an HTTP status because not every client runtime can read the
// failed upgrade response.
const (
	CloseNoToken      = 4001
	CloseInvalidToken = 4002
	CloseUnknownUser  = 4003
)

// AuthError carries the close code and reason for a failed handshake.
type AuthError struct {
	Code   int
	Reason string
}

func (e *AuthError) Error() string { return e.Reason }

// TokenVerifier validates handshake tokens and resolves their subject to a
// user record. Verification is local; only the user lookup touches the
// store.
type TokenVerifier struct {
	cfg   *config.AuthConfig
	users store.UserStore
}

// NewTokenVerifier creates a new TokenVerifier.
func NewTokenVerifier(cfg *config.AuthConfig, users store.UserStore) *TokenVerifier {
	return &TokenVerifier{cfg: cfg, users: users}
}

// Verify checks the token string and returns the authenticated user. A nil
// *AuthError means success. The three failure modes map to distinct close
// codes: missing token, invalid/expired token, and a valid token whose
// subject no longer exists.
func (v *TokenVerifier) Verify(ctx context.Context, tokenString string) (*store.User, *AuthError) {
	if tokenString == "" {
		metrics.AuthFailures.WithLabelValues("no_token").Inc()
		return nil, &AuthError{Code: CloseNoToken, Reason: "missing authentication token"}
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(v.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		metrics.AuthFailures.WithLabelValues("invalid_token").Inc()
		return nil, &AuthError{Code: CloseInvalidToken, Reason: "invalid authentication token"}
	}

	user, err := v.users.GetUser(ctx, claims.Subject)
	if err != nil {
		// Store failure, not a bad token. Still fatal to this attempt; the
		// client retries with backoff.
		log.Printf("User lookup failed for subject %s: %v", claims.Subject, err)
		metrics.AuthFailures.WithLabelValues("unknown_user").Inc()
		return nil, &AuthError{Code: CloseUnknownUser, Reason: "user lookup failed"}
	}
	if user == nil {
		metrics.AuthFailures.WithLabelValues("unknown_user").Inc()
		return nil, &AuthError{Code: CloseUnknownUser, Reason: "no such user"}
	}

	metrics.AuthSuccess.Inc()
	return user, nil
}
