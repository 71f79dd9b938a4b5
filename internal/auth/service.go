package auth

import (
	"crypto/subtle"
	"strings"
	"time"
)

// APIKey is one static credential with its granted scopes.
type APIKey struct {
	Key    string
	Name   string
	Scopes []string
}

// Identity is a resolved caller: who they are and what they may do.
type Identity struct {
	Subject string
	Scopes  ScopeSet
}

// Service resolves credentials to identities. A credential is tried as a JWT
// first, then against the static API key table. Resolution happens per
// request; scope changes take effect on the next call.
type Service struct {
	jwt           *JWTService
	keys          []APIKey
	defaultScopes []string
}

// ServiceConfig configures the auth service.
type ServiceConfig struct {
	// JWTSecret enables JWT validation when non-empty.
	JWTSecret string

	// TokenExpiry bounds tokens issued by this service.
	TokenExpiry time.Duration

	// APIKeys is the static credential table.
	APIKeys []APIKey

	// DefaultScopes are granted to credential-less chat callers.
	DefaultScopes []string
}

// NewService creates the auth service.
func NewService(config ServiceConfig) *Service {
	var jwtService *JWTService
	if config.JWTSecret != "" {
		jwtService = NewJWTService(config.JWTSecret, config.TokenExpiry)
	}
	return &Service{
		jwt:           jwtService,
		keys:          config.APIKeys,
		defaultScopes: config.DefaultScopes,
	}
}

// JWT exposes the underlying JWT service for token issuance. Nil when no
// secret is configured.
func (s *Service) JWT() *JWTService {
	return s.jwt
}

// DefaultScopes returns the scope set granted to credential-less chat
// callers.
func (s *Service) DefaultScopes() ScopeSet {
	return NewScopeSet(s.defaultScopes...)
}

// ResolveScopes maps a bearer credential to an identity. The credential is
// tried as a JWT first, then compared against every configured API key in
// constant time.
func (s *Service) ResolveScopes(credential string) (*Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, ErrInvalidCredential
	}

	if s.jwt != nil {
		if claims, err := s.jwt.Validate(credential); err == nil {
			return &Identity{
				Subject: claims.Subject,
				Scopes:  NewScopeSet(claims.Scopes...),
			}, nil
		}
	}

	// Compare against every key regardless of an earlier match so the
	// timing does not depend on which key matched.
	var matched *APIKey
	for i := range s.keys {
		key := &s.keys[i]
		if subtle.ConstantTimeCompare([]byte(key.Key), []byte(credential)) == 1 && matched == nil {
			matched = key
		}
	}
	if matched == nil {
		return nil, ErrInvalidCredential
	}
	return &Identity{
		Subject: matched.Name,
		Scopes:  NewScopeSet(matched.Scopes...),
	}, nil
}
