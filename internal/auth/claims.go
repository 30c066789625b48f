package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims identify the API client behind a token. ClientID keys history,
// stats and the concurrency cap; Role drives rbac.
type Claims struct {
	jwt.RegisteredClaims

	ClientID  string    `json:"client_id"`
	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
}

// Validate runs after the registered-claims checks during parsing.
func (c Claims) Validate() error {
	switch {
	case c.ClientID == "":
		return errors.New("client_id missing")
	case c.Role == "":
		return errors.New("role missing")
	case c.TokenType != TokenTypeAccess && c.TokenType != TokenTypeRefresh:
		return errors.New("token_type missing")
	}
	return nil
}

// Identity returns the caller described by the claims.
func (c Claims) Identity() Identity {
	return Identity{ClientID: c.ClientID, Role: c.Role}
}
