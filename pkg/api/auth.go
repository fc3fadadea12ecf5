package api

import (
	"net/http"
	"strings"
)

// Principal is the authenticated caller of one request
type Principal struct {
	Admin bool
}

// TokenValidator is the port to whatever validates bearer tokens. The
// control plane ships a static-token implementation; anything smarter
// (OIDC, a gateway) plugs in here.
type TokenValidator interface {
	Validate(token string) (Principal, bool)
}

// StaticTokens validates against two fixed tokens: one regular, one admin.
// An empty regular token disables auth entirely (local development).
type StaticTokens struct {
	Token      string
	AdminToken string
}

// Validate implements TokenValidator
func (s StaticTokens) Validate(token string) (Principal, bool) {
	if s.Token == "" {
		return Principal{Admin: true}, true
	}
	switch token {
	case s.AdminToken:
		if s.AdminToken != "" {
			return Principal{Admin: true}, true
		}
	case s.Token:
		return Principal{}, true
	}
	return Principal{}, false
}

type principalKey struct{}

// bearerToken extracts the token from the Authorization header
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
