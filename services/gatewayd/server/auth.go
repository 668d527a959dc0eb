package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
)

// Role names an authorization level for gatewayd endpoints.
type Role string

const (
	// RoleAdmin may mutate caps, thresholds and epoch configuration.
	RoleAdmin Role = "admin"
	// RolePauser may flip the admission switch but nothing else.
	RolePauser Role = "pauser"
	// RoleCustodian may apply settlements.
	RoleCustodian Role = "custodian"
)

// AuthConfig configures per-role bearer tokens and mTLS authentication.
type AuthConfig struct {
	AdminToken     string
	PauserToken    string
	CustodianToken string
	AllowMTLS      bool
}

// Authenticator verifies privileged requests before they reach handlers. Each
// role carries its own bearer token; a verified mTLS client certificate
// satisfies any role.
type Authenticator struct {
	tokens    map[Role]string
	allowMTLS bool
}

// Principal describes an authenticated actor.
type Principal struct {
	Role   Role
	Method string
}

type principalContextKey struct{}

// PrincipalFromContext extracts the authenticated principal from the request context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	principal, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || principal == nil {
		return nil, false
	}
	return principal, true
}

// NewAuthenticator constructs an authenticator from configuration.
func NewAuthenticator(cfg AuthConfig) (*Authenticator, error) {
	tokens := make(map[Role]string)
	for role, token := range map[Role]string{
		RoleAdmin:     cfg.AdminToken,
		RolePauser:    cfg.PauserToken,
		RoleCustodian: cfg.CustodianToken,
	} {
		if trimmed := strings.TrimSpace(token); trimmed != "" {
			tokens[role] = trimmed
		}
	}
	if len(tokens) == 0 && !cfg.AllowMTLS {
		return nil, fmt.Errorf("at least one authentication mechanism must be configured")
	}
	return &Authenticator{tokens: tokens, allowMTLS: cfg.AllowMTLS}, nil
}

// Require enforces that the request authenticates as one of the listed roles.
func (a *Authenticator) Require(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a == nil {
				http.Error(w, "authentication unavailable", http.StatusInternalServerError)
				return
			}
			principal, ok := a.authenticate(r, roles)
			if !ok {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Authenticator) authenticate(r *http.Request, roles []Role) (*Principal, bool) {
	if a == nil || r == nil {
		return nil, false
	}
	if token := parseBearerToken(r.Header.Get("Authorization")); token != "" {
		for _, role := range roles {
			expected, ok := a.tokens[role]
			if !ok {
				continue
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1 {
				return &Principal{Role: role, Method: "bearer"}, true
			}
		}
	}
	if a.allowMTLS {
		if principal := a.authenticateByMTLS(r, roles); principal != nil {
			return principal, true
		}
	}
	return nil, false
}

func (a *Authenticator) authenticateByMTLS(r *http.Request, roles []Role) *Principal {
	state := r.TLS
	if state == nil || len(roles) == 0 {
		return nil
	}
	if len(state.VerifiedChains) > 0 {
		return &Principal{Role: roles[0], Method: "mtls"}
	}
	if len(state.PeerCertificates) > 0 && state.HandshakeComplete {
		return &Principal{Role: roles[0], Method: "mtls"}
	}
	return nil
}

func parseBearerToken(header string) string {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return ""
	}
	parts := strings.SplitN(trimmed, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(strings.TrimSpace(parts[0]), "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
