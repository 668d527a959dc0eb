package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func authProbe(t *testing.T, auth *Authenticator, header string, roles ...Role) int {
	t.Helper()
	handler := auth.Require(roles...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		require.True(t, ok)
		require.NotEmpty(t, principal.Role)
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder.Code
}

func TestAuthenticatorRequiresConfiguration(t *testing.T) {
	_, err := NewAuthenticator(AuthConfig{})
	require.Error(t, err)
}

func TestAuthenticatorRoleIsolation(t *testing.T) {
	auth, err := NewAuthenticator(AuthConfig{AdminToken: "a-token", CustodianToken: "c-token"})
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, authProbe(t, auth, "Bearer a-token", RoleAdmin))
	require.Equal(t, http.StatusUnauthorized, authProbe(t, auth, "Bearer a-token", RoleCustodian))
	require.Equal(t, http.StatusOK, authProbe(t, auth, "Bearer c-token", RoleCustodian))
	require.Equal(t, http.StatusUnauthorized, authProbe(t, auth, "Bearer wrong", RoleAdmin, RoleCustodian))
	require.Equal(t, http.StatusUnauthorized, authProbe(t, auth, "", RoleAdmin))
}

func TestAuthenticatorBearerParsing(t *testing.T) {
	auth, err := NewAuthenticator(AuthConfig{AdminToken: "a-token"})
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, authProbe(t, auth, "bearer a-token", RoleAdmin))
	require.Equal(t, http.StatusUnauthorized, authProbe(t, auth, "a-token", RoleAdmin))
	require.Equal(t, http.StatusUnauthorized, authProbe(t, auth, "Basic a-token", RoleAdmin))
}
