package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/powerport/user-service/domains/providers/be/service"
)

// fakeKeycloak is an httptest-backed admin API double covering the endpoints
// the client touches.
type fakeKeycloak struct {
	t *testing.T

	tokenStatus  int
	tokenBody    string
	existingUser *userRep
	createStatus int
	omitLocation bool

	createdUser   *userRep
	updatedUsers  []userRep
	passwordBody  map[string]any
	assignedRoles []roleRep
}

func newFakeKeycloak(t *testing.T) *fakeKeycloak {
	return &fakeKeycloak{
		t:            t,
		tokenStatus:  http.StatusOK,
		tokenBody:    `{"access_token":"test-token"}`,
		createStatus: http.StatusCreated,
	}
}

func (f *fakeKeycloak) server() *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /realms/master/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(f.t, r.ParseForm())
		require.Equal(f.t, "password", r.PostForm.Get("grant_type"))
		require.Equal(f.t, "admin-cli", r.PostForm.Get("client_id"))
		w.WriteHeader(f.tokenStatus)
		_, _ = w.Write([]byte(f.tokenBody))
	})

	mux.HandleFunc("GET /admin/realms/powerport/users", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(f.t, "true", r.URL.Query().Get("exact"))
		users := []userRep{}
		if f.existingUser != nil {
			users = append(users, *f.existingUser)
		}
		_ = json.NewEncoder(w).Encode(users)
	})

	mux.HandleFunc("POST /admin/realms/powerport/users", func(w http.ResponseWriter, r *http.Request) {
		var rep userRep
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&rep))
		f.createdUser = &rep
		if f.createStatus == http.StatusCreated && !f.omitLocation {
			w.Header().Set("Location", "/admin/realms/powerport/users/user-123")
		}
		w.WriteHeader(f.createStatus)
	})

	mux.HandleFunc("GET /admin/realms/powerport/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		rep := userRep{ID: r.PathValue("id")}
		if f.existingUser != nil {
			rep = *f.existingUser
		}
		_ = json.NewEncoder(w).Encode(rep)
	})

	mux.HandleFunc("PUT /admin/realms/powerport/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		var rep userRep
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&rep))
		f.updatedUsers = append(f.updatedUsers, rep)
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("PUT /admin/realms/powerport/users/{id}/reset-password", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&f.passwordBody))
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /admin/realms/powerport/roles/{name}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(roleRep{ID: "role-1", Name: r.PathValue("name")})
	})

	mux.HandleFunc("POST /admin/realms/powerport/users/{id}/role-mappings/realm", func(w http.ResponseWriter, r *http.Request) {
		var roles []roleRep
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&roles))
		f.assignedRoles = append(f.assignedRoles, roles...)
		w.WriteHeader(http.StatusNoContent)
	})

	return httptest.NewServer(mux)
}

func newTestClient(baseURL string) *Client {
	return NewClient(Options{
		BaseURL:             baseURL,
		Realm:               "powerport",
		AdminUsername:       "admin",
		AdminPassword:       "admin",
		ForcePasswordUpdate: true,
	}, zap.NewNop())
}

func testSpec() service.AdminUserSpec {
	return service.AdminUserSpec{
		ProviderID:        "acme",
		DisplayName:       "Acme Corp",
		Username:          "acme-admin",
		Email:             "ops@acme.io",
		TemporaryPassword: "S3cret!pass",
	}
}

func TestEnsureAdminUserCreatesNewUser(t *testing.T) {
	fake := newFakeKeycloak(t)
	srv := fake.server()
	defer srv.Close()

	client := newTestClient(srv.URL)
	require.NoError(t, client.EnsureAdminUser(context.Background(), testSpec()))

	require.NotNil(t, fake.createdUser)
	require.Equal(t, "acme-admin", fake.createdUser.Username)
	require.Equal(t, "ops@acme.io", fake.createdUser.Email)
	require.True(t, fake.createdUser.Enabled)
	require.Equal(t, []string{"acme"}, fake.createdUser.Attributes["tenantId"])
	require.Equal(t, []string{"acme"}, fake.createdUser.Attributes["providerId"])
	require.Equal(t, []string{"Provider"}, fake.createdUser.Attributes["role"])

	require.Equal(t, "password", fake.passwordBody["type"])
	require.Equal(t, "S3cret!pass", fake.passwordBody["value"])
	require.Equal(t, true, fake.passwordBody["temporary"])

	// ForcePasswordUpdate drives a required-actions write.
	require.NotEmpty(t, fake.updatedUsers)
	last := fake.updatedUsers[len(fake.updatedUsers)-1]
	require.Equal(t, []string{"UPDATE_PASSWORD"}, last.RequiredActions)

	require.Len(t, fake.assignedRoles, 1)
	require.Equal(t, "Provider", fake.assignedRoles[0].Name)
}

func TestEnsureAdminUserUpdatesExistingUserPreservingAttributes(t *testing.T) {
	fake := newFakeKeycloak(t)
	fake.existingUser = &userRep{
		ID:       "user-42",
		Username: "acme-admin",
		Attributes: map[string][]string{
			"locale":   {"en", "de"},
			"tenantId": {"stale"},
		},
	}
	srv := fake.server()
	defer srv.Close()

	client := newTestClient(srv.URL)
	require.NoError(t, client.EnsureAdminUser(context.Background(), testSpec()))

	require.Nil(t, fake.createdUser)
	require.NotEmpty(t, fake.updatedUsers)

	merged := fake.updatedUsers[0]
	require.Equal(t, "user-42", merged.ID)
	require.Equal(t, []string{"en", "de"}, merged.Attributes["locale"])
	require.Equal(t, []string{"acme"}, merged.Attributes["tenantId"])
	require.Equal(t, []string{"Provider"}, merged.Attributes["role"])
}

func TestEnsureAdminUserTokenFailure(t *testing.T) {
	fake := newFakeKeycloak(t)
	fake.tokenStatus = http.StatusUnauthorized
	fake.tokenBody = `{"error":"invalid_grant"}`
	srv := fake.server()
	defer srv.Close()

	client := newTestClient(srv.URL)
	err := client.EnsureAdminUser(context.Background(), testSpec())

	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, http.StatusUnauthorized, authErr.Status)
}

func TestEnsureAdminUserTokenMissingAccessToken(t *testing.T) {
	fake := newFakeKeycloak(t)
	fake.tokenBody = `{}`
	srv := fake.server()
	defer srv.Close()

	client := newTestClient(srv.URL)
	err := client.EnsureAdminUser(context.Background(), testSpec())

	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
}

func TestEnsureAdminUserCreateConflict(t *testing.T) {
	fake := newFakeKeycloak(t)
	fake.createStatus = http.StatusConflict
	srv := fake.server()
	defer srv.Close()

	client := newTestClient(srv.URL)
	err := client.EnsureAdminUser(context.Background(), testSpec())

	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	require.Equal(t, "user create", providerErr.Op)
	require.Equal(t, http.StatusConflict, providerErr.Status)
}

func TestEnsureAdminUserCreateMissingLocation(t *testing.T) {
	fake := newFakeKeycloak(t)
	fake.omitLocation = true
	srv := fake.server()
	defer srv.Close()

	client := newTestClient(srv.URL)
	err := client.EnsureAdminUser(context.Background(), testSpec())

	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
}
