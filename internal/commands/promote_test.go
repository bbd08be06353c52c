package commands

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"veranda/internal/api"
	"veranda/internal/config"
	"veranda/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromote(t *testing.T) {
	var gotUser, gotPassword string
	var gotRole models.Role
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/admin/users/u-42/role", r.URL.Path)
		gotUser, gotPassword, _ = r.BasicAuth()

		var req api.RoleRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotRole = req.Role
		_ = json.NewEncoder(w).Encode(models.APIResponse{Success: true, Message: "ok"})
	}))
	defer srv.Close()

	t.Setenv("ADMIN_PASSWORD", "s3cret")
	cfg := &config.Config{AdminAddr: strings.TrimPrefix(srv.URL, "http://"), AdminUser: "root"}

	require.NoError(t, Promote("u-42", cfg))
	assert.Equal(t, "root", gotUser)
	assert.Equal(t, "s3cret", gotPassword)
	assert.Equal(t, models.RoleAdministrator, gotRole)
}

func TestPromote_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := Promote("u-42", &config.Config{AdminAddr: strings.TrimPrefix(srv.URL, "http://")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
