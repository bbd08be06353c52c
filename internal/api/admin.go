package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"veranda/internal/models"
	"veranda/internal/moderation"

	"golang.org/x/crypto/bcrypt"
)

type AdminStore interface {
	ListUsers() ([]models.User, error)
	UpdateUser(id string, fn func(*models.User) error) (models.User, error)
}

// AdminHandler serves the bootstrap endpoints of the admin server. It is
// meant to listen on localhost only.
type AdminHandler struct {
	store        AdminStore
	user         string
	passwordHash []byte
}

func NewAdminHandler(store AdminStore, user, passwordHash string) *AdminHandler {
	return &AdminHandler{store: store, user: user, passwordHash: []byte(passwordHash)}
}

// RequireBasicAuth checks the credentials against the configured bcrypt
// hash. Without a hash every request is let through.
func (h *AdminHandler) RequireBasicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(h.passwordHash) == 0 {
			next(w, r)
			return
		}
		user, password, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(h.user)) != 1 ||
			bcrypt.CompareHashAndPassword(h.passwordHash, []byte(password)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="veranda admin"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (h *AdminHandler) UsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers()
	if err != nil {
		writeError(w, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *AdminHandler) SetRoleHandler(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	userID := r.PathValue("id")
	_, err := h.store.UpdateUser(userID, func(u *models.User) error {
		updated, err := moderation.SetRole(*u, req.Role)
		if err != nil {
			return err
		}
		*u = updated
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.APIResponse{
		Success: true,
		Message: fmt.Sprintf("User %s is now %s", userID, req.Role),
	})
}
