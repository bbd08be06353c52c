package api

import (
	"net/http"
	"time"

	"veranda/internal/models"
	"veranda/internal/moderation"
)

// maxTimeoutMinutes is ten years.
const maxTimeoutMinutes = 10 * 365 * 24 * 60

type TimeoutRequest struct {
	// Minutes from now until the user may write again.
	Minutes int    `json:"minutes"`
	Reason  string `json:"reason"`
}

type RoleRequest struct {
	Role models.Role `json:"role"`
}

type PrefixRequest struct {
	Prefix string `json:"prefix"`
}

// moderate applies fn to the target user when the caller is an administrator.
func (a *API) moderate(w http.ResponseWriter, r *http.Request, fn func(models.User) (models.User, error)) {
	actor, err := a.store.GetUser(UserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := moderation.RequireAdmin(actor); err != nil {
		writeError(w, err)
		return
	}

	user, err := a.store.UpdateUser(r.PathValue("id"), func(u *models.User) error {
		updated, err := fn(*u)
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
	writeJSON(w, http.StatusOK, user)
}

func (a *API) TimeoutHandler(w http.ResponseWriter, r *http.Request) {
	var req TimeoutRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Minutes <= 0 {
		http.Error(w, "Minutes must be positive", http.StatusBadRequest)
		return
	}
	minutes := min(req.Minutes, maxTimeoutMinutes)
	until := time.Now().Add(time.Duration(minutes) * time.Minute)
	a.moderate(w, r, func(u models.User) (models.User, error) {
		return moderation.ImposeTimeout(u, until, req.Reason), nil
	})
}

func (a *API) ClearTimeoutHandler(w http.ResponseWriter, r *http.Request) {
	a.moderate(w, r, func(u models.User) (models.User, error) {
		return moderation.ClearTimeout(u), nil
	})
}

func (a *API) RoleHandler(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a.moderate(w, r, func(u models.User) (models.User, error) {
		return moderation.SetRole(u, req.Role)
	})
}

func (a *API) PrefixHandler(w http.ResponseWriter, r *http.Request) {
	var req PrefixRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a.moderate(w, r, func(u models.User) (models.User, error) {
		return moderation.SetPrefix(u, req.Prefix)
	})
}
