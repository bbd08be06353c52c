package api

import (
	"net/http"

	"veranda/internal/models"
)

type CreatePostRequest struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Category string `json:"category"`
}

type ReplyRequest struct {
	Body string `json:"body"`
}

func (a *API) ListPostsHandler(w http.ResponseWriter, r *http.Request) {
	posts, err := a.forum.List(r.URL.Query().Get("category"))
	if err != nil {
		writeError(w, err)
		return
	}
	if posts == nil {
		posts = []models.ForumPost{}
	}
	writeJSON(w, http.StatusOK, posts)
}

func (a *API) GetPostHandler(w http.ResponseWriter, r *http.Request) {
	post, err := a.forum.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (a *API) CreatePostHandler(w http.ResponseWriter, r *http.Request) {
	var req CreatePostRequest
	if !decodeBody(w, r, &req) {
		return
	}
	post, err := a.forum.CreatePost(UserID(r), req.Title, req.Body, req.Category)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (a *API) ReplyHandler(w http.ResponseWriter, r *http.Request) {
	var req ReplyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	reply, err := a.forum.Reply(r.PathValue("id"), UserID(r), req.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reply)
}

func (a *API) PinPostHandler(w http.ResponseWriter, r *http.Request) {
	post, err := a.forum.TogglePin(UserID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (a *API) LockPostHandler(w http.ResponseWriter, r *http.Request) {
	post, err := a.forum.ToggleLock(UserID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (a *API) FriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.friends.Request(UserID(r), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.APIResponse{Success: true})
}

func (a *API) AcceptFriendHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.friends.Accept(UserID(r), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.APIResponse{Success: true})
}

func (a *API) RejectFriendHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.friends.Reject(UserID(r), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.APIResponse{Success: true})
}
