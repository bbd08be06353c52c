package api

import (
	"io"
	"log"
	"net/http"
	"strconv"

	"veranda/internal/models"
)

type UploadResponse struct {
	FileID   string `json:"fileId"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// UploadHandler stores the raw request body as a file.
func (a *API) UploadHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	meta, err := a.files.Upload(UserID(r), r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, UploadResponse{
		FileID:   meta.ID,
		MimeType: meta.MimeType,
		Size:     meta.Size,
	})
}

func (a *API) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	meta, rc, err := a.files.Open(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", meta.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if _, err := io.Copy(w, rc); err != nil {
		log.Printf("failed to stream file %s: %v", meta.ID, err)
	}
}

// SubscriptionRequest mirrors the browser's PushSubscription.toJSON().
type SubscriptionRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func (a *API) SubscribeHandler(w http.ResponseWriter, r *http.Request) {
	if a.vapid == "" {
		http.Error(w, "Push notifications are not configured", http.StatusNotFound)
		return
	}
	var req SubscriptionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Endpoint == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		http.Error(w, "Endpoint and keys are required", http.StatusBadRequest)
		return
	}
	err := a.store.UpsertPushSubscription(models.PushSubscription{
		UserID:   UserID(r),
		Endpoint: req.Endpoint,
		Auth:     req.Keys.Auth,
		P256dh:   req.Keys.P256dh,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.APIResponse{Success: true})
}

func (a *API) VAPIDKeyHandler(w http.ResponseWriter, r *http.Request) {
	if a.vapid == "" {
		http.Error(w, "Push notifications are not configured", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": a.vapid})
}
