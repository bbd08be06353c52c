package http

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"veranda/internal/api"
	"veranda/internal/ws"
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

// NewAPIHandler routes the public API and the chat websocket endpoint.
func NewAPIHandler(apiHandlers *api.API, chat *ws.Server) http.Handler {
	auth := apiHandlers.RequireAuth
	write := func(h http.HandlerFunc) http.HandlerFunc {
		return api.RequireSameOrigin(auth(h))
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/chat", chat.HandleConnections)

	mux.HandleFunc("GET /api/me", auth(apiHandlers.MeHandler))
	mux.HandleFunc("PUT /api/me", write(apiHandlers.UpdateMeHandler))
	mux.HandleFunc("GET /api/users", auth(apiHandlers.UsersHandler))
	mux.HandleFunc("GET /api/rooms", auth(apiHandlers.RoomsHandler))
	mux.HandleFunc("GET /api/rooms/{id}/messages", auth(apiHandlers.MessagesHandler))

	mux.HandleFunc("GET /api/forum/posts", auth(apiHandlers.ListPostsHandler))
	mux.HandleFunc("POST /api/forum/posts", write(apiHandlers.CreatePostHandler))
	mux.HandleFunc("GET /api/forum/posts/{id}", auth(apiHandlers.GetPostHandler))
	mux.HandleFunc("POST /api/forum/posts/{id}/replies", write(apiHandlers.ReplyHandler))
	mux.HandleFunc("POST /api/forum/posts/{id}/pin", write(apiHandlers.PinPostHandler))
	mux.HandleFunc("POST /api/forum/posts/{id}/lock", write(apiHandlers.LockPostHandler))

	mux.HandleFunc("POST /api/friends/requests/{id}", write(apiHandlers.FriendRequestHandler))
	mux.HandleFunc("POST /api/friends/requests/{id}/accept", write(apiHandlers.AcceptFriendHandler))
	mux.HandleFunc("DELETE /api/friends/requests/{id}", write(apiHandlers.RejectFriendHandler))

	mux.HandleFunc("POST /api/files", write(apiHandlers.UploadHandler))
	mux.HandleFunc("GET /api/files/{id}", auth(apiHandlers.DownloadHandler))

	mux.HandleFunc("POST /api/push/subscriptions", write(apiHandlers.SubscribeHandler))
	mux.HandleFunc("GET /api/push/vapid-key", auth(apiHandlers.VAPIDKeyHandler))

	mux.HandleFunc("PUT /api/moderation/users/{id}/timeout", write(apiHandlers.TimeoutHandler))
	mux.HandleFunc("DELETE /api/moderation/users/{id}/timeout", write(apiHandlers.ClearTimeoutHandler))
	mux.HandleFunc("PUT /api/moderation/users/{id}/role", write(apiHandlers.RoleHandler))
	mux.HandleFunc("PUT /api/moderation/users/{id}/prefix", write(apiHandlers.PrefixHandler))

	return mux
}

func NewAPIServer(apiHandlers *api.API, chat *ws.Server, addr string) *APIServer {
	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           NewAPIHandler(apiHandlers, chat),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *APIServer) Start() error {
	log.Printf("Server started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for Start to return.
func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
