package http

import (
	"context"
	"log"
	"net/http"
	"sync"

	"veranda/internal/api"
)

type AdminServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAdminHandler(adminHandler *api.AdminHandler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /admin/users", adminHandler.RequireBasicAuth(adminHandler.UsersHandler))
	mux.HandleFunc("PUT /admin/users/{id}/role", adminHandler.RequireBasicAuth(adminHandler.SetRoleHandler))
	return mux
}

func NewAdminServer(adminHandler *api.AdminHandler, addr string) *AdminServer {
	if addr == "" {
		addr = "localhost:8081"
	}

	return &AdminServer{
		server: &http.Server{
			Addr:    addr,
			Handler: NewAdminHandler(adminHandler),
		},
	}
}

func (s *AdminServer) Start() error {
	log.Printf("Admin API started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *AdminServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
