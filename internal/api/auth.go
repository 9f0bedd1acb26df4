package api

import (
	"net/http"

	"github.com/UkralStul/blog-service/internal/domain"
	"github.com/UkralStul/blog-service/internal/identity"
	"github.com/UkralStul/blog-service/internal/wire"
)

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req wire.RegisterRequest
	if !s.decode(w, r, &req) {
		return
	}
	who, err := s.auth.Register(r.Context(), identity.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wire.FromIdentity(*who))
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req wire.LoginRequest
	if !s.decode(w, r, &req) {
		return
	}
	session, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.LoginResponse{
		Success:   true,
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		User:      session.Identity,
	})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	token := tokenFrom(r.Context())
	if token == "" {
		s.fail(w, r, domain.ErrUnauthorized)
		return
	}
	if err := s.auth.Logout(r.Context(), token); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.SuccessResponse{Success: true})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	who := identity.FromContext(r.Context())
	if who.IsAnonymous() {
		s.fail(w, r, domain.ErrUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, who)
}
