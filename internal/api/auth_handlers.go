package api

import (
	"errors"
	"net/http"

	"aqualog/internal/auth"
	"aqualog/internal/models"
)

// CredentialsRequest is the body of the sign-up and sign-in endpoints.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	st, err := s.deps.Auth.SignUp(r.Context(), req.Email, req.Password, req.Name)
	s.writeAuthResult(w, r, st, err)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	st, err := s.deps.Auth.SignIn(r.Context(), req.Email, req.Password)
	s.writeAuthResult(w, r, st, err)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Auth.SignOut(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Auth.Status())
}

// writeAuthResult reports a failed attempt with the backend's own message.
func (s *Server) writeAuthResult(w http.ResponseWriter, r *http.Request, st auth.Status, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, st)
	case errors.Is(err, models.ErrAuth) && st.Error != "":
		writeJSON(w, http.StatusUnauthorized, st)
	default:
		s.fail(w, r, err)
	}
}
