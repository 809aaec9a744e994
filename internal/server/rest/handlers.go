package rest

import (
	"errors"
	"io"
	"net/http"

	"github.com/dmitrijs2005/fooddelivery/internal/common"
	"github.com/go-chi/chi/v5"
)

func (s *HTTPServer) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (s *HTTPServer) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	user, err := s.sessions.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]userResponse{"user": toUser(user)})
}

func (s *HTTPServer) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	pair, err := s.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toSession(pair))
}

func (s *HTTPServer) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil || req.RefreshToken == "" {
		// a malformed request is just another unusable credential
		writeError(w, http.StatusUnauthorized, common.ErrInvalidCredential.Error())
		return
	}

	pair, err := s.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toSession(pair))
}

func (s *HTTPServer) logout(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, common.ErrUnauthorized.Error())
		return
	}

	// the body is optional; without a token every session is closed
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.fail(w, r, err)
		return
	}

	if err := s.sessions.Logout(r.Context(), subject.UserID, req.RefreshToken); err != nil {
		s.fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) revokeUser(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, common.ErrUnauthorized.Error())
		return
	}

	if _, err := s.sessions.RevokeUserSessions(r.Context(), subject, chi.URLParam(r, "userID")); err != nil {
		s.fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) me(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, common.ErrUnauthorized.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]userResponse{"user": {
		ID:    subject.UserID,
		Name:  subject.Name,
		Email: subject.Email,
		Role:  subject.Role,
	}})
}
