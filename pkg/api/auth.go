package api

import (
	"net/http"

	"github.com/cuemby/vcp/pkg/apperr"
	"github.com/cuemby/vcp/pkg/security"
)

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Auth struct {
		Token string `json:"token"`
	} `json:"auth"`
}

// handleLogin is the one unauthenticated route: it exchanges a
// username/password pair for the bearer token every other route
// requires.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := s.manager.GetUserByUsername(req.Username)
	if err != nil || user == nil || !security.ComparePassword(user.PasswordHash, req.Password) {
		writeError(w, apperr.New(apperr.Unauthorized, apperr.KindValidation, "invalid username or password"))
		return
	}

	token, err := s.tokens.IssueUserToken(user.ID, user.Username, user.RoleIDs)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, apperr.KindInfra, err, "failed to issue session token"))
		return
	}

	var resp loginResponse
	resp.Auth.Token = token
	writeJSON(w, http.StatusOK, resp)
}
