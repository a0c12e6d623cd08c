package server

import (
	"net/http"
	"strings"

	"github.com/joseph-ayodele/cbam-tracker/internal/common"
	"github.com/joseph-ayodele/cbam-tracker/internal/session"
)

const sessionCookie = "cbam_session"

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess session.Session)

// authed resolves the session token from the bearer header or the session
// cookie and rejects the request with 401 when there is none.
func (s *Server) authed(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.Sessions.Get(tokenFrom(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := common.WithUsername(r.Context(), sess.Username)
		log := common.LoggerFromContext(ctx, s.logger).With("username", sess.Username)
		ctx = common.WithLogger(ctx, log)
		h(w, r.WithContext(ctx), sess)
	}
}

func tokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value
	}
	return ""
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Company  string `json:"company"`
	Credits  int    `json:"credits"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	username := strings.TrimSpace(req.Username)
	password := strings.TrimSpace(req.Password)
	v := common.NewValidator().
		Field("username", username, common.Required, common.MaxLength(maxNameLen)).
		Field("password", password, common.Required)
	if err := common.ValidateAndReturnError(v); err != nil {
		writeError(w, r, err)
		return
	}

	acct, err := s.Accounts.Authenticate(r.Context(), username, password)
	if err != nil {
		common.LoggerFromContext(r.Context(), s.logger).Warn("auth.login.rejected", "username", username, "error", err)
		writeError(w, r, err)
		return
	}

	sess := s.Sessions.Create(acct.Username, strings.ToUpper(acct.Username))
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.Token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, loginResponse{
		Token:    sess.Token,
		Username: sess.Username,
		Company:  sess.Company,
		Credits:  acct.Credits,
	})
}

// handleLogout ends the session and with it the batch. Unknown tokens are
// not an error.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Sessions.Delete(tokenFrom(r))
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusNoContent)
}

type meResponse struct {
	Username string `json:"username"`
	Company  string `json:"company"`
	Credits  int    `json:"credits"`
	Active   bool   `json:"active"`
	HasBatch bool   `json:"has_batch"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, sess session.Session) {
	acct, err := s.Accounts.Lookup(r.Context(), sess.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		Username: sess.Username,
		Company:  sess.Company,
		Credits:  acct.Credits,
		Active:   acct.Active,
		HasBatch: sess.Batch != nil,
	})
}
