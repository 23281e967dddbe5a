package server

import (
	"encoding/json"
	"errors"
	"html/template"
	"mime"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/portfolio-admin/internal/server/middleware"
	"github.com/jonathan/portfolio-admin/internal/session"
	"github.com/jonathan/portfolio-admin/internal/types"
)

// portalPath is where a browser lands after signing in.
const portalPath = "/content"

var loginPage = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Sign in</title></head>
<body>
<h1>Admin sign in</h1>
{{if .Error}}<p role="alert">{{.Error}}</p>{{end}}
<form method="post" action="/login">
<label>Email <input type="email" name="username" value="{{.Username}}" required></label>
<label>Password <input type="password" name="password" required></label>
<button type="submit">Sign in</button>
</form>
</body>
</html>
`))

type loginPageData struct {
	Username string
	Error    string
}

func (s *Server) renderLogin(w http.ResponseWriter, status int, data loginPageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := loginPage.Execute(w, data); err != nil {
		s.logger.Warn("failed to render sign-in page", zap.Error(err))
	}
}

// handleLoginPage serves the sign-in form; a signed-in browser goes straight
// to the portal.
func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if token := middleware.TokenFromRequest(r); token != "" && s.sessions.IsAuthenticated(token) {
		http.Redirect(w, r, portalPath, http.StatusSeeOther)
		return
	}
	s.renderLogin(w, http.StatusOK, loginPageData{})
}

// handleLogin accepts a JSON body or a submitted form. Browsers get a session
// cookie and a redirect; API clients get the token in the body as well.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req types.LoginRequest
	form := !isJSON(r)
	if form {
		if err := r.ParseForm(); err != nil {
			s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := s.sessions.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		status := HTTPStatus(err)
		message := err.Error()
		if errors.Is(err, session.ErrInvalidCredentials) {
			message = session.InvalidCredentialsMessage
		}
		if form && middleware.WantsHTML(r) {
			s.renderLogin(w, status, loginPageData{Username: req.Username, Error: message})
			return
		}
		s.errorResponse(w, status, message)
		return
	}

	http.SetCookie(w, s.sessionCookie(resp.Token, resp.ExpiresAt))
	if form && middleware.WantsHTML(r) {
		http.Redirect(w, r, portalPath, http.StatusSeeOther)
		return
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// handleLogout ends the current session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Logout(middleware.TokenFromRequest(r)); err != nil {
		s.fail(w, r, err)
		return
	}

	expired := s.sessionCookie("", time.Unix(0, 0))
	expired.MaxAge = -1
	http.SetCookie(w, expired)

	if middleware.WantsHTML(r) {
		http.Redirect(w, r, middleware.LoginPath, http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) sessionCookie(token string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     middleware.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}
