package handler

import (
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/auth"
	"github.com/sakif/vinstackcode/internal/service"
)

const stateCookieName = "oauth_state"

// AuthHandler signs users in and out.
//
// HANDLER RESPONSIBILITIES:
//   - HandleGitHubLogin / HandleGitHubCallback → the OAuth dance
//   - HandleRegister / HandleLogin             → password accounts
//   - HandleLogout                             → clear the session cookie
//   - HandleMe                                 → the caller's profile
//
// Every successful sign-in sets the same HttpOnly "token" cookie and also
// returns the token in the body, so API clients that cannot keep cookies
// can send it as a Bearer header instead.
type AuthHandler struct {
	github       *auth.GitHubProvider // nil when GitHub login is not configured
	accounts     *service.AuthService
	tokens       *auth.TokenService
	cookieSecure bool
	logger       *slog.Logger
}

func NewAuthHandler(
	github *auth.GitHubProvider,
	accounts *service.AuthService,
	tokens *auth.TokenService,
	cookieSecure bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		github:       github,
		accounts:     accounts,
		tokens:       tokens,
		cookieSecure: cookieSecure,
		logger:       logger,
	}
}

// HandleGitHubLogin redirects the browser to GitHub.
//
// HTTP: GET /auth/github/login
//
// CSRF PROTECTION VIA STATE:
// A random state goes into a short-lived cookie and into the authorize URL.
// The callback only proceeds when both match, which proves the flow started
// here and not on an attacker's page.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeError(w, r, h.logger, apperror.Unavailable("GitHub login"))
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Check the state against the cookie and clear the cookie (single use)
//  2. Exchange the code for the GitHub user
//  3. Create or refresh the profile and issue a token
//  4. Set the session cookie and go home
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeError(w, r, h.logger, apperror.Unavailable("GitHub login"))
		return
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		writeError(w, r, h.logger, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, r, h.logger, apperror.ValidationFailed("code", "missing OAuth code"))
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		writeError(w, r, h.logger, apperror.Unavailable("GitHub login"))
		return
	}

	res, err := h.accounts.LoginGitHub(r.Context(), ghUser)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.setSession(w, res.Token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type registerRequest struct {
	Username string `json:"username" validate:"required,max=39"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// HandleRegister creates a password account.
//
// HTTP: POST /auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.accounts.Register(r.Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.setSession(w, res.Token)
	writeJSON(w, http.StatusCreated, res)
}

type loginRequest struct {
	// Identifier is a username or an email address.
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

// HandleLogin signs in with a password.
//
// HTTP: POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.accounts.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.setSession(w, res.Token)
	writeJSON(w, http.StatusOK, res)
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /auth/logout
//
// Tokens are stateless, so a copied token stays valid until it expires.
// Logout only removes the browser's copy.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the caller's profile.
//
// HTTP: GET /api/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	profile, err := h.accounts.Me(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *AuthHandler) setSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.tokens.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
