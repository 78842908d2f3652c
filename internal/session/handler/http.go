// Package handler exposes the session service over HTTP and as the gRPC TokenService.
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"content-with-coffee/backend/internal/autherr"
	"content-with-coffee/backend/internal/server/middleware"
	"content-with-coffee/backend/internal/server/respond"
	"content-with-coffee/backend/internal/session/service"
	userdomain "content-with-coffee/backend/internal/user/domain"
)

const logoutMessage = "Logged out successfully"

// CookieConfig describes the refresh token cookie.
type CookieConfig struct {
	Name   string
	Path   string
	Secure bool
	MaxAge time.Duration
}

// HTTPHandler serves the JSON auth endpoints.
type HTTPHandler struct {
	svc    *service.SessionService
	cookie CookieConfig
	log    *slog.Logger
}

// NewHTTPHandler returns an HTTPHandler. logger may be nil.
func NewHTTPHandler(svc *service.SessionService, cookie CookieConfig, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HTTPHandler{svc: svc, cookie: cookie, log: logger}
}

type registerRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	Name          string `json:"name"`
	Bio           string `json:"bio"`
	FavoriteDrink string `json:"favoriteDrink"`
	Location      string `json:"location"`
}

type registerResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type logoutRequest struct {
	RefreshToken      string `json:"refreshToken"`
	OAuthToken        string `json:"oauthToken"`
	GoogleAccessToken string `json:"googleAccessToken"`
}

type googleRequest struct {
	IDToken    string `json:"idToken"`
	Credential string `json:"credential"`
}

type tokenResponse struct {
	Success     bool   `json:"success"`
	AccessToken string `json:"accessToken"`
	ID          string `json:"id"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// profileResponse is the public view of a user. It never carries credentials or token digests.
type profileResponse struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name,omitempty"`
	Bio            string    `json:"bio,omitempty"`
	FavoriteDrink  string    `json:"favoriteDrink,omitempty"`
	Location       string    `json:"location,omitempty"`
	Federated      bool      `json:"federated"`
	FollowersCount int64     `json:"followersCount"`
	FollowingCount int64     `json:"followingCount"`
	PostsCount     int64     `json:"postsCount"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func toProfile(u *userdomain.User) profileResponse {
	return profileResponse{
		ID:             u.ID,
		Email:          u.Email,
		Name:           u.Name,
		Bio:            u.Bio,
		FavoriteDrink:  u.FavoriteDrink,
		Location:       u.Location,
		Federated:      u.Federated,
		FollowersCount: u.FollowersCount,
		FollowingCount: u.FollowingCount,
		PostsCount:     u.PostsCount,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

// Register handles POST /register.
func (h *HTTPHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.Error(w, autherr.Validation("invalid request body"))
		return
	}
	id, err := h.svc.Register(r.Context(), service.RegisterInput{
		Email:         req.Email,
		Password:      req.Password,
		Name:          req.Name,
		Bio:           req.Bio,
		FavoriteDrink: req.FavoriteDrink,
		Location:      req.Location,
	})
	if err != nil {
		h.fail(w, r, "auth.register.fail", err)
		return
	}
	respond.JSON(w, http.StatusCreated, registerResponse{Success: true, ID: id})
}

// Login handles POST /login.
func (h *HTTPHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.Error(w, autherr.Validation("invalid request body"))
		return
	}
	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, "auth.login.fail", err)
		return
	}
	h.issue(w, res)
}

// Refresh handles POST /refresh. The token is read from the refresh cookie, then the body.
func (h *HTTPHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := h.cookieToken(r)
	if token == "" {
		var req refreshRequest
		_ = respond.Decode(w, r, &req)
		token = strings.TrimSpace(req.RefreshToken)
	}
	res, err := h.svc.Refresh(r.Context(), token)
	if err != nil {
		h.fail(w, r, "auth.refresh.fail", err)
		return
	}
	h.issue(w, res)
}

// Logout handles POST /logout. It always clears the cookie and answers 200.
func (h *HTTPHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	_ = respond.Decode(w, r, &req)

	token := h.cookieToken(r)
	if token == "" {
		token = strings.TrimSpace(req.RefreshToken)
	}
	oauth := strings.TrimSpace(req.OAuthToken)
	if oauth == "" {
		oauth = strings.TrimSpace(req.GoogleAccessToken)
	}
	h.svc.Logout(r.Context(), service.LogoutInput{RefreshToken: token, OAuthToken: oauth})

	h.clearCookie(w)
	respond.JSON(w, http.StatusOK, messageResponse{Message: logoutMessage})
}

// Me handles GET /me. It must run behind middleware.RequireAuth.
func (h *HTTPHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())
	u, err := h.svc.Me(r.Context(), userID)
	if err != nil {
		h.fail(w, r, "auth.me.fail", err)
		return
	}
	respond.JSON(w, http.StatusOK, toProfile(u))
}

// Google handles POST /google. The ID token is read from idToken, or credential as sent by Google Identity Services.
func (h *HTTPHandler) Google(w http.ResponseWriter, r *http.Request) {
	var req googleRequest
	if err := respond.Decode(w, r, &req); err != nil && !errors.Is(err, respond.ErrEmptyBody) {
		respond.Error(w, autherr.Validation("invalid request body"))
		return
	}
	idToken := req.IDToken
	if strings.TrimSpace(idToken) == "" {
		idToken = req.Credential
	}
	res, err := h.svc.GoogleLogin(r.Context(), idToken)
	if err != nil {
		h.fail(w, r, "auth.google.fail", err)
		return
	}
	h.issue(w, res)
}

func (h *HTTPHandler) issue(w http.ResponseWriter, res *service.AuthResult) {
	h.setCookie(w, res.RefreshToken, res.RefreshExpiresAt)
	respond.JSON(w, http.StatusOK, tokenResponse{Success: true, AccessToken: res.AccessToken, ID: res.UserID})
}

// fail writes err. Internal and configuration failures are logged at error level.
func (h *HTTPHandler) fail(w http.ResponseWriter, r *http.Request, event string, err error) {
	switch autherr.KindOf(err) {
	case autherr.KindInternal, autherr.KindConfiguration:
		h.log.ErrorContext(r.Context(), event, "error", err, "request_id", middleware.GetRequestID(r.Context()))
	default:
		h.log.DebugContext(r.Context(), event, "error", err)
	}
	respond.Error(w, err)
}

func (h *HTTPHandler) cookieToken(r *http.Request) string {
	c, err := r.Cookie(h.cookie.Name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

func (h *HTTPHandler) setCookie(w http.ResponseWriter, value string, exp time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    value,
		Path:     h.cookie.Path,
		Expires:  exp,
		MaxAge:   int(h.cookie.MaxAge / time.Second),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *HTTPHandler) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     h.cookie.Path,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}
