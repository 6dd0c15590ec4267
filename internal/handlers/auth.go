package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/healthspend/apiserver/internal/apperr"
	"github.com/healthspend/apiserver/internal/services"
	"github.com/healthspend/apiserver/types"
)

// AuthHandler provides account endpoints. The heart and spend services
// accept and return differently shaped payloads over the same use-cases.
type AuthHandler struct {
	authService *services.AuthService
}

func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// HeartAuthRouter registers /register, /login and /me for the heart service.
func HeartAuthRouter(r chi.Router, authService *services.AuthService) {
	h := NewAuthHandler(authService)

	r.Post("/register", h.HeartRegister)
	r.Post("/login", h.HeartLogin)
	r.With(RequireAuth(authService)).Get("/me", h.HeartMe)
}

// SpendAuthRouter registers /signup, /login and /me for the spend service.
func SpendAuthRouter(r chi.Router, authService *services.AuthService) {
	h := NewAuthHandler(authService)

	r.Post("/signup", h.SpendSignup)
	r.Post("/login", h.SpendLogin)
	r.With(RequireAuth(authService)).Get("/me", h.SpendMe)
}

// RequireAuth verifies the bearer token and injects its subject into the
// request context.
func RequireAuth(authService *services.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Not authenticated")
				return
			}

			userID, err := authService.Authenticate(token)
			if err != nil {
				writeAppError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), userID)))
		})
	}
}

type HeartRegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type SpendSignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HeartUser is the heart service's public user profile.
type HeartUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
}

type HeartAuthResponse struct {
	Token string    `json:"token"`
	User  HeartUser `json:"user"`
}

// SpendUser is the spend service's public user profile.
type SpendUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type SpendAuthResponse struct {
	SpendUser
	Token string `json:"token"`
}

func newHeartUser(u types.User) HeartUser {
	return HeartUser{ID: u.ID, Email: u.Email, FullName: u.Name, CreatedAt: u.CreatedAt}
}

func newSpendUser(u types.User) SpendUser {
	return SpendUser{ID: u.ID, Name: u.Name, Email: u.Email}
}

func (h *AuthHandler) HeartRegister(w http.ResponseWriter, r *http.Request) {
	var req HeartRegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	res, err := h.authService.Register(r.Context(), services.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.FullName,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HeartAuthResponse{Token: res.Token, User: newHeartUser(res.User)})
}

func (h *AuthHandler) HeartLogin(w http.ResponseWriter, r *http.Request) {
	res, err := h.login(w, r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HeartAuthResponse{Token: res.Token, User: newHeartUser(res.User)})
}

func (h *AuthHandler) HeartMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.me(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newHeartUser(user))
}

func (h *AuthHandler) SpendSignup(w http.ResponseWriter, r *http.Request) {
	var req SpendSignupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	res, err := h.authService.Register(r.Context(), services.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SpendAuthResponse{SpendUser: newSpendUser(res.User), Token: res.Token})
}

func (h *AuthHandler) SpendLogin(w http.ResponseWriter, r *http.Request) {
	res, err := h.login(w, r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SpendAuthResponse{SpendUser: newSpendUser(res.User), Token: res.Token})
}

func (h *AuthHandler) SpendMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.me(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSpendUser(user))
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) (services.AuthResult, error) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return services.AuthResult{}, err
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return services.AuthResult{}, apperr.Validation("email and password are required")
	}
	return h.authService.Login(r.Context(), req.Email, req.Password)
}

func (h *AuthHandler) me(r *http.Request) (types.User, error) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		return types.User{}, apperr.Unauthorized("Not authenticated")
	}
	return h.authService.Me(r.Context(), userID)
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing authorization")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
