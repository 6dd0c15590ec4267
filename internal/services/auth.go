package services

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/healthspend/apiserver/internal/apperr"
	"github.com/healthspend/apiserver/internal/auth"
	"github.com/healthspend/apiserver/internal/store"
	"github.com/healthspend/apiserver/types"
)

const (
	msgEmailRegistered    = "Email already registered"
	msgInvalidCredentials = "Invalid email or password"
	msgTokenExpired       = "Token expired"
	msgInvalidToken       = "Invalid token"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
}

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// AuthResult is returned by a successful registration or login.
type AuthResult struct {
	Token string
	User  types.User
}

// AuthService encapsulates account and token use-cases.
type AuthService struct {
	repo   UserRepository
	tokens *auth.TokenManager
}

func NewAuthService(repo UserRepository, tokens *auth.TokenManager) *AuthService {
	return &AuthService{repo: repo, tokens: tokens}
}

// Register creates an account and returns a token for it.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if in.Email == "" || in.Password == "" || in.Name == "" {
		return AuthResult{}, apperr.Validation("email, password and name are required")
	}
	if !validEmail(in.Email) {
		return AuthResult{}, apperr.Validation("Invalid email address")
	}

	if _, err := s.repo.GetByEmail(ctx, in.Email); err == nil {
		return AuthResult{}, apperr.Conflict(msgEmailRegistered)
	} else if !errors.Is(err, store.ErrNotFound) {
		return AuthResult{}, apperr.Internal("failed to check user", err)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return AuthResult{}, apperr.Internal("failed to create user", err)
	}

	user, err := s.repo.Create(ctx, types.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return AuthResult{}, apperr.Conflict(msgEmailRegistered)
		}
		return AuthResult{}, apperr.Internal("failed to create user", err)
	}

	return s.issue(user)
}

// Login checks credentials and returns a fresh token.
func (s *AuthService) Login(ctx context.Context, email, password string) (AuthResult, error) {
	user, err := s.repo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return AuthResult{}, apperr.Unauthorized(msgInvalidCredentials)
		}
		return AuthResult{}, apperr.Internal("failed to authenticate", err)
	}
	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		return AuthResult{}, apperr.Unauthorized(msgInvalidCredentials)
	}
	return s.issue(user)
}

// Me returns the profile of the given user without its password hash.
func (s *AuthService) Me(ctx context.Context, userID string) (types.User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, apperr.NotFound("User not found")
		}
		return types.User{}, apperr.Internal("failed to load user", err)
	}
	user.PasswordHash = ""
	return user, nil
}

// Authenticate verifies a bearer token and returns its user id.
func (s *AuthService) Authenticate(token string) (string, error) {
	userID, err := s.tokens.Verify(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return "", apperr.Unauthorized(msgTokenExpired)
		}
		return "", apperr.Unauthorized(msgInvalidToken)
	}
	return userID, nil
}

func (s *AuthService) issue(user types.User) (AuthResult, error) {
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		slog.Error("failed to sign token", "user_id", user.ID, "error", err)
		return AuthResult{}, apperr.Internal("failed to create token", err)
	}
	user.PasswordHash = ""
	return AuthResult{Token: token, User: user}, nil
}

// validEmail accepts bare addresses only, rejecting display-name forms.
func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
