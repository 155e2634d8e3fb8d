package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/harentsoaR/clinic-api/internal/models"
	"github.com/harentsoaR/clinic-api/internal/store"
	"github.com/harentsoaR/clinic-api/internal/utils"
	"go.uber.org/zap"
)

// IdentityVerifier checks a third-party sign-in token and returns who it
// belongs to. utils.GoogleVerifier is the production implementation.
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (*utils.ExternalIdentity, error)
}

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

type ProfileUpdate struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type AuthResult struct {
	User  models.PublicUser `json:"user"`
	Token string            `json:"token"`
}

// CredentialClaims is what a verified bearer credential proves.
type CredentialClaims struct {
	UserID string
	Email  string
}

type IdentityService struct {
	users         store.UserRepository
	verifier      IdentityVerifier
	secret        []byte
	log           *zap.SugaredLogger
	now           func() time.Time
	checkPassword func(password, hash string) bool
}

func NewIdentityService(users store.UserRepository, verifier IdentityVerifier, secret string, log *zap.SugaredLogger) *IdentityService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &IdentityService{
		users:         users,
		verifier:      verifier,
		secret:        []byte(secret),
		log:           log,
		now:           time.Now,
		checkPassword: utils.CheckPasswordHash,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *IdentityService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	if name == "" || email == "" || in.Password == "" {
		return nil, Validation("Name, email, and password are required")
	}

	if _, err := s.users.UserByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		ID:        utils.NewID(),
		Name:      name,
		Email:     email,
		Password:  hash,
		Phone:     strings.TrimSpace(in.Phone),
		CreatedAt: s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.log.Infow("user registered", "userId", user.ID)

	return s.authResult(user)
}

// Login answers ErrInvalidCredentials for both an unknown email and a wrong
// password.
func (s *IdentityService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, Validation("Email and password are required")
	}

	user, err := s.users.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.checkPassword(password, utils.DummyPasswordHash())
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !s.checkPassword(password, user.Password) {
		return nil, ErrInvalidCredentials
	}

	return s.authResult(*user)
}

// LoginWithGoogle signs in with a Google ID token, creating a password-less
// account on first use. An existing account with the same email is reused
// whichever way it was created.
func (s *IdentityService) LoginWithGoogle(ctx context.Context, credential string) (*AuthResult, error) {
	if strings.TrimSpace(credential) == "" {
		return nil, Validation("Google credential is required")
	}

	ident, err := s.verifier.Verify(ctx, credential)
	if err != nil {
		s.log.Warnw("google token rejected", "error", err)
		return nil, wrap(ErrInvalidIdentityToken, err)
	}
	email := normalizeEmail(ident.Email)

	user, err := s.users.UserByEmail(ctx, email)
	switch {
	case err == nil:
		return s.authResult(*user)
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	created := models.User{
		ID:        utils.NewID(),
		Name:      ident.Name,
		Email:     email,
		GoogleID:  ident.Subject,
		CreatedAt: s.now().UTC(),
	}
	if created.Name == "" {
		created.Name = email
	}
	if err := s.users.CreateUser(ctx, created); err != nil {
		if !errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("create user: %w", err)
		}
		// lost a race with a concurrent sign-in for the same email
		existing, lerr := s.users.UserByEmail(ctx, email)
		if lerr != nil {
			return nil, fmt.Errorf("lookup user: %w", lerr)
		}
		return s.authResult(*existing)
	}
	s.log.Infow("user created from google sign-in", "userId", created.ID)

	return s.authResult(created)
}

func (s *IdentityService) IssueCredential(userID, email string) (string, error) {
	return utils.GenerateJWT(userID, email, s.secret, s.now(), utils.CredentialTTL)
}

func (s *IdentityService) VerifyCredential(token string) (*CredentialClaims, error) {
	claims, err := utils.ValidateJWT(token, s.secret, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, utils.ErrTokenExpired) {
			return nil, ErrExpiredCredential
		}
		return nil, wrap(ErrInvalidCredential, err)
	}
	return &CredentialClaims{UserID: claims.UserID, Email: claims.Email}, nil
}

func (s *IdentityService) Profile(ctx context.Context, userID string) (models.PublicUser, error) {
	user, err := s.users.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.PublicUser{}, ErrUserNotFound
		}
		return models.PublicUser{}, fmt.Errorf("lookup user: %w", err)
	}
	return user.Public(), nil
}

// UpdateProfile overwrites name and phone only when they are non-empty.
func (s *IdentityService) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (models.PublicUser, error) {
	name, phone := strings.TrimSpace(in.Name), strings.TrimSpace(in.Phone)
	user, err := s.users.UpdateUser(ctx, userID, func(u *models.User) {
		if name != "" {
			u.Name = name
		}
		if phone != "" {
			u.Phone = phone
		}
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.PublicUser{}, ErrUserNotFound
		}
		return models.PublicUser{}, fmt.Errorf("update user: %w", err)
	}
	return user.Public(), nil
}

func (s *IdentityService) authResult(u models.User) (*AuthResult, error) {
	token, err := s.IssueCredential(u.ID, u.Email)
	if err != nil {
		return nil, fmt.Errorf("issue credential: %w", err)
	}
	return &AuthResult{User: u.Public(), Token: token}, nil
}
