// Package account registers users and manages their single live session.
package account

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"lab-booking-backend/config"
	"lab-booking-backend/internal/model"
	"lab-booking-backend/internal/store"
	"lab-booking-backend/internal/workflow"
)

var (
	ErrInvalidCredentials = &Error{Kind: KindUnauthenticated, Message: "Invalid username or password"}
	ErrInvalidSession     = &Error{Kind: KindUnauthenticated, Message: "Invalid session token"}
	ErrUsernameTaken      = &Error{Kind: KindConflict, Message: "Username already exists."}
	ErrEmailTaken         = &Error{Kind: KindConflict, Message: "Email already registered."}
	ErrEmailNotVerified   = &Error{Kind: KindForbidden, Message: "Email address has not been verified."}
	ErrWrongPassword      = &Error{Kind: KindInvalid, Message: "Current password is incorrect"}
)

// Verifier reports whether an email address recently passed OTP verification.
type Verifier interface {
	IsVerified(ctx context.Context, email string) (bool, error)
}

// Service implements registration, login and session checks.
type Service struct {
	users               store.UserStore
	tokens              *TokenService
	verifier            Verifier
	bcryptCost          int
	requireVerification bool
	logger              *zap.Logger
}

// NewService creates an account service. verifier may be nil when email
// verification is not required.
func NewService(users store.UserStore, tokens *TokenService, verifier Verifier, cfg config.AuthConfig, logger *zap.Logger) *Service {
	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		users:               users,
		tokens:              tokens,
		verifier:            verifier,
		bcryptCost:          cost,
		requireVerification: cfg.RequireEmailVerification && verifier != nil,
		logger:              logger.Named("account"),
	}
}

// RegisterInput is the data needed to create an account.
type RegisterInput struct {
	Username string
	Password string
	Email    string
	Phone    string
}

// Register creates a user with the user role.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	if err := validateUsername(in.Username); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	if !ValidEmail(in.Email) {
		return nil, invalid("Invalid email address.")
	}
	if in.Phone == "" {
		return nil, invalid("Phone number is required.")
	}

	if _, err := s.users.GetUserByUsername(ctx, in.Username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	exists, err := s.users.EmailExists(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailTaken
	}

	if s.requireVerification {
		ok, err := s.verifier.IsVerified(ctx, in.Email)
		if err != nil {
			return nil, fmt.Errorf("check email verification: %w", err)
		}
		if !ok {
			return nil, ErrEmailNotVerified
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &model.User{
		Username:     in.Username,
		PasswordHash: string(hash),
		Role:         model.RoleUser,
		Email:        in.Email,
		Phone:        in.Phone,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Lost a race with a concurrent registration.
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	s.logger.Info("user registered", zap.String("username", user.Username))
	return user, nil
}

// Login checks the credentials and issues a token that replaces any
// earlier session of the user.
func (s *Service) Login(ctx context.Context, username, password string) (string, *model.User, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Username, string(user.Role))
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}
	if err := s.users.SetSessionToken(ctx, user.ID, HashToken(token)); err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// Authenticate resolves a session token to the actor it belongs to. The
// token must be well signed, unexpired and still the user's live session.
func (s *Service) Authenticate(ctx context.Context, token string) (workflow.Actor, error) {
	if token == "" {
		return workflow.Actor{}, ErrInvalidSession
	}
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return workflow.Actor{}, ErrInvalidSession
	}
	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return workflow.Actor{}, ErrInvalidSession
	}
	if err != nil {
		return workflow.Actor{}, err
	}
	if user.SessionToken == nil || *user.SessionToken != HashToken(token) {
		return workflow.Actor{}, ErrInvalidSession
	}
	return workflow.Actor{UserID: user.ID, Username: user.Username, Role: user.Role}, nil
}

// Logout ends the session the token belongs to.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return ErrInvalidSession
	}
	ok, err := s.users.ClearSessionToken(ctx, HashToken(token))
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidSession
	}
	return nil
}

// ChangePassword replaces the actor's password and ends the session.
func (s *Service) ChangePassword(ctx context.Context, actor workflow.Actor, current, next string) error {
	if current == "" || next == "" {
		return invalid("Missing required fields")
	}
	if len(next) < 8 {
		return invalid("New password must be at least 8 characters long")
	}
	user, err := s.users.GetUserByID(ctx, actor.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidSession
	}
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return ErrWrongPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.users.UpdatePassword(ctx, user.ID, string(hash))
}

// AdminEmails returns the addresses that receive admin notifications.
func (s *Service) AdminEmails(ctx context.Context) ([]string, error) {
	emails, err := s.users.ListAdminEmails(ctx)
	if err != nil {
		return nil, err
	}
	if emails == nil {
		emails = []string{}
	}
	return emails, nil
}

// EnsureAdmin creates the bootstrap admin when it does not exist yet. An
// empty username disables it.
func (s *Service) EnsureAdmin(ctx context.Context, admin config.BootstrapAdmin) error {
	if admin.Username == "" {
		return nil
	}
	_, err := s.users.GetUserByUsername(ctx, admin.Username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if admin.Password == "" {
		return fmt.Errorf("bootstrap admin %q has no password", admin.Username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(admin.Password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user := &model.User{
		Username:     admin.Username,
		PasswordHash: string(hash),
		Role:         model.RoleAdmin,
		Email:        admin.Email,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return err
	}
	s.logger.Info("bootstrap admin created", zap.String("username", admin.Username))
	return nil
}
