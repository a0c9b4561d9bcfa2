// Package otp sends and checks the one-time codes that prove ownership of
// an email address.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"lab-booking-backend/config"
	"lab-booking-backend/internal/account"
)

// Error is a rejected OTP call; its message is shown to the caller.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	ErrEmailRequired = &Error{Message: "Email is required"}
	ErrInvalidEmail  = &Error{Message: "Invalid email format"}
	ErrMissingFields = &Error{Message: "Email and OTP are required"}
	ErrInvalidCode   = &Error{Message: "Invalid or expired OTP"}

	// ErrDelivery wraps failures of the mail transport.
	ErrDelivery = errors.New("failed to send OTP")
)

// Sender delivers a code to an address.
type Sender interface {
	SendOTP(ctx context.Context, to, code string, ttl time.Duration) error
}

// Service issues and verifies codes.
type Service struct {
	store       Store
	sender      Sender
	ttl         time.Duration
	verifiedTTL time.Duration
	logger      *zap.Logger
	generate    func() (string, error)
}

// NewService creates an OTP service.
func NewService(store Store, sender Sender, cfg config.OTPConfig, logger *zap.Logger) *Service {
	return &Service{
		store:       store,
		sender:      sender,
		ttl:         cfg.TTL,
		verifiedTTL: cfg.VerifiedTTL,
		logger:      logger.Named("otp"),
		generate:    generateCode,
	}
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Send stores a fresh code for email and mails it. The code is dropped again
// when mailing fails.
func (s *Service) Send(ctx context.Context, email string) error {
	if email == "" {
		return ErrEmailRequired
	}
	if !account.ValidEmail(email) {
		return ErrInvalidEmail
	}

	code, err := s.generate()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	if err := s.store.SaveCode(ctx, email, code, s.ttl); err != nil {
		return fmt.Errorf("store code: %w", err)
	}
	if err := s.sender.SendOTP(ctx, email, code, s.ttl); err != nil {
		if delErr := s.store.DeleteCode(ctx, email); delErr != nil {
			s.logger.Warn("failed to drop undelivered code", zap.Error(delErr))
		}
		s.logger.Error("otp delivery failed", zap.String("email", email), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	s.logger.Info("otp sent", zap.String("email", email))
	return nil
}

// Verify consumes a matching code and marks the address as verified.
func (s *Service) Verify(ctx context.Context, email, code string) error {
	if email == "" || code == "" {
		return ErrMissingFields
	}
	stored, err := s.store.GetCode(ctx, email)
	if errors.Is(err, ErrNoCode) {
		return ErrInvalidCode
	}
	if err != nil {
		return fmt.Errorf("load code: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return ErrInvalidCode
	}

	if err := s.store.DeleteCode(ctx, email); err != nil {
		return fmt.Errorf("consume code: %w", err)
	}
	if err := s.store.MarkVerified(ctx, email, s.verifiedTTL); err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	return nil
}

// IsVerified reports whether email passed Verify within the verified TTL.
func (s *Service) IsVerified(ctx context.Context, email string) (bool, error) {
	return s.store.IsVerified(ctx, email)
}
