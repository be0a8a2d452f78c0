package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/sudo-init-do/bidhub/internal/apperr"
	"github.com/sudo-init-do/bidhub/internal/user"
)

const msgInvalidCredentials = "Invalid email or password"

// ResetMailer delivers password reset links.
type ResetMailer interface {
	PasswordReset(ctx context.Context, u user.User, resetURL string) error
}

type Options struct {
	BcryptCost int
	ResetTTL   time.Duration
	AppURL     string
}

type Service struct {
	users  user.Store
	tokens *Tokens
	mailer ResetMailer
	log    logrus.FieldLogger
	opts   Options

	// dummyHash is compared against when the email is unknown so both
	// login failure paths cost one bcrypt comparison.
	dummyHash []byte
}

func NewService(users user.Store, tokens *Tokens, mailer ResetMailer, log logrus.FieldLogger, opts Options) (*Service, error) {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = 12
	}
	if opts.ResetTTL == 0 {
		opts.ResetTTL = 30 * time.Minute
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("bidhub-placeholder"), opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	return &Service{users: users, tokens: tokens, mailer: mailer, log: log, opts: opts, dummyHash: dummy}, nil
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     user.Role
}

// Register creates the account and returns it with a session token.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*user.User, string, error) {
	if in.Name == "" || in.Email == "" || in.Password == "" || in.Role == "" {
		return nil, "", apperr.Validation("Please provide name, email, password, and role")
	}
	if !in.Role.Valid() {
		return nil, "", apperr.Validation("Role must be either BUYER or SELLER")
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, "", apperr.Validation("User already exists with this email")
	} else if !errors.Is(err, user.ErrNotFound) {
		return nil, "", apperr.Internal("lookup user", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.opts.BcryptCost)
	if err != nil {
		return nil, "", apperr.Internal("hash password", err)
	}

	u := &user.User{Name: in.Name, Email: in.Email, Password: string(hash), Role: in.Role}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			return nil, "", apperr.Validation("User already exists with this email")
		}
		return nil, "", apperr.Internal("create user", err)
	}

	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return nil, "", apperr.Internal("issue token", err)
	}
	return u, token, nil
}

// Login never reveals whether the email exists.
func (s *Service) Login(ctx context.Context, email, password string) (*user.User, string, error) {
	if email == "" || password == "" {
		return nil, "", apperr.Validation("Please provide email and password")
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			return nil, "", apperr.Internal("lookup user", err)
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, "", apperr.Unauthenticated(msgInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		return nil, "", apperr.Unauthenticated(msgInvalidCredentials)
	}

	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return nil, "", apperr.Internal("issue token", err)
	}
	return u, token, nil
}

// RequestPasswordReset sends a reset link when the email is known and
// otherwise does nothing. Delivery failures are logged only.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) {
	if email == "" {
		return
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			s.log.WithError(err).Warn("password reset lookup failed")
		}
		return
	}

	token, err := s.tokens.IssueReset(u.ID, s.opts.ResetTTL)
	if err != nil {
		s.log.WithError(err).Error("issue reset token")
		return
	}
	resetURL := fmt.Sprintf("%s/reset-password?token=%s", strings.TrimRight(s.opts.AppURL, "/"), url.QueryEscape(token))

	if err := s.mailer.PasswordReset(ctx, *u, resetURL); err != nil {
		s.log.WithError(err).WithField("user_id", u.ID).Warn("enqueue password reset failed")
	}
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" || newPassword == "" {
		return apperr.Validation("Please provide token and newPassword")
	}
	userID, err := s.tokens.VerifyReset(token)
	if err != nil {
		return apperr.Unauthenticated("Invalid or expired reset token")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.opts.BcryptCost)
	if err != nil {
		return apperr.Internal("hash password", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return apperr.UserRevoked("The user belonging to this token no longer exists.")
		}
		return apperr.Internal("update password", err)
	}
	return nil
}

// Authenticate resolves a session token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (*user.User, error) {
	if token == "" {
		return nil, apperr.Unauthenticated("You are not logged in. Please log in to get access.")
	}
	userID, err := s.tokens.Verify(token)
	if err != nil {
		return nil, apperr.Unauthenticated("Invalid token. Please log in again.")
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, apperr.UserRevoked("The user belonging to this token no longer exists.")
		}
		return nil, apperr.Internal("load token user", err)
	}
	return u, nil
}
