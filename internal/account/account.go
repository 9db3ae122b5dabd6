// Package account changes the signed-in user's profile, password and
// membership. Every change is validated locally before it is sent, and
// successful changes are reflected in the session.
package account

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/famigo/famigo/internal/api"
	"github.com/famigo/famigo/internal/forms"
)

// Backend is the slice of the API the account service calls.
type Backend interface {
	UpdateProfile(ctx context.Context, body api.UpdateProfileRequest) (api.User, error)
	UpdateDisplayName(ctx context.Context, displayName string) (api.User, error)
	UpdateEmail(ctx context.Context, email string) (api.User, error)
	ChangePassword(ctx context.Context, body api.ChangePasswordRequest) error
	Withdraw(ctx context.Context) error
}

var _ Backend = (*api.Client)(nil)

// Session receives the outcome of account changes.
type Session interface {
	UpdatePrincipal(user api.User)
	Logout()
}

type displayNameChange struct {
	DisplayName string `json:"displayName" validate:"required,min=3,max=50"`
}

type emailChange struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

// Service applies account changes.
type Service struct {
	backend Backend
	session Session
	forms   *forms.Validator
	log     zerolog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithValidator shares a validator instance.
func WithValidator(v *forms.Validator) Option {
	return func(s *Service) {
		if v != nil {
			s.forms = v
		}
	}
}

// NewService builds a Service.
func NewService(backend Backend, session Session, opts ...Option) *Service {
	s := &Service{backend: backend, session: session, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	if s.forms == nil {
		s.forms = forms.New()
	}
	s.log = s.log.With().Str("component", "account").Logger()
	return s
}

// UpdateProfile changes display name and email together.
func (s *Service) UpdateProfile(ctx context.Context, req api.UpdateProfileRequest) (api.User, error) {
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.Email = strings.TrimSpace(req.Email)
	if err := s.forms.Check(req); err != nil {
		return api.User{}, err
	}
	return s.applied(s.backend.UpdateProfile(ctx, req))
}

// UpdateDisplayName changes only the display name.
func (s *Service) UpdateDisplayName(ctx context.Context, displayName string) (api.User, error) {
	req := displayNameChange{DisplayName: strings.TrimSpace(displayName)}
	if err := s.forms.Check(req); err != nil {
		return api.User{}, err
	}
	return s.applied(s.backend.UpdateDisplayName(ctx, req.DisplayName))
}

// UpdateEmail changes only the email address.
func (s *Service) UpdateEmail(ctx context.Context, email string) (api.User, error) {
	req := emailChange{Email: strings.TrimSpace(email)}
	if err := s.forms.Check(req); err != nil {
		return api.User{}, err
	}
	return s.applied(s.backend.UpdateEmail(ctx, req.Email))
}

// ChangePassword updates the password. The session is unchanged.
func (s *Service) ChangePassword(ctx context.Context, req api.ChangePasswordRequest) error {
	if err := s.forms.Check(req); err != nil {
		return err
	}
	if err := s.backend.ChangePassword(ctx, req); err != nil {
		return err
	}
	s.log.Info().Msg("password changed")
	return nil
}

// Withdraw deletes the account and signs out locally.
func (s *Service) Withdraw(ctx context.Context) error {
	if err := s.backend.Withdraw(ctx); err != nil {
		return err
	}
	s.log.Info().Msg("account withdrawn")
	s.session.Logout()
	return nil
}

func (s *Service) applied(user api.User, err error) (api.User, error) {
	if err != nil {
		return api.User{}, err
	}
	s.session.UpdatePrincipal(user)
	s.log.Info().Int64("user_id", user.ID).Msg("profile updated")
	return user, nil
}
