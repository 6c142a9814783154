package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"dutyflow/internal/identity"
	"dutyflow/internal/user/models"
	id "dutyflow/pkg/domain"
	dErrors "dutyflow/pkg/domain-errors"
	"dutyflow/pkg/email"
	"dutyflow/pkg/platform/sentinel"
	"dutyflow/pkg/requestcontext"
)

type Store interface {
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.User, error)
	Upsert(ctx context.Context, user *models.User) (*models.User, error)
	UpdatePushToken(ctx context.Context, userID id.UserID, token string) error
	UpdateEmail(ctx context.Context, userID id.UserID, email string) error
	SetRole(ctx context.Context, userID id.UserID, role models.Role) error
}

type TokenVerifier interface {
	Verify(token string) (identity.Profile, error)
}

// Service resolves callers and maintains user profiles.
type Service struct {
	users         Store
	verifier      TokenVerifier
	autoProvision bool
	logger        *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithAutoProvision creates a member account the first time an unknown subject
// presents a valid token.
func WithAutoProvision(enabled bool) Option {
	return func(s *Service) {
		s.autoProvision = enabled
	}
}

func New(users Store, verifier TokenVerifier, opts ...Option) *Service {
	s := &Service{users: users, verifier: verifier, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate verifies token and resolves the calling user.
func (s *Service) Authenticate(ctx context.Context, token string) (requestcontext.Caller, error) {
	profile, err := s.verifier.Verify(token)
	if err != nil {
		return requestcontext.Caller{}, err
	}

	user, err := s.users.FindByExternalID(ctx, profile.ExternalID)
	switch {
	case err == nil:
	case errors.Is(err, sentinel.ErrNotFound) && s.autoProvision:
		user, err = s.provision(ctx, profile)
		if err != nil {
			return requestcontext.Caller{}, err
		}
	case errors.Is(err, sentinel.ErrNotFound):
		return requestcontext.Caller{}, dErrors.New(dErrors.CodeUnauthorized, "user is not registered")
	default:
		return requestcontext.Caller{}, dErrors.Wrap(err, dErrors.CodeDependencyFailure, "failed to resolve user")
	}

	return requestcontext.Caller{UserID: user.ID, Name: user.DisplayName(), Admin: user.IsAdmin()}, nil
}

func (s *Service) provision(ctx context.Context, p identity.Profile) (*models.User, error) {
	now := requestcontext.Now(ctx)
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = email.DisplayName(p.Email)
	}
	u, err := models.NewUser(id.NewUserID(), p.ExternalID, name, p.Email, models.RoleMember, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "token profile is unusable")
	}
	u.PictureURL = p.PictureURL

	saved, err := s.users.Upsert(ctx, u)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "email is already in use")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeDependencyFailure, "failed to provision user")
	}
	s.logger.InfoContext(ctx, "user provisioned",
		"user_id", saved.ID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return saved, nil
}

// Get returns a user by ID.
func (s *Service) Get(ctx context.Context, userID id.UserID) (*models.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeDependencyFailure, "failed to load user")
	}
	return u, nil
}

// UpdatePushToken sets or clears (empty token) the device token used for push delivery.
func (s *Service) UpdatePushToken(ctx context.Context, userID id.UserID, token string) error {
	token = strings.TrimSpace(token)
	if len(token) > 4096 {
		return dErrors.New(dErrors.CodeValidation, "push token is too long")
	}
	if err := s.users.UpdatePushToken(ctx, userID, token); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return dErrors.Wrap(err, dErrors.CodeDependencyFailure, "failed to update push token")
	}
	return nil
}

// UpdateEmail changes the user's email address. Setting the current address again
// is a no-op; an address held by another account is a conflict.
func (s *Service) UpdateEmail(ctx context.Context, userID id.UserID, address string) (*models.User, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if !email.IsValid(address) {
		return nil, dErrors.New(dErrors.CodeValidation, "email is not a valid address")
	}

	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Email == address {
		return u, nil
	}

	if err := s.users.UpdateEmail(ctx, userID, address); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrConflict):
			return nil, dErrors.New(dErrors.CodeConflict, "email is already in use by another account")
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeDependencyFailure, "failed to update email")
	}
	u.Email = address
	u.UpdatedAt = requestcontext.Now(ctx)
	s.logger.InfoContext(ctx, "email updated",
		"user_id", u.ID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return u, nil
}

// GrantAdmin promotes the user identified by p.ExternalID, registering them first
// when they have never signed in. Used by the operator CLI to bootstrap admins.
func (s *Service) GrantAdmin(ctx context.Context, p identity.Profile) (*models.User, error) {
	p.ExternalID = strings.TrimSpace(p.ExternalID)
	u, err := s.users.FindByExternalID(ctx, p.ExternalID)
	switch {
	case err == nil:
	case errors.Is(err, sentinel.ErrNotFound):
		u, err = s.provision(ctx, p)
		if err != nil {
			return nil, err
		}
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeDependencyFailure, "failed to load user")
	}
	if err := s.users.SetRole(ctx, u.ID, models.RoleAdmin); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDependencyFailure, "failed to grant admin")
	}
	u.Role = models.RoleAdmin
	s.logger.InfoContext(ctx, "admin granted", "user_id", u.ID, "log_type", "audit")
	return u, nil
}
