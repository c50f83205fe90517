package usecase

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/Kimkangyeon-17/teskflow/config"
	natsadapter "github.com/Kimkangyeon-17/teskflow/internal/adapters/nats"
	repo "github.com/Kimkangyeon-17/teskflow/internal/adapters/postgres"
	"github.com/Kimkangyeon-17/teskflow/internal/domain"
	pkglog "github.com/Kimkangyeon-17/teskflow/pkg/log"
)

// dummyHash keeps Authenticate's timing uniform when the email is unknown:
// the bcrypt comparison runs either way, so the error reveals nothing.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Timezone  string
	Theme     string
	Language  string
}

// ProfilePatch lists the mutable profile fields. Read-only fields (email,
// verification flag, social linkage, audit timestamps) are not representable
// here; nil means "leave unchanged".
type ProfilePatch struct {
	FirstName          *string
	LastName           *string
	Bio                *string
	AvatarURL          *string
	Timezone           *string
	Theme              *string
	Language           *string
	PhoneNumber        *string
	BirthDate          *time.Time
	EmailNotifications *bool
	PushNotifications  *bool
}

type AccountService interface {
	Register(ctx context.Context, traceID string, input RegisterInput) (*domain.User, error)
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)
	GetProfile(ctx context.Context, userID string) (*domain.User, error)
	UpdateProfile(ctx context.Context, traceID, userID string, patch ProfilePatch) (*domain.User, error)
	ChangePassword(ctx context.Context, traceID, userID, currentPassword, newPassword string) error
	SoftDelete(ctx context.Context, traceID, userID, password string) error
	EmailAvailable(ctx context.Context, email string) (bool, error)
}

type tokenIssuer interface {
	Issue(ctx context.Context, traceID string, user *domain.User, email string) (*domain.VerificationToken, error)
}

type accountService struct {
	cfg      *config.Config
	logger   pkglog.Logger
	users    repo.UserRepository
	profiles repo.ProfileRepository
	sessions repo.RefreshTokenRepository
	issuer   tokenIssuer
	events   natsadapter.EventPublisher
}

func NewAccountService(cfg *config.Config, logger pkglog.Logger, users repo.UserRepository, profiles repo.ProfileRepository, sessions repo.RefreshTokenRepository, issuer tokenIssuer, events natsadapter.EventPublisher) AccountService {
	return &accountService{cfg: cfg, logger: logger, users: users, profiles: profiles, sessions: sessions, issuer: issuer, events: events}
}

func (s *accountService) Register(ctx context.Context, traceID string, input RegisterInput) (*domain.User, error) {
	norm := normalizeEmail(input.Email)
	if err := validateEmail(norm); err != nil {
		return nil, err
	}
	attrs := attributeParts(norm, input.FirstName, input.LastName)
	if err := validatePasswordStrength(input.Password, attrs); err != nil {
		return nil, err
	}
	exists, err := s.users.EmailExists(ctx, norm)
	if err != nil {
		return nil, err
	}
	if exists {
		// registration intentionally reveals existence; login does not
		return nil, domain.ErrDuplicateEmail
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		Email:        norm,
		PasswordHash: string(hash),
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Active:       true,
	}
	if input.Timezone != "" {
		user.Timezone = input.Timezone
	}
	if input.Theme != "" {
		user.Theme = input.Theme
	}
	if input.Language != "" {
		user.Language = input.Language
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	if err := s.profiles.Create(ctx, &domain.UserProfile{UserID: user.ID, EmailNotifications: true, PushNotifications: true}); err != nil {
		return nil, err
	}

	if _, err := s.issuer.Issue(ctx, traceID, user, user.Email); err != nil {
		return nil, err
	}
	if s.events != nil {
		if err := s.events.Publish(ctx, natsadapter.EventRegistered, user.ID, user.Email); err != nil {
			s.logger.Warn().Str("trace_id", traceID).Err(err).Msg("registered event not published")
		}
	}
	s.logger.Info().Str("trace_id", traceID).Str("user_id", user.ID).Msg("user registered")
	return user, nil
}

func (s *accountService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	norm := normalizeEmail(email)
	user, err := s.users.FindByEmail(ctx, norm)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if !user.Active {
		return nil, domain.ErrAccountInactive
	}
	return user, nil
}

func (s *accountService) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	profile, err := s.profiles.FindByUserID(ctx, userID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	user.Profile = profile
	return user, nil
}

func (s *accountService) UpdateProfile(ctx context.Context, traceID, userID string, patch ProfilePatch) (*domain.User, error) {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if patch.FirstName != nil {
		user.FirstName = *patch.FirstName
	}
	if patch.LastName != nil {
		user.LastName = *patch.LastName
	}
	if patch.Bio != nil {
		user.Bio = *patch.Bio
	}
	if patch.AvatarURL != nil {
		user.AvatarURL = *patch.AvatarURL
	}
	if patch.Timezone != nil {
		user.Timezone = *patch.Timezone
	}
	if patch.Theme != nil {
		user.Theme = *patch.Theme
	}
	if patch.Language != nil {
		user.Language = *patch.Language
	}
	profile := user.Profile
	user.Profile = nil
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	// the 1:1 row is created at registration; if it went missing, recreate it
	// rather than dropping the patched fields
	missing := profile == nil
	if missing {
		profile = &domain.UserProfile{UserID: user.ID, EmailNotifications: true, PushNotifications: true}
	}
	if patch.PhoneNumber != nil {
		profile.PhoneNumber = *patch.PhoneNumber
	}
	if patch.BirthDate != nil {
		profile.BirthDate = patch.BirthDate
	}
	if patch.EmailNotifications != nil {
		profile.EmailNotifications = *patch.EmailNotifications
	}
	if patch.PushNotifications != nil {
		profile.PushNotifications = *patch.PushNotifications
	}
	if missing {
		if err := s.profiles.Create(ctx, profile); err != nil {
			return nil, err
		}
	} else if err := s.profiles.Update(ctx, profile); err != nil {
		return nil, err
	}
	user.Profile = profile
	s.logger.Info().Str("trace_id", traceID).Str("user_id", userID).Msg("profile updated")
	return user, nil
}

func (s *accountService) ChangePassword(ctx context.Context, traceID, userID, currentPassword, newPassword string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		return domain.ErrInvalidCredentials
	}
	attrs := attributeParts(user.Email, user.FirstName, user.LastName)
	if err := validatePasswordStrength(newPassword, attrs); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.PasswordHash = string(hash)
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}
	s.logger.Info().Str("trace_id", traceID).Str("user_id", userID).Msg("password changed")
	return nil
}

func (s *accountService) SoftDelete(ctx context.Context, traceID, userID, password string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return domain.ErrInvalidCredentials
	}
	originalEmail := user.Email
	user.Active = false
	user.Email = user.DeletedEmail()
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}
	if err := s.sessions.RevokeAllForUser(ctx, userID); err != nil {
		s.logger.Warn().Str("trace_id", traceID).Err(err).Msg("session revocation on delete failed")
	}
	if s.events != nil {
		if err := s.events.Publish(ctx, natsadapter.EventDeleted, userID, originalEmail); err != nil {
			s.logger.Warn().Str("trace_id", traceID).Err(err).Msg("deleted event not published")
		}
	}
	s.logger.Info().Str("trace_id", traceID).Str("user_id", userID).Msg("account soft-deleted")
	return nil
}

func (s *accountService) EmailAvailable(ctx context.Context, email string) (bool, error) {
	norm := normalizeEmail(email)
	if err := validateEmail(norm); err != nil {
		return false, err
	}
	exists, err := s.users.EmailExists(ctx, norm)
	if err != nil {
		return false, err
	}
	return !exists, nil
}
