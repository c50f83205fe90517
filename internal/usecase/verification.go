package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Kimkangyeon-17/teskflow/config"
	"github.com/Kimkangyeon-17/teskflow/internal/adapters/mailer"
	natsadapter "github.com/Kimkangyeon-17/teskflow/internal/adapters/nats"
	repo "github.com/Kimkangyeon-17/teskflow/internal/adapters/postgres"
	"github.com/Kimkangyeon-17/teskflow/internal/domain"
	pkglog "github.com/Kimkangyeon-17/teskflow/pkg/log"
)

// VerificationService drives the token lifecycle per (user, email) pair:
// issued, then either consumed or expired, never back.
type VerificationService interface {
	Issue(ctx context.Context, traceID string, user *domain.User, email string) (*domain.VerificationToken, error)
	Validate(ctx context.Context, value string) (*domain.VerificationToken, error)
	Consume(ctx context.Context, traceID, value string) (*domain.User, error)
	Resend(ctx context.Context, traceID, userID string) error
}

type verificationService struct {
	cfg      *config.Config
	logger   pkglog.Logger
	tokens   repo.VerificationTokenRepository
	users    repo.UserRepository
	notifier mailer.Notifier
	events   natsadapter.EventPublisher
	now      func() time.Time
}

func NewVerificationService(cfg *config.Config, logger pkglog.Logger, tokens repo.VerificationTokenRepository, users repo.UserRepository, notifier mailer.Notifier, events natsadapter.EventPublisher) VerificationService {
	return &verificationService{cfg: cfg, logger: logger, tokens: tokens, users: users, notifier: notifier, events: events, now: time.Now}
}

func (s *verificationService) Issue(ctx context.Context, traceID string, user *domain.User, email string) (*domain.VerificationToken, error) {
	// a fresh token supersedes everything unused for the same pair
	if err := s.tokens.DeleteUnused(ctx, user.ID, email); err != nil {
		return nil, err
	}
	token := &domain.VerificationToken{
		UserID:    user.ID,
		Email:     email,
		Token:     uuid.NewString(),
		ExpiresAt: s.now().Add(s.cfg.VerificationTTL),
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return nil, err
	}

	link := fmt.Sprintf("%s/auth/verify-email/%s", s.cfg.FrontendURL, token.Token)
	if s.notifier != nil {
		// delivery failure never rolls back the token; it stays resendable
		if err := s.notifier.SendVerification(ctx, email, link); err != nil {
			s.logger.Warn().Str("trace_id", traceID).Str("user_id", user.ID).Err(err).Msg("verification mail not delivered")
		}
	}
	s.logger.Info().Str("trace_id", traceID).Str("user_id", user.ID).Msg("verification token issued")
	return token, nil
}

func (s *verificationService) Validate(ctx context.Context, value string) (*domain.VerificationToken, error) {
	token, err := s.tokens.FindByValue(ctx, value)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, err
	}
	if token.Used {
		return nil, domain.ErrTokenAlreadyUsed
	}
	if token.Expired(s.now()) {
		return nil, domain.ErrTokenExpired
	}
	return token, nil
}

func (s *verificationService) Consume(ctx context.Context, traceID, value string) (*domain.User, error) {
	token, err := s.Validate(ctx, value)
	if err != nil {
		return nil, err
	}
	// the conditional update inside Consume decides races; a concurrent
	// consumer of the same token comes back with ErrTokenAlreadyUsed
	user, err := s.tokens.Consume(ctx, token)
	if err != nil {
		return nil, err
	}
	if s.events != nil && user.EmailVerified {
		if err := s.events.Publish(ctx, natsadapter.EventVerified, user.ID, user.Email); err != nil {
			s.logger.Warn().Str("trace_id", traceID).Err(err).Msg("verified event not published")
		}
	}
	s.logger.Info().Str("trace_id", traceID).Str("user_id", user.ID).Msg("email verified")
	return user, nil
}

func (s *verificationService) Resend(ctx context.Context, traceID, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrUserNotFound
		}
		return err
	}
	if user.EmailVerified {
		return domain.ErrEmailAlreadyVerified
	}
	_, err = s.Issue(ctx, traceID, user, user.Email)
	return err
}
