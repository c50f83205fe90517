package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/Kimkangyeon-17/teskflow/config"
	natsadapter "github.com/Kimkangyeon-17/teskflow/internal/adapters/nats"
	"github.com/Kimkangyeon-17/teskflow/internal/adapters/oauth"
	repo "github.com/Kimkangyeon-17/teskflow/internal/adapters/postgres"
	"github.com/Kimkangyeon-17/teskflow/internal/domain"
	"github.com/Kimkangyeon-17/teskflow/internal/tokenverify"
	pkglog "github.com/Kimkangyeon-17/teskflow/pkg/log"
)

type SessionService interface {
	Login(ctx context.Context, traceID, email, password, clientIP string) (*domain.User, *TokenPair, error)
	Refresh(ctx context.Context, traceID, refreshToken string) (*TokenPair, error)
	SocialSignIn(ctx context.Context, traceID, provider, code, clientIP string) (*domain.User, *TokenPair, error)
	AuthStatus(ctx context.Context, bearer string) (*domain.User, error)
}

type sessionService struct {
	cfg      *config.Config
	logger   pkglog.Logger
	accounts AccountService
	users    repo.UserRepository
	profiles repo.ProfileRepository
	sessions repo.RefreshTokenRepository
	idp      oauth.Provider
	events   natsadapter.EventPublisher
	signer   JWTSigner
}

func NewSessionService(cfg *config.Config, logger pkglog.Logger, accounts AccountService, users repo.UserRepository, profiles repo.ProfileRepository, sessions repo.RefreshTokenRepository, idp oauth.Provider, events natsadapter.EventPublisher, signer JWTSigner) SessionService {
	return &sessionService{cfg: cfg, logger: logger, accounts: accounts, users: users, profiles: profiles, sessions: sessions, idp: idp, events: events, signer: signer}
}

func (s *sessionService) Login(ctx context.Context, traceID, email, password, clientIP string) (*domain.User, *TokenPair, error) {
	user, err := s.accounts.Authenticate(ctx, email, password)
	if err != nil {
		return nil, nil, err
	}
	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	s.recordLogin(ctx, traceID, user, clientIP)
	s.logger.Info().Str("trace_id", traceID).Str("user_id", user.ID).Msg("signin")
	return user, pair, nil
}

func (s *sessionService) Refresh(ctx context.Context, traceID, refreshToken string) (*TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, domain.ErrTokenInvalid
	}
	tok, claims, err := s.signer.Parse(refreshToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrTokenInvalid
	}
	if tok == nil || !tok.Valid {
		return nil, domain.ErrTokenInvalid
	}
	if typ, _ := claims["typ"].(string); typ != "refresh" {
		return nil, domain.ErrTokenInvalid
	}
	jti, _ := claims["jti"].(string)
	sub, _ := claims["sub"].(string)
	if jti == "" || sub == "" {
		return nil, domain.ErrTokenInvalid
	}

	// rotation: the presented fingerprint is revoked before a successor is
	// issued; a fingerprint that exists but is already revoked is a replay
	session, err := s.sessions.RevokeActive(ctx, hashToken(jti))
	if err != nil {
		if errors.Is(err, domain.ErrTokenReused) {
			s.logger.Warn().Str("trace_id", traceID).Str("user_id", sub).Msg("refresh token replay detected")
			// possible theft: cut the whole chain
			_ = s.sessions.RevokeAllForUser(ctx, sub)
			return nil, domain.ErrTokenReused
		}
		return nil, err
	}
	if session.UserID != sub {
		return nil, domain.ErrTokenInvalid
	}
	user, err := s.users.FindByID(ctx, sub)
	if err != nil {
		return nil, domain.ErrTokenInvalid
	}
	if !user.Active {
		return nil, domain.ErrAccountInactive
	}
	return s.issuePair(ctx, user)
}

func (s *sessionService) SocialSignIn(ctx context.Context, traceID, provider, code, clientIP string) (*domain.User, *TokenPair, error) {
	identity, err := s.idp.Exchange(ctx, provider, code)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.linkOrCreate(ctx, traceID, identity)
	if err != nil {
		return nil, nil, err
	}
	if !user.Active {
		return nil, nil, domain.ErrAccountInactive
	}
	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	s.recordLogin(ctx, traceID, user, clientIP)
	s.logger.Info().Str("trace_id", traceID).Str("user_id", user.ID).Str("provider", provider).Msg("social signin")
	return user, pair, nil
}

func (s *sessionService) AuthStatus(_ context.Context, bearer string) (*domain.User, error) {
	result, err := tokenverify.Verify(s.signer, bearer, time.Now)
	if err != nil {
		return nil, err
	}
	return &domain.User{ID: result.UserID, Email: result.Email}, nil
}

func (s *sessionService) linkOrCreate(ctx context.Context, traceID string, identity *oauth.Identity) (*domain.User, error) {
	norm := normalizeEmail(identity.Email)

	user, err := s.users.FindBySocial(ctx, identity.Provider, identity.ProviderUserID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user, err = s.users.FindByEmail(ctx, norm)
	if err == nil {
		// provider verified ownership of this address; link the accounts
		user.SocialProvider = identity.Provider
		user.SocialID = identity.ProviderUserID
		user.EmailVerified = true
		if err := s.users.Update(ctx, user); err != nil {
			return nil, err
		}
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user = &domain.User{
		Email:          norm,
		PasswordHash:   unusablePasswordHash(),
		Active:         true,
		FirstName:      identity.FirstName,
		LastName:       identity.LastName,
		AvatarURL:      identity.AvatarURL,
		EmailVerified:  true,
		SocialProvider: identity.Provider,
		SocialID:       identity.ProviderUserID,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	if err := s.profiles.Create(ctx, &domain.UserProfile{UserID: user.ID, EmailNotifications: true, PushNotifications: true}); err != nil {
		return nil, err
	}
	if s.events != nil {
		if err := s.events.Publish(ctx, natsadapter.EventRegistered, user.ID, user.Email); err != nil {
			s.logger.Warn().Str("trace_id", traceID).Err(err).Msg("registered event not published")
		}
	}
	return user, nil
}

func (s *sessionService) issuePair(ctx context.Context, user *domain.User) (*TokenPair, error) {
	claims := map[string]interface{}{"email": user.Email}
	access, err := s.signer.SignAccessToken(user.ID, claims, s.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	jti := uuid.NewString()
	refresh, err := s.signer.SignRefreshToken(user.ID, jti, s.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Create(ctx, &domain.RefreshToken{
		UserID:    user.ID,
		TokenHash: hashToken(jti),
		ExpiresAt: time.Now().Add(s.cfg.RefreshTTL),
	}); err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(s.cfg.AccessTTL.Seconds())}, nil
}

// recordLogin updates login audit fields best-effort; a failure here must
// not fail the login itself.
func (s *sessionService) recordLogin(ctx context.Context, traceID string, user *domain.User, clientIP string) {
	now := time.Now()
	if err := s.users.UpdateLoginMeta(ctx, user.ID, now, clientIP); err != nil {
		s.logger.Warn().Str("trace_id", traceID).Str("user_id", user.ID).Err(err).Msg("login metadata not recorded")
		return
	}
	user.LastLoginAt = &now
	user.LastLoginIP = clientIP
}

// unusablePasswordHash produces a hash no password can match, for accounts
// that only ever sign in through a provider.
func unusablePasswordHash() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	hash, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(buf)), bcrypt.MinCost)
	if err != nil {
		return "!"
	}
	return string(hash)
}
