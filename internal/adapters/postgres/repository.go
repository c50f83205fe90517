package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Kimkangyeon-17/teskflow/internal/domain"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindBySocial(ctx context.Context, provider, socialID string) (*domain.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	Update(ctx context.Context, user *domain.User) error
	UpdateLoginMeta(ctx context.Context, id string, at time.Time, ip string) error
}

type ProfileRepository interface {
	Create(ctx context.Context, profile *domain.UserProfile) error
	FindByUserID(ctx context.Context, userID string) (*domain.UserProfile, error)
	Update(ctx context.Context, profile *domain.UserProfile) error
}

type VerificationTokenRepository interface {
	Create(ctx context.Context, token *domain.VerificationToken) error
	FindByValue(ctx context.Context, value string) (*domain.VerificationToken, error)
	DeleteUnused(ctx context.Context, userID, email string) error
	// Consume marks the token used and flips the owner's email_verified flag
	// in one transaction. The used=false guard makes the second of two
	// concurrent consumers lose with ErrTokenAlreadyUsed.
	Consume(ctx context.Context, token *domain.VerificationToken) (*domain.User, error)
	CountIssued(ctx context.Context, userID string, now time.Time) (int64, error)
}

type RefreshTokenRepository interface {
	Create(ctx context.Context, token *domain.RefreshToken) error
	// RevokeActive revokes the fingerprint if it is still unrevoked.
	// ErrTokenReused when the row exists but was already rotated away,
	// ErrTokenInvalid when the fingerprint is unknown.
	RevokeActive(ctx context.Context, hash string) (*domain.RefreshToken, error)
	RevokeAllForUser(ctx context.Context, userID string) error
}

type userRepo struct{ db *gorm.DB }

type profileRepo struct{ db *gorm.DB }

type verificationTokenRepo struct{ db *gorm.DB }

type refreshTokenRepo struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &userRepo{db: db} }

func NewProfileRepository(db *gorm.DB) ProfileRepository { return &profileRepo{db: db} }

func NewVerificationTokenRepository(db *gorm.DB) VerificationTokenRepository {
	return &verificationTokenRepo{db: db}
}

func NewRefreshTokenRepository(db *gorm.DB) RefreshTokenRepository {
	return &refreshTokenRepo{db: db}
}

func (r *userRepo) Create(ctx context.Context, user *domain.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) FindBySocial(ctx context.Context, provider, socialID string) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).
		Where("social_provider = ? AND social_id = ?", provider, socialID).
		First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *userRepo) Update(ctx context.Context, user *domain.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

func (r *userRepo) UpdateLoginMeta(ctx context.Context, id string, at time.Time, ip string) error {
	return r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"last_login_at": &at, "last_login_ip": ip}).Error
}

func (r *profileRepo) Create(ctx context.Context, profile *domain.UserProfile) error {
	return r.db.WithContext(ctx).Create(profile).Error
}

func (r *profileRepo) FindByUserID(ctx context.Context, userID string) (*domain.UserProfile, error) {
	var profile domain.UserProfile
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *profileRepo) Update(ctx context.Context, profile *domain.UserProfile) error {
	return r.db.WithContext(ctx).Save(profile).Error
}

func (r *verificationTokenRepo) Create(ctx context.Context, token *domain.VerificationToken) error {
	return r.db.WithContext(ctx).Create(token).Error
}

func (r *verificationTokenRepo) FindByValue(ctx context.Context, value string) (*domain.VerificationToken, error) {
	var token domain.VerificationToken
	if err := r.db.WithContext(ctx).Where("token = ?", value).First(&token).Error; err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *verificationTokenRepo) DeleteUnused(ctx context.Context, userID, email string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND email = ? AND used = ?", userID, email, false).
		Delete(&domain.VerificationToken{}).Error
}

func (r *verificationTokenRepo) Consume(ctx context.Context, token *domain.VerificationToken) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.VerificationToken{}).
			Where("id = ? AND used = ?", token.ID, false).
			Update("used", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrTokenAlreadyUsed
		}
		if err := tx.Where("id = ?", token.UserID).First(&user).Error; err != nil {
			return err
		}
		if user.Email == token.Email && !user.EmailVerified {
			if err := tx.Model(&domain.User{}).
				Where("id = ?", user.ID).
				Update("email_verified", true).Error; err != nil {
				return err
			}
			user.EmailVerified = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *verificationTokenRepo) CountIssued(ctx context.Context, userID string, now time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.VerificationToken{}).
		Where("user_id = ? AND used = ? AND expires_at > ?", userID, false, now).
		Count(&count).Error
	return count, err
}

func (r *refreshTokenRepo) Create(ctx context.Context, token *domain.RefreshToken) error {
	return r.db.WithContext(ctx).Create(token).Error
}

func (r *refreshTokenRepo) RevokeActive(ctx context.Context, hash string) (*domain.RefreshToken, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&domain.RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", hash).
		Update("revoked_at", &now)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		var stale domain.RefreshToken
		err := r.db.WithContext(ctx).Where("token_hash = ?", hash).First(&stale).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTokenInvalid
		}
		if err != nil {
			return nil, err
		}
		return nil, domain.ErrTokenReused
	}
	var token domain.RefreshToken
	if err := r.db.WithContext(ctx).Where("token_hash = ?", hash).First(&token).Error; err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *refreshTokenRepo) RevokeAllForUser(ctx context.Context, userID string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&domain.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", &now).Error
}
