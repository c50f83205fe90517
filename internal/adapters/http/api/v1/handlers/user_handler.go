package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Kimkangyeon-17/teskflow/internal/domain"
	"github.com/Kimkangyeon-17/teskflow/internal/usecase"
	res "github.com/Kimkangyeon-17/teskflow/pkg/http"
)

type UserHandler struct {
	accounts     usecase.AccountService
	verification usecase.VerificationService
	sessions     usecase.SessionService
}

func NewUserHandler(accounts usecase.AccountService, verification usecase.VerificationService, sessions usecase.SessionService) *UserHandler {
	return &UserHandler{accounts: accounts, verification: verification, sessions: sessions}
}

type registerRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Timezone        string `json:"timezone"`
	Theme           string `json:"theme"`
	Language        string `json:"language"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

type changePasswordRequest struct {
	CurrentPassword    string `json:"current_password"`
	NewPassword        string `json:"new_password"`
	NewPasswordConfirm string `json:"new_password_confirm"`
}

type deleteAccountRequest struct {
	Password string `json:"password"`
}

type socialCallbackRequest struct {
	Code string `json:"code"`
}

// updateProfileRequest mirrors ProfilePatch: only mutable fields exist here,
// and unknown keys (email, email_verified, ...) are rejected by the decoder.
type updateProfileRequest struct {
	FirstName          *string `json:"first_name"`
	LastName           *string `json:"last_name"`
	Bio                *string `json:"bio"`
	AvatarURL          *string `json:"avatar_url"`
	Timezone           *string `json:"timezone"`
	Theme              *string `json:"theme"`
	Language           *string `json:"language"`
	PhoneNumber        *string `json:"phone_number"`
	BirthDate          *string `json:"birth_date"`
	EmailNotifications *bool   `json:"email_notifications"`
	PushNotifications  *bool   `json:"push_notifications"`
}

func (h *UserHandler) Register(c echo.Context) error {
	req := new(registerRequest)
	if err := c.Bind(req); err != nil {
		return res.ErrorJSON(c, http.StatusBadRequest, "bad_request", "invalid payload", requestIDFromCtx(c), nil)
	}
	if req.PasswordConfirm != "" && req.Password != req.PasswordConfirm {
		return res.ErrorJSON(c, http.StatusBadRequest, "password_mismatch", "passwords do not match", requestIDFromCtx(c), nil)
	}
	user, err := h.accounts.Register(c.Request().Context(), requestIDFromCtx(c), usecase.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Timezone:  req.Timezone,
		Theme:     req.Theme,
		Language:  req.Language,
	})
	if err != nil {
		return h.fail(c, err, "registration_failed")
	}
	return res.Message(c, http.StatusCreated, map[string]interface{}{"user": user}, "registration complete, please verify your email")
}

func (h *UserHandler) Login(c echo.Context) error {
	req := new(loginRequest)
	if err := c.Bind(req); err != nil {
		return res.ErrorJSON(c, http.StatusBadRequest, "bad_request", "invalid payload", requestIDFromCtx(c), nil)
	}
	user, pair, err := h.sessions.Login(c.Request().Context(), requestIDFromCtx(c), req.Email, req.Password, c.RealIP())
	if err != nil {
		return h.fail(c, err, "login_failed")
	}
	return res.JSON(c, http.StatusOK, map[string]interface{}{"user": user, "tokens": pair})
}

func (h *UserHandler) Refresh(c echo.Context) error {
	req := new(refreshRequest)
	if err := c.Bind(req); err != nil {
		return res.ErrorJSON(c, http.StatusBadRequest, "bad_request", "invalid payload", requestIDFromCtx(c), nil)
	}
	pair, err := h.sessions.Refresh(c.Request().Context(), requestIDFromCtx(c), req.RefreshToken)
	if err != nil {
		return h.fail(c, err, "refresh_failed")
	}
	return res.JSON(c, http.StatusOK, pair)
}

func (h *UserHandler) VerifyEmail(c echo.Context) error {
	req := new(verifyEmailRequest)
	if err := c.Bind(req); err != nil {
		return res.ErrorJSON(c, http.StatusBadRequest, "bad_request", "invalid payload", requestIDFromCtx(c), nil)
	}
	user, err := h.verification.Consume(c.Request().Context(), requestIDFromCtx(c), req.Token)
	if err != nil {
		return h.fail(c, err, "verification_failed")
	}
	return res.Message(c, http.StatusOK, map[string]interface{}{"user": user}, "email verified")
}

func (h *UserHandler) ResendVerification(c echo.Context) error {
	userID := c.Get("user_id").(string)
	if err := h.verification.Resend(c.Request().Context(), requestIDFromCtx(c), userID); err != nil {
		return h.fail(c, err, "resend_failed")
	}
	return res.Message(c, http.StatusOK, nil, "verification email sent")
}

func (h *UserHandler) GetProfile(c echo.Context) error {
	userID := c.Get("user_id").(string)
	user, err := h.accounts.GetProfile(c.Request().Context(), userID)
	if err != nil {
		return h.fail(c, err, "profile_failed")
	}
	return res.JSON(c, http.StatusOK, user)
}

func (h *UserHandler) UpdateProfile(c echo.Context) error {
	req := new(updateProfileRequest)
	dec := json.NewDecoder(c.Request().Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil {
		return res.ErrorJSON(c, http.StatusBadRequest, "bad_request", err.Error(), requestIDFromCtx(c), nil)
	}
	patch := usecase.ProfilePatch{
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		Bio:                req.Bio,
		AvatarURL:          req.AvatarURL,
		Timezone:           req.Timezone,
		Theme:              req.Theme,
		Language:           req.Language,
		PhoneNumber:        req.PhoneNumber,
		EmailNotifications: req.EmailNotifications,
		PushNotifications:  req.PushNotifications,
	}
	if req.BirthDate != nil {
		birth, err := time.Parse("2006-01-02", *req.BirthDate)
		if err != nil {
			return res.ErrorJSON(c, http.StatusBadRequest, "bad_request", "birth_date must be YYYY-MM-DD", requestIDFromCtx(c), nil)
		}
		patch.BirthDate = &birth
	}
	userID := c.Get("user_id").(string)
	user, err := h.accounts.UpdateProfile(c.Request().Context(), requestIDFromCtx(c), userID, patch)
	if err != nil {
		return h.fail(c, err, "profile_update_failed")
	}
	return res.Message(c, http.StatusOK, user, "profile updated")
}

func (h *UserHandler) ChangePassword(c echo.Context) error {
	req := new(changePasswordRequest)
	if err := c.Bind(req); err != nil {
		return res.ErrorJSON(c, http.StatusBadRequest, "bad_request", "invalid payload", requestIDFromCtx(c), nil)
	}
	if req.NewPasswordConfirm != "" && req.NewPassword != req.NewPasswordConfirm {
		return res.ErrorJSON(c, http.StatusBadRequest, "password_mismatch", "new passwords do not match", requestIDFromCtx(c), nil)
	}
	userID := c.Get("user_id").(string)
	if err := h.accounts.ChangePassword(c.Request().Context(), requestIDFromCtx(c), userID, req.CurrentPassword, req.NewPassword); err != nil {
		return h.fail(c, err, "password_change_failed")
	}
	return res.Message(c, http.StatusOK, nil, "password changed")
}

func (h *UserHandler) DeleteAccount(c echo.Context) error {
	req := new(deleteAccountRequest)
	if err := c.Bind(req); err != nil {
		return res.ErrorJSON(c, http.StatusBadRequest, "bad_request", "invalid payload", requestIDFromCtx(c), nil)
	}
	userID := c.Get("user_id").(string)
	if err := h.accounts.SoftDelete(c.Request().Context(), requestIDFromCtx(c), userID, req.Password); err != nil {
		return h.fail(c, err, "account_delete_failed")
	}
	return res.Message(c, http.StatusOK, nil, "account deleted")
}

func (h *UserHandler) CheckEmail(c echo.Context) error {
	email := c.QueryParam("email")
	if email == "" {
		return res.ErrorJSON(c, http.StatusBadRequest, "bad_request", "email is required", requestIDFromCtx(c), nil)
	}
	available, err := h.accounts.EmailAvailable(c.Request().Context(), email)
	if err != nil {
		return h.fail(c, err, "check_email_failed")
	}
	return res.JSON(c, http.StatusOK, map[string]interface{}{"email": email, "is_available": available})
}

func (h *UserHandler) AuthStatus(c echo.Context) error {
	authz := c.Request().Header.Get(echo.HeaderAuthorization)
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return res.JSON(c, http.StatusOK, map[string]interface{}{"is_authenticated": false, "user": nil})
	}
	user, err := h.sessions.AuthStatus(c.Request().Context(), parts[1])
	if err != nil {
		return res.JSON(c, http.StatusOK, map[string]interface{}{"is_authenticated": false, "user": nil})
	}
	return res.JSON(c, http.StatusOK, map[string]interface{}{"is_authenticated": true, "user": user})
}

func (h *UserHandler) SocialCallback(c echo.Context) error {
	req := new(socialCallbackRequest)
	if err := c.Bind(req); err != nil {
		return res.ErrorJSON(c, http.StatusBadRequest, "bad_request", "invalid payload", requestIDFromCtx(c), nil)
	}
	provider := c.Param("provider")
	user, pair, err := h.sessions.SocialSignIn(c.Request().Context(), requestIDFromCtx(c), provider, req.Code, c.RealIP())
	if err != nil {
		return h.fail(c, err, "social_signin_failed")
	}
	return res.JSON(c, http.StatusOK, map[string]interface{}{"user": user, "tokens": pair})
}

// fail maps domain error kinds to HTTP status and stable codes; anything
// unrecognized is an opaque server failure.
func (h *UserHandler) fail(c echo.Context, err error, fallback string) error {
	traceID := requestIDFromCtx(c)
	switch {
	case errors.Is(err, domain.ErrInvalidEmail):
		return res.ErrorJSON(c, http.StatusBadRequest, "invalid_email", err.Error(), traceID, nil)
	case errors.Is(err, domain.ErrDuplicateEmail):
		return res.ErrorJSON(c, http.StatusConflict, "email_taken", err.Error(), traceID, nil)
	case errors.Is(err, domain.ErrWeakPassword):
		return res.ErrorJSON(c, http.StatusBadRequest, "weak_password", err.Error(), traceID, nil)
	case errors.Is(err, domain.ErrInvalidCredentials):
		return res.ErrorJSON(c, http.StatusUnauthorized, "invalid_credentials", err.Error(), traceID, nil)
	case errors.Is(err, domain.ErrAccountInactive):
		return res.ErrorJSON(c, http.StatusForbidden, "account_inactive", err.Error(), traceID, nil)
	case errors.Is(err, domain.ErrTokenNotFound):
		return res.ErrorJSON(c, http.StatusBadRequest, "token_not_found", err.Error(), traceID, nil)
	case errors.Is(err, domain.ErrTokenExpired):
		return res.ErrorJSON(c, http.StatusBadRequest, "token_expired", err.Error(), traceID, nil)
	case errors.Is(err, domain.ErrTokenAlreadyUsed):
		return res.ErrorJSON(c, http.StatusConflict, "token_already_used", err.Error(), traceID, nil)
	case errors.Is(err, domain.ErrTokenReused):
		return res.ErrorJSON(c, http.StatusUnauthorized, "token_reused", err.Error(), traceID, nil)
	case errors.Is(err, domain.ErrTokenInvalid):
		return res.ErrorJSON(c, http.StatusUnauthorized, "token_invalid", err.Error(), traceID, nil)
	case errors.Is(err, domain.ErrEmailAlreadyVerified):
		return res.ErrorJSON(c, http.StatusBadRequest, "already_verified", err.Error(), traceID, nil)
	case errors.Is(err, domain.ErrUserNotFound):
		return res.ErrorJSON(c, http.StatusNotFound, "not_found", err.Error(), traceID, nil)
	default:
		return res.ErrorJSON(c, http.StatusInternalServerError, fallback, "internal error", traceID, nil)
	}
}

func requestIDFromCtx(c echo.Context) string {
	if reqID := c.Response().Header().Get(echo.HeaderXRequestID); reqID != "" {
		return reqID
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}
