package v1

import (
	"github.com/labstack/echo/v4"

	"github.com/Kimkangyeon-17/teskflow/internal/adapters/http/api/v1/handlers"
)

type Router struct {
	handlers *handlers.UserHandler
	authMW   echo.MiddlewareFunc
}

func NewRouter(h *handlers.UserHandler, authMW echo.MiddlewareFunc) *Router {
	return &Router{handlers: h, authMW: authMW}
}

func (r *Router) Register(g *echo.Group) {
	auth := g.Group("/auth")
	auth.POST("/register", r.handlers.Register)
	auth.POST("/login", r.handlers.Login)
	auth.POST("/token/refresh", r.handlers.Refresh)
	auth.POST("/email/verify", r.handlers.VerifyEmail)
	auth.GET("/check-email", r.handlers.CheckEmail)
	auth.GET("/status", r.handlers.AuthStatus)
	auth.POST("/oauth/:provider/callback", r.handlers.SocialCallback)

	protected := auth.Group("", r.authMW)
	protected.POST("/email/resend", r.handlers.ResendVerification)
	protected.GET("/profile", r.handlers.GetProfile)
	protected.PATCH("/profile", r.handlers.UpdateProfile)
	protected.POST("/password/change", r.handlers.ChangePassword)
	protected.DELETE("/account", r.handlers.DeleteAccount)
}
