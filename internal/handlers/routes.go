package handlers

import (
	"github.com/go-chi/chi/v5"
	"github.com/teamtasks/apiserver/internal/auth"
	"github.com/teamtasks/apiserver/internal/services"
)

// UserRouterConfig carries what the /api/user routes depend on.
type UserRouterConfig struct {
	Users         *services.UserService
	Notifications *services.NotificationService
	Tokens        *auth.TokenService
	Cookie        auth.SessionCookie
	// Revoker is optional.
	Revoker auth.Revoker
	// Verbose echoes internal error causes in 500 responses.
	Verbose bool
}

// UserRouter registers account and notification routes on r.
func UserRouter(r chi.Router, cfg UserRouterConfig) {
	authn := NewAuthenticator(cfg.Tokens, cfg.Users, cfg.Revoker, cfg.Verbose)
	authHandler := NewAuthHandler(cfg.Users, cfg.Tokens, cfg.Cookie, cfg.Revoker, cfg.Verbose)
	userHandler := NewUserHandler(cfg.Users, cfg.Verbose)
	notificationHandler := NewNotificationHandler(cfg.Notifications, cfg.Verbose)

	r.With(authn.OptionalAuth).Post("/register", authHandler.Register)
	r.Post("/login", authHandler.Login)
	r.Post("/logout", authHandler.Logout)

	r.Group(func(r chi.Router) {
		r.Use(authn.RequireAuth)

		r.Get("/notifications", notificationHandler.List)
		r.Put("/profile", userHandler.UpdateProfile)
		r.Put("/read-noti", notificationHandler.MarkRead)
		r.Put("/change-password", userHandler.ChangePassword)

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)

			r.Get("/get-team", userHandler.GetTeam)
			r.Put("/{id}", userHandler.SetActive)
			r.Delete("/{id}", userHandler.Delete)
		})
	})
}
