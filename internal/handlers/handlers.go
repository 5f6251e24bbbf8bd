package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"adminpanel/api/internal/config"
	"adminpanel/api/internal/middleware"
	"adminpanel/api/internal/models"
	"adminpanel/api/internal/service"
)

type AuthAPI interface {
	Login(ctx context.Context, input service.LoginInput) (service.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (service.AuthResult, error)
	Logout(ctx context.Context, sessionID string) error
	Authenticate(ctx context.Context, accessToken string) (service.Principal, error)
	Profile(ctx context.Context, userID int64) (service.Profile, error)
	Sessions(ctx context.Context, userID int64) ([]models.Session, error)
	RevokeSession(ctx context.Context, userID int64, sessionID string) error
}

type UserAPI interface {
	CheckUsername(ctx context.Context, username string) (bool, error)
	CreateUser(ctx context.Context, in service.CreateUserInput) (models.User, error)
	SetEnabled(ctx context.Context, userID int64, enabled bool) error
	List(ctx context.Context, limit, offset int) ([]models.User, error)
}

type MenuSource interface {
	Menu(ctx context.Context, userID int64) ([]models.MenuModule, error)
}

// HealthCheck probes one dependency; a nil error means healthy.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Auth  AuthAPI
	Users UserAPI
	Menu  MenuSource
	// LoginLimiter guards the login route when set.
	LoginLimiter gin.HandlerFunc
	Checks       map[string]HealthCheck
}

type HandlerSet struct {
	log    zerolog.Logger
	cfg    *config.AppConfig
	auth   AuthAPI
	users  UserAPI
	menu   MenuSource
	limit  gin.HandlerFunc
	checks map[string]HealthCheck
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, deps Deps) (HandlerSet, error) {
	if err := registerValidators(); err != nil {
		return HandlerSet{}, err
	}
	return HandlerSet{
		log:    log,
		cfg:    cfg,
		auth:   deps.Auth,
		users:  deps.Users,
		menu:   deps.Menu,
		limit:  deps.LoginLimiter,
		checks: deps.Checks,
	}, nil
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	requireAuth := middleware.Auth(h.auth, h.log)

	auth := router.Group("/auth")
	{
		login := []gin.HandlerFunc{h.Login}
		if h.limit != nil {
			login = append([]gin.HandlerFunc{h.limit}, login...)
		}
		auth.POST("/login", login...)
		auth.POST("/refresh", h.Refresh)

		auth.POST("/logout", requireAuth, h.Logout)
		auth.GET("/me", requireAuth, h.Me)
		auth.GET("/sessions", requireAuth, h.ListSessions)
		auth.DELETE("/sessions/:id", requireAuth, h.RevokeSession)
	}

	router.GET("/menu", requireAuth, h.Menu)

	users := router.Group("/users", requireAuth)
	{
		users.GET("", middleware.RequirePermission("usuarios", "ver"), h.ListUsers)
		users.GET("/check-username", middleware.RequirePermission("usuarios", "crear"), h.CheckUsername)
		users.POST("", middleware.RequirePermission("usuarios", "crear"), h.CreateUser)
		users.PATCH("/:id/status", middleware.RequirePermission("usuarios", "editar"), h.SetUserStatus)
	}
}
