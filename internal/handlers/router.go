package handlers

import (
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/harentsoaR/clinic-api/internal/middleware"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var pageFS embed.FS

type RouterConfig struct {
	CORSOrigins []string
	// TrustedProxies may set X-Forwarded-For. Empty means the client IP is
	// always the peer address.
	TrustedProxies []string
	// Limiter throttles the unauthenticated write endpoints. Nil disables it.
	Limiter *middleware.RateLimiter
	Logger  *zap.Logger
}

func NewRouter(h *Handler, cfg RouterConfig) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.SetHTMLTemplate(template.Must(template.ParseFS(pageFS, "templates/*.html")))

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r.Use(gin.Recovery(), middleware.RequestLogger(logger), middleware.SecurityHeaders())
	corsCfg := cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORSOrigins) == 0 {
		corsCfg.AllowOrigins = nil
		corsCfg.AllowAllOrigins = true
	}
	r.Use(cors.New(corsCfg))

	throttle := func(c *gin.Context) { c.Next() }
	if cfg.Limiter != nil {
		throttle = middleware.RateLimit(cfg.Limiter)
	}
	auth := middleware.AuthMiddleware(h.Identity)

	api := r.Group("/api")
	api.GET("/health", h.Health)

	authRoutes := api.Group("/auth")
	{
		authRoutes.POST("/register", throttle, h.Register)
		authRoutes.POST("/login", throttle, h.Login)
		authRoutes.POST("/google", throttle, h.GoogleLogin)
		authRoutes.GET("/me", auth, h.GetCurrentUser)
		authRoutes.PUT("/profile", auth, h.UpdateCurrentUser)
	}

	apptRoutes := api.Group("/appointments")
	{
		apptRoutes.POST("/book", auth, h.BookAppointment)
		apptRoutes.POST("/book-guest", throttle, h.BookGuestAppointment)
		apptRoutes.GET("/my-appointments", auth, h.GetMyAppointments)

		// emailed action links, authorised by the confirmation token alone
		apptRoutes.GET("/confirm/:token", h.ConfirmAppointment)
		apptRoutes.GET("/reject/:token", h.RejectAppointment)

		apptRoutes.GET("/:id", auth, h.GetAppointment)
		apptRoutes.PUT("/:id/cancel", auth, h.CancelAppointment)
		apptRoutes.PUT("/:id/reschedule", auth, h.RescheduleAppointment)
	}

	return r, nil
}
