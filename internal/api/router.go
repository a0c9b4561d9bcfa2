package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
	"go.uber.org/zap"

	"lab-booking-backend/config"
	"lab-booking-backend/internal/metrics"
	"lab-booking-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router. m may be nil.
func NewRouter(cfg *config.Config, d Deps, m *metrics.Metrics) *gin.Engine {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(mw.RequestID(), mw.Recovery(logger), mw.Logger(logger), mw.CORS(cfg.Server.AllowOrigins))
	if m != nil {
		r.Use(m.Middleware())
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	// Lab names change only through AddLab, which flushes the cache.
	ttl := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	labCache := cache.New(ttl, 2*ttl)
	caching := mw.Cache(labCache, ttl)

	handler := NewHandler(d, labCache)
	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst)
	otpLimiter := mw.RateLimiter(rate.Limit(cfg.OTP.RateLimitPerMin/60), max(1, int(cfg.OTP.RateLimitPerMin)))
	session := mw.RequireSession(d.Accounts)
	admin := mw.RequireAdmin()

	r.GET("/healthz", handler.Healthz)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.POST("/auth/register", handler.Register)
		api.POST("/auth/login", handler.Login)
		api.POST("/auth/logout", session, handler.Logout)
		api.POST("/auth/change_password", session, handler.ChangePassword)
		api.POST("/session/verify", session, handler.VerifySession)

		api.POST("/otp/send", otpLimiter, handler.SendOTP)
		api.POST("/otp/verify", otpLimiter, handler.VerifyOTP)

		api.GET("/labs", caching, handler.ListLabs)
		api.POST("/labs", session, admin, handler.AddLab)
		api.GET("/labs/:lab/files", handler.ListFiles)
		api.GET("/labs/:lab/files/:file", handler.DownloadFile)
		api.POST("/labs/:lab/files", session, admin, handler.UploadFile)
		api.DELETE("/labs/:lab/files/:file", session, admin, handler.DeleteFile)

		api.GET("/bookings", handler.FetchBookings)
		api.GET("/slots/state", handler.SlotState)
		api.POST("/bookings/toggle", session, handler.ToggleBooking)
		api.POST("/bookings/remove", session, admin, handler.RemoveBooking)
		api.POST("/deactivations/toggle", session, admin, handler.ToggleDeactivation)

		api.POST("/requests/toggle", session, handler.ToggleRequest)
		api.POST("/requests/batch", session, handler.BatchRequest)
		api.POST("/requests/cancel", session, handler.CancelRequest)
		api.GET("/requests", session, admin, handler.ListRequests)
		api.POST("/requests/:id/decision", session, admin, handler.DecideRequest)

		api.GET("/admins/emails", session, admin, handler.AdminEmails)

		api.GET("/subscriptions", session, handler.GetSubscription)
		api.PUT("/subscriptions", session, handler.PutSubscription)
		api.DELETE("/subscriptions", session, handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
