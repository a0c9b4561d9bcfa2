package api

import (
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"lab-booking-backend/internal/account"
	"lab-booking-backend/internal/labfiles"
	"lab-booking-backend/internal/mw"
	"lab-booking-backend/internal/otp"
	"lab-booking-backend/internal/store"
	"lab-booking-backend/internal/workflow"
)

// Deps are the services the HTTP layer talks to.
type Deps struct {
	Engine        *workflow.Engine
	Accounts      *account.Service
	OTP           *otp.Service
	Labs          *labfiles.Service
	Subscriptions store.SubscriptionStore
	WebPush       *webpush.Options
	Logger        *zap.Logger
}

// Handler holds the dependencies for the API handlers.
type Handler struct {
	engine   *workflow.Engine
	accounts *account.Service
	otp      *otp.Service
	labs     *labfiles.Service
	subs     store.SubscriptionStore
	webpush  *webpush.Options
	labCache *cache.Cache
	logger   *zap.Logger
}

// NewHandler creates a new Handler. labCache may be nil.
func NewHandler(d Deps, labCache *cache.Cache) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		engine:   d.Engine,
		accounts: d.Accounts,
		otp:      d.OTP,
		labs:     d.Labs,
		subs:     d.Subscriptions,
		webpush:  d.WebPush,
		labCache: labCache,
		logger:   logger.Named("api"),
	}
}

// bind decodes the request body, JSON or form encoded, into obj.
func bind(c *gin.Context, obj any) bool {
	if err := c.ShouldBind(obj); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return false
	}
	return true
}

// actor returns the caller set by mw.RequireSession.
func actor(c *gin.Context) workflow.Actor {
	a, _ := mw.ActorFrom(c)
	return a
}

// Healthz reports that the process is serving.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
