package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"SponsorPay/internal/middleware"
	"SponsorPay/internal/models"
	"SponsorPay/internal/services"
)

// RecordStore is the read side of transfer persistence.
type RecordStore interface {
	GetTransferBySignature(ctx context.Context, signature string) (*models.TransferRecord, error)
	Ping(ctx context.Context) error
}

type Handler struct {
	Sponsor *services.Sponsor
	Node    services.Node
	Store   RecordStore // nil disables record lookups

	ExplorerCluster string
}

// NewRouter builds the gin engine with the common middleware chain.
// transferMiddleware runs only in front of POST /api/transfer.
func NewRouter(h *Handler, transferMiddleware ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog())
	RegisterRoutes(r, h, transferMiddleware...)
	return r
}

func RegisterRoutes(r *gin.Engine, h *Handler, transferMiddleware ...gin.HandlerFunc) {
	InitStartTime()

	r.GET("/healthz", HealthzHandler)
	r.GET("/readyz", h.ReadinessHandler)
	r.GET("/metrics", middleware.LocalOnly(), gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	handlers := append(append([]gin.HandlerFunc{}, transferMiddleware...), h.TransferHandler)
	api.POST("/transfer", handlers...)
	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		api.Handle(method, "/transfer", methodNotAllowed(http.MethodPost))
	}
	api.GET("/sponsor", h.GetSponsorAddressHandler)
	api.GET("/transfers/:signature", h.GetTransferHandler)
}

func methodNotAllowed(allow string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Allow", allow)
		c.JSON(http.StatusMethodNotAllowed, models.ErrorResponse{Error: "method not allowed"})
	}
}
