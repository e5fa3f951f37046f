package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	// startTime 记录服务启动时间
	startTime     time.Time
	startTimeOnce sync.Once
)

// InitStartTime 初始化服务启动时间（只执行一次）
func InitStartTime() {
	startTimeOnce.Do(func() {
		startTime = time.Now()
	})
}

// HealthzHandler 存活探针（liveness probe）
func HealthzHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"type":   "liveness",
	})
}

// ReadinessHandler 就绪探针：sponsor key loaded, RPC node healthy, database reachable.
func (h *Handler) ReadinessHandler(c *gin.Context) {
	notReady := func(message string, err error) {
		body := gin.H{"status": "not ready", "type": "readiness", "message": message}
		if err != nil {
			body["error"] = err.Error()
		}
		c.JSON(http.StatusServiceUnavailable, body)
	}

	if h.Sponsor == nil || h.Sponsor.Address() == "" {
		notReady("sponsor key is not configured", nil)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if h.Node != nil {
		if _, err := h.Node.GetHealth(ctx); err != nil {
			notReady("rpc node unhealthy", err)
			return
		}
	}
	if h.Store != nil {
		if err := h.Store.Ping(ctx); err != nil {
			notReady("database unreachable", err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ready",
		"type":    "readiness",
		"sponsor": h.Sponsor.Address(),
		"uptime":  time.Since(startTime).String(),
	})
}
