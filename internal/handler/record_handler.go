package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"SponsorPay/internal/db"
	"SponsorPay/internal/models"
	"SponsorPay/internal/services"
)

func (h *Handler) GetTransferHandler(c *gin.Context) {
	signature := c.Param("signature")

	if h.Store == nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "storage is not configured"})
		return
	}

	rec, err := h.Store.GetTransferBySignature(c.Request.Context(), signature)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "transfer not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "query failed", ErrorMessage: err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"signature":      rec.TXSignature,
		"sender":         rec.SenderAddress,
		"recipient":      rec.ReceiverAddress,
		"lamports":       rec.Lamports,
		"sponsor_funded": rec.SponsorFunded,
		"status":         rec.Status,
		"slot":           rec.Slot,
		"error":          rec.Error,
		"created_at":     rec.CreatedAt,
		"updated_at":     rec.UpdatedAt,
		"explorer_url":   services.ExplorerURL(rec.TXSignature, h.ExplorerCluster),
	})
}
