package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"SponsorPay/internal/models"
	"SponsorPay/internal/services"
)

// TransferHandler serves both legs of a sponsored transfer:
//
//	no signedTransaction        -> unsigned transaction for the wallet to sign
//	signedTransaction present   -> sponsor co-signs, submits, waits for confirmation
//
// A sender equal to the sponsor is signed and submitted by the server in one call.
func (h *Handler) TransferHandler(c *gin.Context) {
	var req models.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request: " + err.Error()})
		return
	}
	if req.GasSponsorPrivateKey != "" {
		// 代付私钥只能由服务端配置
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "sponsor keys are configured on the server and must not be sent"})
		return
	}

	ctx := c.Request.Context()
	switch {
	case req.SignedTransaction != "":
		resp, err := h.Sponsor.SubmitTransfer(ctx, &req)
		if err != nil {
			writeTransferError(c, err, resp)
			return
		}
		c.JSON(http.StatusOK, resp)
	case req.SenderPublicKey != "" && req.SenderPublicKey == h.Sponsor.Address():
		resp, err := h.Sponsor.SponsorTransfer(ctx, &req)
		if err != nil {
			writeTransferError(c, err, resp)
			return
		}
		c.JSON(http.StatusOK, resp)
	default:
		unsigned, err := h.Sponsor.BuildTransfer(ctx, &req)
		if err != nil {
			writeTransferError(c, err, nil)
			return
		}
		c.JSON(http.StatusOK, unsigned)
	}
}

func writeTransferError(c *gin.Context, err error, resp *models.TransferResponse) {
	switch {
	case services.IsClientError(err):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, services.ErrSponsorFundedOff):
		c.JSON(http.StatusForbidden, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, services.ErrSponsorNotConfigured):
		zerolog.Ctx(c.Request.Context()).Error().Msg("Sponsor key is not configured")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "server configuration error"})
	default:
		body := models.ErrorResponse{Error: "error processing transfer", ErrorMessage: err.Error()}
		if resp != nil {
			body.Signature = resp.Signature
		}
		c.JSON(http.StatusInternalServerError, body)
	}
}

// GetSponsorAddressHandler 返回代付 gas 的账户地址
func (h *Handler) GetSponsorAddressHandler(c *gin.Context) {
	address := h.Sponsor.Address()
	if address == "" {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "server configuration error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": address})
}
