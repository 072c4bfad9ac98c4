package handlers

import (
	"errors"
	"io"
	"net/http"

	"instructly/services/payment"
	"instructly/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const webhookMaxBodyBytes = int64(65536)

// WebhookHandler is the single entry point for asynchronous gateway events.
type WebhookHandler struct {
	Gateway payment.Gateway
	Service payment.PaymentService
}

func NewWebhookHandler(gateway payment.Gateway, svc payment.PaymentService) *WebhookHandler {
	return &WebhookHandler{Gateway: gateway, Service: svc}
}

// GatewayWebhookHandler verifies, parses and dispatches one gateway event.
// Lock contention answers non-2xx so the gateway redelivers; unknown event
// types are acknowledged so new gateway features never break delivery.
func (h *WebhookHandler) GatewayWebhookHandler(c *gin.Context) {
	logger := utils.GetLogger()

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, webhookMaxBodyBytes))
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Failed to read webhook body", err.Error())
		return
	}

	ev, err := h.Gateway.ParseWebhook(body, c.GetHeader("Stripe-Signature"))
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Webhook rejected", err.Error())
		return
	}

	if err := h.Service.HandleGatewayEvent(c.Request.Context(), ev); err != nil {
		if errors.Is(err, payment.ErrLockBusy) {
			logger.Info("webhook deferred on lock contention, awaiting redelivery",
				zap.String("eventID", ev.ID),
				zap.String("type", ev.Type),
			)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "retry"})
			return
		}
		logger.Error("webhook handling failed",
			zap.String("eventID", ev.ID),
			zap.String("type", ev.Type),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
