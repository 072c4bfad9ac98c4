package handlers

import (
	"errors"
	"net/http"

	"instructly/services/payment"
	"instructly/utils"

	"github.com/gin-gonic/gin"
)

// PaymentHandler exposes the settlement engine to the API layer.
type PaymentHandler struct {
	Service payment.PaymentService
}

func NewPaymentHandler(svc payment.PaymentService) *PaymentHandler {
	return &PaymentHandler{Service: svc}
}

// AuthorizeHandler creates or retries the authorization hold for a booking.
func (h *PaymentHandler) AuthorizeHandler(c *gin.Context) {
	bookingID := c.Param("bookingID")

	outcome, err := h.Service.CreateOrRetryAuthorization(c.Request.Context(), bookingID)
	if err != nil {
		if errors.Is(err, payment.ErrBookingNotFound) {
			utils.JSONError(c, http.StatusNotFound, "Booking not found", bookingID)
			return
		}
		if payment.IsPricingConfigurationError(err) {
			utils.JSONError(c, http.StatusUnprocessableEntity, "Pricing configuration error", err.Error())
			return
		}
		utils.JSONError(c, http.StatusInternalServerError, "Authorization failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// CaptureHandler captures a completed lesson's hold.
func (h *PaymentHandler) CaptureHandler(c *gin.Context) {
	bookingID := c.Param("bookingID")
	reason := c.DefaultQuery("reason", "api_request")

	result, err := h.Service.Capture(c.Request.Context(), bookingID, reason)
	if err != nil {
		if errors.Is(err, payment.ErrMissingAuthorization) {
			utils.JSONError(c, http.StatusConflict, "No authorization hold for booking", bookingID)
			return
		}
		if errors.Is(err, payment.ErrBookingNotFound) {
			utils.JSONError(c, http.StatusNotFound, "Booking not found", bookingID)
			return
		}
		utils.JSONError(c, http.StatusInternalServerError, "Capture failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, result)
}

// PaymentStatusHandler returns the ledger record for a booking.
func (h *PaymentHandler) PaymentStatusHandler(c *gin.Context) {
	bookingID := c.Param("bookingID")

	bp, err := h.Service.GetPaymentStatus(c.Request.Context(), bookingID)
	if err != nil {
		if errors.Is(err, payment.ErrBookingNotFound) {
			utils.JSONError(c, http.StatusNotFound, "No payment record for booking", bookingID)
			return
		}
		utils.JSONError(c, http.StatusInternalServerError, "Failed to fetch payment status", err.Error())
		return
	}
	c.JSON(http.StatusOK, bp)
}

// PaymentEventsHandler returns the booking's audit trail, oldest first.
func (h *PaymentHandler) PaymentEventsHandler(c *gin.Context) {
	bookingID := c.Param("bookingID")

	events, err := h.Service.PaymentEvents(c.Request.Context(), bookingID)
	if err != nil {
		utils.JSONError(c, http.StatusInternalServerError, "Failed to fetch payment events", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookingId": bookingID, "events": events})
}

// NeedsReviewHandler lists bookings flagged after exhausted capture retries.
func (h *PaymentHandler) NeedsReviewHandler(c *gin.Context) {
	flagged, err := h.Service.ListNeedsReview(c.Request.Context())
	if err != nil {
		utils.JSONError(c, http.StatusInternalServerError, "Failed to fetch review list", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": flagged})
}
