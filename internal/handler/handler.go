package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"slfs-backend/core/service"
	"slfs-backend/domain"
)

const (
	HeaderIdempotencyKey      = "Idempotency-Key"
	HeaderIdempotencyReplayed = "Idempotent-Replayed"

	msgPhoneRequired      = "Phone number is required"
	msgFieldsRequired     = "All fields are required."
	msgLaptopNotFound     = "Laptop ID not found in inventory."
	msgInternalError      = "Internal server error"
	msgClearanceSubmitted = "Clearance application submitted successfully. Please wait for approval."
)

type Handler struct {
	payments  service.PaymentService
	clearance service.ClearanceService
	log       *logrus.Entry
}

func NewHandler(payments service.PaymentService, clearance service.ClearanceService, log *logrus.Entry) *Handler {
	return &Handler{payments: payments, clearance: clearance, log: log}
}

type STKPushRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

type STKPushResponse struct {
	Success  bool            `json:"success"`
	Message  string          `json:"message,omitempty"`
	Error    string          `json:"error,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func (h *Handler) STKPush(c echo.Context) error {
	var req STKPushRequest
	if err := c.Bind(&req); err != nil {
		h.log.WithError(err).Debug("could not decode stk push body")
		req = STKPushRequest{}
	}

	result := h.payments.InitiatePayment(c.Request().Context(), domain.PaymentRequest{
		PhoneNumber:    req.PhoneNumber,
		IdempotencyKey: idempotencyKey(c.Request()),
	})

	switch result.Kind {
	case service.KindSuccess:
		if result.Replayed {
			c.Response().Header().Set(HeaderIdempotencyReplayed, "true")
		}
		return c.JSON(http.StatusOK, STKPushResponse{Success: true, Response: result.Response})
	case service.KindValidationError:
		return c.JSON(http.StatusBadRequest, STKPushResponse{Success: false, Message: msgPhoneRequired})
	case service.KindInProgress:
		return c.JSON(http.StatusConflict, STKPushResponse{Success: false, Error: result.Err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, STKPushResponse{Success: false, Error: result.Err.Error()})
	}
}

func (h *Handler) ApplyClearance(c echo.Context) error {
	var in service.ClearanceInput
	if err := c.Bind(&in); err != nil {
		h.log.WithError(err).Debug("could not decode clearance body")
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: msgFieldsRequired})
	}

	_, err := h.clearance.Apply(c.Request().Context(), in)
	switch {
	case errors.Is(err, service.ErrMissingFields):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: msgFieldsRequired})
	case errors.Is(err, service.ErrLaptopNotFound):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: msgLaptopNotFound})
	case err != nil:
		h.log.WithError(err).Error("clearance application error")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msgInternalError})
	}

	return c.JSON(http.StatusOK, MessageResponse{Message: msgClearanceSubmitted})
}

// idempotencyKey prefers the dedicated header and falls back to a request id
// supplied by the client.
func idempotencyKey(r *http.Request) string {
	if key := r.Header.Get(HeaderIdempotencyKey); key != "" {
		return key
	}
	return r.Header.Get(echo.HeaderXRequestID)
}
