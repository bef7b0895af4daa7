package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/diagnosis/goodvibes-bookings/internal/confirm"
	"github.com/diagnosis/goodvibes-bookings/internal/domain"
	"github.com/diagnosis/goodvibes-bookings/internal/http/response"
	"github.com/diagnosis/goodvibes-bookings/internal/intake"
	"github.com/diagnosis/goodvibes-bookings/pkg/logger"
)

// ConfirmationSender delivers one confirmation synchronously.
type ConfirmationSender interface {
	SendNow(ctx context.Context, req domain.ConfirmationReq) (domain.ConfirmationRes, error)
}

type ConfirmationHandler struct {
	sender ConfirmationSender
}

func NewConfirmationHandler(sender ConfirmationSender) *ConfirmationHandler {
	return &ConfirmationHandler{sender: sender}
}

func (h *ConfirmationHandler) Send(w http.ResponseWriter, r *http.Request) {
	var in domain.ConfirmationReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}
	res, err := h.sender.SendNow(r.Context(), in)
	var ve *intake.ValidationError
	switch {
	case err == nil:
		response.JSON(w, http.StatusOK, res)
	case errors.As(err, &ve):
		response.WriteErrorWithDetails(w, http.StatusBadRequest, ve.Error(), response.CodeValidation, map[string]string{"field": ve.Field})
	case errors.Is(err, confirm.ErrDeliveryFailed):
		logger.ErrorContext(r.Context(), "confirmation email failed", "error", err)
		response.JSON(w, http.StatusBadGateway, res)
	default:
		logger.ErrorContext(r.Context(), "confirmation email failed", "error", err)
		response.InternalError(w)
	}
}
