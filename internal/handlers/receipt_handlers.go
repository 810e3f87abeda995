package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/qcom/receipts/internal/metrics"
	"github.com/qcom/receipts/internal/middleware"
	"github.com/qcom/receipts/internal/models"
	"github.com/sirupsen/logrus"
)

type Validator interface {
	Validate(ctx context.Context, req models.ValidationRequest) (*models.ValidationResult, error)
}

type ReceiptHandlers struct {
	validator Validator
	metrics   *metrics.Metrics
	logger    *logrus.Logger
}

func NewReceiptHandlers(validator Validator, m *metrics.Metrics, logger *logrus.Logger) *ReceiptHandlers {
	return &ReceiptHandlers{
		validator: validator,
		metrics:   m,
		logger:    logger,
	}
}

// ValidateReceipt answers 200 whenever the vendor gave a verdict, valid or
// not, and 500 whenever no verdict could be obtained.
func (h *ReceiptHandlers) ValidateReceipt(w http.ResponseWriter, r *http.Request) {
	var req models.ValidationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithFailure(w, r, req, fmt.Errorf("invalid request body: %w", err))
		return
	}

	result, err := h.validator.Validate(r.Context(), req)
	if err != nil {
		h.respondWithFailure(w, r, req, err)
		return
	}

	outcome := metrics.OutcomeInvalid
	if result.IsValid {
		outcome = metrics.OutcomeValid
	}
	h.metrics.ObserveValidation(req.Platform, outcome)

	h.respondWithJSON(w, http.StatusOK, result)
}

func (h *ReceiptHandlers) respondWithFailure(w http.ResponseWriter, r *http.Request, req models.ValidationRequest, err error) {
	h.logger.WithError(err).WithFields(logrus.Fields{
		"request_id": middleware.RequestIDFromContext(r.Context()),
		"platform":   req.Platform,
		"product_id": req.ProductID,
		"type":       req.Type,
	}).Error("Validation error")
	h.metrics.ObserveValidation(req.Platform, metrics.OutcomeError)

	h.respondWithJSON(w, http.StatusInternalServerError, models.FailureResult{
		IsValid:   false,
		Error:     err.Error(),
		ProductID: req.ProductID,
		Type:      req.Type,
	})
}

func (h *ReceiptHandlers) respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.WithError(err).Warn("Failed to write response")
	}
}
