package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/healthspend/apiserver/internal/apperr"
	"github.com/healthspend/apiserver/internal/services"
	"github.com/healthspend/apiserver/types"
)

// PredictionHandler serves the heart risk prediction endpoints.
type PredictionHandler struct {
	predictionService *services.PredictionService
}

func NewPredictionHandler(predictionService *services.PredictionService) *PredictionHandler {
	return &PredictionHandler{predictionService: predictionService}
}

// PredictionRouter registers prediction routes. Every route requires auth.
func PredictionRouter(r chi.Router, predictionService *services.PredictionService, authMiddleware func(http.Handler) http.Handler) {
	h := NewPredictionHandler(predictionService)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/predict", h.Predict)
		r.Get("/predictions", h.ListPredictions)
		r.Get("/predictions/{id}", h.GetPrediction)
		r.Get("/predictions/{id}/report", h.GetReport)
	})
}

type PredictRequest struct {
	HealthData *types.HealthData `json:"health_data"`
}

func (h *PredictionHandler) Predict(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var req PredictRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	if req.HealthData == nil {
		writeAppError(w, r, apperr.Validation("health_data is required"))
		return
	}

	prediction, err := h.predictionService.Predict(r.Context(), userID, *req.HealthData)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prediction)
}

func (h *PredictionHandler) ListPredictions(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	predictions, err := h.predictionService.List(r.Context(), userID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, predictions)
}

func (h *PredictionHandler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	prediction, err := h.predictionService.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prediction)
}

// GetReport returns the archived model narrative as plain text.
func (h *PredictionHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	report, err := h.predictionService.Report(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(report))
}
