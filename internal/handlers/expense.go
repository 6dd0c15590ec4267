package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/healthspend/apiserver/internal/services"
	"github.com/healthspend/apiserver/types"
)

// ExpenseHandler serves the expense tracking endpoints.
type ExpenseHandler struct {
	expenseService *services.ExpenseService
}

func NewExpenseHandler(expenseService *services.ExpenseService) *ExpenseHandler {
	return &ExpenseHandler{expenseService: expenseService}
}

// ExpenseRouter registers expense routes. /categories is public.
func ExpenseRouter(r chi.Router, expenseService *services.ExpenseService, authMiddleware func(http.Handler) http.Handler) {
	h := NewExpenseHandler(expenseService)

	r.Get("/categories", h.ListCategories)
	r.Route("/expenses", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", h.ListExpenses)
		r.Post("/", h.CreateExpense)
		r.Put("/{id}", h.UpdateExpense)
		r.Delete("/{id}", h.DeleteExpense)
	})
}

type CreateExpenseRequest struct {
	Description         string     `json:"description"`
	Amount              *float64   `json:"amount"`
	Category            *string    `json:"category"`
	Date                *time.Time `json:"date"`
	UseAICategorization bool       `json:"use_ai_categorization"`
}

type UpdateExpenseRequest struct {
	Description *string    `json:"description"`
	Amount      *float64   `json:"amount"`
	Category    *string    `json:"category"`
	Date        *time.Time `json:"date"`
}

type CategoriesResponse struct {
	Categories []string `json:"categories"`
}

func (h *ExpenseHandler) ListCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, CategoriesResponse{Categories: h.expenseService.Categories()})
}

func (h *ExpenseHandler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	expenses, err := h.expenseService.List(r.Context(), userID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expenses)
}

func (h *ExpenseHandler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var req CreateExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	expense, err := h.expenseService.Create(r.Context(), userID, services.CreateExpenseInput{
		Description:         req.Description,
		Amount:              req.Amount,
		Category:            req.Category,
		Date:                req.Date,
		UseAICategorization: req.UseAICategorization,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

func (h *ExpenseHandler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var req UpdateExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	expense, err := h.expenseService.Update(r.Context(), userID, chi.URLParam(r, "id"), types.ExpensePatch{
		Description: req.Description,
		Amount:      req.Amount,
		Category:    req.Category,
		Date:        req.Date,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

func (h *ExpenseHandler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	if err := h.expenseService.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Expense deleted successfully"})
}
