package services

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/healthspend/apiserver/internal/apperr"
	"github.com/healthspend/apiserver/internal/llm"
	"github.com/healthspend/apiserver/internal/mq"
	"github.com/healthspend/apiserver/internal/store"
	"github.com/healthspend/apiserver/types"
)

const expenseListLimit = 1000

// ExpenseRepository defines persistence operations for expenses.
type ExpenseRepository interface {
	Create(ctx context.Context, e types.Expense) (types.Expense, error)
	ListByUser(ctx context.Context, userID string, limit int64) ([]types.Expense, error)
	GetByID(ctx context.Context, userID, id string) (types.Expense, error)
	Update(ctx context.Context, userID, id string, patch types.ExpensePatch) (types.Expense, error)
	Delete(ctx context.Context, userID, id string) error
}

// CreateExpenseInput carries the fields of a new expense. Amount is a
// pointer so that a missing amount can be rejected.
type CreateExpenseInput struct {
	Description         string
	Amount              *float64
	Category            *string
	Date                *time.Time
	UseAICategorization bool
}

// ExpenseService encapsulates expense tracking use-cases.
type ExpenseService struct {
	repo       ExpenseRepository
	model      llm.Completer
	fuzzyMatch bool
	events     EventPublisher
}

// NewExpenseService wires the service. model and events may be nil; without
// a model every AI categorization falls back to the default category.
func NewExpenseService(repo ExpenseRepository, model llm.Completer, fuzzyMatch bool, events EventPublisher) *ExpenseService {
	return &ExpenseService{repo: repo, model: model, fuzzyMatch: fuzzyMatch, events: events}
}

func (s *ExpenseService) Create(ctx context.Context, userID string, in CreateExpenseInput) (types.Expense, error) {
	description := strings.TrimSpace(in.Description)
	if description == "" {
		return types.Expense{}, apperr.Validation("description is required")
	}
	if in.Amount == nil {
		return types.Expense{}, apperr.Validation("amount is required")
	}
	if !finite(*in.Amount) {
		return types.Expense{}, apperr.Validation("amount must be a finite number")
	}

	now := time.Now().UTC()
	expense := types.Expense{
		ID:          uuid.NewString(),
		UserID:      userID,
		Description: in.Description,
		Amount:      *in.Amount,
		Date:        now,
		CreatedAt:   now,
	}
	if in.Date != nil {
		expense.Date = in.Date.UTC()
	}

	given := ""
	if in.Category != nil {
		given = strings.TrimSpace(*in.Category)
	}
	switch {
	case in.UseAICategorization && given == "":
		expense.Category = s.Categorize(ctx, description)
		expense.AICategorized = true
	case given != "":
		expense.Category = given
	default:
		expense.Category = types.DefaultCategory
	}

	created, err := s.repo.Create(ctx, expense)
	if err != nil {
		return types.Expense{}, apperr.Internal("failed to save expense", err)
	}
	publishEvent(ctx, s.events, mq.ChannelExpenses, mq.ExpenseCreated, created.ID, userID)
	return created, nil
}

// List returns the caller's expenses ordered by date, newest first.
func (s *ExpenseService) List(ctx context.Context, userID string) ([]types.Expense, error) {
	expenses, err := s.repo.ListByUser(ctx, userID, expenseListLimit)
	if err != nil {
		return nil, apperr.Internal("failed to list expenses", err)
	}
	return expenses, nil
}

// Update applies the supplied fields of patch and returns the stored record.
func (s *ExpenseService) Update(ctx context.Context, userID, id string, patch types.ExpensePatch) (types.Expense, error) {
	if patch.Description != nil && strings.TrimSpace(*patch.Description) == "" {
		return types.Expense{}, apperr.Validation("description must not be blank")
	}
	if patch.Amount != nil && !finite(*patch.Amount) {
		return types.Expense{}, apperr.Validation("amount must be a finite number")
	}
	if patch.Date != nil {
		date := patch.Date.UTC().Truncate(time.Microsecond)
		patch.Date = &date
	}

	if patch.IsEmpty() {
		current, err := s.repo.GetByID(ctx, userID, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return types.Expense{}, apperr.NotFound("Expense not found")
			}
			return types.Expense{}, apperr.Internal("failed to get expense", err)
		}
		return current, nil
	}

	updated, err := s.repo.Update(ctx, userID, id, patch)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Expense{}, apperr.NotFound("Expense not found")
		}
		return types.Expense{}, apperr.Internal("failed to update expense", err)
	}
	publishEvent(ctx, s.events, mq.ChannelExpenses, mq.ExpenseUpdated, id, userID)
	return updated, nil
}

func (s *ExpenseService) Delete(ctx context.Context, userID, id string) error {
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("Expense not found")
		}
		return apperr.Internal("failed to delete expense", err)
	}
	publishEvent(ctx, s.events, mq.ChannelExpenses, mq.ExpenseDeleted, id, userID)
	return nil
}

// Categories returns the predefined expense categories.
func (s *ExpenseService) Categories() []string {
	return append([]string(nil), types.ExpenseCategories...)
}

// Categorize asks the model for the category of description. Any model
// failure yields the default category.
func (s *ExpenseService) Categorize(ctx context.Context, description string) string {
	if s.model == nil {
		return types.DefaultCategory
	}
	reply, err := s.model.Complete(ctx, categorizationSystemMessage(), "Categorize this expense: "+description)
	if err != nil {
		slog.WarnContext(ctx, "ai categorization failed", "error", err)
		return types.DefaultCategory
	}
	return MatchCategory(reply, s.fuzzyMatch)
}

// MatchCategory maps a model reply onto ExpenseCategories. An exact match on
// the trimmed reply wins; with fuzzy enabled the first category that contains
// or is contained in the reply, ignoring case, is used.
func MatchCategory(reply string, fuzzy bool) string {
	reply = strings.TrimSpace(reply)
	for _, category := range types.ExpenseCategories {
		if reply == category {
			return category
		}
	}
	if !fuzzy || reply == "" {
		return types.DefaultCategory
	}
	lower := strings.ToLower(reply)
	for _, category := range types.ExpenseCategories {
		c := strings.ToLower(category)
		if strings.Contains(lower, c) || strings.Contains(c, lower) {
			return category
		}
	}
	return types.DefaultCategory
}

func categorizationSystemMessage() string {
	return "You are an expense categorization assistant. Given an expense description, categorize it into ONE of these categories:\n" +
		strings.Join(types.ExpenseCategories, ", ") + "\n\n" +
		"Rules:\n" +
		"- Return ONLY the category name, nothing else\n" +
		"- Choose the most appropriate category\n" +
		"- If unsure, use 'Other'\n"
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
