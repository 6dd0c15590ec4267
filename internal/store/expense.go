package store

import (
	"context"
	"time"

	"github.com/healthspend/apiserver/internal/docstore"
	"github.com/healthspend/apiserver/types"
)

type expenseDocument struct {
	ID            string  `bson:"id" json:"id"`
	UserID        string  `bson:"user_id" json:"user_id"`
	Description   string  `bson:"description" json:"description"`
	Amount        float64 `bson:"amount" json:"amount"`
	Category      string  `bson:"category" json:"category"`
	Date          string  `bson:"date" json:"date"`
	CreatedAt     string  `bson:"created_at" json:"created_at"`
	AICategorized bool    `bson:"ai_categorized" json:"ai_categorized"`
}

func (d expenseDocument) toExpense() types.Expense {
	return types.Expense{
		ID:            d.ID,
		UserID:        d.UserID,
		Description:   d.Description,
		Amount:        d.Amount,
		Category:      d.Category,
		Date:          parseTime(d.Date),
		CreatedAt:     parseTime(d.CreatedAt),
		AICategorized: d.AICategorized,
	}
}

// ExpenseRepository handles persistence for expenses. Every query is scoped
// to the owning user.
type ExpenseRepository struct {
	expenses docstore.Collection
}

func NewExpenseRepository(expenses docstore.Collection) *ExpenseRepository {
	return &ExpenseRepository{expenses: expenses}
}

func (r *ExpenseRepository) Create(ctx context.Context, e types.Expense) (types.Expense, error) {
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.Date.IsZero() {
		e.Date = now
	}
	e.CreatedAt = normalizeTime(e.CreatedAt)
	e.Date = normalizeTime(e.Date)

	doc := expenseDocument{
		ID:            e.ID,
		UserID:        e.UserID,
		Description:   e.Description,
		Amount:        e.Amount,
		Category:      e.Category,
		Date:          formatTime(e.Date),
		CreatedAt:     formatTime(e.CreatedAt),
		AICategorized: e.AICategorized,
	}
	if err := r.expenses.InsertOne(ctx, doc); err != nil {
		return types.Expense{}, mapErr(err)
	}
	return e, nil
}

// ListByUser returns the user's expenses ordered by date, newest first.
func (r *ExpenseRepository) ListByUser(ctx context.Context, userID string, limit int64) ([]types.Expense, error) {
	var docs []expenseDocument
	opts := docstore.FindOptions{SortField: "date", SortDesc: true, Limit: limit}
	if err := r.expenses.Find(ctx, docstore.Filter{"user_id": userID}, opts, &docs); err != nil {
		return nil, mapErr(err)
	}
	expenses := make([]types.Expense, 0, len(docs))
	for _, doc := range docs {
		expenses = append(expenses, doc.toExpense())
	}
	return expenses, nil
}

func (r *ExpenseRepository) GetByID(ctx context.Context, userID, id string) (types.Expense, error) {
	var doc expenseDocument
	if err := r.expenses.FindOne(ctx, ownedBy(userID, id), &doc); err != nil {
		return types.Expense{}, mapErr(err)
	}
	return doc.toExpense(), nil
}

// Update sets the fields present in patch and returns the stored record.
func (r *ExpenseRepository) Update(ctx context.Context, userID, id string, patch types.ExpensePatch) (types.Expense, error) {
	set := docstore.Fields{}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Amount != nil {
		set["amount"] = *patch.Amount
	}
	if patch.Category != nil {
		set["category"] = *patch.Category
	}
	if patch.Date != nil {
		set["date"] = formatTime(*patch.Date)
	}

	matched, err := r.expenses.UpdateOne(ctx, ownedBy(userID, id), set)
	if err != nil {
		return types.Expense{}, mapErr(err)
	}
	if matched == 0 {
		return types.Expense{}, ErrNotFound
	}
	return r.GetByID(ctx, userID, id)
}

func (r *ExpenseRepository) Delete(ctx context.Context, userID, id string) error {
	deleted, err := r.expenses.DeleteOne(ctx, ownedBy(userID, id))
	if err != nil {
		return mapErr(err)
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

func ownedBy(userID, id string) docstore.Filter {
	return docstore.Filter{"id": id, "user_id": userID}
}
