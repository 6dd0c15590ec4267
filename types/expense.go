package types

import "time"

// DefaultCategory is assigned when no category is given or none can be derived.
const DefaultCategory = "Other"

// ExpenseCategories is the fixed list of categories an expense can be
// assigned, in matching order.
var ExpenseCategories = []string{
	"Food & Dining",
	"Transportation",
	"Shopping",
	"Entertainment",
	"Bills & Utilities",
	"Healthcare",
	"Travel",
	"Education",
	"Personal Care",
	DefaultCategory,
}

// Expense is a single spending record owned by a user.
type Expense struct {
	// ID is the generated string identifier of the expense.
	ID string `json:"id"`

	// UserID identifies the owner of the expense.
	UserID string `json:"-"`

	// Description is the free-form text entered by the user.
	Description string `json:"description"`

	// Amount is the amount spent.
	Amount float64 `json:"amount"`

	// Category is one of ExpenseCategories, or a user supplied value.
	Category string `json:"category"`

	// Date is when the expense happened.
	Date time.Time `json:"date"`

	// CreatedAt is when the expense was recorded.
	CreatedAt time.Time `json:"-"`

	// AICategorized reports whether Category was assigned by the model.
	AICategorized bool `json:"ai_categorized"`
}

// ExpensePatch carries the fields of a partial expense update. Nil fields are
// left unchanged.
type ExpensePatch struct {
	Description *string
	Amount      *float64
	Category    *string
	Date        *time.Time
}

// IsEmpty reports whether the patch changes nothing.
func (p ExpensePatch) IsEmpty() bool {
	return p.Description == nil && p.Amount == nil && p.Category == nil && p.Date == nil
}
