package budget

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"reelforge/internal/pricing"
)

var (
	// ErrAdmissionDenied reports that a reservation or check would push the day over its limit.
	ErrAdmissionDenied = errors.New("budget admission denied")
	// ErrBudgetExceeded reports that recorded spend has passed the daily limit.
	ErrBudgetExceeded = errors.New("daily budget exceeded")
)

// BudgetExceededError is returned by RegisterCost when the charge left the day
// above its limit and the ledger aborts on overage. The charge itself is
// already committed when this error is returned.
type BudgetExceededError struct {
	Day      string
	Limit    decimal.Decimal
	Spent    decimal.Decimal
	Category pricing.Category
	Amount   decimal.Decimal
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("daily budget exceeded on %s: spent $%s of $%s after %s charge of $%s",
		e.Day, e.Spent.StringFixed(2), e.Limit.StringFixed(2), e.Category, e.Amount.StringFixed(4))
}

// Is lets errors.Is match ErrBudgetExceeded.
func (e *BudgetExceededError) Is(target error) bool {
	return target == ErrBudgetExceeded
}
