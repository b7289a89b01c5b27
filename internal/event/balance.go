package event

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrUserNotFound is returned by readers when the account does not exist.
var ErrUserNotFound = errors.New("user not found")

// Balance is the externally recorded holding of one asset.
// It is ground truth for current quantity.
type Balance struct {
	UserID   uuid.UUID
	Symbol   string
	Quantity decimal.Decimal
}

// NormalizeSymbol upper-cases and trims an asset symbol so that balances,
// trades and quotes join on the same key.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
