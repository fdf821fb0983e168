package coupon

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FailCode is the machine-stable reason a validation gate rejected a coupon.
// Clients branch on these; messages are for humans only.
type FailCode string

const (
	CodeNotFound                FailCode = "COUPON_NOT_FOUND"
	CodeInactive                FailCode = "COUPON_INACTIVE"
	CodeNotStarted              FailCode = "COUPON_NOT_STARTED"
	CodeExpired                 FailCode = "COUPON_EXPIRED"
	CodeTotalUsageLimitExceeded FailCode = "TOTAL_USAGE_LIMIT_EXCEEDED"
	CodeUserLimitExceeded       FailCode = "USER_LIMIT_EXCEEDED"
	CodeMinimumOrderNotMet      FailCode = "MINIMUM_ORDER_NOT_MET"
	CodeAlreadyApplied          FailCode = "ALREADY_APPLIED"
	CodeNotStackable            FailCode = "NOT_STACKABLE"
	CodeNotApplicableToCart     FailCode = "NOT_APPLICABLE_TO_CART"
	CodeCartNotFound            FailCode = "CART_NOT_FOUND"
	CodeDuplicateCode           FailCode = "DUPLICATE_CODE"
	CodeInUse                   FailCode = "COUPON_IN_USE"
)

// ValidationError is a business-rule rejection. It is returned as a value,
// never propagated past the handler boundary as a server error.
type ValidationError struct {
	Code    FailCode
	Message string

	// Shortfall is set for CodeMinimumOrderNotMet: how much more the cart
	// subtotal needs before the coupon applies.
	Shortfall decimal.Decimal

	// ConflictingCodes is set for CodeNotStackable: the attached coupon codes
	// that block this one.
	ConflictingCodes []string
}

func (e *ValidationError) Error() string {
	return string(e.Code) + ": " + e.Message
}

func failNotFound(code string) *ValidationError {
	return &ValidationError{Code: CodeNotFound, Message: fmt.Sprintf("coupon %q not found", code)}
}

func failShortfall(shortfall decimal.Decimal) *ValidationError {
	return &ValidationError{
		Code:      CodeMinimumOrderNotMet,
		Message:   fmt.Sprintf("add %s more to use this coupon", shortfall.StringFixed(2)),
		Shortfall: shortfall,
	}
}

func failNotStackable(conflicting []string) *ValidationError {
	return &ValidationError{
		Code:             CodeNotStackable,
		Message:          "this coupon cannot be combined with: " + strings.Join(conflicting, ", "),
		ConflictingCodes: conflicting,
	}
}
