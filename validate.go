package corepay

import (
	"reflect"

	"github.com/go-playground/validator/v10"

	"github.com/agentpay/corepay/pkg/money"
)

// validate is a single, package-wide validator instance, mirroring the
// teacher's rpc.go use of go-playground/validator over RPCData: struct-tag
// driven, with one custom registration for money.Amount since the package's
// zero value ("unset") and a genuinely zero payment amount would otherwise
// be indistinguishable to the stock "required" tag.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		a, ok := field.Interface().(money.Amount)
		if !ok {
			return nil
		}
		return a.String()
	}, money.Amount{})
	return v
}

// ValidatePaymentRequest enforces spec.md §3's field-presence rules plus the
// positive-amount invariant every guard and adapter assumes. It never
// mutates req.
func ValidatePaymentRequest(req PaymentRequest) error {
	if err := validate.Struct(req); err != nil {
		return Errorf(ErrValidation, "invalid payment request: %v", err)
	}
	if !req.Amount.IsPositive() {
		return Errorf(ErrValidation, "payment amount must be positive, got %s", req.Amount.String())
	}
	return nil
}
