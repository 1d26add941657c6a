package enums

import "slices"

// PaymentMethod records how a buyer intends to pay. Payments are not
// processed here; the value only travels with the purchase.
type PaymentMethod string

const (
	PaymentMethodMomo   PaymentMethod = "momo"
	PaymentMethodCredit PaymentMethod = "credit"
)

var paymentMethods = []PaymentMethod{PaymentMethodMomo, PaymentMethodCredit}

func (p PaymentMethod) String() string { return string(p) }

func (p PaymentMethod) IsValid() bool { return slices.Contains(paymentMethods, p) }

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	return parse("payment method", value, paymentMethods)
}
