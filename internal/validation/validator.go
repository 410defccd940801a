package validation

import (
	"errors"
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator that reports fields by their JSON name
// and enforces billing fields when a separate billing address is requested.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(checkoutStructValidation, CheckoutRequest{})

	return v
}

// checkoutStructValidation requires the billing address only when it differs
// from the shipping address.
func checkoutStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CheckoutRequest)
	if !req.BillingDifferent {
		return
	}
	b := req.Billing
	required := []struct {
		value, field, name string
	}{
		{b.Line1, "billing.address_1", "Line1"},
		{b.City, "billing.city", "City"},
		{b.Region, "billing.state", "Region"},
		{b.PostalCode, "billing.postal_code", "PostalCode"},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			sl.ReportError(r.value, r.field, r.name, "required_with_billing", "")
		}
	}
}

var messages = map[string]string{
	"required":              "is required",
	"required_with_billing": "is required",
	"email":                 "Please enter a valid email address",
	"oneof":                 "is not a valid option",
	"startswith":            "is malformed",
}

// FieldErrors flattens validator errors into field -> message using JSON
// field paths such as "shipping.city".
func FieldErrors(err error) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		out["error"] = err.Error()
		return out
	}
	for _, fe := range ve {
		field := fieldPath(fe)
		if msg, ok := messages[fe.Tag()]; ok {
			out[field] = msg
			continue
		}
		switch fe.Tag() {
		case "max":
			out[field] = "must be at most " + fe.Param() + " characters"
		case "min", "gt":
			out[field] = "must be at least " + fe.Param()
		default:
			out[field] = "is invalid"
		}
	}
	return out
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validatorv10.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	return ns
}
