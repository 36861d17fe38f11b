package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vnshop/authgate/internal/apperror"
)

// PhonePattern is the accepted mobile number shape: a leading zero and ten digits in total.
var PhonePattern = regexp.MustCompile(`^0[0-9]{9}$`)

// Normalizer is implemented by request types that trim or canonicalise their fields
// before rules run.
type Normalizer interface {
	Normalize()
}

// Checker is implemented by request types with rules that tags cannot express.
// It runs only when every tag rule passed.
type Checker interface {
	Check(v *Validator) []apperror.FieldError
}

// Validator evaluates declarative field rules and renders client-facing messages.
type Validator struct {
	v *validator.Validate
}

// New builds a Validator with the phone rule registered and JSON names as field labels.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return PhonePattern.MatchString(fl.Field().String())
	})
	return &Validator{v: v}
}

// Struct normalises req and returns every failing field in declaration order.
func (val *Validator) Struct(req any) []apperror.FieldError {
	if n, ok := req.(Normalizer); ok {
		n.Normalize()
	}
	err := val.v.Struct(req)
	if err == nil {
		if c, ok := req.(Checker); ok {
			return c.Check(val)
		}
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []apperror.FieldError{{Field: "body", Message: "invalid request"}}
	}
	fields := make([]apperror.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperror.FieldError{Field: fe.Field(), Message: message(fe.Field(), fe.Tag(), fe.Param())})
	}
	return fields
}

// Var checks a single value against tag, reporting it under field.
func (val *Validator) Var(field string, value any, tag string) *apperror.FieldError {
	err := val.v.Var(value, tag)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &apperror.FieldError{Field: field, Message: message(field, verrs[0].Tag(), verrs[0].Param())}
	}
	return &apperror.FieldError{Field: field, Message: field + " is invalid"}
}

func message(field, tag, param string) string {
	switch tag {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, param)
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", field, param)
	case "phone":
		return field + " must start with 0 and contain 10 digits"
	case "email":
		return field + " must be a valid email address"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "numeric":
		return field + " must contain only digits"
	default:
		return field + " is invalid"
	}
}
