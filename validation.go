package lmsauth

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// PasswordSymbols are the special characters a strong password may use.
const PasswordSymbols = "@$!%*?&"

const (
	msgWeakPassword     = "Password must contain at least one uppercase, one lowercase, one number and one special character"
	msgPasswordMismatch = "Passwords do not match"
)

// Validator checks request bodies before any store or hashing work is done.
// By default it reports the first violated rule; with CollectAll it reports
// every violation in Details.
type Validator struct {
	CollectAll bool

	validate *validator.Validate
}

func NewValidator(collectAll bool) *Validator {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	if err := validate.RegisterValidation("strongpassword", func(fl validator.FieldLevel) bool {
		return IsStrongPassword(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return &Validator{CollectAll: collectAll, validate: validate}
}

// Validate returns nil or a validation *Error.
func (v *Validator) Validate(req any) error {
	err := v.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return ValidationError("", "Validation error", "")
	}
	if !v.CollectAll {
		return ValidationError("", formatValidationError(verrs[0]), verrs[0].Field())
	}
	out := ValidationError("", "Validation error", "")
	for _, fe := range verrs {
		out.Details = append(out.Details, formatValidationError(fe))
	}
	return out
}

// IsStrongPassword requires at least one lowercase letter, one uppercase
// letter, one digit and one of PasswordSymbols, and nothing outside those sets.
func IsStrongPassword(p string) bool {
	var lower, upper, digit, symbol bool
	for _, c := range p {
		switch {
		case c >= 'a' && c <= 'z':
			lower = true
		case c >= 'A' && c <= 'Z':
			upper = true
		case c >= '0' && c <= '9':
			digit = true
		case strings.ContainsRune(PasswordSymbols, c):
			symbol = true
		default:
			return false
		}
	}
	return lower && upper && digit && symbol
}

func formatValidationError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		switch field {
		case "confirm_password":
			return "Confirm Password is required"
		case "confirmNewPassword":
			return "Confirm New Password is required"
		}
		return fmt.Sprintf("%q is required", field)
	case "email":
		return fmt.Sprintf("%q must be a valid email", field)
	case "min":
		return fmt.Sprintf("%q length must be at least %s characters long", field, fe.Param())
	case "max":
		return fmt.Sprintf("%q length must be less than or equal to %s characters long", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%q must be one of [%s]", field, strings.Join(strings.Fields(fe.Param()), ", "))
	case "eqfield":
		return msgPasswordMismatch
	case "strongpassword":
		return msgWeakPassword
	default:
		return fmt.Sprintf("%q is invalid", field)
	}
}
