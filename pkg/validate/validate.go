package validate

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	pkgerrors "github.com/brewmetric/brewmetric-core/pkg/errors"
	"github.com/go-playground/validator/v10"
)

const (
	usernameMinLength = 3
	usernameMaxLength = 50

	// The fixed symbol set accepted by the strength policy.
	passwordSymbols = "!@#$%^&*"
)

var (
	usernameRe  = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	emailRe     = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	lowercaseRe = regexp.MustCompile(`[a-z]`)
	uppercaseRe = regexp.MustCompile(`[A-Z]`)
	digitRe     = regexp.MustCompile(`\d`)
	symbolRe    = regexp.MustCompile(`[!@#$%^&*]`)
)

// PasswordStrength checks the password against the strength policy and
// reports the first failing rule as a human-readable reason.
func PasswordStrength(password string, minLength int) error {
	if minLength <= 0 {
		minLength = 8
	}
	if len(password) < minLength {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("password must be at least %d characters long", minLength))
	}
	if !lowercaseRe.MatchString(password) {
		return pkgerrors.New(pkgerrors.CodeValidation, "password must contain at least one lowercase letter")
	}
	if !uppercaseRe.MatchString(password) {
		return pkgerrors.New(pkgerrors.CodeValidation, "password must contain at least one uppercase letter")
	}
	if !digitRe.MatchString(password) {
		return pkgerrors.New(pkgerrors.CodeValidation, "password must contain at least one digit")
	}
	if !symbolRe.MatchString(password) {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("password must contain at least one special character (%s)", passwordSymbols))
	}
	return nil
}

// Username checks the username format: 3-50 characters, letters, digits and
// underscores, not starting with a digit.
func Username(username string) error {
	if len(username) < usernameMinLength || len(username) > usernameMaxLength {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("username must be between %d and %d characters", usernameMinLength, usernameMaxLength))
	}
	if !usernameRe.MatchString(username) {
		return pkgerrors.New(pkgerrors.CodeValidation, "username can only contain letters, numbers, and underscores (must start with letter or underscore)")
	}
	return nil
}

// Email performs a cosmetic local@domain.tld shape check. Uniqueness is
// enforced by the directory, not here.
func Email(email string) error {
	if !emailRe.MatchString(email) {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid email format")
	}
	return nil
}

var structValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// Struct runs validator tags over the destination value and reports failures
// as a single validation error with per-field details.
func Struct(dest any) error {
	if err := structValidator.Struct(dest); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func formatValidationErrors(err error) *pkgerrors.Error {
	if errs, ok := err.(validator.ValidationErrors); ok {
		details := map[string]string{}
		for _, fieldErr := range errs {
			details[fieldErr.Field()] = validationMessage(fieldErr)
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "email":
		return "must be a valid email"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	}
	return "is invalid"
}
