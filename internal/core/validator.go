package core

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"litmus/internal/types"
)

// stripeIDPattern matches Stripe object ids such as cus_ and sub_ handles.
// The ids are interpolated into request paths, so nothing else is allowed.
var stripeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,255}$`)

// Validator wraps go-playground/validator with the service's custom tags
// and maps failures to *types.AppError.
//
// Custom tags:
//   - stripe_id: a Stripe object identifier (letters, digits, underscore)
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator and registers custom tags. Field names in
// errors use the json tag so messages match the request body.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	if err := v.RegisterValidation("stripe_id", func(fl validator.FieldLevel) bool {
		return stripeIDPattern.MatchString(fl.Field().String())
	}); err != nil {
		// Registration only fails for an empty tag or nil func.
		panic(fmt.Sprintf("register stripe_id: %v", err))
	}

	return &Validator{validate: v, logger: logger}
}

// ValidateStruct validates s and returns the first failure as an AppError,
// or nil when s is valid.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		v.logger.Error("validator misuse", "error", err)
		return types.NewAppError(types.ErrCodeInternalUnexpected, "Internal server error", err)
	}
	return fieldError(verrs[0])
}

func fieldError(fe validator.FieldError) *types.AppError {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return types.NewAppError(types.ErrCodeValidationMissingField,
			fmt.Sprintf("Missing %s", field), nil)
	case "email":
		return types.NewAppError(types.ErrCodeValidationInvalidEmail,
			"Invalid email address", nil).WithDetails("Please provide a valid email address")
	case "http_url", "url":
		return types.NewAppError(types.ErrCodeValidationInvalidReturn,
			fmt.Sprintf("Invalid %s", field), nil).WithDetails("Must be an absolute http(s) URL")
	case "stripe_id":
		return types.NewAppError(types.ErrCodeValidationInvalidField,
			fmt.Sprintf("Invalid %s", field), nil).WithDetails("Must be a Stripe object identifier")
	default:
		return types.NewAppError(types.ErrCodeValidationInvalidField,
			fmt.Sprintf("Invalid %s", field), nil).WithDetails(fmt.Sprintf("Failed %q validation", fe.Tag()))
	}
}
