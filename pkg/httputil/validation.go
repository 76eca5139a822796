package httputil

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shipnology/shipnology-backend/pkg/errors"
)

var validate = newValidator()

// newValidator reports fields by their JSON name so error details line up
// with the request body the client sent.
func newValidator() *validator.Validate {
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
	return v
}

// Validate checks v against its validate tags. Failures become a
// VALIDATION_ERROR whose details are keyed by JSON path, e.g.
// "supervisor.email".
func Validate(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return errors.BadRequest(err.Error())
	}

	details := make(map[string]string, len(validationErrors))
	for _, e := range validationErrors {
		details[fieldPath(e)] = formatValidationError(e)
	}
	return errors.Validation(details)
}

// ValidateNested validates v as the field at path of an enclosing request,
// so details read "supervisor.email" wherever the check runs.
func ValidateNested(path string, v interface{}) error {
	err := Validate(v)
	var appErr *errors.AppError
	if !errors.As(err, &appErr) || len(appErr.Details) == 0 {
		return err
	}

	details := make(map[string]string, len(appErr.Details))
	for field, msg := range appErr.Details {
		details[path+"."+field] = msg
	}
	appErr.Details = details
	return appErr
}

// fieldPath drops the root struct name from the namespace
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return e.Field()
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_if":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "min":
		if isNumeric(e.Kind()) {
			return "must be at least " + e.Param()
		}
		return "must be at least " + e.Param() + " characters"
	case "max":
		if isNumeric(e.Kind()) {
			return "must be at most " + e.Param()
		}
		return "must be at most " + e.Param() + " characters"
	case "dbname":
		return "must start with a lowercase letter and contain only lowercase letters, digits and underscores"
	case "oneof":
		return "must be one of: " + e.Param()
	default:
		return "invalid value"
	}
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// RegisterCustomValidation registers a custom validation tag
func RegisterCustomValidation(tag string, fn validator.Func) error {
	return validate.RegisterValidation(tag, fn)
}
