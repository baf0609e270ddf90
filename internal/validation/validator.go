// Package validation checks request DTOs with go-playground/validator.
//
// Handlers decode a request body into a struct with `validate` tags and call
// Struct. Failures come back as *apperror.AppError wrapping ErrValidation, so
// the usual error mapping turns them into a 400 naming the offending field.
// Business rules (trimmed lengths, ownership) stay in the services.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/vinstackcode/internal/apperror"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator. It caches struct metadata, so one
// instance per process is the intended use.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report JSON names so messages match what the client sent.
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// Struct validates s. The returned error names the first failing field and
// lists every failure in its message.
func Struct(s any) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperror.ValidationFailed("body", err.Error())
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, translate(fe))
	}
	return apperror.ValidationFailed(fieldErrs[0].Field(), strings.Join(messages, "; "))
}

var messageTemplates = map[string]string{
	"required": "%s is required",
	"email":    "%s must be a valid email address",
	"url":      "%s must be a valid URL",
	"alphanum": "%s must contain only letters and digits",
}

var messageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"gt":    "%s must be greater than %s",
	"lt":    "%s must be less than %s",
}

func translate(fe validator.FieldError) string {
	field, tag, param := fe.Field(), fe.Tag(), fe.Param()

	if tmpl, ok := messageTemplates[tag]; ok {
		return fmt.Sprintf(tmpl, field)
	}
	if tmpl, ok := messageWithParam[tag]; ok {
		return fmt.Sprintf(tmpl, field, param)
	}

	isString := fe.Kind() == reflect.String
	switch tag {
	case "min":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		if isString {
			return fmt.Sprintf("%s must be at most %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at most %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}
