// conf/validate.go

package conf

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/kent2980/aoi-data-manager/internal/annotate"
	"github.com/kent2980/aoi-data-manager/internal/errors"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ErrorCategory implements errors.CategorizedError
func (ve ValidationError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryValidation
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func settingsValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("imagesize", func(fl validator.FieldLevel) bool {
			_, err := annotate.ParseSize(fl.Field().String())
			return err == nil
		})
	})
	return validate
}

// ValidateSettings checks struct tags and cross-field rules, collecting
// every violation into one ValidationError.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := settingsValidator().Struct(settings); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			ve.Errors = append(ve.Errors, describe(fe))
		}
	}

	if err := validateLogLevel(settings.Logging.DefaultLevel); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	for module, level := range settings.Logging.ModuleLevels {
		if err := validateLogLevel(level); err != nil {
			ve.Errors = append(ve.Errors, fmt.Sprintf("logging.module_levels.%s: %v", module, err))
		}
	}

	if len(ve.Errors) > 0 {
		return errors.New(ve).
			Component("configuration").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// describe renders a field error as "section.field: rule".
func describe(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	ns = strings.ToLower(ns)

	switch fe.Tag() {
	case "required", "required_if", "required_unless":
		return fmt.Sprintf("%s is required", ns)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", ns, fe.Param(), fmt.Sprint(fe.Value()))
	case "imagesize":
		return fmt.Sprintf("%s must look like 800x600, got %q", ns, fmt.Sprint(fe.Value()))
	}
	return fmt.Sprintf("%s failed %s=%s (value %v)", ns, fe.Tag(), fe.Param(), fe.Value())
}

func validateLogLevel(level string) error {
	switch strings.ToLower(level) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
		return nil
	}
	return fmt.Errorf("invalid log level %q", level)
}
