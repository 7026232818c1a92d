package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("source", func(fl validator.FieldLevel) bool {
		switch strings.ToLower(strings.TrimSpace(fl.Field().String())) {
		case "", "yandex", "google", "2gis":
			return true
		}
		return false
	})
	return v
}

// ValidateStruct runs the `validate` tags of s and reports the first failure
// in a form suitable for API clients.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "required":
			return fmt.Errorf("%s is required", fe.Field())
		case "source":
			return fmt.Errorf("%s must be one of yandex, google, 2gis", fe.Field())
		case "oneof":
			return fmt.Errorf("%s must be one of %s", fe.Field(), fe.Param())
		case "min", "gt":
			return fmt.Errorf("%s must be at least %s", fe.Field(), fe.Param())
		case "max":
			return fmt.Errorf("%s must be at most %s", fe.Field(), fe.Param())
		}
		return fmt.Errorf("%s is invalid", fe.Field())
	}
	return err
}
