package validate

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	currencyPattern    = regexp.MustCompile(`^[A-Za-z]{3}$`)
	gatewayNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
)

// New returns a validator with the custom tags used across the service.
// Field names in errors follow the json tag when there is one.
//
//	currency      three-letter ISO 4217 style code, any case
//	gateway_name  lowercase letters, digits, '-' and '_'
func New() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})

	_ = v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		return currencyPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("gateway_name", func(fl validator.FieldLevel) bool {
		return gatewayNamePattern.MatchString(fl.Field().String())
	})

	return v
}
