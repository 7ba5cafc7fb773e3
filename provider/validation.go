package provider

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mstgnz/paygate/infra/validate"
)

var configValidator = validate.New()

// typeTags maps ConfigField types onto validator tags
var typeTags = map[string]string{
	"number":  "numeric",
	"url":     "url",
	"email":   "email",
	"boolean": "boolean",
}

// ValidateConfigFields checks adapter credentials against their field definitions
func ValidateConfigFields(gatewayName string, config map[string]string, fields []ConfigField) error {
	for _, field := range fields {
		value, exists := config[field.Key]
		if !exists || strings.TrimSpace(value) == "" {
			if field.Required {
				return fmt.Errorf("%s: required field '%s' is missing", gatewayName, field.Key)
			}
			continue
		}

		if tag, ok := typeTags[field.Type]; ok {
			if err := configValidator.Var(value, tag); err != nil {
				return fmt.Errorf("%s: field '%s' must be a valid %s", gatewayName, field.Key, field.Type)
			}
		}

		if field.Pattern != "" {
			matched, err := regexp.MatchString(field.Pattern, value)
			if err != nil {
				return fmt.Errorf("%s: invalid pattern for field '%s': %v", gatewayName, field.Key, err)
			}
			if !matched {
				return fmt.Errorf("%s: field '%s' does not match required pattern", gatewayName, field.Key)
			}
		}

		if field.MinLength > 0 && len(value) < field.MinLength {
			return fmt.Errorf("%s: field '%s' must be at least %d characters", gatewayName, field.Key, field.MinLength)
		}
		if field.MaxLength > 0 && len(value) > field.MaxLength {
			return fmt.Errorf("%s: field '%s' must not exceed %d characters", gatewayName, field.Key, field.MaxLength)
		}
	}

	return nil
}
